package domain

import (
	"sort"
	"strings"
)

// Column describes one output column: its header name, the generator kind and its position.
type Column struct {
	Name  string `json:"name"`
	Kind  string `json:"type"`
	Order int    `json:"order"`
}

// NormalizedName is the form used to detect duplicate column names.
func (c Column) NormalizedName() string {
	return strings.ToLower(strings.TrimSpace(c.Name))
}

// SortColumns returns a copy of cols ordered by Order, keeping input order for ties.
// Names are trimmed.
func SortColumns(cols []Column) []Column {
	out := make([]Column, len(cols))
	for i, c := range cols {
		c.Name = strings.TrimSpace(c.Name)
		c.Kind = strings.TrimSpace(c.Kind)
		out[i] = c
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order < out[j].Order
	})
	return out
}

// ColumnNames returns the header names in column order.
func ColumnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}
