package service

import (
	"fmt"
	"strings"
)

// ValidationError reports a rejected submission. It is returned synchronously
// and never turns into a job failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// validate checks a request against the configured limits.
func validate(req SubmitRequest, maxRows int) error {
	if len(req.Columns) == 0 {
		return invalid("fields", "at least one field is required")
	}
	seen := make(map[string]int, len(req.Columns))
	for i, c := range req.Columns {
		name := c.NormalizedName()
		if name == "" {
			return invalid(fmt.Sprintf("fields[%d].name", i), "name must not be empty")
		}
		if strings.ContainsAny(c.Name, "\r\n") {
			return invalid(fmt.Sprintf("fields[%d].name", i), "name must not contain line breaks")
		}
		if prev, dup := seen[name]; dup {
			return invalid(fmt.Sprintf("fields[%d].name", i), "duplicate field name %q (also fields[%d])", c.Name, prev)
		}
		seen[name] = i
	}
	if req.RowCount < 1 {
		return invalid("rowCount", "must be a positive integer, got %d", req.RowCount)
	}
	if maxRows > 0 && req.RowCount > maxRows {
		return invalid("rowCount", "must not exceed %d, got %d", maxRows, req.RowCount)
	}
	return nil
}
