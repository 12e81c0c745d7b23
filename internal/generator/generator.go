// Package generator maps a column and an absolute row index to a cell value.
// Every function registered here is stateless and safe for concurrent use.
package generator

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/timmy/csvgen/internal/domain"
)

// ValueFunc produces the cell value of column col at absolute row index row.
type ValueFunc func(col domain.Column, row int64) (string, error)

// Registry resolves column kinds to value functions.
// It is built once and read-only afterwards.
type Registry struct {
	funcs    map[string]ValueFunc
	fallback ValueFunc
}

var departments = []string{"Engineering", "Marketing", "Sales", "Support", "HR", "Finance"}

// NewRegistry returns a registry with the built-in kinds.
// refDate anchors the created_date kind so that output does not depend on when a chunk runs.
func NewRegistry(refDate time.Time) *Registry {
	ref := time.Date(refDate.Year(), refDate.Month(), refDate.Day(), 0, 0, 0, 0, time.UTC)
	r := &Registry{
		funcs: make(map[string]ValueFunc),
		fallback: func(_ domain.Column, row int64) (string, error) {
			return "value_" + strconv.FormatInt(row, 10), nil
		},
	}

	r.Register("id", func(_ domain.Column, row int64) (string, error) {
		return strconv.FormatInt(row, 10), nil
	})
	r.Register("username", func(_ domain.Column, row int64) (string, error) {
		return fmt.Sprintf("user%d", row), nil
	})
	r.Register("email", func(_ domain.Column, row int64) (string, error) {
		return fmt.Sprintf("user%d@example.com", row), nil
	})
	r.Register("phone", func(_ domain.Column, row int64) (string, error) {
		return fmt.Sprintf("+91837%04d", 1000+row%9000), nil
	})
	r.Register("status", func(_ domain.Column, row int64) (string, error) {
		if row%2 == 0 {
			return "Active", nil
		}
		return "Inactive", nil
	})
	r.Register("score", func(_ domain.Column, row int64) (string, error) {
		return strconv.FormatUint(mix(uint64(row))%1000, 10), nil
	})
	r.Register("created_date", func(_ domain.Column, row int64) (string, error) {
		return ref.AddDate(0, 0, -int(row%365)).Format("2006-01-02"), nil
	})
	r.Register("department", func(_ domain.Column, row int64) (string, error) {
		return departments[row%int64(len(departments))], nil
	})
	r.Register("first_name", func(_ domain.Column, row int64) (string, error) {
		return fmt.Sprintf("fname%d", row), nil
	})
	r.Register("last_name", func(_ domain.Column, row int64) (string, error) {
		return fmt.Sprintf("lname%d", row), nil
	})
	return r
}

// Register binds kind to fn, replacing any previous binding.
// Call it before the registry is shared.
func (r *Registry) Register(kind string, fn ValueFunc) {
	r.funcs[kind] = fn
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.funcs))
	for k := range r.funcs {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Value returns the cell for col at row. Unknown kinds use the text fallback.
func (r *Registry) Value(col domain.Column, row int64) (string, error) {
	fn, ok := r.funcs[col.Kind]
	if !ok {
		fn = r.fallback
	}
	return fn(col, row)
}

// Record fills dst with one value per column for row and returns it.
// dst is reused when it has enough capacity.
func (r *Registry) Record(cols []domain.Column, row int64, dst []string) ([]string, error) {
	dst = dst[:0]
	for _, col := range cols {
		v, err := r.Value(col, row)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", col.Name, row, err)
		}
		dst = append(dst, v)
	}
	return dst, nil
}

// mix is the splitmix64 finalizer.
func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
