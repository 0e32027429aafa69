package frame

import (
	"fmt"
	"math"

	"buurtstat/domain/core"
)

// ColumnType distinguishes numeric columns from string columns
type ColumnType string

const (
	TypeNumeric ColumnType = "numeric"
	TypeString  ColumnType = "string"
)

// Column is one variable of the working table. Numeric columns encode
// missing values as NaN; string columns carry an explicit missing mask.
type Column struct {
	Name    string
	Type    ColumnType
	Floats  []float64
	Strings []string
	Missing []bool // string columns only; nil for numeric
}

// Len returns the number of observations in the column
func (c *Column) Len() int {
	if c.Type == TypeNumeric {
		return len(c.Floats)
	}
	return len(c.Strings)
}

// IsMissing reports whether observation i has no value
func (c *Column) IsMissing(i int) bool {
	if c.Type == TypeNumeric {
		return math.IsNaN(c.Floats[i])
	}
	return c.Missing[i]
}

// Frame is the canonical working table for the pipeline: one row per
// respondent (or one row per geographic unit in a level table).
// Transformations return new frames; a Frame handed downstream is never
// mutated in place by a later phase.
type Frame struct {
	cols  []*Column
	index map[string]int
	nrows int
}

// New creates an empty frame sized for n rows
func New(n int) *Frame {
	return &Frame{
		index: make(map[string]int),
		nrows: n,
	}
}

// NumRows returns the number of observations
func (f *Frame) NumRows() int { return f.nrows }

// NumCols returns the number of variables
func (f *Frame) NumCols() int { return len(f.cols) }

// ColumnNames returns variable names in insertion order
func (f *Frame) ColumnNames() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether a variable exists
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns the named column
func (f *Frame) Column(name string) (*Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.cols[i], true
}

// AddNumeric attaches a numeric column. Replaces any existing column of
// the same name (recoding overwrites in place at the table level).
func (f *Frame) AddNumeric(name string, values []float64) error {
	if len(values) != f.nrows {
		return fmt.Errorf("%w: column %s has %d values, frame has %d rows",
			core.ErrLengthMismatch, name, len(values), f.nrows)
	}
	return f.put(&Column{Name: name, Type: TypeNumeric, Floats: values})
}

// AddString attaches a string column with an explicit missing mask.
// A nil mask marks empty strings as missing.
func (f *Frame) AddString(name string, values []string, missing []bool) error {
	if len(values) != f.nrows {
		return fmt.Errorf("%w: column %s has %d values, frame has %d rows",
			core.ErrLengthMismatch, name, len(values), f.nrows)
	}
	if missing == nil {
		missing = make([]bool, len(values))
		for i, v := range values {
			missing[i] = v == ""
		}
	}
	if len(missing) != len(values) {
		return fmt.Errorf("%w: column %s missing mask has %d entries, expected %d",
			core.ErrLengthMismatch, name, len(missing), len(values))
	}
	return f.put(&Column{Name: name, Type: TypeString, Strings: values, Missing: missing})
}

func (f *Frame) put(col *Column) error {
	if i, ok := f.index[col.Name]; ok {
		f.cols[i] = col
		return nil
	}
	f.index[col.Name] = len(f.cols)
	f.cols = append(f.cols, col)
	return nil
}

// Numeric returns a copy of the named numeric column's values, or nil
// when the column is absent or not numeric. Callers gate on HasColumn.
func (f *Frame) Numeric(name string) []float64 {
	col, ok := f.Column(name)
	if !ok || col.Type != TypeNumeric {
		return nil
	}
	out := make([]float64, len(col.Floats))
	copy(out, col.Floats)
	return out
}

// Strings returns a copy of the named string column's values and mask,
// or nils when the column is absent or not a string column.
func (f *Frame) Strings(name string) ([]string, []bool) {
	col, ok := f.Column(name)
	if !ok || col.Type != TypeString {
		return nil, nil
	}
	vals := make([]string, len(col.Strings))
	copy(vals, col.Strings)
	mask := make([]bool, len(col.Missing))
	copy(mask, col.Missing)
	return vals, mask
}

// MissingCount returns the number of missing observations in a column.
// An absent column counts as fully missing.
func (f *Frame) MissingCount(name string) int {
	col, ok := f.Column(name)
	if !ok {
		return f.nrows
	}
	n := 0
	for i := 0; i < col.Len(); i++ {
		if col.IsMissing(i) {
			n++
		}
	}
	return n
}

// NonMissingCount returns the number of observed values in a column
func (f *Frame) NonMissingCount(name string) int {
	return f.nrows - f.MissingCount(name)
}

// Copy returns a deep copy of the frame
func (f *Frame) Copy() *Frame {
	out := New(f.nrows)
	for _, col := range f.cols {
		c := &Column{Name: col.Name, Type: col.Type}
		if col.Type == TypeNumeric {
			c.Floats = make([]float64, len(col.Floats))
			copy(c.Floats, col.Floats)
		} else {
			c.Strings = make([]string, len(col.Strings))
			copy(c.Strings, col.Strings)
			c.Missing = make([]bool, len(col.Missing))
			copy(c.Missing, col.Missing)
		}
		out.put(c)
	}
	return out
}

// Filter returns a new frame keeping only rows where keep[i] is true.
// The mask must match the frame's row count; a mismatch is a
// programming error and panics, as in gonum's dimension checks.
func (f *Frame) Filter(keep []bool) *Frame {
	if len(keep) != f.nrows {
		panic(fmt.Sprintf("frame: filter mask has %d entries, frame has %d rows", len(keep), f.nrows))
	}
	n := 0
	for _, k := range keep {
		if k {
			n++
		}
	}
	out := New(n)
	for _, col := range f.cols {
		c := &Column{Name: col.Name, Type: col.Type}
		if col.Type == TypeNumeric {
			c.Floats = make([]float64, 0, n)
			for i, k := range keep {
				if k {
					c.Floats = append(c.Floats, col.Floats[i])
				}
			}
		} else {
			c.Strings = make([]string, 0, n)
			c.Missing = make([]bool, 0, n)
			for i, k := range keep {
				if k {
					c.Strings = append(c.Strings, col.Strings[i])
					c.Missing = append(c.Missing, col.Missing[i])
				}
			}
		}
		out.put(c)
	}
	return out
}

// Select returns a new frame with only the named columns, in order.
// Missing names are skipped rather than erroring, matching the
// availability-driven column selection used throughout the pipeline.
func (f *Frame) Select(names []string) *Frame {
	out := New(f.nrows)
	for _, name := range names {
		if col, ok := f.Column(name); ok {
			out.put(col)
		}
	}
	return out.Copy()
}

// DropColumns returns a new frame without the named columns
func (f *Frame) DropColumns(names ...string) *Frame {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := New(f.nrows)
	for _, col := range f.cols {
		if !drop[col.Name] {
			out.put(col)
		}
	}
	return out.Copy()
}
