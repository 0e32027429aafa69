package frame

import (
	"fmt"
	"math"

	"buurtstat/domain/core"
)

// LeftJoin attaches the right frame's columns to the left frame, matching
// rows on a shared string key column. Every left row appears exactly once
// in the result: a duplicated key on the right would fan out rows, so it
// is rejected as a broken uniqueness invariant rather than silently
// accepted. Unmatched left rows get missing values for all right columns.
func LeftJoin(left, right *Frame, key string) (*Frame, error) {
	leftKey, ok := left.Column(key)
	if !ok || leftKey.Type != TypeString {
		return nil, core.NewColumnError(key)
	}
	rightKey, ok := right.Column(key)
	if !ok || rightKey.Type != TypeString {
		return nil, fmt.Errorf("right frame: %w", core.NewColumnError(key))
	}

	// Index right rows by key, rejecting duplicates.
	lookup := make(map[string]int, right.NumRows())
	for i := 0; i < right.NumRows(); i++ {
		if rightKey.Missing[i] {
			continue
		}
		k := rightKey.Strings[i]
		if _, seen := lookup[k]; seen {
			return nil, fmt.Errorf("%w: %s=%q", core.ErrDuplicateKey, key, k)
		}
		lookup[k] = i
	}

	out := left.Copy()
	for _, col := range right.cols {
		if col.Name == key {
			continue
		}
		if left.HasColumn(col.Name) {
			return nil, fmt.Errorf("join would overwrite column %s", col.Name)
		}
		switch col.Type {
		case TypeNumeric:
			vals := make([]float64, left.NumRows())
			for i := 0; i < left.NumRows(); i++ {
				vals[i] = math.NaN()
				if !leftKey.Missing[i] {
					if j, found := lookup[leftKey.Strings[i]]; found {
						vals[i] = col.Floats[j]
					}
				}
			}
			out.AddNumeric(col.Name, vals)
		case TypeString:
			vals := make([]string, left.NumRows())
			miss := make([]bool, left.NumRows())
			for i := 0; i < left.NumRows(); i++ {
				miss[i] = true
				if !leftKey.Missing[i] {
					if j, found := lookup[leftKey.Strings[i]]; found {
						vals[i] = col.Strings[j]
						miss[i] = col.Missing[j]
					}
				}
			}
			out.AddString(col.Name, vals, miss)
		}
	}

	if out.NumRows() != left.NumRows() {
		return nil, fmt.Errorf("%w: %d -> %d", core.ErrRowCountChanged, left.NumRows(), out.NumRows())
	}
	return out, nil
}
