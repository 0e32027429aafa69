package model

import "fmt"

// TermKind distinguishes how a term enters the design matrix
type TermKind string

const (
	TermContinuous  TermKind = "continuous"
	TermCategorical TermKind = "categorical"
	TermInteraction TermKind = "interaction"
)

// Term is one fixed effect in a model specification. Categorical terms
// carry their full level set and reference level so dummy encoding stays
// identical across every model in a nested sequence.
type Term struct {
	Kind      TermKind
	Name      string   // column name for continuous/categorical
	Levels    []string // categorical: all levels, fixed order
	Reference string   // categorical: omitted reference level
	Left      string   // interaction: first continuous column
	Right     string   // interaction: second continuous column
}

// Continuous builds a continuous fixed-effect term
func Continuous(name string) Term {
	return Term{Kind: TermContinuous, Name: name}
}

// Categorical builds a reference-encoded categorical term. The first
// level is the reference unless overridden with WithReference.
func Categorical(name string, levels ...string) Term {
	t := Term{Kind: TermCategorical, Name: name, Levels: levels}
	if len(levels) > 0 {
		t.Reference = levels[0]
	}
	return t
}

// WithReference overrides the reference level
func (t Term) WithReference(ref string) Term {
	t.Reference = ref
	return t
}

// Interaction builds a product term between two continuous columns.
// Both main effects must appear separately in the spec.
func Interaction(left, right string) Term {
	return Term{Kind: TermInteraction, Left: left, Right: right}
}

// Columns returns the table columns the term reads
func (t Term) Columns() []string {
	if t.Kind == TermInteraction {
		return []string{t.Left, t.Right}
	}
	return []string{t.Name}
}

// Label returns the display name for the term
func (t Term) Label() string {
	if t.Kind == TermInteraction {
		return t.Left + ":" + t.Right
	}
	return t.Name
}

// Spec is a typed random-intercept model specification: an outcome, a
// grouping variable, and an ordered list of fixed-effect terms. Specs in
// a sequence share outcome and grouping and differ only by appended
// terms, so each formula is a strict superset of the one before it.
type Spec struct {
	Name     string
	Outcome  string
	Grouping string
	Terms    []Term
}

// NewSpec creates a model specification
func NewSpec(name, outcome, grouping string, terms ...Term) Spec {
	return Spec{Name: name, Outcome: outcome, Grouping: grouping, Terms: terms}
}

// Extend returns a new spec with additional terms appended, preserving
// the nested-sequence invariant.
func (s Spec) Extend(name string, terms ...Term) Spec {
	combined := make([]Term, 0, len(s.Terms)+len(terms))
	combined = append(combined, s.Terms...)
	combined = append(combined, terms...)
	return Spec{Name: name, Outcome: s.Outcome, Grouping: s.Grouping, Terms: combined}
}

// RequiredColumns lists every table column the spec reads, outcome and
// grouping included, without duplicates.
func (s Spec) RequiredColumns() []string {
	seen := map[string]bool{s.Outcome: true, s.Grouping: true}
	cols := []string{s.Outcome, s.Grouping}
	for _, t := range s.Terms {
		for _, c := range t.Columns() {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}
	return cols
}

// Validate performs structural checks on the specification
func (s Spec) Validate() error {
	if s.Outcome == "" {
		return fmt.Errorf("model %s: outcome is required", s.Name)
	}
	if s.Grouping == "" {
		return fmt.Errorf("model %s: grouping variable is required", s.Name)
	}
	for _, t := range s.Terms {
		switch t.Kind {
		case TermCategorical:
			if len(t.Levels) < 2 {
				return fmt.Errorf("model %s: categorical term %s needs at least 2 levels", s.Name, t.Name)
			}
			found := false
			for _, l := range t.Levels {
				if l == t.Reference {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("model %s: reference %q not among levels of %s", s.Name, t.Reference, t.Name)
			}
		case TermInteraction:
			if t.Left == "" || t.Right == "" {
				return fmt.Errorf("model %s: interaction term needs both columns", s.Name)
			}
		}
	}
	return nil
}

// IsNestedIn reports whether s's terms are a prefix-superset check: every
// term of s appears in other (used to verify sequence construction).
func (s Spec) IsNestedIn(other Spec) bool {
	if s.Outcome != other.Outcome || s.Grouping != other.Grouping {
		return false
	}
	if len(s.Terms) > len(other.Terms) {
		return false
	}
	for i, t := range s.Terms {
		if other.Terms[i].Label() != t.Label() {
			return false
		}
	}
	return true
}
