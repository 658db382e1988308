package categorize

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/store"
)

// LabelValidator maps classifier output onto the closed label set.
type LabelValidator struct {
	canonical map[string]string // normalized -> label as configured
	fallback  string
}

// NewLabelValidator accepts labels and falls back to fallback for
// anything else.
func NewLabelValidator(labels []string, fallback string) *LabelValidator {
	v := &LabelValidator{
		canonical: make(map[string]string, len(labels)),
		fallback:  fallback,
	}
	for _, l := range labels {
		v.canonical[normalizeLabel(l)] = l
	}
	return v
}

// Canonical returns the configured spelling of label, ignoring case and
// surrounding whitespace.
func (v *LabelValidator) Canonical(label string) (string, bool) {
	c, ok := v.canonical[normalizeLabel(label)]
	return c, ok
}

// Mapping is the validated result for one batch.
type Mapping struct {
	Assignments []store.CategoryAssignment
	Fallback    int
}

// Map pairs batch rows with labels by position. A length mismatch is a
// contract violation: every row gets the fallback label and the returned
// error wraps domain.ErrClassificationContract. A label outside the set
// falls back for that row only.
func (v *LabelValidator) Map(batch []store.Uncategorized, labels []string) (Mapping, error) {
	m := Mapping{Assignments: make([]store.CategoryAssignment, 0, len(batch))}

	if len(labels) != len(batch) {
		for _, row := range batch {
			m.Assignments = append(m.Assignments, store.CategoryAssignment{TransactionID: row.TransactionID, Category: v.fallback})
		}
		m.Fallback = len(batch)
		return m, fmt.Errorf("%w: got %d labels for %d transactions", domain.ErrClassificationContract, len(labels), len(batch))
	}

	for i, row := range batch {
		label, ok := v.Canonical(labels[i])
		if !ok {
			label = v.fallback
			m.Fallback++
		}
		m.Assignments = append(m.Assignments, store.CategoryAssignment{TransactionID: row.TransactionID, Category: label})
	}
	return m, nil
}

// Fallback is the label given to rows the classifier could not place.
func (v *LabelValidator) Fallback() string {
	return v.fallback
}

func normalizeLabel(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}
