package classify

import (
	"context"
	"fmt"

	"github.com/dvloznov/bankfeed/internal/domain"
)

// Outcome reports whether Apply wrote to the store.
type Outcome string

const (
	Updated   Outcome = "updated"
	Unchanged Outcome = "unchanged"
)

// ClassificationWriter is the store operation the writer needs.
type ClassificationWriter interface {
	UpdateClassification(ctx context.Context, id string, category, subcategory *string) error
}

// Apply sets tx's category and subcategory from rule, writing only when either
// differs from the current value. A nil rule leaves tx alone. On success tx
// reflects the stored classification.
func Apply(ctx context.Context, w ClassificationWriter, tx *domain.Transaction, rule *domain.Rule) (Outcome, error) {
	if rule == nil {
		return Unchanged, nil
	}

	category := domain.StringPtr(rule.Category)
	subcategory := domain.StringPtr(rule.Subcategory)
	if tx.CategoryValue() == rule.Category && tx.SubcategoryValue() == rule.Subcategory {
		return Unchanged, nil
	}

	if err := w.UpdateClassification(ctx, tx.ID, category, subcategory); err != nil {
		return "", fmt.Errorf("Apply: updating %s: %w", tx.ID, err)
	}
	tx.Category = category
	tx.Subcategory = subcategory
	return Updated, nil
}
