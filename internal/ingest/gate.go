package ingest

import (
	"context"
	"fmt"

	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/dvloznov/bankfeed/internal/store"
)

// Decision is the verdict of Admit.
type Decision string

const (
	Admitted Decision = "admitted"
	Skipped  Decision = "skipped"
)

// Admit decides whether candidate may be created. Candidates with an empty or
// already known external id are skipped.
func Admit(candidate *domain.Transaction, known map[string]struct{}) Decision {
	if candidate.ExternalID == "" {
		return Skipped
	}
	if _, ok := known[candidate.ExternalID]; ok {
		return Skipped
	}
	return Admitted
}

// Policy selects how the gate treats a candidate that is already stored.
type Policy int

const (
	// SkipDuplicates drops candidates whose external id is known. Used by
	// sources with stable identifiers.
	SkipDuplicates Policy = iota
	// ReplaceDuplicates looks the candidate up by composite key and
	// overwrites the ingestion-owned fields of a match, keeping its id,
	// external id and source.
	ReplaceDuplicates
)

func (p Policy) String() string {
	switch p {
	case SkipDuplicates:
		return "skip"
	case ReplaceDuplicates:
		return "replace"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// Outcome is what the gate did with one candidate.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeReplaced Outcome = "replaced"
	OutcomeSkipped  Outcome = "skipped"
)

// Gate routes normalized candidates into the transaction store according to
// its Policy. A Gate serves one batch and must not be shared across batches.
type Gate struct {
	store  store.TransactionStore
	policy Policy
	known  map[string]struct{}
}

// NewGate prepares a gate for one batch. Under SkipDuplicates the known
// external ids are loaded here, once.
func NewGate(ctx context.Context, txStore store.TransactionStore, policy Policy) (*Gate, error) {
	g := &Gate{store: txStore, policy: policy}
	if policy == SkipDuplicates {
		known, err := txStore.ListExternalIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("NewGate: loading external ids: %w", err)
		}
		if known == nil {
			known = make(map[string]struct{})
		}
		g.known = known
	}
	return g, nil
}

// Process admits, replaces or skips candidate. The returned error is a
// per-row failure; the gate stays usable afterwards.
func (g *Gate) Process(ctx context.Context, candidate *domain.Transaction) (Outcome, error) {
	if g.policy == ReplaceDuplicates {
		return g.replace(ctx, candidate)
	}

	if Admit(candidate, g.known) == Skipped {
		return OutcomeSkipped, nil
	}
	if _, err := g.store.CreateTransaction(ctx, candidate); err != nil {
		return "", fmt.Errorf("creating transaction %s: %w", candidate.ExternalID, err)
	}
	g.known[candidate.ExternalID] = struct{}{}
	return OutcomeCreated, nil
}

func (g *Gate) replace(ctx context.Context, candidate *domain.Transaction) (Outcome, error) {
	matches, err := g.store.FindTransactionsByKey(ctx, candidate.Key())
	if err != nil {
		return "", fmt.Errorf("looking up composite key: %w", err)
	}
	if len(matches) == 0 {
		if _, err := g.store.CreateTransaction(ctx, candidate); err != nil {
			return "", fmt.Errorf("creating transaction %s: %w", candidate.ExternalID, err)
		}
		return OutcomeCreated, nil
	}

	// A match keeps its id, external id and source.
	existing := matches[0]
	candidate.ID = existing.ID
	candidate.CreatedAt = existing.CreatedAt
	if existing.ExternalID != "" {
		candidate.ExternalID = existing.ExternalID
	}
	if existing.Source != "" {
		candidate.Source = existing.Source
	}
	if err := g.store.ReplaceTransaction(ctx, candidate); err != nil {
		return "", fmt.Errorf("replacing transaction %s: %w", existing.ID, err)
	}
	return OutcomeReplaced, nil
}
