// Package pipeline runs the batch operations over the transaction store:
// classify-all, import-then-classify and the administrative reset.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dvloznov/bankfeed/internal/classify"
	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/dvloznov/bankfeed/internal/ingest"
	"github.com/dvloznov/bankfeed/internal/logger"
	"github.com/dvloznov/bankfeed/internal/store"
)

// maxAuditMessage bounds the error text stored in an ingestion log entry.
const maxAuditMessage = 2000

// Runner orchestrates batch runs. Each run is one sequential pass; the
// caller is responsible for not starting overlapping runs.
type Runner struct {
	transactions store.TransactionStore
	rules        store.RuleStore
	logs         store.IngestionLogStore
	now          func() time.Time
}

// NewRunner creates a Runner. logs may be nil, in which case catastrophic
// failures are only logged.
func NewRunner(transactions store.TransactionStore, rules store.RuleStore, logs store.IngestionLogStore) *Runner {
	return &Runner{
		transactions: transactions,
		rules:        rules,
		logs:         logs,
		now:          time.Now,
	}
}

// ClassifyAll matches every stored transaction against the current active
// rules and writes changed classifications. Rules are loaded fresh on every
// call. A failure on one transaction is recorded and the run continues.
func (r *Runner) ClassifyAll(ctx context.Context) (*ClassifySummary, error) {
	log := logger.FromContext(ctx)
	started := r.now()

	rules, err := r.rules.ListActiveRules(ctx)
	if err != nil {
		err = domain.Upstream("ClassifyAll: loading rules", err)
		r.audit(ctx, domain.ActionMatching, err)
		return nil, err
	}
	sorted := classify.SortRules(rules)

	txs, err := r.transactions.ListTransactions(ctx)
	if err != nil {
		err = domain.Upstream("ClassifyAll: loading transactions", err)
		r.audit(ctx, domain.ActionMatching, err)
		return nil, err
	}

	log.Info().Int("rules", len(sorted)).Int("transactions", len(txs)).Msg("Starting classification run")

	summary := &ClassifySummary{StartedAt: started, Errors: []domain.RowError{}}
	for _, tx := range txs {
		summary.Evaluated++

		matched, outcome, err := r.classifyOne(ctx, tx, sorted)
		if matched {
			summary.Matched++
		}
		if err != nil {
			log.Warn().Err(err).Str("transaction_id", tx.ID).Str("external_id", tx.ExternalID).Msg("Failed to classify transaction")
			summary.Errors = append(summary.Errors, domain.RowError{
				TransactionID: tx.ID,
				ExternalID:    tx.ExternalID,
				Error:         err.Error(),
			})
			continue
		}
		if outcome == classify.Updated {
			summary.Updated++
		} else {
			summary.Unchanged++
		}
	}

	summary.Duration = r.now().Sub(started)
	summary.DurationMS = summary.Duration.Milliseconds()

	log.Info().
		Int("evaluated", summary.Evaluated).
		Int("matched", summary.Matched).
		Int("updated", summary.Updated).
		Int("errors", len(summary.Errors)).
		Dur("duration", summary.Duration).
		Msg("Classification run finished")

	return summary, nil
}

// classifyOne isolates one transaction so that an error or panic in matching
// or writing cannot stop the batch.
func (r *Runner) classifyOne(ctx context.Context, tx *domain.Transaction, rules []domain.Rule) (matched bool, outcome classify.Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic while classifying: %v", rec)
		}
	}()

	rule := classify.Match(tx, rules)
	if rule == nil {
		return false, classify.Unchanged, nil
	}
	outcome, err = classify.Apply(ctx, r.transactions, tx, rule)
	return true, outcome, err
}

// Import runs one ingestion adapter. Whole-batch failures other than
// validation and authorization errors are written to the ingestion log.
func (r *Runner) Import(ctx context.Context, importer ingest.Importer) (*ingest.Result, error) {
	result, err := importer.Import(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrValidation) && !errors.Is(err, domain.ErrUnauthorized) {
			r.audit(ctx, domain.ActionImport, err)
		}
		return nil, err
	}
	return result, nil
}

// ImportThenClassify imports and then classifies everything. The steps are
// independent: when classification fails the import result is still
// returned alongside the error.
func (r *Runner) ImportThenClassify(ctx context.Context, importer ingest.Importer) (*ImportClassifyResult, error) {
	state := &PipelineState{}
	err := NewImportThenClassifyPipeline(r, importer).Execute(ctx, state)
	if state.Import == nil {
		return nil, err
	}

	result := &ImportClassifyResult{Import: state.Import, Classify: state.Classify}
	if err != nil {
		result.ClassifyError = err.Error()
	}
	return result, err
}

// DeleteAll removes every stored transaction. It is the only path that
// deletes transactions.
func (r *Runner) DeleteAll(ctx context.Context) (*DeleteSummary, error) {
	log := logger.FromContext(ctx)

	txs, err := r.transactions.ListTransactions(ctx)
	if err != nil {
		return nil, domain.Upstream("DeleteAll: loading transactions", err)
	}

	summary := &DeleteSummary{Errors: []domain.RowError{}}
	for _, tx := range txs {
		summary.Processed++
		if err := r.transactions.DeleteTransaction(ctx, tx.ID); err != nil {
			log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Failed to delete transaction")
			summary.Errors = append(summary.Errors, domain.RowError{
				TransactionID: tx.ID,
				ExternalID:    tx.ExternalID,
				Error:         err.Error(),
			})
			continue
		}
		summary.Deleted++
	}

	log.Warn().Int("deleted", summary.Deleted).Int("errors", len(summary.Errors)).Msg("Deleted all transactions")
	return summary, nil
}

// audit records a whole-batch failure. Failing to write the entry is logged
// and otherwise ignored.
func (r *Runner) audit(ctx context.Context, action domain.LogAction, cause error) {
	log := logger.FromContext(ctx)
	log.Error().Err(cause).Str("action", string(action)).Msg("Batch failed")

	if r.logs == nil {
		return
	}

	msg := truncateMessage(strings.ToValidUTF8(cause.Error(), "\uFFFD"), maxAuditMessage)
	entry := &domain.IngestionLog{
		Action:       action,
		Timestamp:    r.now(),
		Status:       domain.LogStatusError,
		ErrorMessage: msg,
	}
	if err := r.logs.CreateIngestionLog(ctx, entry); err != nil {
		log.Error().Err(err).Msg("Failed to write ingestion log entry")
	}
}

// truncateMessage cuts msg to at most n bytes without splitting a rune.
func truncateMessage(msg string, n int) string {
	if len(msg) <= n {
		return msg
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
