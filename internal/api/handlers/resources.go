package handlers

import (
	"net/http"
	"strconv"

	"github.com/dvloznov/bankfeed/internal/api/middleware"
	"github.com/dvloznov/bankfeed/internal/classify"
	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/dvloznov/bankfeed/internal/jobs"
	"github.com/dvloznov/bankfeed/internal/store"
	"github.com/rs/zerolog"
)

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	store store.TransactionStore
	log   zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(txStore store.TransactionStore, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		store: txStore,
		log:   log,
	}
}

// ListTransactions handles GET /api/transactions. uncategorized=true keeps
// only transactions without a category.
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	transactions, err := h.store.ListTransactions(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	if queryBool(r, "uncategorized") {
		filtered := transactions[:0]
		for _, tx := range transactions {
			if tx.CategoryValue() == "" {
				filtered = append(filtered, tx)
			}
		}
		transactions = filtered
	}

	// Return array directly for frontend compatibility
	if transactions == nil {
		transactions = []*domain.Transaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, transactions)
}

// RulesHandler handles rule-related endpoints.
type RulesHandler struct {
	rules store.RuleStore
	log   zerolog.Logger
}

// NewRulesHandler creates a new rules handler.
func NewRulesHandler(rules store.RuleStore, log zerolog.Logger) *RulesHandler {
	return &RulesHandler{
		rules: rules,
		log:   log,
	}
}

// ListRules handles GET /api/rules. Rules are returned in evaluation order.
func (h *RulesHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.ListActiveRules(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list rules")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to list rules")
		return
	}

	sorted := classify.SortRules(rules)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rules": sorted,
		"count": len(sorted),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		h.log.Warn().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Type:    jobs.JobType(query.Get("type")),
		Trigger: jobs.Trigger(query.Get("trigger")),
		Status:  jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
