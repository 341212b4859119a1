// Package api assembles the HTTP surface of the engine.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/bankfeed/internal/api/handlers"
	"github.com/dvloznov/bankfeed/internal/api/middleware"
	"github.com/dvloznov/bankfeed/internal/ingest"
	"github.com/dvloznov/bankfeed/internal/jobs"
	"github.com/dvloznov/bankfeed/internal/pipeline"
	"github.com/dvloznov/bankfeed/internal/store"
	"github.com/rs/zerolog"
)

// Deps are the collaborators the router wires into handlers. Publisher,
// JobStore and Sheet may be nil.
type Deps struct {
	Runner       *pipeline.Runner
	Transactions store.TransactionStore
	Rules        store.RuleStore
	Publisher    jobs.Publisher
	JobStore     jobs.JobStore
	Sheet        ingest.Importer
	CSV          *ingest.CSVImporter
	Webhook      *ingest.WebhookReceiver
	Tokens       map[string]middleware.Identity
	CORSOrigin   string
	Log          zerolog.Logger
}

// NewRouter returns the routed handler wrapped in the middleware chain.
func NewRouter(d Deps) http.Handler {
	batch := handlers.NewBatchHandler(d.Runner, d.Publisher, d.Sheet, d.CSV, d.Log)
	webhook := handlers.NewWebhookHandler(d.Runner, d.Webhook, d.Log)
	transactions := handlers.NewTransactionsHandler(d.Transactions, d.Log)
	rules := handlers.NewRulesHandler(d.Rules, d.Log)

	admin := middleware.RequireAdmin
	reader := middleware.RequireIdentity

	mux := http.NewServeMux()

	mux.Handle("/api/classify", admin(method(http.MethodPost, batch.Classify)))
	mux.Handle("/api/import/sheet", admin(method(http.MethodPost, batch.ImportSheet)))
	mux.Handle("/api/import/csv", admin(method(http.MethodPost, batch.ImportCSV)))

	// The webhook authenticates with its shared secret, not a bearer token.
	mux.Handle("/api/webhook/transactions", method(http.MethodPost, webhook.Receive))

	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			reader(http.HandlerFunc(transactions.ListTransactions)).ServeHTTP(w, r)
		case http.MethodDelete:
			admin(http.HandlerFunc(batch.DeleteTransactions)).ServeHTTP(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.Handle("/api/rules", reader(method(http.MethodGet, rules.ListRules)))

	if d.JobStore != nil {
		jobsHandler := handlers.NewJobsHandler(d.JobStore, d.Log)

		mux.Handle("/api/jobs", reader(method(http.MethodGet, jobsHandler.ListJobs)))

		mux.Handle("/api/jobs/", reader(method(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
			// Extract job ID from path
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		})))
	}

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Recovery(d.Log)(
		middleware.Logger(d.Log)(
			middleware.RequestID(
				middleware.CORS(d.CORSOrigin)(
					middleware.Authenticate(d.Tokens)(mux),
				),
			),
		),
	)
}

// method rejects requests with any other HTTP method.
func method(m string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	})
}
