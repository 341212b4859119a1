package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/dvloznov/bankfeed/internal/api/middleware"
	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/dvloznov/bankfeed/internal/ingest"
	"github.com/dvloznov/bankfeed/internal/pipeline"
	"github.com/rs/zerolog"
)

// WebhookSecretHeader carries the shared secret of push senders.
const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookHandler accepts pushed transactions.
type WebhookHandler struct {
	runner   *pipeline.Runner
	receiver *ingest.WebhookReceiver
	log      zerolog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(runner *pipeline.Runner, receiver *ingest.WebhookReceiver, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		runner:   runner,
		receiver: receiver,
		log:      log,
	}
}

// Receive handles POST /api/webhook/transactions
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUploadBytes))
	if err != nil {
		middleware.WriteErrorFrom(w, r, domain.Validationf("reading body: %v", err))
		return
	}

	secret := r.Header.Get(WebhookSecretHeader)
	importer := ingest.ImporterFunc(func(ctx context.Context) (*ingest.Result, error) {
		return h.receiver.Receive(ctx, secret, body)
	})

	result, err := h.runner.Import(r.Context(), importer)
	if err != nil {
		middleware.WriteErrorFrom(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}
