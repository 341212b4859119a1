package ingest

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/dvloznov/bankfeed/internal/logger"
	"github.com/dvloznov/bankfeed/internal/store"
)

// webhookPayload is the push body. Exactly one of Transactions or Transaction
// is expected; Secret may replace the header for senders that cannot set one.
type webhookPayload struct {
	Secret       string            `json:"secret"`
	Transactions []json.RawMessage `json:"transactions"`
	Transaction  json.RawMessage   `json:"transaction"`
}

// WebhookReceiver accepts pushed transaction payloads guarded by a shared
// secret.
type WebhookReceiver struct {
	secret string
	store  store.TransactionStore
	now    func() time.Time
}

// NewWebhookReceiver creates a receiver. An empty secret rejects every call.
func NewWebhookReceiver(secret string, txStore store.TransactionStore) *WebhookReceiver {
	return &WebhookReceiver{secret: secret, store: txStore, now: time.Now}
}

// Receive authenticates and ingests one payload. headerSecret takes
// precedence over a secret carried in the body. Authorization and payload
// shape are checked before the store is touched.
func (w *WebhookReceiver) Receive(ctx context.Context, headerSecret string, body []byte) (*Result, error) {
	var payload webhookPayload
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	decodeErr := dec.Decode(&payload)

	secret := headerSecret
	if secret == "" {
		secret = payload.Secret
	}
	if !w.authorized(secret) {
		return nil, domain.Unauthorizedf("webhook secret mismatch")
	}
	if decodeErr != nil {
		return nil, domain.Validationf("malformed webhook payload: %v", decodeErr)
	}

	var records []json.RawMessage
	switch {
	case payload.Transactions != nil:
		records = payload.Transactions
	case len(payload.Transaction) > 0 && !bytes.Equal(bytes.TrimSpace(payload.Transaction), []byte("null")):
		records = []json.RawMessage{payload.Transaction}
	default:
		return nil, domain.Validationf("payload must contain transactions or transaction")
	}

	gate, err := NewGate(ctx, w.store, SkipDuplicates)
	if err != nil {
		return nil, domain.Upstream("WebhookReceiver.Receive", err)
	}

	result := newResult(domain.SourceWebhook)
	now := w.now()
	for i, raw := range records {
		obj, err := decodeObject(raw)
		if err != nil {
			result.Processed++
			result.recordError(ctx, i+1, "", err)
			continue
		}
		result.absorb(ctx, gate, i+1, RecordFromJSON(obj), now, false)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Int("processed", result.Processed).
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Msg("Webhook payload ingested")

	return result, nil
}

func (w *WebhookReceiver) authorized(secret string) bool {
	if w.secret == "" || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(w.secret), []byte(secret)) == 1
}

func decodeObject(raw json.RawMessage) (map[string]interface{}, error) {
	var obj map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("record is not a JSON object: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("record is null")
	}
	return obj, nil
}
