package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookReceiver_RejectsBeforeStoreAccess(t *testing.T) {
	body := []byte(`{"transactions":[{"id":"w1","amount":"1"}]}`)

	tests := []struct {
		name         string
		configured   string
		headerSecret string
		body         []byte
	}{
		{"wrong secret", "s3cret", "guess", body},
		{"missing secret", "s3cret", "", body},
		{"unconfigured receiver", "", "anything", body},
		{"wrong body secret", "s3cret", "", []byte(`{"secret":"nope","transactions":[]}`)},
		{"garbage with no secret", "s3cret", "", []byte(`not json`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSpyStore()
			receiver := NewWebhookReceiver(tt.configured, s)

			_, err := receiver.Receive(context.Background(), tt.headerSecret, tt.body)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrUnauthorized), "got %v", err)
			assert.Equal(t, 0, s.Calls())
		})
	}
}

func TestWebhookReceiver_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing top-level field", `{"data":[]}`},
		{"null transactions", `{"transactions":null}`},
		{"malformed json", `{"transactions":[`},
		{"transactions not an array", `{"transactions":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSpyStore()
			receiver := NewWebhookReceiver("s3cret", s)

			_, err := receiver.Receive(context.Background(), "s3cret", []byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)
			assert.Equal(t, 0, s.Calls())
		})
	}
}

func TestWebhookReceiver_Batch(t *testing.T) {
	ctx := context.Background()
	s := newSpyStore()
	receiver := NewWebhookReceiver("s3cret", s)

	body := []byte(`{
		"transactions": [
			{"id": "w1", "made_on": "2024-04-01", "amount": -20.5, "currency_code": "GBP", "description": "Tesco", "duplicated": "false"},
			{"id": "w2", "made_on": "2024-04-02", "amount": "abc", "description": "Mystery"},
			42,
			{"id": "w1", "made_on": "2024-04-01", "amount": -20.5, "description": "Tesco again"}
		]
	}`)

	result, err := receiver.Receive(ctx, "s3cret", body)
	require.NoError(t, err)

	assert.Equal(t, domain.SourceWebhook, result.Source)
	assert.Equal(t, 4, result.Processed)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 3, result.Errors[0].Row)

	list, _ := s.ListTransactions(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, "-20.5", list[0].Amount.String())
	assert.True(t, list[1].Amount.IsZero())
	assert.Equal(t, domain.SourceWebhook, list[1].Source)
}

func TestWebhookReceiver_SingleTransactionWithBodySecret(t *testing.T) {
	ctx := context.Background()
	s := newSpyStore()
	receiver := NewWebhookReceiver("s3cret", s)

	body := []byte(`{"secret":"s3cret","transaction":{"id":"one","description":"Gym","account":{"name":"Main","uuid":"acc-1"}}}`)

	result, err := receiver.Receive(ctx, "", body)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)

	again, err := receiver.Receive(ctx, "", body)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Imported)
	assert.Equal(t, 1, again.Skipped)

	list, _ := s.ListTransactions(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, "acc-1", list[0].Account.UUID)
}
