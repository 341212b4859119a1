package domain

import "time"

// LogAction is the operation an ingestion log entry refers to.
type LogAction string

const (
	ActionImport   LogAction = "import"
	ActionMatching LogAction = "matching"
)

// LogStatus is the outcome recorded by an ingestion log entry.
type LogStatus string

const (
	LogStatusOK    LogStatus = "ok"
	LogStatusError LogStatus = "error"
)

// IngestionLog records a whole-batch failure so it is visible without reading
// process logs.
type IngestionLog struct {
	ID           string    `json:"id"`
	Action       LogAction `json:"action_type"`
	Timestamp    time.Time `json:"timestamp"`
	Status       LogStatus `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// RowError describes one record that failed inside a batch.
type RowError struct {
	Row           int    `json:"row,omitempty"`
	ExternalID    string `json:"external_id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Error         string `json:"error"`
}
