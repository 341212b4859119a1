package handlers

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/dvloznov/bankfeed/internal/api/middleware"
	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/dvloznov/bankfeed/internal/ingest"
	"github.com/dvloznov/bankfeed/internal/jobs"
	"github.com/dvloznov/bankfeed/internal/pipeline"
	"github.com/rs/zerolog"
)

// MaxUploadBytes bounds CSV uploads and webhook bodies.
const MaxUploadBytes = 32 << 20

// BatchHandler handles classification, import and reset endpoints.
type BatchHandler struct {
	runner    *pipeline.Runner
	publisher jobs.Publisher
	sheet     ingest.Importer
	csv       *ingest.CSVImporter
	log       zerolog.Logger
}

// NewBatchHandler creates a new batch handler. publisher and sheet may be
// nil; the endpoints needing them then answer 503.
func NewBatchHandler(runner *pipeline.Runner, publisher jobs.Publisher, sheet ingest.Importer, csv *ingest.CSVImporter, log zerolog.Logger) *BatchHandler {
	return &BatchHandler{
		runner:    runner,
		publisher: publisher,
		sheet:     sheet,
		csv:       csv,
		log:       log,
	}
}

// Classify handles POST /api/classify
func (h *BatchHandler) Classify(w http.ResponseWriter, r *http.Request) {
	if queryBool(r, "async") {
		h.enqueue(w, r, jobs.JobTypeClassifyAll)
		return
	}

	summary, err := h.runner.ClassifyAll(r.Context())
	if err != nil {
		middleware.WriteErrorFrom(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, summary)
}

// ImportSheet handles POST /api/import/sheet
func (h *BatchHandler) ImportSheet(w http.ResponseWriter, r *http.Request) {
	if h.sheet == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "No spreadsheet configured")
		return
	}

	withClassify := queryBool(r, "classify")
	if queryBool(r, "async") {
		if withClassify {
			h.enqueue(w, r, jobs.JobTypeImportThenClassify)
		} else {
			h.enqueue(w, r, jobs.JobTypeImportSheet)
		}
		return
	}

	h.runImport(w, r, h.sheet, withClassify)
}

// ImportCSV handles POST /api/import/csv. The body is either raw text/csv
// or a multipart form with a "file" part.
func (h *BatchHandler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)

	name, body, err := readUpload(r)
	if err != nil {
		middleware.WriteErrorFrom(w, r, err)
		return
	}

	importer := ingest.ImporterFunc(func(ctx context.Context) (*ingest.Result, error) {
		return h.csv.Import(ctx, name, bytes.NewReader(body))
	})
	h.runImport(w, r, importer, queryBool(r, "classify"))
}

// DeleteTransactions handles DELETE /api/transactions?confirm=true
func (h *BatchHandler) DeleteTransactions(w http.ResponseWriter, r *http.Request) {
	if !queryBool(r, "confirm") {
		middleware.WriteError(w, http.StatusBadRequest, "Deleting all transactions requires confirm=true")
		return
	}

	id, _ := middleware.IdentityFromContext(r.Context())
	h.log.Warn().Str("requested_by", id.Name).Msg("Deleting all transactions")

	summary, err := h.runner.DeleteAll(r.Context())
	if err != nil {
		middleware.WriteErrorFrom(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, summary)
}

func (h *BatchHandler) runImport(w http.ResponseWriter, r *http.Request, importer ingest.Importer, withClassify bool) {
	ctx := r.Context()

	if withClassify {
		result, err := h.runner.ImportThenClassify(ctx, importer)
		if err != nil && result == nil {
			middleware.WriteErrorFrom(w, r, err)
			return
		}
		// A classify failure still reports the committed import.
		middleware.WriteJSON(w, http.StatusOK, result)
		return
	}

	result, err := h.runner.Import(ctx, importer)
	if err != nil {
		middleware.WriteErrorFrom(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

func (h *BatchHandler) enqueue(w http.ResponseWriter, r *http.Request, jobType jobs.JobType) {
	if h.publisher == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Job queue not configured")
		return
	}

	id, _ := middleware.IdentityFromContext(r.Context())
	job := &jobs.Job{
		Type:        jobType,
		Trigger:     jobs.TriggerAPI,
		RequestedBy: id.Name,
	}

	if err := h.publisher.Publish(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("job_type", string(jobType)).Msg("Failed to enqueue job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("job_type", string(jobType)).Msg("Job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"type":   string(job.Type),
		"status": string(job.Status),
	})
}

// readUpload returns the file name and bytes of a CSV upload.
func readUpload(r *http.Request) (string, []byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
			return "", nil, domain.Validationf("invalid multipart upload: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, domain.Validationf("multipart upload needs a \"file\" part")
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return "", nil, domain.Validationf("reading upload: %v", err)
		}
		return filepath.Base(header.Filename), data, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, domain.Validationf("reading upload: %v", err)
	}
	name := r.URL.Query().Get("filename")
	if name == "" {
		name = "upload.csv"
	}
	return filepath.Base(name), data, nil
}

func queryBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}
