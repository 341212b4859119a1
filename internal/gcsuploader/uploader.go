package gcsuploader

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/bankfeed/internal/ingest"
)

// GCSStorageService is the concrete implementation of StorageService
// that interacts with Google Cloud Storage.
type GCSStorageService struct {
	client *storage.Client
}

// NewGCSStorageService creates a service with its own storage client.
// It assumes Application Default Credentials are configured.
func NewGCSStorageService(ctx context.Context) (*GCSStorageService, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStorageService{client: client}, nil
}

// Close releases the storage client.
func (s *GCSStorageService) Close() error {
	return s.client.Close()
}

// Upload writes data to an object, replacing any existing content.
func (s *GCSStorageService) Upload(ctx context.Context, bucketName, objectName string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write to GCS writer: %w", err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}

	return nil
}

// Archiver stores raw CSV uploads under a dated prefix before they are parsed.
type Archiver struct {
	storage StorageService
	bucket  string
	prefix  string
	now     func() time.Time
}

// NewArchiver creates an Archiver writing to gs://bucket/uploads/.
func NewArchiver(svc StorageService, bucket string) *Archiver {
	return &Archiver{storage: svc, bucket: bucket, prefix: "uploads", now: time.Now}
}

// Archive uploads data and returns its gs:// URI. Object names are
// uploads/YYYY/MM/DD/<unix-nanos>_<name> so repeated uploads of the same
// file never overwrite each other.
func (a *Archiver) Archive(ctx context.Context, name string, data []byte) (string, error) {
	now := a.now().UTC()
	object := path.Join(
		a.prefix,
		now.Format("2006/01/02"),
		fmt.Sprintf("%d_%s", now.UnixNano(), sanitizeName(name)),
	)

	if err := a.storage.Upload(ctx, a.bucket, object, data, "text/csv"); err != nil {
		return "", fmt.Errorf("Archive: uploading %s: %w", object, err)
	}
	return "gs://" + a.bucket + "/" + object, nil
}

func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload.csv"
	}
	return strings.ReplaceAll(name, " ", "_")
}

var _ ingest.Archiver = (*Archiver)(nil)
