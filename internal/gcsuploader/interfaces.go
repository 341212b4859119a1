package gcsuploader

import (
	"context"
)

// StorageService provides the object storage operations used for CSV
// uploads. This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// Upload writes data to bucketName/objectName.
	Upload(ctx context.Context, bucketName, objectName string, data []byte, contentType string) error

	// Download reads the bytes of bucketName/objectName.
	Download(ctx context.Context, bucketName, objectName string) ([]byte, error)
}
