package gcs

import (
	"context"
)

// DocumentStore provides an interface for cloud storage operations on
// uploaded receipt documents. This interface enables mocking and
// testing of storage functionality.
type DocumentStore interface {
	// UploadDocument uploads a local file to a storage bucket under the
	// given object name.
	UploadDocument(ctx context.Context, bucketName, objectName, filePath string) error

	// FetchDocument downloads file bytes from the given storage URI.
	FetchDocument(ctx context.Context, gcsURI string) ([]byte, error)

	// FilenameFromURI extracts the filename from a storage URI.
	FilenameFromURI(uri string) string
}
