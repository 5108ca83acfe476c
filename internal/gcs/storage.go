// Package gcs moves uploaded receipt documents in and out of Google
// Cloud Storage. The worker fetches job payloads from here when a job
// carries a storage URI instead of inline bytes.
package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/nimbly/receipts/internal/domain"
)

// Service implements DocumentStore against GCS. It assumes Application
// Default Credentials are configured.
type Service struct{}

func NewService() *Service { return &Service{} }

// UploadDocument uploads a local file to a GCS bucket under the given
// object name.
func (s *Service) UploadDocument(ctx context.Context, bucketName, objectName, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open file %q: %w", filePath, err)
	}
	defer f.Close()

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	defer func() {
		_ = w.Close()
	}()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy file to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

// FetchDocument downloads the file bytes from the given GCS URI.
func (s *Service) FetchDocument(ctx context.Context, gcsURI string) ([]byte, error) {
	bucketName, objectPath, err := splitURI(gcsURI)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchDocument: creating storage client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchDocument: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("FetchDocument: reading bytes: %w", err)
	}
	return data, nil
}

// FilenameFromURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/receipt.pdf" → "receipt.pdf"
func (s *Service) FilenameFromURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

func splitURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}
	trimmed := strings.TrimPrefix(gcsURI, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}

// ObjectName builds the storage path for an uploaded document:
// per-user prefix, uuid to keep repeated uploads of the same filename
// distinct, original filename preserved for FilenameFromURI.
func ObjectName(userID, filename string) string {
	return path.Join(userID, uuid.NewString()+"-"+filename)
}

// URIFor joins a bucket and object name into a gs:// URI.
func URIFor(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

// MediaKindForFilename infers the document kind from a filename
// extension, for callers that did not declare one at upload time.
func MediaKindForFilename(name string) (domain.MediaKind, bool) {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return domain.MediaKindPDF, true
	case ".jpg", ".jpeg", ".png", ".heic", ".heif":
		return domain.MediaKindImage, true
	case ".txt":
		return domain.MediaKindText, true
	}
	return "", false
}

var _ DocumentStore = (*Service)(nil)
