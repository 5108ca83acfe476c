package gcs

import (
	"strings"
	"testing"

	"github.com/nimbly/receipts/internal/domain"
)

func TestSplitURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://bucket/receipt.pdf", "bucket", "receipt.pdf", false},
		{"gs://bucket/2024/01/receipt.pdf", "bucket", "2024/01/receipt.pdf", false},
		{"gs://bucket", "", "", true},
		{"gs://bucket/", "", "", true},
		{"http://bucket/receipt.pdf", "", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		bucket, object, err := splitURI(tt.uri)
		if (err != nil) != tt.wantErr {
			t.Errorf("splitURI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			continue
		}
		if bucket != tt.wantBucket || object != tt.wantObject {
			t.Errorf("splitURI(%q) = (%q, %q), want (%q, %q)",
				tt.uri, bucket, object, tt.wantBucket, tt.wantObject)
		}
	}
}

func TestFilenameFromURI(t *testing.T) {
	s := NewService()
	tests := []struct {
		uri  string
		want string
	}{
		{"gs://bucket/folder/receipt.pdf", "receipt.pdf"},
		{"gs://bucket/receipt.jpg", "receipt.jpg"},
		{"gs://bucket", "bucket"},
	}
	for _, tt := range tests {
		if got := s.FilenameFromURI(tt.uri); got != tt.want {
			t.Errorf("FilenameFromURI(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestObjectName(t *testing.T) {
	s := NewService()

	first := ObjectName("u1", "receipt.pdf")
	second := ObjectName("u1", "receipt.pdf")

	if !strings.HasPrefix(first, "u1/") {
		t.Errorf("ObjectName = %q, want user prefix u1/", first)
	}
	if !strings.HasSuffix(first, "-receipt.pdf") {
		t.Errorf("ObjectName = %q, want original filename preserved", first)
	}
	if first == second {
		t.Error("repeated uploads of the same filename must not collide")
	}

	// The stored URI must survive the worker's fetch path.
	uri := URIFor("bucket", first)
	bucket, object, err := splitURI(uri)
	if err != nil {
		t.Fatalf("splitURI(%q) failed: %v", uri, err)
	}
	if bucket != "bucket" || object != first {
		t.Errorf("splitURI(%q) = (%q, %q), want (bucket, %q)", uri, bucket, object, first)
	}
	// Kind inference downstream relies on the extension surviving.
	if got := s.FilenameFromURI(uri); !strings.HasSuffix(got, ".pdf") {
		t.Errorf("FilenameFromURI(%q) = %q, want the .pdf extension preserved", uri, got)
	}
}

func TestMediaKindForFilename(t *testing.T) {
	tests := []struct {
		name   string
		want   domain.MediaKind
		wantOK bool
	}{
		{"receipt.pdf", domain.MediaKindPDF, true},
		{"receipt.PDF", domain.MediaKindPDF, true},
		{"photo.jpg", domain.MediaKindImage, true},
		{"photo.jpeg", domain.MediaKindImage, true},
		{"photo.heic", domain.MediaKindImage, true},
		{"scan.png", domain.MediaKindImage, true},
		{"notes.txt", domain.MediaKindText, true},
		{"archive.zip", "", false},
		{"noextension", "", false},
	}
	for _, tt := range tests {
		got, ok := MediaKindForFilename(tt.name)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("MediaKindForFilename(%q) = (%q, %v), want (%q, %v)",
				tt.name, got, ok, tt.want, tt.wantOK)
		}
	}
}
