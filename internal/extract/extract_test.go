package extract

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/nimbly/receipts/internal/domain"
)

// mockOCR is a canned OCR engine for testing the extractor plumbing.
type mockOCR struct {
	tokens []Token
	err    error
	calls  int
}

func (m *mockOCR) Recognize(_ context.Context, _ []byte) ([]Token, error) {
	m.calls++
	return m.tokens, m.err
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			v := uint8(255)
			if y%8 == 0 {
				v = 0
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return buf.Bytes()
}

func TestExtract_PlainText(t *testing.T) {
	e := NewExtractor(&mockOCR{})

	got, err := e.Extract(context.Background(), domain.RawDocument{
		Bytes: []byte("WALMART\nTOTAL 5.94"),
		Kind:  domain.MediaKindText,
	})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got.Text != "WALMART\nTOTAL 5.94" {
		t.Errorf("text = %q", got.Text)
	}
	if got.Method != domain.MethodPlain {
		t.Errorf("method = %q, want plain", got.Method)
	}
	if got.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", got.Confidence)
	}
}

func TestExtract_EmptyPlainText(t *testing.T) {
	e := NewExtractor(&mockOCR{})
	_, err := e.Extract(context.Background(), domain.RawDocument{
		Bytes: []byte("   \n\t"),
		Kind:  domain.MediaKindText,
	})
	if !errors.Is(err, ErrExtractionFailure) {
		t.Errorf("error = %v, want ErrExtractionFailure", err)
	}
}

func TestExtract_UnsupportedKind(t *testing.T) {
	e := NewExtractor(&mockOCR{})
	_, err := e.Extract(context.Background(), domain.RawDocument{Kind: "spreadsheet"})
	if !errors.Is(err, ErrUnsupportedMediaKind) {
		t.Errorf("error = %v, want ErrUnsupportedMediaKind", err)
	}
}

func TestExtract_Image(t *testing.T) {
	ocr := &mockOCR{tokens: []Token{
		{Text: "WALMART", Confidence: 0.95},
		{Text: "TOTAL", Confidence: 0.9},
		{Text: "5.94", Confidence: 0.85},
	}}
	e := NewExtractor(ocr)

	got, err := e.Extract(context.Background(), domain.RawDocument{
		Bytes: testPNG(t),
		Kind:  domain.MediaKindImage,
	})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if ocr.calls != 1 {
		t.Errorf("ocr called %d times, want 1", ocr.calls)
	}
	if got.Method != domain.MethodOCR {
		t.Errorf("method = %q, want ocr", got.Method)
	}
	if got.Text != "WALMART TOTAL 5.94" {
		t.Errorf("text = %q", got.Text)
	}
	if math.Abs(got.Confidence-0.9) > 1e-9 {
		t.Errorf("confidence = %v, want mean 0.9", got.Confidence)
	}
}

func TestExtract_CorruptImage(t *testing.T) {
	e := NewExtractor(&mockOCR{})
	_, err := e.Extract(context.Background(), domain.RawDocument{
		Bytes: []byte("not an image"),
		Kind:  domain.MediaKindImage,
	})
	if !errors.Is(err, ErrExtractionFailure) {
		t.Errorf("error = %v, want ErrExtractionFailure", err)
	}
}

func TestExtract_OCRNoText(t *testing.T) {
	e := NewExtractor(&mockOCR{tokens: []Token{{Text: "   ", Confidence: 0.9}}})
	_, err := e.Extract(context.Background(), domain.RawDocument{
		Bytes: testPNG(t),
		Kind:  domain.MediaKindImage,
	})
	if !errors.Is(err, ErrExtractionFailure) {
		t.Errorf("error = %v, want ErrExtractionFailure", err)
	}
}

func TestAssembleTokens(t *testing.T) {
	tests := []struct {
		name           string
		tokens         []Token
		wantText       string
		wantConfidence float64
	}{
		{
			name:           "empty",
			tokens:         nil,
			wantText:       "",
			wantConfidence: 0,
		},
		{
			name:           "all confident",
			tokens:         []Token{{Text: "a", Confidence: 0.9}, {Text: "b", Confidence: 0.7}},
			wantText:       "a b",
			wantConfidence: 0.8,
		},
		{
			name: "low tokens penalized",
			tokens: []Token{
				{Text: "a", Confidence: 0.9},
				{Text: "b", Confidence: 0.9},
				{Text: "c", Confidence: 0.3},
			},
			wantText:       "a b c",
			wantConfidence: 0.7 - LowTokenPenalty/3,
		},
		{
			name:           "clamped at zero",
			tokens:         []Token{{Text: "a", Confidence: 0.1}},
			wantText:       "a",
			wantConfidence: 0,
		},
		{
			name: "newline tokens keep line structure",
			tokens: []Token{
				{Text: "WALMART\n", Confidence: 0.9},
				{Text: "TOTAL", Confidence: 0.9},
			},
			wantText:       "WALMART\nTOTAL",
			wantConfidence: 0.9,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, confidence := assembleTokens(tt.tokens)
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
			if math.Abs(confidence-tt.wantConfidence) > 1e-9 {
				t.Errorf("confidence = %v, want %v", confidence, tt.wantConfidence)
			}
		})
	}
}

func TestIsHEIC(t *testing.T) {
	heicHeader := append([]byte{0, 0, 0, 24}, []byte("ftypheic")...)
	heicHeader = append(heicHeader, make([]byte, 8)...)
	if !isHEIC(heicHeader) {
		t.Error("heic ftyp header not detected")
	}
	if isHEIC([]byte("\x89PNG\r\n\x1a\n")) {
		t.Error("png header misdetected as heic")
	}
	if isHEIC(nil) {
		t.Error("nil misdetected as heic")
	}
	if !isHEICMimeType("image/heic") {
		t.Error("image/heic MIME not detected")
	}
	if isHEICMimeType("image/png") {
		t.Error("image/png MIME misdetected")
	}
}

func TestPreprocess_Deterministic(t *testing.T) {
	src, _, err := image.Decode(bytes.NewReader(testPNG(t)))
	if err != nil {
		t.Fatalf("decoding test image: %v", err)
	}

	first := Preprocess(src)
	second := Preprocess(src)
	if !bytes.Equal(first.Pix, second.Pix) {
		t.Error("preprocessing is not deterministic for identical input")
	}
}
