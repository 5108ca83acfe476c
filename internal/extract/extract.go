package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nimbly/receipts/internal/domain"
)

var (
	// ErrUnsupportedMediaKind is returned when the declared media kind is
	// not one of image/pdf/text.
	ErrUnsupportedMediaKind = errors.New("unsupported media kind")

	// ErrExtractionFailure is returned when the decode step produced no
	// usable text (corrupt image, empty OCR output, unreadable PDF).
	ErrExtractionFailure = errors.New("extraction failure")
)

// Token is one recognized text fragment with the engine's own
// confidence in it.
type Token struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// OCREngine recognizes text in a prepared (preprocessed, PNG-encoded)
// image. Implementations are treated as pure functions with possible
// failure; the extractor owns preprocessing, the engine owns
// recognition.
type OCREngine interface {
	Recognize(ctx context.Context, png []byte) ([]Token, error)
}

const (
	// MinPDFTextChars is the minimum number of usable characters an
	// embedded PDF text layer must yield before we trust it. Below this
	// the pages are rendered and routed through OCR instead.
	MinPDFTextChars = 48

	// PDFTextConfidence is the fixed confidence for embedded PDF text.
	// It sits above anything OCR can produce after penalties, since the
	// text layer is not subject to recognition error.
	PDFTextConfidence = 0.95

	// LowTokenCutoff marks an OCR token as low-confidence.
	LowTokenCutoff = 0.5

	// LowTokenPenalty scales the confidence penalty applied per unit
	// fraction of low-confidence tokens.
	LowTokenPenalty = 0.25
)

// Extractor turns a RawDocument into a single text blob with a
// method-level confidence. It performs no I/O beyond the injected
// OCR engine.
type Extractor struct {
	ocr OCREngine
}

func NewExtractor(ocr OCREngine) *Extractor {
	return &Extractor{ocr: ocr}
}

// Extract converts the document to text. It fails with
// ErrUnsupportedMediaKind for unknown kinds and ErrExtractionFailure
// when decoding yields no usable text.
func (e *Extractor) Extract(ctx context.Context, doc domain.RawDocument) (domain.ExtractedText, error) {
	switch doc.Kind {
	case domain.MediaKindText:
		text := string(doc.Bytes)
		if strings.TrimSpace(text) == "" {
			return domain.ExtractedText{}, fmt.Errorf("Extract: plain text document is empty: %w", ErrExtractionFailure)
		}
		return domain.ExtractedText{
			Text:       text,
			Method:     domain.MethodPlain,
			Confidence: 1.0,
		}, nil

	case domain.MediaKindImage:
		return e.extractImage(ctx, doc)

	case domain.MediaKindPDF:
		return e.extractPDF(ctx, doc)

	default:
		return domain.ExtractedText{}, fmt.Errorf("Extract: media kind %q: %w", doc.Kind, ErrUnsupportedMediaKind)
	}
}

// extractImage decodes, preprocesses, and OCRs a photographed or
// scanned receipt.
func (e *Extractor) extractImage(ctx context.Context, doc domain.RawDocument) (domain.ExtractedText, error) {
	img, err := decodeImage(doc.Bytes, doc.ContentType)
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("extractImage: decoding: %v: %w", err, ErrExtractionFailure)
	}

	prepared, err := encodePNG(Preprocess(img))
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("extractImage: encoding preprocessed image: %w", err)
	}

	tokens, err := e.ocr.Recognize(ctx, prepared)
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("extractImage: ocr: %w", err)
	}

	text, confidence := assembleTokens(tokens)
	if strings.TrimSpace(text) == "" {
		return domain.ExtractedText{}, fmt.Errorf("extractImage: ocr produced no usable text: %w", ErrExtractionFailure)
	}

	return domain.ExtractedText{
		Text:       text,
		Method:     domain.MethodOCR,
		Confidence: confidence,
	}, nil
}

// assembleTokens joins OCR tokens into a text blob and derives a
// document confidence: the mean token confidence, penalized by the
// fraction of low-confidence tokens.
func assembleTokens(tokens []Token) (string, float64) {
	if len(tokens) == 0 {
		return "", 0
	}

	var b strings.Builder
	var sum float64
	low := 0
	for i, tok := range tokens {
		if i > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte(' ')
		}
		b.WriteString(tok.Text)
		sum += tok.Confidence
		if tok.Confidence < LowTokenCutoff {
			low++
		}
	}

	mean := sum / float64(len(tokens))
	lowFrac := float64(low) / float64(len(tokens))
	confidence := mean - LowTokenPenalty*lowFrac
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return b.String(), confidence
}
