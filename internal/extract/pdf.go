package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/sync/errgroup"

	"github.com/nimbly/receipts/internal/domain"
)

// ocrPageParallelism bounds concurrent page rendering/OCR for scanned
// PDFs. Multi-page receipts are rare, so a small limit keeps OCR
// engine pressure predictable.
const ocrPageParallelism = 4

// extractPDF prefers the embedded text layer. If the layer yields too
// few usable characters (scanned PDFs wrap an image and carry none),
// the pages are rendered and routed through OCR instead.
func (e *Extractor) extractPDF(ctx context.Context, doc domain.RawDocument) (domain.ExtractedText, error) {
	pdf, err := fitz.NewFromMemory(doc.Bytes)
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("extractPDF: opening pdf: %v: %w", err, ErrExtractionFailure)
	}
	defer pdf.Close()

	var pages []string
	for i := 0; i < pdf.NumPage(); i++ {
		text, err := pdf.Text(i)
		if err != nil {
			return domain.ExtractedText{}, fmt.Errorf("extractPDF: reading text of page %d: %w", i, err)
		}
		pages = append(pages, text)
	}

	embedded := strings.TrimSpace(strings.Join(pages, "\n"))
	if len(embedded) >= MinPDFTextChars {
		return domain.ExtractedText{
			Text:       embedded,
			Method:     domain.MethodPDFText,
			Confidence: PDFTextConfidence,
		}, nil
	}

	return e.ocrPDFPages(ctx, pdf)
}

// ocrPDFPages renders every page and runs each through the OCR engine.
// Pages are processed concurrently but reassembled in page order; the
// document confidence is the page-count-weighted token confidence.
func (e *Extractor) ocrPDFPages(ctx context.Context, pdf *fitz.Document) (domain.ExtractedText, error) {
	n := pdf.NumPage()
	if n == 0 {
		return domain.ExtractedText{}, fmt.Errorf("ocrPDFPages: pdf has no pages: %w", ErrExtractionFailure)
	}

	// Rendering goes through cgo and is not safe to interleave with
	// other document calls, so render sequentially and only fan out the
	// OCR calls.
	rendered := make([][]byte, n)
	for i := 0; i < n; i++ {
		img, err := pdf.Image(i)
		if err != nil {
			return domain.ExtractedText{}, fmt.Errorf("ocrPDFPages: rendering page %d: %v: %w", i, err, ErrExtractionFailure)
		}
		png, err := encodePNG(Preprocess(img))
		if err != nil {
			return domain.ExtractedText{}, fmt.Errorf("ocrPDFPages: encoding page %d: %w", i, err)
		}
		rendered[i] = png
	}

	texts := make([]string, n)
	confidences := make([]float64, n)

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(ocrPageParallelism)
	for i := range rendered {
		eg.Go(func() error {
			tokens, err := e.ocr.Recognize(gctx, rendered[i])
			if err != nil {
				return fmt.Errorf("ocrPDFPages: ocr page %d: %w", i, err)
			}
			texts[i], confidences[i] = assembleTokens(tokens)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return domain.ExtractedText{}, err
	}

	text := strings.TrimSpace(strings.Join(texts, "\n"))
	if text == "" {
		return domain.ExtractedText{}, fmt.Errorf("ocrPDFPages: ocr produced no usable text: %w", ErrExtractionFailure)
	}

	var sum float64
	for _, c := range confidences {
		sum += c
	}
	return domain.ExtractedText{
		Text:       text,
		Method:     domain.MethodOCR,
		Confidence: sum / float64(n),
	}, nil
}
