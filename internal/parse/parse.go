// Package parse recovers structured receipt fields from an extracted
// text blob. It never fails on malformed input: unrecognizable fields
// degrade to low confidence, and only empty input is an error.
package parse

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nimbly/receipts/internal/domain"
)

// ErrEmptyText is the parser's only fatal error, returned when the
// extracted text is empty.
var ErrEmptyText = errors.New("empty extracted text")

// Parser applies ordered pattern rules to receipt text. Rule and
// template order is fixed and deterministic; re-parsing identical text
// always reproduces the same fields and confidence scores.
type Parser struct {
	weights Weights
}

func NewParser() *Parser {
	return &Parser{weights: DefaultWeights}
}

// Parse converts extracted text into a ParsedReceipt.
func (p *Parser) Parse(extracted domain.ExtractedText) (domain.ParsedReceipt, error) {
	if strings.TrimSpace(extracted.Text) == "" {
		return domain.ParsedReceipt{}, fmt.Errorf("Parse: %w", ErrEmptyText)
	}

	lines := splitLines(extracted.Text)

	receipt := domain.ParsedReceipt{}
	receipt.StoreNameRaw, receipt.StoreConfidence = extractStoreName(lines)
	receipt.PurchaseDate, receipt.DateConfidence = extractDate(lines)
	receipt.Currency = detectCurrency(extracted.Text)
	receipt.LineItems = extractLineItems(lines)
	receipt.Total, receipt.TotalConfidence = extractTotal(lines)
	receipt.Tax = extractTax(lines)

	itemConfidences := make([]float64, len(receipt.LineItems))
	for i, item := range receipt.LineItems {
		itemConfidences[i] = item.Confidence
	}
	receipt.ParseConfidence = Aggregate(p.weights, receipt.StoreConfidence, receipt.DateConfidence, itemConfidences)
	receipt.Status = assessStatus(receipt.ParseConfidence)

	return receipt, nil
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// assessStatus buckets the aggregate confidence into a parse status.
// Low-scoring receipts are flagged for review rather than rejected.
func assessStatus(confidence float64) domain.ParseStatus {
	if confidence >= SuccessConfidence {
		return domain.ParseStatusSuccess
	}
	return domain.ParseStatusNeedsReview
}

func detectCurrency(text string) string {
	switch {
	case strings.ContainsRune(text, '£'):
		return "GBP"
	case strings.ContainsRune(text, '€'):
		return "EUR"
	case strings.ContainsRune(text, '$'):
		return "USD"
	}
	return ""
}
