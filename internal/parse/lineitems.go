package parse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nimbly/receipts/internal/domain"
)

const (
	// maxReasonablePrice filters OCR artifacts (phone numbers, card
	// digits) that slip through the price patterns.
	maxReasonablePrice = 9999

	// priceMismatchTolerance is how far total may drift from
	// quantity*unit before the item's confidence is penalized. The item
	// is kept either way; a mismatch is evidence of a misread, not an
	// invalid purchase.
	priceMismatchTolerance = "0.01"

	// priceMismatchFactor scales the confidence of an item whose totals
	// don't reconcile.
	priceMismatchFactor = 0.6
)

// itemTemplate is one entry in the ordered line-item template list,
// most specific first. The first template that matches consumes the
// line. Template order is a contract: it determines reproducible
// per-item confidence scores across re-parses of identical text.
type itemTemplate struct {
	name       string
	confidence float64
	re         *regexp.Regexp
	build      func(m []string) (domain.LineItem, bool)
}

var itemTemplates = []itemTemplate{
	{
		// MILK 2 @1.50 3.00
		name:       "qty-at-unit-total",
		confidence: 0.9,
		re:         regexp.MustCompile(`^(.+?)\s+(\d+(?:\.\d+)?)\s*@\s*\$?(\d{1,4}\.\d{2})\s+\$?(\d{1,4}\.\d{2})$`),
		build: func(m []string) (domain.LineItem, bool) {
			qty, err := strconv.ParseFloat(m[2], 64)
			if err != nil || qty <= 0 {
				return domain.LineItem{}, false
			}
			unit, ok1 := parsePrice(m[3])
			total, ok2 := parsePrice(m[4])
			if !ok1 || !ok2 {
				return domain.LineItem{}, false
			}
			return domain.LineItem{RawName: m[1], Quantity: qty, UnitPrice: &unit, TotalPrice: &total}, true
		},
	},
	{
		// AVOCADO 3 x 1.99
		name:       "qty-x-unit",
		confidence: 0.85,
		re:         regexp.MustCompile(`^(.+?)\s+(\d+(?:\.\d+)?)\s*[xX]\s*\$?(\d{1,4}\.\d{2})$`),
		build: func(m []string) (domain.LineItem, bool) {
			qty, err := strconv.ParseFloat(m[2], 64)
			if err != nil || qty <= 0 {
				return domain.LineItem{}, false
			}
			unit, ok := parsePrice(m[3])
			if !ok {
				return domain.LineItem{}, false
			}
			return domain.LineItem{RawName: m[1], Quantity: qty, UnitPrice: &unit}, true
		},
	},
	{
		// EGGS 12CT @ 6.49 EA
		name:       "at-unit",
		confidence: 0.8,
		re:         regexp.MustCompile(`^(.+?)\s*@\s*\$?(\d{1,4}\.\d{2})\s*(?:EA|EACH)?$`),
		build: func(m []string) (domain.LineItem, bool) {
			unit, ok := parsePrice(m[2])
			if !ok {
				return domain.LineItem{}, false
			}
			return domain.LineItem{RawName: m[1], Quantity: 1, UnitPrice: &unit}, true
		},
	},
	{
		// BREAD 2.50  (lowest specificity: bare name + trailing price)
		name:       "name-price",
		confidence: 0.7,
		re:         regexp.MustCompile(`^(.+?)\s+\$?(\d{1,4}\.\d{2})\s*[FNT]?$`),
		build: func(m []string) (domain.LineItem, bool) {
			total, ok := parsePrice(m[2])
			if !ok {
				return domain.LineItem{}, false
			}
			return domain.LineItem{RawName: m[1], Quantity: 1, TotalPrice: &total}, true
		},
	},
}

// excludePatterns reject lines that carry prices but are not purchases:
// totals, tender, footer boilerplate. Grounded in the layouts the
// templates were built from.
var excludePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(TAX|SUBTOTAL|SUB\s*TOTAL|TOTAL|GRAND\s*TOTAL|BALANCE|CHANGE|CASH|CREDIT|DEBIT|CARD|VISA|MASTERCARD|AMEX|DISCOVER|SAVINGS|DISCOUNT|COUPON|MEMBER|LOYALTY|POINTS|REWARD|THANK\s*YOU|STORE\s*#|CASHIER|TRANS|REG|DATE|TIME|TEL|PHONE|RECEIPT|RETURN|REFUND|VOID)\b`),
	regexp.MustCompile(`^\s*[-=*]+\s*$`),
	regexp.MustCompile(`^\s*\d{1,4}[-/]\d{1,2}[-/]\d{1,4}\s*$`),
	regexp.MustCompile(`^\s*\d{1,2}:\d{2}\s*(AM|PM)?\s*$`),
}

var collapseSpacesRe = regexp.MustCompile(`\s+`)

// extractLineItems walks the receipt line by line, skipping excluded
// lines and trying each template in order. Unmatched lines are simply
// skipped; source order is preserved.
func extractLineItems(lines []string) []domain.LineItem {
	var items []domain.LineItem
	for _, line := range lines {
		line = cleanItemLine(line)
		if line == "" || excluded(line) {
			continue
		}
		if item, ok := matchLine(line); ok {
			items = append(items, item)
		}
	}
	return items
}

func matchLine(line string) (domain.LineItem, bool) {
	for _, tmpl := range itemTemplates {
		m := tmpl.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		item, ok := tmpl.build(m)
		if !ok {
			continue
		}
		item.RawName = cleanItemName(item.RawName)
		if item.RawName == "" {
			continue
		}
		item.Confidence = tmpl.confidence
		applyMismatchPenalty(&item)
		return item, true
	}
	return domain.LineItem{}, false
}

// applyMismatchPenalty lowers confidence when both prices are present
// and total does not reconcile with quantity*unit within tolerance.
// An exact reconciliation carries zero penalty.
func applyMismatchPenalty(item *domain.LineItem) {
	if item.UnitPrice == nil || item.TotalPrice == nil {
		return
	}
	qty := decimal.NewFromFloat(item.Quantity)
	expected := item.UnitPrice.Mul(qty)
	tolerance := decimal.RequireFromString(priceMismatchTolerance)
	if item.TotalPrice.Sub(expected).Abs().GreaterThan(tolerance) {
		item.Confidence *= priceMismatchFactor
	}
}

func excluded(line string) bool {
	for _, re := range excludePatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func cleanItemLine(line string) string {
	line = strings.ReplaceAll(line, "|", "")
	line = strings.ReplaceAll(line, "\\", "")
	return strings.TrimSpace(collapseSpacesRe.ReplaceAllString(line, " "))
}

func cleanItemName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimRight(name, ".,;:-_")
	name = strings.TrimLeft(name, "@#*")
	return strings.TrimSpace(name)
}

func parsePrice(s string) (decimal.Decimal, bool) {
	price, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	if price.IsZero() || price.IsNegative() || price.GreaterThan(decimal.NewFromInt(maxReasonablePrice)) {
		return decimal.Decimal{}, false
	}
	return price, true
}

var (
	totalRe = regexp.MustCompile(`(?i)\b(?:GRAND\s*TOTAL|TOTAL|BALANCE\s*DUE|AMOUNT\s*DUE)\s*:?\s*\$?(\d{1,6}\.\d{2})`)
	taxRe   = regexp.MustCompile(`(?i)\b(?:TAX|VAT)\s*:?\s*\$?(\d{1,6}\.\d{2})`)
)

// extractTotal finds the printed receipt total, scanning bottom-up
// since the grand total sits under any subtotals.
func extractTotal(lines []string) (*decimal.Decimal, float64) {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.Contains(strings.ToUpper(lines[i]), "SUBTOTAL") {
			continue
		}
		m := totalRe.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		if total, ok := parsePrice(m[1]); ok {
			return &total, 0.9
		}
	}
	return nil, 0
}

func extractTax(lines []string) *decimal.Decimal {
	for i := len(lines) - 1; i >= 0; i-- {
		m := taxRe.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		if tax, ok := parsePrice(m[1]); ok {
			return &tax
		}
	}
	return nil
}
