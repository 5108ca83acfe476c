package parse

import (
	"testing"
)

func TestExtractLineItems_Templates(t *testing.T) {
	tests := []struct {
		name           string
		line           string
		wantName       string
		wantQty        float64
		wantUnit       string
		wantTotal      string
		wantConfidence float64
	}{
		{
			name:           "qty at unit total",
			line:           "MILK 2 @1.50 3.00",
			wantName:       "MILK",
			wantQty:        2,
			wantUnit:       "1.5",
			wantTotal:      "3",
			wantConfidence: 0.9,
		},
		{
			name:           "qty x unit",
			line:           "AVOCADO 3 x 1.99",
			wantName:       "AVOCADO",
			wantQty:        3,
			wantUnit:       "1.99",
			wantConfidence: 0.85,
		},
		{
			name:           "at unit each",
			line:           "EGGS 12CT @ 6.49 EA",
			wantName:       "EGGS 12CT",
			wantQty:        1,
			wantUnit:       "6.49",
			wantConfidence: 0.8,
		},
		{
			name:           "name price",
			line:           "BREAD 2.50",
			wantName:       "BREAD",
			wantQty:        1,
			wantTotal:      "2.5",
			wantConfidence: 0.7,
		},
		{
			name:           "name price with tax flag",
			line:           "SODA 1.99 T",
			wantName:       "SODA",
			wantQty:        1,
			wantTotal:      "1.99",
			wantConfidence: 0.7,
		},
		{
			name:           "dollar sign stripped",
			line:           "CHEESE $4.99",
			wantName:       "CHEESE",
			wantQty:        1,
			wantTotal:      "4.99",
			wantConfidence: 0.7,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := extractLineItems([]string{tt.line})
			if len(items) != 1 {
				t.Fatalf("got %d items, want 1", len(items))
			}
			item := items[0]
			if item.RawName != tt.wantName {
				t.Errorf("name = %q, want %q", item.RawName, tt.wantName)
			}
			if item.Quantity != tt.wantQty {
				t.Errorf("quantity = %v, want %v", item.Quantity, tt.wantQty)
			}
			if tt.wantUnit != "" && (item.UnitPrice == nil || item.UnitPrice.String() != tt.wantUnit) {
				t.Errorf("unit price = %v, want %s", item.UnitPrice, tt.wantUnit)
			}
			if tt.wantTotal != "" && (item.TotalPrice == nil || item.TotalPrice.String() != tt.wantTotal) {
				t.Errorf("total price = %v, want %s", item.TotalPrice, tt.wantTotal)
			}
			if item.Confidence != tt.wantConfidence {
				t.Errorf("confidence = %v, want %v", item.Confidence, tt.wantConfidence)
			}
		})
	}
}

func TestExtractLineItems_Excluded(t *testing.T) {
	lines := []string{
		"TOTAL 5.94",
		"SUBTOTAL 5.50",
		"TAX 0.44",
		"CASH 10.00",
		"CHANGE 4.06",
		"VISA ****1234 5.94",
		"THANK YOU 0.00",
		"----------------",
		"01/15/2024",
		"10:23 AM",
	}
	if items := extractLineItems(lines); len(items) != 0 {
		t.Errorf("excluded lines produced items: %+v", items)
	}
}

func TestExtractLineItems_MismatchPenalty(t *testing.T) {
	// 2 @ 1.50 should total 3.00; a printed 3.50 is evidence of a
	// misread and scales confidence down without dropping the item.
	items := extractLineItems([]string{"MILK 2 @1.50 3.50"})
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	want := 0.9 * priceMismatchFactor
	if items[0].Confidence != want {
		t.Errorf("confidence = %v, want %v", items[0].Confidence, want)
	}
}

func TestExtractLineItems_PriceBounds(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"zero price", "FREEBIE 0.00"},
		{"unreasonable price", "GADGET 9999.99"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if items := extractLineItems([]string{tt.line}); len(items) != 0 {
				t.Errorf("got items %+v, want none", items)
			}
		})
	}
}

func TestExtractLineItems_PreservesSourceOrder(t *testing.T) {
	lines := []string{
		"ZUCCHINI 1.25",
		"not a purchase line",
		"APPLES 3.00",
		"BANANAS 0.89",
	}
	items := extractLineItems(lines)
	wantOrder := []string{"ZUCCHINI", "APPLES", "BANANAS"}
	if len(items) != len(wantOrder) {
		t.Fatalf("got %d items, want %d", len(items), len(wantOrder))
	}
	for i, want := range wantOrder {
		if items[i].RawName != want {
			t.Errorf("item %d = %q, want %q", i, items[i].RawName, want)
		}
	}
}

func TestCleanItemName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  MILK  ", "MILK"},
		{"BREAD..", "BREAD"},
		{"@CHEESE", "CHEESE"},
		{"EGGS:-", "EGGS"},
	}
	for _, tt := range tests {
		if got := cleanItemName(tt.in); got != tt.want {
			t.Errorf("cleanItemName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractTotal_BottomUpSkipsSubtotal(t *testing.T) {
	lines := []string{
		"SUBTOTAL 5.50",
		"TOTAL 5.94",
	}
	total, confidence := extractTotal(lines)
	if total == nil || total.String() != "5.94" {
		t.Fatalf("total = %v, want 5.94", total)
	}
	if confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", confidence)
	}
}

func TestExtractTotal_Variants(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"GRAND TOTAL 12.00", "12"},
		{"BALANCE DUE: $10.50", "10.5"},
		{"AMOUNT DUE 7.25", "7.25"},
	}
	for _, tt := range tests {
		total, _ := extractTotal([]string{tt.line})
		if total == nil || total.String() != tt.want {
			t.Errorf("extractTotal(%q) = %v, want %s", tt.line, total, tt.want)
		}
	}

	if total, confidence := extractTotal([]string{"MILK 2.50"}); total != nil || confidence != 0 {
		t.Errorf("extractTotal on item line = (%v, %v), want (nil, 0)", total, confidence)
	}
}

func TestExtractTax(t *testing.T) {
	if tax := extractTax([]string{"TAX 0.44", "TOTAL 5.94"}); tax == nil || tax.String() != "0.44" {
		t.Errorf("tax = %v, want 0.44", tax)
	}
	if tax := extractTax([]string{"VAT: 1.20"}); tax == nil || tax.String() != "1.2" {
		t.Errorf("VAT = %v, want 1.20", tax)
	}
	if tax := extractTax([]string{"TOTAL 5.94"}); tax != nil {
		t.Errorf("tax = %v, want nil", tax)
	}
}
