package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/nimbly/receipts/internal/domain"
)

// mockRepository records every append call for inspection.
type mockRepository struct {
	appendCalls [][]domain.PriceObservation
	appendErr   error
}

func (m *mockRepository) AppendObservations(_ context.Context, _ string, observations []domain.PriceObservation) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appendCalls = append(m.appendCalls, observations)
	return nil
}

func (m *mockRepository) ListObservations(context.Context, string, ObservationFilter) ([]domain.PriceObservation, error) {
	return nil, nil
}

func (m *mockRepository) InsertReceipt(context.Context, domain.ReceiptRecord) error {
	return nil
}

func (m *mockRepository) ListReceipts(context.Context, string, ReceiptFilter) ([]domain.ReceiptRecord, error) {
	return nil, nil
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func testParsed() domain.ParsedReceipt {
	purchase := civil.Date{Year: 2024, Month: 1, Day: 15}
	return domain.ParsedReceipt{
		PurchaseDate: &purchase,
		LineItems: []domain.LineItem{
			{RawName: "MILK", Quantity: 2, UnitPrice: dec("1.50"), TotalPrice: dec("3.00"), Confidence: 0.9},
			{RawName: "BREAD", Quantity: 1, TotalPrice: dec("2.50"), Confidence: 0.7},
			{RawName: "MYSTERY", Quantity: 1, Confidence: 0.7},
		},
	}
}

func TestRecord(t *testing.T) {
	repo := &mockRepository{}
	recorder := NewRecorder(repo)

	itemKeys := []domain.Key{"milk", "bread", "mystery"}
	observations, err := recorder.Record(context.Background(), "u1", "r1", testParsed(), "walmart", itemKeys)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// MYSTERY carries no price and is skipped.
	if len(observations) != 2 {
		t.Fatalf("got %d observations, want 2", len(observations))
	}

	milk := observations[0]
	if milk.ProductKey != "milk" || milk.StoreKey != "walmart" || milk.UserID != "u1" || milk.ReceiptID != "r1" {
		t.Errorf("milk observation = %+v", milk)
	}
	if !milk.UnitPrice.Equal(decimal.RequireFromString("1.50")) {
		t.Errorf("milk unit price = %v, want 1.50 (printed unit price wins)", milk.UnitPrice)
	}
	if milk.ObservedAt != (civil.Date{Year: 2024, Month: 1, Day: 15}) {
		t.Errorf("milk observed at %v", milk.ObservedAt)
	}
	if milk.ObservationID == "" {
		t.Error("observation ID not minted")
	}

	bread := observations[1]
	if !bread.UnitPrice.Equal(decimal.RequireFromString("2.50")) {
		t.Errorf("bread unit price = %v, want total/qty = 2.50", bread.UnitPrice)
	}

	if len(repo.appendCalls) != 1 {
		t.Fatalf("repository appended %d times, want one atomic call", len(repo.appendCalls))
	}
	if len(repo.appendCalls[0]) != 2 {
		t.Errorf("appended %d observations, want 2", len(repo.appendCalls[0]))
	}
}

func TestRecord_DerivesUnitPriceFromTotal(t *testing.T) {
	repo := &mockRepository{}
	recorder := NewRecorder(repo)

	parsed := testParsed()
	parsed.LineItems = []domain.LineItem{
		{RawName: "EGGS", Quantity: 3, TotalPrice: dec("10.00"), Confidence: 0.9},
	}

	observations, err := recorder.Record(context.Background(), "u1", "r1", parsed, "", []domain.Key{"eggs"})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if len(observations) != 1 {
		t.Fatalf("got %d observations, want 1", len(observations))
	}
	if !observations[0].UnitPrice.Equal(decimal.RequireFromString("3.33")) {
		t.Errorf("unit price = %v, want 10.00/3 rounded to 3.33", observations[0].UnitPrice)
	}
}

func TestRecord_SkipsUnkeyedItems(t *testing.T) {
	repo := &mockRepository{}
	recorder := NewRecorder(repo)

	observations, err := recorder.Record(context.Background(), "u1", "r1", testParsed(), "walmart",
		[]domain.Key{"milk", "", "mystery"})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if len(observations) != 1 {
		t.Fatalf("got %d observations, want 1 (unkeyed and unpriced skipped)", len(observations))
	}
	if observations[0].ProductKey != "milk" {
		t.Errorf("kept %q, want milk", observations[0].ProductKey)
	}
}

func TestRecord_KeyCountMismatch(t *testing.T) {
	recorder := NewRecorder(&mockRepository{})
	_, err := recorder.Record(context.Background(), "u1", "r1", testParsed(), "walmart", []domain.Key{"milk"})
	if err == nil {
		t.Fatal("expected error for misaligned item keys")
	}
}

func TestRecord_NothingToAppend(t *testing.T) {
	repo := &mockRepository{}
	recorder := NewRecorder(repo)

	parsed := testParsed()
	parsed.LineItems = nil

	observations, err := recorder.Record(context.Background(), "u1", "r1", parsed, "walmart", nil)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if observations != nil {
		t.Errorf("observations = %+v, want none", observations)
	}
	if len(repo.appendCalls) != 0 {
		t.Errorf("repository called %d times for an empty batch", len(repo.appendCalls))
	}
}

func TestRecord_MissingDate(t *testing.T) {
	parsed := testParsed()
	parsed.PurchaseDate = nil

	t.Run("falls back to clock", func(t *testing.T) {
		fixed := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
		recorder := NewRecorder(&mockRepository{}, WithClock(func() time.Time { return fixed }))

		observations, err := recorder.Record(context.Background(), "u1", "r1", parsed, "walmart",
			[]domain.Key{"milk", "bread", "mystery"})
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		want := civil.Date{Year: 2024, Month: 2, Day: 1}
		for _, obs := range observations {
			if obs.ObservedAt != want {
				t.Errorf("observed at %v, want clock date %v", obs.ObservedAt, want)
			}
		}
	})

	t.Run("required date errors", func(t *testing.T) {
		recorder := NewRecorder(&mockRepository{}, RequireDate())
		_, err := recorder.Record(context.Background(), "u1", "r1", parsed, "walmart",
			[]domain.Key{"milk", "bread", "mystery"})
		if !errors.Is(err, ErrMissingPurchaseDate) {
			t.Errorf("error = %v, want ErrMissingPurchaseDate", err)
		}
	})
}

func TestRecord_AppendFailure(t *testing.T) {
	repo := &mockRepository{appendErr: errors.New("stream closed")}
	recorder := NewRecorder(repo)

	_, err := recorder.Record(context.Background(), "u1", "r1", testParsed(), "walmart",
		[]domain.Key{"milk", "bread", "mystery"})
	if err == nil {
		t.Fatal("expected append failure to surface")
	}
}
