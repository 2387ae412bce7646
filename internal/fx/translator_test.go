package fx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/consolidate/internal/ledger"
)

type fixedRates struct {
	closing map[string]decimal.Decimal
	average map[string]decimal.Decimal
}

func (f *fixedRates) Rate(ctx context.Context, from, to string, asOf time.Time) (decimal.Decimal, error) {
	if r, ok := f.closing[from+to]; ok {
		return r, nil
	}
	return decimal.Zero, errors.New("no rate")
}

func (f *fixedRates) AverageRate(ctx context.Context, from, to string, periodRef string) (decimal.Decimal, error) {
	if r, ok := f.average[from+to]; ok {
		return r, nil
	}
	return decimal.Zero, errors.New("no rate")
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestTranslateMixedRatesBooksCTA(t *testing.T) {
	rates := &fixedRates{
		closing: map[string]decimal.Decimal{"EURUSD": dec("1.10")},
		average: map[string]decimal.Decimal{"EURUSD": dec("1.08")},
	}
	tr := NewTranslator(rates)

	// Balanced books: 100k assets funded by 60k liabilities and 40k revenue.
	in := Input{
		CompanyID:          2,
		FunctionalCurrency: "EUR",
		ReportingCurrency:  "USD",
		AsOf:               time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		PeriodRef:          "2025-06",
		Balances: []ledger.AccountBalance{
			{AccountNumber: "1000", AccountName: "Cash", Category: ledger.CategoryCurrentAsset, Balance: dec("100000"), Currency: "EUR", Cash: true},
			{AccountNumber: "2100", AccountName: "Payables", Category: ledger.CategoryCurrentLiability, Balance: dec("-60000"), Currency: "EUR"},
			{AccountNumber: "4000", AccountName: "Revenue", Category: ledger.CategoryOperatingRevenue, Balance: dec("-40000"), Currency: "EUR"},
		},
	}
	out, err := tr.Translate(context.Background(), in)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 lines incl CTA got %d", len(out))
	}
	if !out[0].Balance.Equal(dec("110000")) {
		t.Fatalf("closing-rate asset = %s want 110000", out[0].Balance)
	}
	if !out[2].Balance.Equal(dec("-43200")) {
		t.Fatalf("average-rate revenue = %s want -43200", out[2].Balance)
	}
	cta := out[3]
	if cta.AccountNumber != CTAAccountNumber || cta.Category != ledger.CategoryOtherComprehensiveIncome {
		t.Fatalf("unexpected CTA line %+v", cta)
	}
	sum := decimal.Zero
	for _, b := range out {
		sum = sum.Add(b.Balance)
	}
	if !sum.IsZero() {
		t.Fatalf("translated trial balance does not sum to zero: %s", sum)
	}
}

func TestTranslateSameCurrencyPassThrough(t *testing.T) {
	tr := NewTranslator(&fixedRates{})
	in := Input{
		FunctionalCurrency: "USD",
		ReportingCurrency:  "usd",
		Balances: []ledger.AccountBalance{
			{AccountNumber: "1000", AccountName: "Cash", Category: ledger.CategoryCurrentAsset, Balance: dec("5000"), Currency: "USD"},
		},
	}
	out, err := tr.Translate(context.Background(), in)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if len(out) != 1 || !out[0].Balance.Equal(dec("5000")) {
		t.Fatalf("pass-through altered balances: %+v", out)
	}
}

func TestTranslateMissingRateFails(t *testing.T) {
	rates := &fixedRates{
		closing: map[string]decimal.Decimal{"EURUSD": dec("1.10")},
		average: map[string]decimal.Decimal{},
	}
	tr := NewTranslator(rates)
	in := Input{
		FunctionalCurrency: "EUR",
		ReportingCurrency:  "USD",
		AsOf:               time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		PeriodRef:          "2025-06",
		Balances: []ledger.AccountBalance{
			{AccountNumber: "4000", AccountName: "Revenue", Category: ledger.CategoryOperatingRevenue, Balance: dec("-100"), Currency: "EUR"},
		},
	}
	_, err := tr.Translate(context.Background(), in)
	var missing *MissingRateError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingRateError got %v", err)
	}
	if missing.Method != MethodAverage || missing.PeriodRef != "2025-06" {
		t.Fatalf("unexpected missing rate detail %+v", missing)
	}
}
