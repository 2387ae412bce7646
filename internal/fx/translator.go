package fx

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/consolidate/internal/ledger"
)

// CTA account identity used for the cumulative translation adjustment line.
// The residual from translating balance sheet accounts at the closing rate and
// income statement accounts at the average rate is booked here so the
// translated trial balance keeps summing to zero.
const (
	CTAAccountNumber = "3950"
	CTAAccountName   = "Cumulative Translation Adjustment"
)

// Translator converts a member company's balances from its functional
// currency into the group reporting currency.
type Translator struct {
	rates RateSource
}

// NewTranslator constructs a translator around the injected rate source.
func NewTranslator(rates RateSource) *Translator {
	return &Translator{rates: rates}
}

// Input carries one member company's trial balance and the context needed to
// pick rates.
type Input struct {
	CompanyID          int64
	FunctionalCurrency string
	ReportingCurrency  string
	AsOf               time.Time
	PeriodRef          string
	Balances           []ledger.AccountBalance
}

// Translate applies the translation policy: balance sheet categories at the
// closing rate, income statement categories at the period-average rate, the
// residual to the CTA line. When functional and reporting currencies match the
// balances pass through unchanged.
func (t *Translator) Translate(ctx context.Context, in Input) ([]ledger.AccountBalance, error) {
	if t == nil || t.rates == nil {
		return nil, errors.New("fx: translator not initialised")
	}
	from := strings.ToUpper(strings.TrimSpace(in.FunctionalCurrency))
	to := strings.ToUpper(strings.TrimSpace(in.ReportingCurrency))
	if from == "" || to == "" {
		return nil, errors.New("fx: functional and reporting currencies required")
	}
	if from == to {
		out := make([]ledger.AccountBalance, len(in.Balances))
		copy(out, in.Balances)
		return out, nil
	}

	closing, err := t.rates.Rate(ctx, from, to, in.AsOf)
	if err != nil {
		return nil, &MissingRateError{From: from, To: to, Method: MethodClosing, AsOf: in.AsOf}
	}
	average, err := t.rates.AverageRate(ctx, from, to, in.PeriodRef)
	if err != nil {
		return nil, &MissingRateError{From: from, To: to, Method: MethodAverage, PeriodRef: in.PeriodRef}
	}
	if closing.Sign() <= 0 || average.Sign() <= 0 {
		return nil, &MissingRateError{From: from, To: to, Method: MethodClosing, AsOf: in.AsOf}
	}

	out := make([]ledger.AccountBalance, 0, len(in.Balances)+1)
	residual := decimal.Zero
	for _, bal := range in.Balances {
		rate := closing
		if bal.Category.IsIncomeStatement() {
			rate = average
		}
		translated := bal.Balance.Mul(rate).Round(2)
		residual = residual.Add(translated)
		bal.Balance = translated
		bal.Currency = to
		out = append(out, bal)
	}

	if !residual.IsZero() {
		out = append(out, ledger.AccountBalance{
			AccountNumber: CTAAccountNumber,
			AccountName:   CTAAccountName,
			Category:      ledger.CategoryOtherComprehensiveIncome,
			Balance:       residual.Neg(),
			Currency:      to,
		})
	}
	return out, nil
}
