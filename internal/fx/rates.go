package fx

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RateSource exposes exchange-rate lookups for a currency pair. It is
// injected into the translator so tests can run against fixed rate tables.
type RateSource interface {
	// Rate returns the closing spot rate for converting from -> to as of the
	// given date.
	Rate(ctx context.Context, from, to string, asOf time.Time) (decimal.Decimal, error)
	// AverageRate returns the period-average rate for converting from -> to
	// over the referenced fiscal period.
	AverageRate(ctx context.Context, from, to string, periodRef string) (decimal.Decimal, error)
}

// Method enumerates supported FX conversion methods.
type Method string

const (
	// MethodAverage represents average rate usage for income statement accounts.
	MethodAverage Method = "AVERAGE"
	// MethodClosing represents closing rate usage for balance sheet accounts.
	MethodClosing Method = "CLOSING"
)

// MissingRateError reports the exact pair and date or period a lookup failed
// for. It is fatal to a consolidation run; the translator never falls back to
// a default rate.
type MissingRateError struct {
	From      string
	To        string
	Method    Method
	AsOf      time.Time
	PeriodRef string
}

// Error implements the error interface.
func (e *MissingRateError) Error() string {
	if e.Method == MethodAverage {
		return fmt.Sprintf("fx: missing %s rate %s/%s for period %s", e.Method, e.From, e.To, e.PeriodRef)
	}
	return fmt.Sprintf("fx: missing %s rate %s/%s as of %s", e.Method, e.From, e.To, e.AsOf.Format("2006-01-02"))
}
