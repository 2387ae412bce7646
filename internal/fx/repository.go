package fx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository reads exchange rates maintained by the rates service. Closing
// rates are dated; the period-average rates are precomputed per period.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a rate repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const closingRateQuery = `
SELECT rate::text
FROM fx_rates
WHERE from_currency = $1 AND to_currency = $2 AND rate_date <= $3
ORDER BY rate_date DESC
LIMIT 1`

// Rate returns the most recent rate on or before the as-of date.
func (r *Repository) Rate(ctx context.Context, from, to string, asOf time.Time) (decimal.Decimal, error) {
	if r == nil || r.pool == nil {
		return decimal.Decimal{}, fmt.Errorf("fx repo not initialised")
	}
	var rateText string
	err := r.pool.QueryRow(ctx, closingRateQuery, from, to, asOf).Scan(&rateText)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Decimal{}, fmt.Errorf("fx: no rate %s/%s as of %s", from, to, asOf.Format("2006-01-02"))
		}
		return decimal.Decimal{}, err
	}
	rate, err := decimal.NewFromString(rateText)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("fx: parse rate: %w", err)
	}
	return rate, nil
}

const averageRateQuery = `
SELECT rate::text
FROM fx_average_rates
WHERE from_currency = $1 AND to_currency = $2 AND period_ref = $3`

// AverageRate returns the precomputed period-average rate.
func (r *Repository) AverageRate(ctx context.Context, from, to, periodRef string) (decimal.Decimal, error) {
	if r == nil || r.pool == nil {
		return decimal.Decimal{}, fmt.Errorf("fx repo not initialised")
	}
	var rateText string
	err := r.pool.QueryRow(ctx, averageRateQuery, from, to, periodRef).Scan(&rateText)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Decimal{}, fmt.Errorf("fx: no average rate %s/%s for %s", from, to, periodRef)
		}
		return decimal.Decimal{}, err
	}
	rate, err := decimal.NewFromString(rateText)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("fx: parse rate: %w", err)
	}
	return rate, nil
}
