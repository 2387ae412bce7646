package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrPeriodNotFound indicates the fiscal calendar has no such period.
var ErrPeriodNotFound = errors.New("ledger: period not found")

// Repository reads posted balances and the fiscal calendar maintained by the
// journal service. The consolidation core only ever reads here.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a ledger read repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const trialBalanceQuery = `
SELECT account_number, account_name, category, balance::text, currency, cash
FROM account_balances
WHERE company_id = $1 AND period_ref = $2
ORDER BY account_number`

// TrialBalance returns the posted per-account balances of one company for one
// period.
func (r *Repository) TrialBalance(ctx context.Context, companyID int64, periodRef string) ([]AccountBalance, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("ledger repo not initialised")
	}
	rows, err := r.pool.Query(ctx, trialBalanceQuery, companyID, periodRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []AccountBalance
	for rows.Next() {
		var (
			bal         AccountBalance
			category    string
			balanceText string
		)
		if err := rows.Scan(&bal.AccountNumber, &bal.AccountName, &category, &balanceText, &bal.Currency, &bal.Cash); err != nil {
			return nil, err
		}
		if bal.Category, err = ParseCategory(category); err != nil {
			return nil, err
		}
		if bal.Balance, err = decimal.NewFromString(balanceText); err != nil {
			return nil, fmt.Errorf("ledger: parse balance for account %s: %w", bal.AccountNumber, err)
		}
		balances = append(balances, bal)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(balances) == 0 {
		return nil, fmt.Errorf("company %d period %s: %w", companyID, periodRef, ErrTrialBalanceNotFound)
	}
	return balances, nil
}

const periodQuery = `
SELECT ref, start_date, end_date
FROM fiscal_periods
WHERE ref = $1`

// Resolve returns the date boundaries of a period reference.
func (r *Repository) Resolve(ctx context.Context, periodRef string) (Period, error) {
	if r == nil || r.pool == nil {
		return Period{}, fmt.Errorf("ledger repo not initialised")
	}
	var period Period
	err := r.pool.QueryRow(ctx, periodQuery, periodRef).Scan(&period.Ref, &period.Start, &period.End)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, fmt.Errorf("%s: %w", periodRef, ErrPeriodNotFound)
		}
		return Period{}, err
	}
	return period, nil
}
