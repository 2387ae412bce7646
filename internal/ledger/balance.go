package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountBalance is a single per-account balance delivered by the journal
// service for one company and one period. Balances arrive already validated
// (debits equal credits across the company trial balance) and are signed
// debit-positive: assets and expenses carry positive balances, liabilities,
// equity and revenue carry negative ones, so a valid trial balance sums to zero.
type AccountBalance struct {
	AccountNumber string
	AccountName   string
	Category      Category
	Balance       decimal.Decimal
	Currency      string
	// Cash marks cash and cash-equivalent accounts from the chart of
	// accounts; the cash flow statement reads ending cash from these lines.
	Cash bool
}

// Validate checks the fields the consolidation core relies on.
func (b AccountBalance) Validate() error {
	if strings.TrimSpace(b.AccountNumber) == "" {
		return errors.New("ledger: account number required")
	}
	if !b.Category.Valid() {
		return errors.New("ledger: unknown account category " + string(b.Category))
	}
	if strings.TrimSpace(b.Currency) == "" {
		return errors.New("ledger: currency required")
	}
	return nil
}

// BalanceSource exposes posted per-company balances to the consolidation core.
// Implementations live in the journal/ledger service; the core never posts.
type BalanceSource interface {
	TrialBalance(ctx context.Context, companyID int64, periodRef string) ([]AccountBalance, error)
}

// Period holds the resolved boundaries of a fiscal period.
type Period struct {
	Ref   string
	Start time.Time
	End   time.Time
}

// PeriodResolver resolves a period reference to its date boundaries.
// Fiscal calendar computation is owned by the periods service.
type PeriodResolver interface {
	Resolve(ctx context.Context, periodRef string) (Period, error)
}

// ErrTrialBalanceNotFound indicates the journal service has no balances for
// the requested company and period. Fatal to a consolidation run.
var ErrTrialBalanceNotFound = errors.New("ledger: trial balance not found")
