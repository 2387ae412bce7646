package intercompany

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates the intercompany dealings the group recognises.
type TransactionType string

const (
	TypeSalePurchase        TransactionType = "SALE_PURCHASE"
	TypeLoan                TransactionType = "LOAN"
	TypeManagementFee       TransactionType = "MANAGEMENT_FEE"
	TypeDividend            TransactionType = "DIVIDEND"
	TypeCapitalContribution TransactionType = "CAPITAL_CONTRIBUTION"
	TypeCostAllocation      TransactionType = "COST_ALLOCATION"
	TypeRoyalty             TransactionType = "ROYALTY"
)

// Valid reports whether the transaction type is recognised.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeSalePurchase, TypeLoan, TypeManagementFee, TypeDividend,
		TypeCapitalContribution, TypeCostAllocation, TypeRoyalty:
		return true
	}
	return false
}

// MatchStatus captures the reconciliation state of a transaction.
type MatchStatus string

const (
	// StatusUnmatched indicates only one side has recorded the transaction.
	StatusUnmatched MatchStatus = "UNMATCHED"
	// StatusMatched indicates both sides agree within tolerance.
	StatusMatched MatchStatus = "MATCHED"
	// StatusPartiallyMatched indicates both sides recorded amounts that differ
	// beyond tolerance and no reviewer has explained the variance yet.
	StatusPartiallyMatched MatchStatus = "PARTIALLY_MATCHED"
	// StatusVarianceApproved indicates a reviewer accepted the variance with
	// an explanation; the transaction becomes eligible for elimination.
	StatusVarianceApproved MatchStatus = "VARIANCE_APPROVED"
)

// LedgerRef points at the journal entry a company recorded for its side of
// the transaction, together with the amount it recorded.
type LedgerRef struct {
	JournalEntryID int64
	Amount         decimal.Decimal
	Currency       string
}

// Transaction is one intercompany dealing between two group members. A record
// is created unilaterally by whichever side books first; the matcher
// re-evaluates the status every time the opposing ledger reference arrives.
// Transactions are never deleted, only superseded by later matching runs.
type Transaction struct {
	ID            int64
	GroupID       int64
	FromCompanyID int64
	ToCompanyID   int64
	Type          TransactionType
	Date          time.Time
	Amount        decimal.Decimal
	Currency      string
	FromRef       *LedgerRef
	ToRef         *LedgerRef
	Status        MatchStatus
	// VarianceAmount is present exactly when Status is PartiallyMatched or
	// VarianceApproved; it is the to-side amount minus the from-side amount.
	VarianceAmount      *decimal.Decimal
	VarianceExplanation string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasVariance reports whether the recorded amounts disagree.
func (t Transaction) HasVariance() bool {
	return t.Status == StatusPartiallyMatched || t.Status == StatusVarianceApproved
}

// RequiresElimination reports whether the transaction participates in the
// elimination step of a consolidation run.
func (t Transaction) RequiresElimination() bool {
	return t.Status == StatusMatched || t.Status == StatusVarianceApproved
}

// Side identifies which company's ledger reference is being attached.
type Side string

const (
	// SideFrom is the company that originated the transaction.
	SideFrom Side = "FROM"
	// SideTo is the counterparty company.
	SideTo Side = "TO"
)

// CreateInput captures fields required to record a new transaction.
type CreateInput struct {
	GroupID       int64
	FromCompanyID int64
	ToCompanyID   int64
	Type          TransactionType
	Date          time.Time
	Amount        decimal.Decimal
	Currency      string
}

// Validate rejects malformed transactions before they can enter a run.
func (in CreateInput) Validate() error {
	if in.GroupID <= 0 {
		return errors.New("intercompany: group required")
	}
	if in.FromCompanyID <= 0 || in.ToCompanyID <= 0 {
		return errors.New("intercompany: company pair required")
	}
	if in.FromCompanyID == in.ToCompanyID {
		return ErrSelfReferential
	}
	if !in.Type.Valid() {
		return errors.New("intercompany: unknown transaction type " + string(in.Type))
	}
	if in.Date.IsZero() {
		return errors.New("intercompany: transaction date required")
	}
	if in.Amount.Sign() <= 0 {
		return errors.New("intercompany: agreed amount must be positive")
	}
	if strings.TrimSpace(in.Currency) == "" {
		return errors.New("intercompany: currency required")
	}
	return nil
}

var (
	// ErrTransactionNotFound occurs when a lookup misses.
	ErrTransactionNotFound = errors.New("intercompany: transaction not found")
	// ErrSelfReferential rejects transactions where both sides are the same company.
	ErrSelfReferential = errors.New("intercompany: from and to company must differ")
	// ErrExplanationRequired rejects variance approval without a non-empty explanation.
	ErrExplanationRequired = errors.New("intercompany: variance explanation required")
	// ErrNotPartiallyMatched rejects variance approval for any other status.
	ErrNotPartiallyMatched = errors.New("intercompany: only partially matched transactions can be approved")
)
