package intercompany

import "github.com/shopspring/decimal"

// DefaultTolerance is the smallest reporting-currency unit; recorded amounts
// within this distance count as agreeing.
var DefaultTolerance = decimal.NewFromFloat(0.01)

// Outcome is the computed result of evaluating one transaction.
type Outcome struct {
	Status   MatchStatus
	Variance *decimal.Decimal
}

// Evaluate assigns the deterministic matching outcome for a transaction from
// the ledger references currently attached. Approval is the only transition
// not computed here; re-evaluation after new evidence always recomputes from
// scratch, discarding a previous approval.
func Evaluate(tx Transaction, tolerance decimal.Decimal) Outcome {
	if tx.FromRef == nil || tx.ToRef == nil {
		return Outcome{Status: StatusUnmatched}
	}
	diff := tx.ToRef.Amount.Sub(tx.FromRef.Amount)
	if diff.Abs().Cmp(tolerance) <= 0 {
		return Outcome{Status: StatusMatched}
	}
	return Outcome{Status: StatusPartiallyMatched, Variance: &diff}
}

// EffectiveAmount is the amount the elimination engine nets out: the agreed
// amount for matched transactions, the smaller recorded side when a variance
// was approved (the unexplained remainder stays visible in the accounts).
func EffectiveAmount(tx Transaction) decimal.Decimal {
	if tx.Status == StatusVarianceApproved && tx.FromRef != nil && tx.ToRef != nil {
		from := tx.FromRef.Amount.Abs()
		to := tx.ToRef.Amount.Abs()
		if from.Cmp(to) < 0 {
			return from
		}
		return to
	}
	return tx.Amount
}
