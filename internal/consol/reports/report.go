// Package reports renders financial statements from a consolidated trial
// balance. Builders are pure: the same completed run always yields the same
// statement, so every endpoint serving them is naturally idempotent.
//
// Trial balance lines are signed debit-positive. Statements present magnitudes
// the way readers expect them, so liability, equity and revenue amounts are
// negated on the way out.
package reports

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/consolidate/internal/consol"
	"github.com/odyssey-erp/consolidate/internal/ledger"
)

// Line is one account row of a statement section, presentation-signed.
type Line struct {
	AccountNumber string          `json:"account_number"`
	AccountName   string          `json:"account_name"`
	Amount        decimal.Decimal `json:"amount"`
}

// Section groups statement lines under a caption.
type Section struct {
	Title string          `json:"title"`
	Lines []Line          `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

func newSection(title string) Section {
	return Section{Title: title, Total: decimal.Zero}
}

func (s *Section) add(line consol.LineItem, amount decimal.Decimal) {
	s.Lines = append(s.Lines, Line{
		AccountNumber: line.AccountNumber,
		AccountName:   line.AccountName,
		Amount:        amount,
	})
	s.Total = s.Total.Add(amount)
}

// sumTotal adds the full (parent plus NCI) stored balances of lines matching
// the filter.
func sumTotal(tb consol.TrialBalance, match func(ledger.Category) bool) decimal.Decimal {
	sum := decimal.Zero
	for _, line := range tb.Lines {
		if match(line.Category) {
			sum = sum.Add(line.Total())
		}
	}
	return sum
}

// sumParent adds the parent-attributable stored balances of matching lines.
func sumParent(tb consol.TrialBalance, match func(ledger.Category) bool) decimal.Decimal {
	sum := decimal.Zero
	for _, line := range tb.Lines {
		if match(line.Category) {
			sum = sum.Add(line.Balance)
		}
	}
	return sum
}

// sumNCI adds the non-controlling stored balances of matching lines.
func sumNCI(tb consol.TrialBalance, match func(ledger.Category) bool) decimal.Decimal {
	sum := decimal.Zero
	for _, line := range tb.Lines {
		if line.NCI != nil && match(line.Category) {
			sum = sum.Add(*line.NCI)
		}
	}
	return sum
}
