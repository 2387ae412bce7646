package reports

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/consolidate/internal/consol"
	"github.com/odyssey-erp/consolidate/internal/ledger"
)

// identityTolerance bounds the rounding drift allowed between total assets
// and total liabilities plus equity.
var identityTolerance = decimal.NewFromFloat(0.01)

// BalanceSheet is the consolidated statement of financial position. Asset and
// liability lines carry the full group amounts; the equity section attributes
// them between the parent and non-controlling interests.
type BalanceSheet struct {
	RunID     int64     `json:"run_id"`
	PeriodRef string    `json:"period_ref"`
	AsOf      time.Time `json:"as_of"`
	Currency  string    `json:"currency"`

	CurrentAssets         Section `json:"current_assets"`
	NonCurrentAssets      Section `json:"non_current_assets"`
	CurrentLiabilities    Section `json:"current_liabilities"`
	NonCurrentLiabilities Section `json:"non_current_liabilities"`
	Equity                Section `json:"equity"`

	TotalAssets               decimal.Decimal `json:"total_assets"`
	TotalLiabilities          decimal.Decimal `json:"total_liabilities"`
	TotalEquity               decimal.Decimal `json:"total_equity"`
	TotalLiabilitiesAndEquity decimal.Decimal `json:"total_liabilities_and_equity"`
}

// BalanceSheetNotBalancedError reports a broken accounting identity. It is
// never corrected with a plug; the underlying run data is wrong.
type BalanceSheetNotBalancedError struct {
	TotalAssets               decimal.Decimal
	TotalLiabilitiesAndEquity decimal.Decimal
}

func (e *BalanceSheetNotBalancedError) Error() string {
	return fmt.Sprintf("reports: balance sheet does not balance: assets %s vs liabilities and equity %s",
		e.TotalAssets, e.TotalLiabilitiesAndEquity)
}

// BuildBalanceSheet renders the balance sheet from a completed run's trial
// balance. Income statement accounts are folded into equity as current period
// earnings; without that the identity cannot hold mid-year.
func BuildBalanceSheet(tb consol.TrialBalance) (BalanceSheet, error) {
	bs := BalanceSheet{
		RunID:     tb.RunID,
		PeriodRef: tb.PeriodRef,
		AsOf:      tb.AsOf,
		Currency:  tb.Currency,

		CurrentAssets:         newSection("Current Assets"),
		NonCurrentAssets:      newSection("Non-Current Assets"),
		CurrentLiabilities:    newSection("Current Liabilities"),
		NonCurrentLiabilities: newSection("Non-Current Liabilities"),
		Equity:                newSection("Equity"),
	}

	for _, line := range tb.Lines {
		switch {
		case line.Category == ledger.CategoryCurrentAsset:
			bs.CurrentAssets.add(line, line.Total())
		case line.Category.IsAsset():
			bs.NonCurrentAssets.add(line, line.Total())
		case line.Category == ledger.CategoryCurrentLiability:
			bs.CurrentLiabilities.add(line, line.Total().Neg())
		case line.Category == ledger.CategoryNonCurrentLiability:
			bs.NonCurrentLiabilities.add(line, line.Total().Neg())
		case line.Category.IsEquity():
			bs.Equity.add(line, line.Balance.Neg())
		}
	}

	parentEarnings := sumParent(tb, ledger.Category.IsIncomeStatement).Neg()
	bs.Equity.Lines = append(bs.Equity.Lines, Line{
		AccountName: "Current Period Earnings",
		Amount:      parentEarnings,
	})
	bs.Equity.Total = bs.Equity.Total.Add(parentEarnings)

	nci := sumNCI(tb, ledger.Category.IsEquity).
		Add(sumNCI(tb, ledger.Category.IsIncomeStatement)).
		Neg()
	if !nci.IsZero() {
		bs.Equity.Lines = append(bs.Equity.Lines, Line{
			AccountName: "Non-Controlling Interests",
			Amount:      nci,
		})
		bs.Equity.Total = bs.Equity.Total.Add(nci)
	}

	bs.TotalAssets = bs.CurrentAssets.Total.Add(bs.NonCurrentAssets.Total)
	bs.TotalLiabilities = bs.CurrentLiabilities.Total.Add(bs.NonCurrentLiabilities.Total)
	bs.TotalEquity = bs.Equity.Total
	bs.TotalLiabilitiesAndEquity = bs.TotalLiabilities.Add(bs.TotalEquity)

	if bs.TotalAssets.Sub(bs.TotalLiabilitiesAndEquity).Abs().Cmp(identityTolerance) > 0 {
		return BalanceSheet{}, &BalanceSheetNotBalancedError{
			TotalAssets:               bs.TotalAssets,
			TotalLiabilitiesAndEquity: bs.TotalLiabilitiesAndEquity,
		}
	}
	return bs, nil
}
