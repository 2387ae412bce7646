package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/consolidate/internal/consol"
	"github.com/odyssey-erp/consolidate/internal/ledger"
)

// IncomeStatement is the consolidated statement of profit or loss with the
// parent/NCI attribution of the period result.
type IncomeStatement struct {
	RunID     int64     `json:"run_id"`
	PeriodRef string    `json:"period_ref"`
	AsOf      time.Time `json:"as_of"`
	Currency  string    `json:"currency"`

	Revenue           Section `json:"revenue"`
	CostOfGoodsSold   Section `json:"cost_of_goods_sold"`
	OperatingExpenses Section `json:"operating_expenses"`
	OtherIncome       Section `json:"other_income"`
	OtherExpenses     Section `json:"other_expenses"`
	TaxExpense        Section `json:"tax_expense"`

	GrossProfit     decimal.Decimal `json:"gross_profit"`
	OperatingIncome decimal.Decimal `json:"operating_income"`
	IncomeBeforeTax decimal.Decimal `json:"income_before_tax"`
	NetIncome       decimal.Decimal `json:"net_income"`

	NetIncomeParent decimal.Decimal `json:"net_income_parent"`
	NetIncomeNCI    decimal.Decimal `json:"net_income_nci"`
}

// BuildIncomeStatement renders the income statement from a completed run's
// trial balance. Intercompany revenue and expense arrive already eliminated,
// so every line is third-party activity.
func BuildIncomeStatement(tb consol.TrialBalance) IncomeStatement {
	is := IncomeStatement{
		RunID:     tb.RunID,
		PeriodRef: tb.PeriodRef,
		AsOf:      tb.AsOf,
		Currency:  tb.Currency,

		Revenue:           newSection("Revenue"),
		CostOfGoodsSold:   newSection("Cost of Goods Sold"),
		OperatingExpenses: newSection("Operating Expenses"),
		OtherIncome:       newSection("Other Income"),
		OtherExpenses:     newSection("Other Expenses"),
		TaxExpense:        newSection("Income Tax Expense"),
	}

	for _, line := range tb.Lines {
		switch line.Category {
		case ledger.CategoryOperatingRevenue:
			is.Revenue.add(line, line.Total().Neg())
		case ledger.CategoryCostOfGoodsSold:
			is.CostOfGoodsSold.add(line, line.Total())
		case ledger.CategoryOperatingExpense, ledger.CategoryDepreciationAmortization:
			is.OperatingExpenses.add(line, line.Total())
		case ledger.CategoryOtherRevenue:
			is.OtherIncome.add(line, line.Total().Neg())
		case ledger.CategoryInterestExpense, ledger.CategoryOtherExpense:
			is.OtherExpenses.add(line, line.Total())
		case ledger.CategoryTaxExpense:
			is.TaxExpense.add(line, line.Total())
		}
	}

	is.GrossProfit = is.Revenue.Total.Sub(is.CostOfGoodsSold.Total)
	is.OperatingIncome = is.GrossProfit.Sub(is.OperatingExpenses.Total)
	is.IncomeBeforeTax = is.OperatingIncome.Add(is.OtherIncome.Total).Sub(is.OtherExpenses.Total)
	is.NetIncome = is.IncomeBeforeTax.Sub(is.TaxExpense.Total)

	is.NetIncomeParent = sumParent(tb, ledger.Category.IsIncomeStatement).Neg()
	is.NetIncomeNCI = sumNCI(tb, ledger.Category.IsIncomeStatement).Neg()
	return is
}
