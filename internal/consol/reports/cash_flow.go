package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/consolidate/internal/consol"
	"github.com/odyssey-erp/consolidate/internal/ledger"
)

// CashFlowStatement approximates the indirect-method statement of cash flows
// from two consecutive trial balances. Only net balance movements are visible
// at this level, so capital expenditure is derived as the fixed asset movement
// grossed up by depreciation, and financing activity as the movement on debt
// and equity accounts.
type CashFlowStatement struct {
	RunID     int64     `json:"run_id"`
	PeriodRef string    `json:"period_ref"`
	AsOf      time.Time `json:"as_of"`
	Currency  string    `json:"currency"`

	NetIncome                decimal.Decimal `json:"net_income"`
	DepreciationAmortization decimal.Decimal `json:"depreciation_amortization"`
	WorkingCapitalChanges    decimal.Decimal `json:"working_capital_changes"`
	OperatingActivities      decimal.Decimal `json:"operating_activities"`
	InvestingActivities      decimal.Decimal `json:"investing_activities"`
	FinancingActivities      decimal.Decimal `json:"financing_activities"`
	NetChangeInCash          decimal.Decimal `json:"net_change_in_cash"`
	CashAtBeginningOfPeriod  decimal.Decimal `json:"cash_at_beginning_of_period"`
	CashAtEndOfPeriod        decimal.Decimal `json:"cash_at_end_of_period"`
	// PriorPeriodAvailable is false when no prior run exists. Movements are
	// then measured against zero opening balances, which is only meaningful
	// for a group's first consolidated period.
	PriorPeriodAvailable bool `json:"prior_period_available"`
}

// BuildCashFlowStatement renders the cash flow statement for a run, using the
// prior period's trial balance for opening balances when one exists. Every
// figure is a movement against the prior balance, so operating, investing and
// financing flows always reconcile to the change in cash.
func BuildCashFlowStatement(tb consol.TrialBalance, prior *consol.TrialBalance) CashFlowStatement {
	cf := CashFlowStatement{
		RunID:                tb.RunID,
		PeriodRef:            tb.PeriodRef,
		AsOf:                 tb.AsOf,
		Currency:             tb.Currency,
		PriorPeriodAvailable: prior != nil,
	}

	// Movements are taken over the union of current and prior accounts: a
	// settled account that no longer appears on the current trial balance
	// still moved, from its opening balance to zero.
	type accountFlow struct {
		category ledger.Category
		cash     bool
		closing  decimal.Decimal
		opening  decimal.Decimal
	}
	flows := map[string]*accountFlow{}
	flow := func(line consol.LineItem) *accountFlow {
		f, ok := flows[line.AccountNumber]
		if !ok {
			f = &accountFlow{category: line.Category, cash: line.Cash}
			flows[line.AccountNumber] = f
		}
		return f
	}

	for _, line := range tb.Lines {
		f := flow(line)
		f.closing = f.closing.Add(line.Total())
	}
	priorIncome := decimal.Zero
	if prior != nil {
		for _, line := range prior.Lines {
			f := flow(line)
			f.opening = f.opening.Add(line.Total())
			if line.Cash {
				cf.CashAtBeginningOfPeriod = cf.CashAtBeginningOfPeriod.Add(line.Total())
			}
			if line.Category.IsIncomeStatement() {
				priorIncome = priorIncome.Add(line.Total())
			}
		}
	}

	for _, f := range flows {
		if f.cash {
			cf.CashAtEndOfPeriod = cf.CashAtEndOfPeriod.Add(f.closing)
			continue
		}
		movement := f.closing.Sub(f.opening)
		switch {
		case f.category == ledger.CategoryDepreciationAmortization:
			cf.DepreciationAmortization = cf.DepreciationAmortization.Add(movement)
		case f.category == ledger.CategoryCurrentAsset, f.category == ledger.CategoryCurrentLiability:
			cf.WorkingCapitalChanges = cf.WorkingCapitalChanges.Sub(movement)
		case f.category.IsAsset():
			cf.InvestingActivities = cf.InvestingActivities.Sub(movement)
		case f.category == ledger.CategoryNonCurrentLiability, f.category.IsEquity():
			cf.FinancingActivities = cf.FinancingActivities.Sub(movement)
		}
	}

	currentIncome := sumTotal(tb, ledger.Category.IsIncomeStatement)
	cf.NetIncome = currentIncome.Sub(priorIncome).Neg()
	// Depreciation is added back to operations and folded into the gross
	// investing outflow, keeping both sections consistent with the net fixed
	// asset movement.
	cf.InvestingActivities = cf.InvestingActivities.Sub(cf.DepreciationAmortization)
	cf.OperatingActivities = cf.NetIncome.
		Add(cf.DepreciationAmortization).
		Add(cf.WorkingCapitalChanges)
	cf.NetChangeInCash = cf.OperatingActivities.
		Add(cf.InvestingActivities).
		Add(cf.FinancingActivities)
	if prior == nil {
		cf.CashAtBeginningOfPeriod = cf.CashAtEndOfPeriod.Sub(cf.NetChangeInCash)
	}
	return cf
}
