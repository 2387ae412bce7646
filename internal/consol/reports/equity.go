package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/consolidate/internal/consol"
	"github.com/odyssey-erp/consolidate/internal/ledger"
)

// EquityRow tracks one equity component from opening to closing balance.
type EquityRow struct {
	Component string          `json:"component"`
	Opening   decimal.Decimal `json:"opening"`
	Movement  decimal.Decimal `json:"movement"`
	Closing   decimal.Decimal `json:"closing"`
}

// EquityStatement is the consolidated statement of changes in equity.
type EquityStatement struct {
	RunID     int64     `json:"run_id"`
	PeriodRef string    `json:"period_ref"`
	AsOf      time.Time `json:"as_of"`
	Currency  string    `json:"currency"`

	Rows  []EquityRow `json:"rows"`
	Total EquityRow   `json:"total"`
	// PriorPeriodAvailable is false when no prior run exists; opening
	// balances are then zero and every closing balance shows as movement.
	PriorPeriodAvailable bool `json:"prior_period_available"`
}

var equityComponents = []struct {
	title string
	match func(ledger.Category) bool
}{
	{"Contributed Capital", func(c ledger.Category) bool { return c == ledger.CategoryContributedCapital }},
	{"Retained Earnings", func(c ledger.Category) bool { return c == ledger.CategoryRetainedEarnings }},
	{"Other Comprehensive Income", func(c ledger.Category) bool { return c == ledger.CategoryOtherComprehensiveIncome }},
	{"Treasury Stock", func(c ledger.Category) bool { return c == ledger.CategoryTreasuryStock }},
}

// BuildEquityStatement renders the movement of each equity component between
// two runs. Current period earnings and the NCI position are derived rows;
// they do not exist as accounts on the trial balance.
func BuildEquityStatement(tb consol.TrialBalance, prior *consol.TrialBalance) EquityStatement {
	st := EquityStatement{
		RunID:                tb.RunID,
		PeriodRef:            tb.PeriodRef,
		AsOf:                 tb.AsOf,
		Currency:             tb.Currency,
		PriorPeriodAvailable: prior != nil,
	}

	closingOf := func(t consol.TrialBalance, match func(ledger.Category) bool) decimal.Decimal {
		return sumParent(t, match).Neg()
	}
	row := func(title string, opening, closing decimal.Decimal) EquityRow {
		return EquityRow{Component: title, Opening: opening, Movement: closing.Sub(opening), Closing: closing}
	}

	for _, comp := range equityComponents {
		opening := decimal.Zero
		if prior != nil {
			opening = closingOf(*prior, comp.match)
		}
		st.Rows = append(st.Rows, row(comp.title, opening, closingOf(tb, comp.match)))
	}

	earningsOpening := decimal.Zero
	if prior != nil {
		earningsOpening = closingOf(*prior, ledger.Category.IsIncomeStatement)
	}
	st.Rows = append(st.Rows, row("Current Period Earnings", earningsOpening, closingOf(tb, ledger.Category.IsIncomeStatement)))

	nciOf := func(t consol.TrialBalance) decimal.Decimal {
		return sumNCI(t, ledger.Category.IsEquity).
			Add(sumNCI(t, ledger.Category.IsIncomeStatement)).
			Neg()
	}
	nciOpening := decimal.Zero
	if prior != nil {
		nciOpening = nciOf(*prior)
	}
	st.Rows = append(st.Rows, row("Non-Controlling Interests", nciOpening, nciOf(tb)))

	total := EquityRow{Component: "Total Equity"}
	for _, r := range st.Rows {
		total.Opening = total.Opening.Add(r.Opening)
		total.Movement = total.Movement.Add(r.Movement)
		total.Closing = total.Closing.Add(r.Closing)
	}
	st.Total = total
	return st
}
