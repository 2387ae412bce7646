package reports

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/consolidate/internal/consol"
	"github.com/odyssey-erp/consolidate/internal/ledger"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func line(number, name string, category ledger.Category, parent string, nci string, cash bool) consol.LineItem {
	item := consol.LineItem{
		AccountNumber: number,
		AccountName:   name,
		Category:      category,
		Balance:       dec(parent),
		Cash:          cash,
	}
	if nci != "" {
		n := dec(nci)
		item.NCI = &n
	}
	return item
}

// trialBalance is a consolidated, eliminated trial balance for an 80%-owned
// group. Parent and NCI columns together net to zero.
func trialBalance() consol.TrialBalance {
	return consol.TrialBalance{
		RunID:     10,
		GroupID:   1,
		PeriodRef: "2025-06",
		AsOf:      time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		Currency:  "USD",
		Lines: []consol.LineItem{
			line("1000", "Cash", ledger.CategoryCurrentAsset, "5000", "", true),
			line("1010", "Cash", ledger.CategoryCurrentAsset, "2000", "500", true),
			line("1500", "Equipment", ledger.CategoryFixedAsset, "2400", "600", false),
			line("2000", "Accounts Payable", ledger.CategoryCurrentLiability, "-1200", "-300", false),
			line("3100", "Contributed Capital", ledger.CategoryContributedCapital, "-5800", "-200", false),
			line("3950", "Cumulative Translation Adjustment", ledger.CategoryOtherComprehensiveIncome, "-100", "", false),
			line("4100", "Service Revenue", ledger.CategoryOperatingRevenue, "-3400", "-800", false),
			line("5000", "Cost of Services", ledger.CategoryCostOfGoodsSold, "480", "120", false),
			line("5100", "Salaries", ledger.CategoryOperatingExpense, "320", "80", false),
			line("5300", "Depreciation", ledger.CategoryDepreciationAmortization, "240", "60", false),
		},
	}
}

func TestBalanceSheetIdentityHolds(t *testing.T) {
	bs, err := BuildBalanceSheet(trialBalance())
	require.NoError(t, err)

	require.True(t, bs.TotalAssets.Equal(dec("10500")), "assets %s", bs.TotalAssets)
	require.True(t, bs.TotalLiabilities.Equal(dec("1500")))
	require.True(t, bs.TotalEquity.Equal(dec("9000")))
	require.True(t, bs.TotalAssets.Equal(bs.TotalLiabilitiesAndEquity))

	require.True(t, bs.CurrentAssets.Total.Equal(dec("7500")))
	require.True(t, bs.NonCurrentAssets.Total.Equal(dec("3000")))

	var earnings, nci *Line
	for i := range bs.Equity.Lines {
		switch bs.Equity.Lines[i].AccountName {
		case "Current Period Earnings":
			earnings = &bs.Equity.Lines[i]
		case "Non-Controlling Interests":
			nci = &bs.Equity.Lines[i]
		}
	}
	require.NotNil(t, earnings)
	require.True(t, earnings.Amount.Equal(dec("2360")), "earnings %s", earnings.Amount)
	require.NotNil(t, nci)
	require.True(t, nci.Amount.Equal(dec("740")), "nci %s", nci.Amount)
}

func TestBalanceSheetRejectsBrokenIdentity(t *testing.T) {
	tb := consol.TrialBalance{
		RunID: 11,
		Lines: []consol.LineItem{
			line("1000", "Cash", ledger.CategoryCurrentAsset, "100", "", true),
		},
	}
	_, err := BuildBalanceSheet(tb)
	var notBalanced *BalanceSheetNotBalancedError
	require.ErrorAs(t, err, &notBalanced)
	require.True(t, notBalanced.TotalAssets.Equal(dec("100")))
}

func TestIncomeStatementAttribution(t *testing.T) {
	is := BuildIncomeStatement(trialBalance())

	require.True(t, is.Revenue.Total.Equal(dec("4200")))
	require.True(t, is.GrossProfit.Equal(dec("3600")))
	require.True(t, is.OperatingIncome.Equal(dec("2900")))
	require.True(t, is.NetIncome.Equal(dec("2900")))
	require.True(t, is.NetIncomeParent.Equal(dec("2360")))
	require.True(t, is.NetIncomeNCI.Equal(dec("540")))
	require.True(t, is.NetIncome.Equal(is.NetIncomeParent.Add(is.NetIncomeNCI)))
}

func TestCashFlowReconcilesWithoutPrior(t *testing.T) {
	cf := BuildCashFlowStatement(trialBalance(), nil)

	require.False(t, cf.PriorPeriodAvailable)
	require.True(t, cf.NetIncome.Equal(dec("2900")))
	require.True(t, cf.DepreciationAmortization.Equal(dec("300")))
	require.True(t, cf.CashAtEndOfPeriod.Equal(dec("7500")))
	require.True(t, cf.CashAtBeginningOfPeriod.IsZero())
	require.True(t, cf.NetChangeInCash.Equal(dec("7500")))
	require.True(t,
		cf.CashAtBeginningOfPeriod.Add(cf.NetChangeInCash).Equal(cf.CashAtEndOfPeriod))
}

func TestCashFlowReconcilesAgainstPrior(t *testing.T) {
	prior := trialBalance()
	cf := BuildCashFlowStatement(trialBalance(), &prior)

	require.True(t, cf.PriorPeriodAvailable)
	require.True(t, cf.NetIncome.IsZero())
	require.True(t, cf.NetChangeInCash.IsZero())
	require.True(t, cf.CashAtBeginningOfPeriod.Equal(dec("7500")))
	require.True(t, cf.CashAtEndOfPeriod.Equal(dec("7500")))
}

func TestCashFlowCountsAccountsSettledSincePrior(t *testing.T) {
	prior := consol.TrialBalance{
		RunID:     9,
		GroupID:   1,
		PeriodRef: "2025-05",
		AsOf:      time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC),
		Currency:  "USD",
		Lines: []consol.LineItem{
			line("1000", "Cash", ledger.CategoryCurrentAsset, "5000", "", true),
			line("2500", "Loan Payable", ledger.CategoryNonCurrentLiability, "-2000", "", false),
			line("3100", "Contributed Capital", ledger.CategoryContributedCapital, "-3000", "", false),
		},
	}
	// The loan was repaid in full, so the current trial balance no longer
	// carries the account at all.
	current := consol.TrialBalance{
		RunID:     10,
		GroupID:   1,
		PeriodRef: "2025-06",
		AsOf:      time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		Currency:  "USD",
		Lines: []consol.LineItem{
			line("1000", "Cash", ledger.CategoryCurrentAsset, "3000", "", true),
			line("3100", "Contributed Capital", ledger.CategoryContributedCapital, "-3000", "", false),
		},
	}

	cf := BuildCashFlowStatement(current, &prior)

	require.True(t, cf.FinancingActivities.Equal(dec("-2000")), "financing %s", cf.FinancingActivities)
	require.True(t, cf.NetChangeInCash.Equal(dec("-2000")))
	require.True(t, cf.CashAtBeginningOfPeriod.Equal(dec("5000")))
	require.True(t, cf.CashAtEndOfPeriod.Equal(dec("3000")))
	require.True(t,
		cf.CashAtBeginningOfPeriod.Add(cf.NetChangeInCash).Equal(cf.CashAtEndOfPeriod))
}

func TestEquityStatementTotalsMatchBalanceSheet(t *testing.T) {
	st := BuildEquityStatement(trialBalance(), nil)

	require.False(t, st.PriorPeriodAvailable)
	require.True(t, st.Total.Closing.Equal(dec("9000")))
	require.True(t, st.Total.Movement.Equal(st.Total.Closing), "everything is movement on a first period")

	byComponent := map[string]EquityRow{}
	for _, row := range st.Rows {
		byComponent[row.Component] = row
	}
	require.True(t, byComponent["Contributed Capital"].Closing.Equal(dec("5800")))
	require.True(t, byComponent["Other Comprehensive Income"].Closing.Equal(dec("100")))
	require.True(t, byComponent["Current Period Earnings"].Closing.Equal(dec("2360")))
	require.True(t, byComponent["Non-Controlling Interests"].Closing.Equal(dec("740")))
}

func TestReportsAreDeterministic(t *testing.T) {
	first, err := BuildBalanceSheet(trialBalance())
	require.NoError(t, err)
	second, err := BuildBalanceSheet(trialBalance())
	require.NoError(t, err)
	require.Equal(t, first, second)

	require.Equal(t, BuildIncomeStatement(trialBalance()), BuildIncomeStatement(trialBalance()))
}
