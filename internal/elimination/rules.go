package elimination

import (
	"github.com/odyssey-erp/consolidate/internal/intercompany"
	"github.com/odyssey-erp/consolidate/internal/ledger"
)

// Standard group chart accounts used by the default rule table.
var (
	icReceivable     = AccountRef{Number: "1150", Name: "Intercompany Receivable", Category: ledger.CategoryCurrentAsset}
	icPayable        = AccountRef{Number: "2150", Name: "Intercompany Payable", Category: ledger.CategoryCurrentLiability}
	icRevenue        = AccountRef{Number: "4900", Name: "Intercompany Revenue", Category: ledger.CategoryOperatingRevenue}
	icExpense        = AccountRef{Number: "5900", Name: "Intercompany Expense", Category: ledger.CategoryOperatingExpense}
	icLoanReceivable = AccountRef{Number: "1650", Name: "Intercompany Loan Receivable", Category: ledger.CategoryNonCurrentAsset}
	icLoanPayable    = AccountRef{Number: "2650", Name: "Intercompany Loan Payable", Category: ledger.CategoryNonCurrentLiability}
	icInterestIncome = AccountRef{Number: "4950", Name: "Intercompany Interest Income", Category: ledger.CategoryOtherRevenue}
	icInterestExp    = AccountRef{Number: "6150", Name: "Intercompany Interest Expense", Category: ledger.CategoryInterestExpense}
	icDividendIncome = AccountRef{Number: "4960", Name: "Dividend Income from Subsidiaries", Category: ledger.CategoryOtherRevenue}
	icDividendDist   = AccountRef{Number: "3450", Name: "Dividends Distributed", Category: ledger.CategoryRetainedEarnings}
	icInvestment     = AccountRef{Number: "1750", Name: "Investment in Subsidiaries", Category: ledger.CategoryNonCurrentAsset}
	icContributedCap = AccountRef{Number: "3100", Name: "Contributed Capital", Category: ledger.CategoryContributedCapital}
)

// DefaultRules returns the standard treatment per transaction type against
// the group chart of accounts. Groups with bespoke charts load their rules
// from the rules table instead.
func DefaultRules() RuleSet {
	flowAndBalance := Rule{
		Flow:    &Pair{Debit: icRevenue, Credit: icExpense},
		Balance: &Pair{Debit: icPayable, Credit: icReceivable},
	}
	rules := RuleSet{
		intercompany.TypeSalePurchase:   flowAndBalance,
		intercompany.TypeManagementFee:  flowAndBalance,
		intercompany.TypeCostAllocation: flowAndBalance,
		intercompany.TypeRoyalty:        flowAndBalance,
		intercompany.TypeLoan: {
			Balance: &Pair{Debit: icLoanPayable, Credit: icLoanReceivable},
			Flow:    &Pair{Debit: icInterestIncome, Credit: icInterestExp},
		},
		intercompany.TypeDividend: {
			Flow: &Pair{Debit: icDividendIncome, Credit: icDividendDist},
		},
		intercompany.TypeCapitalContribution: {
			Balance: &Pair{Debit: icContributedCap, Credit: icInvestment},
		},
	}
	for t, r := range rules {
		r.Type = t
		rules[t] = r
	}
	return rules
}
