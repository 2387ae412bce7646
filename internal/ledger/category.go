package ledger

import "fmt"

// Category classifies an account within the group chart of accounts.
// The set is closed: section assignment in reports switches exhaustively
// over these values so an unmapped category is a programming error, not
// a silently dropped line.
type Category string

const (
	CategoryCurrentAsset             Category = "CURRENT_ASSET"
	CategoryNonCurrentAsset          Category = "NON_CURRENT_ASSET"
	CategoryFixedAsset               Category = "FIXED_ASSET"
	CategoryIntangibleAsset          Category = "INTANGIBLE_ASSET"
	CategoryCurrentLiability         Category = "CURRENT_LIABILITY"
	CategoryNonCurrentLiability      Category = "NON_CURRENT_LIABILITY"
	CategoryContributedCapital       Category = "CONTRIBUTED_CAPITAL"
	CategoryRetainedEarnings         Category = "RETAINED_EARNINGS"
	CategoryOtherComprehensiveIncome Category = "OTHER_COMPREHENSIVE_INCOME"
	CategoryTreasuryStock            Category = "TREASURY_STOCK"
	CategoryOperatingRevenue         Category = "OPERATING_REVENUE"
	CategoryOtherRevenue             Category = "OTHER_REVENUE"
	CategoryCostOfGoodsSold          Category = "COST_OF_GOODS_SOLD"
	CategoryOperatingExpense         Category = "OPERATING_EXPENSE"
	CategoryDepreciationAmortization Category = "DEPRECIATION_AMORTIZATION"
	CategoryInterestExpense          Category = "INTEREST_EXPENSE"
	CategoryOtherExpense             Category = "OTHER_EXPENSE"
	CategoryTaxExpense               Category = "TAX_EXPENSE"
)

// Categories lists every member of the closed taxonomy in chart order.
var Categories = []Category{
	CategoryCurrentAsset,
	CategoryNonCurrentAsset,
	CategoryFixedAsset,
	CategoryIntangibleAsset,
	CategoryCurrentLiability,
	CategoryNonCurrentLiability,
	CategoryContributedCapital,
	CategoryRetainedEarnings,
	CategoryOtherComprehensiveIncome,
	CategoryTreasuryStock,
	CategoryOperatingRevenue,
	CategoryOtherRevenue,
	CategoryCostOfGoodsSold,
	CategoryOperatingExpense,
	CategoryDepreciationAmortization,
	CategoryInterestExpense,
	CategoryOtherExpense,
	CategoryTaxExpense,
}

// Valid reports whether the category belongs to the taxonomy.
func (c Category) Valid() bool {
	switch c {
	case CategoryCurrentAsset, CategoryNonCurrentAsset, CategoryFixedAsset, CategoryIntangibleAsset,
		CategoryCurrentLiability, CategoryNonCurrentLiability,
		CategoryContributedCapital, CategoryRetainedEarnings, CategoryOtherComprehensiveIncome, CategoryTreasuryStock,
		CategoryOperatingRevenue, CategoryOtherRevenue,
		CategoryCostOfGoodsSold, CategoryOperatingExpense, CategoryDepreciationAmortization,
		CategoryInterestExpense, CategoryOtherExpense, CategoryTaxExpense:
		return true
	}
	return false
}

// IsAsset reports whether the category sits on the asset side of the balance sheet.
func (c Category) IsAsset() bool {
	switch c {
	case CategoryCurrentAsset, CategoryNonCurrentAsset, CategoryFixedAsset, CategoryIntangibleAsset:
		return true
	}
	return false
}

// IsLiability reports whether the category is a liability.
func (c Category) IsLiability() bool {
	return c == CategoryCurrentLiability || c == CategoryNonCurrentLiability
}

// IsEquity reports whether the category is an equity component.
func (c Category) IsEquity() bool {
	switch c {
	case CategoryContributedCapital, CategoryRetainedEarnings, CategoryOtherComprehensiveIncome, CategoryTreasuryStock:
		return true
	}
	return false
}

// IsRevenue reports whether the category carries revenue balances.
func (c Category) IsRevenue() bool {
	return c == CategoryOperatingRevenue || c == CategoryOtherRevenue
}

// IsExpense reports whether the category carries expense balances.
func (c Category) IsExpense() bool {
	switch c {
	case CategoryCostOfGoodsSold, CategoryOperatingExpense, CategoryDepreciationAmortization,
		CategoryInterestExpense, CategoryOtherExpense, CategoryTaxExpense:
		return true
	}
	return false
}

// IsBalanceSheet reports whether balances of the category translate at the closing rate.
func (c Category) IsBalanceSheet() bool {
	return c.IsAsset() || c.IsLiability() || c.IsEquity()
}

// IsIncomeStatement reports whether balances of the category translate at the average rate.
func (c Category) IsIncomeStatement() bool {
	return c.IsRevenue() || c.IsExpense()
}

// String implements fmt.Stringer.
func (c Category) String() string {
	return string(c)
}

// ParseCategory converts a stored value back into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("ledger: unknown account category %q", s)
	}
	return c, nil
}
