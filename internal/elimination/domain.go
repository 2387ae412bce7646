package elimination

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/consolidate/internal/intercompany"
	"github.com/odyssey-erp/consolidate/internal/ledger"
)

// AccountRef identifies an account in the group chart of accounts.
type AccountRef struct {
	Number   string
	Name     string
	Category ledger.Category
}

// Pair is one debit/credit account pairing an elimination nets against.
type Pair struct {
	Debit  AccountRef
	Credit AccountRef
}

// Rule maps a transaction type to its elimination treatment. Rules are
// read-only reference data per group.
type Rule struct {
	Type intercompany.TransactionType
	// Balance nets the balance-sheet exposure: payable against receivable,
	// or contributed capital against the parent's investment.
	Balance *Pair
	// Flow nets the income-statement exposure: revenue against expense,
	// interest income against interest expense, dividend income against the
	// subsidiary's distribution.
	Flow *Pair
	// EliminateUnrealizedProfit applies the group-standard margin to strip
	// profit still sitting in intra-group inventory.
	EliminateUnrealizedProfit bool
	Profit                    *Pair
	// ProfitMargin is the fraction of the transaction amount treated as
	// unrealized profit when EliminateUnrealizedProfit is set.
	ProfitMargin *decimal.Decimal
}

// Validate checks the rule is internally coherent.
func (r Rule) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("elimination: unknown transaction type %q", r.Type)
	}
	if r.Balance == nil && r.Flow == nil {
		return errors.New("elimination: rule needs at least one account pair")
	}
	if r.EliminateUnrealizedProfit && (r.Profit == nil || r.ProfitMargin == nil) {
		return errors.New("elimination: unrealized profit rule needs profit pair and margin")
	}
	return nil
}

// RuleSet indexes rules by transaction type.
type RuleSet map[intercompany.TransactionType]Rule

// Entry is one side of an elimination adjustment. The net effect on a signed,
// debit-positive balance is Debit minus Credit.
type Entry struct {
	Account AccountRef
	Debit   decimal.Decimal
	Credit  decimal.Decimal
	Memo    string
}

// Adjustment is the balanced set of entries eliminating one transaction.
type Adjustment struct {
	TransactionID int64
	Type          intercompany.TransactionType
	Entries       []Entry
}

// Net returns debits minus credits across entries; zero for a valid adjustment.
func (a Adjustment) Net() decimal.Decimal {
	net := decimal.Zero
	for _, e := range a.Entries {
		net = net.Add(e.Debit).Sub(e.Credit)
	}
	return net
}

// ErrRuleNotFound indicates a transaction requiring elimination has no
// configured treatment. Fatal to a consolidation run: ignoring it would leave
// double-counted balances in the consolidated figures.
var ErrRuleNotFound = errors.New("elimination: no rule for transaction type")
