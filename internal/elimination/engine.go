package elimination

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/consolidate/internal/intercompany"
)

// Engine turns matched intercompany transactions into balanced elimination
// adjustments. It never touches transactions that do not require elimination;
// those are returned untouched for the run's reconciliation list.
type Engine struct {
	rules  RuleSet
	logger *slog.Logger
}

// NewEngine wires the rule table.
func NewEngine(rules RuleSet, logger *slog.Logger) *Engine {
	return &Engine{rules: rules, logger: logger}
}

// Result carries the adjustments plus the transactions excluded from
// elimination.
type Result struct {
	Adjustments []Adjustment
	Open        []intercompany.Transaction
	TotalAmount decimal.Decimal
}

// Build computes elimination adjustments for every transaction that requires
// one. A requiring transaction without a rule is an error: silently skipping
// it would corrupt the consolidated balance.
func (e *Engine) Build(txs []intercompany.Transaction) (Result, error) {
	if e == nil || len(e.rules) == 0 {
		return Result{}, fmt.Errorf("elimination engine not initialised")
	}
	result := Result{
		Adjustments: make([]Adjustment, 0, len(txs)),
		Open:        make([]intercompany.Transaction, 0),
		TotalAmount: decimal.Zero,
	}
	for _, tx := range txs {
		if !tx.RequiresElimination() {
			result.Open = append(result.Open, tx)
			continue
		}
		rule, ok := e.rules[tx.Type]
		if !ok {
			return Result{}, fmt.Errorf("%w: %s (transaction %d)", ErrRuleNotFound, tx.Type, tx.ID)
		}
		adj, err := buildAdjustment(tx, rule)
		if err != nil {
			return Result{}, err
		}
		if len(adj.Entries) == 0 {
			continue
		}
		result.Adjustments = append(result.Adjustments, adj)
		result.TotalAmount = result.TotalAmount.Add(intercompany.EffectiveAmount(tx))
	}
	e.log().Info("built elimination adjustments",
		slog.Int("eliminated", len(result.Adjustments)),
		slog.Int("open", len(result.Open)),
		slog.String("total", result.TotalAmount.String()))
	return result, nil
}

func buildAdjustment(tx intercompany.Transaction, rule Rule) (Adjustment, error) {
	if err := rule.Validate(); err != nil {
		return Adjustment{}, err
	}
	amount := intercompany.EffectiveAmount(tx)
	adj := Adjustment{TransactionID: tx.ID, Type: tx.Type}

	if rule.Flow != nil {
		flowAmount := amount
		if tx.Type == intercompany.TypeLoan {
			// For loans the flow pair nets intercompany interest; the
			// transaction amount is the outstanding principal, so interest is
			// only eliminated when the recording sides supplied it.
			flowAmount = loanInterestAmount(tx)
		}
		if flowAmount.Sign() > 0 {
			adj.Entries = append(adj.Entries, pairEntries(*rule.Flow, flowAmount, memoFor(tx, "flow"))...)
		}
	}
	if rule.Balance != nil {
		adj.Entries = append(adj.Entries, pairEntries(*rule.Balance, amount, memoFor(tx, "balance"))...)
	}
	if rule.EliminateUnrealizedProfit && rule.Profit != nil && rule.ProfitMargin != nil {
		profit := amount.Mul(*rule.ProfitMargin).Round(2)
		if profit.Sign() > 0 {
			adj.Entries = append(adj.Entries, pairEntries(*rule.Profit, profit, memoFor(tx, "unrealized profit"))...)
		}
	}
	if !adj.Net().IsZero() {
		return Adjustment{}, fmt.Errorf("elimination: unbalanced adjustment for transaction %d", tx.ID)
	}
	return adj, nil
}

// loanInterestAmount derives the eliminable interest from the recorded sides:
// when both companies recorded amounts beyond the agreed principal, the
// overlap above principal is intercompany interest.
func loanInterestAmount(tx intercompany.Transaction) decimal.Decimal {
	if tx.FromRef == nil || tx.ToRef == nil {
		return decimal.Zero
	}
	from := tx.FromRef.Amount.Abs().Sub(tx.Amount)
	to := tx.ToRef.Amount.Abs().Sub(tx.Amount)
	if from.Sign() <= 0 || to.Sign() <= 0 {
		return decimal.Zero
	}
	if from.Cmp(to) < 0 {
		return from
	}
	return to
}

func pairEntries(pair Pair, amount decimal.Decimal, memo string) []Entry {
	return []Entry{
		{Account: pair.Debit, Debit: amount, Memo: memo},
		{Account: pair.Credit, Credit: amount, Memo: memo},
	}
}

func memoFor(tx intercompany.Transaction, leg string) string {
	return fmt.Sprintf("IC elimination %s %s %d -> %d", tx.Type, leg, tx.FromCompanyID, tx.ToCompanyID)
}

func (e *Engine) log() *slog.Logger {
	if e != nil && e.logger != nil {
		return e.logger.With(slog.String("component", "elimination_engine"))
	}
	return slog.Default().With(slog.String("component", "elimination_engine"))
}
