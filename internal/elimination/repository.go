package elimination

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/consolidate/internal/intercompany"
	"github.com/odyssey-erp/consolidate/internal/ledger"
)

// Repository loads the per-group rule table. Rules are reference data; the
// consolidation core never writes them.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs an elimination rule repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const rulesQuery = `
SELECT tx_type,
       balance_debit_number, balance_debit_name, balance_debit_category,
       balance_credit_number, balance_credit_name, balance_credit_category,
       flow_debit_number, flow_debit_name, flow_debit_category,
       flow_credit_number, flow_credit_name, flow_credit_category,
       eliminate_unrealized_profit,
       profit_debit_number, profit_debit_name, profit_debit_category,
       profit_credit_number, profit_credit_name, profit_credit_category,
       profit_margin::text
FROM elimination_rules
WHERE group_id = $1 AND active`

// RulesForGroup loads the active rule set for a group, falling back to the
// default table when the group has no bespoke rules configured.
func (r *Repository) RulesForGroup(ctx context.Context, groupID int64) (RuleSet, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("elimination repo not initialised")
	}
	rows, err := r.pool.Query(ctx, rulesQuery, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make(RuleSet)
	for rows.Next() {
		var (
			txType     string
			balance    pairCols
			flow       pairCols
			unrealized bool
			profit     pairCols
			marginText *string
		)
		if err := rows.Scan(
			&txType,
			&balance.debitNumber, &balance.debitName, &balance.debitCategory,
			&balance.creditNumber, &balance.creditName, &balance.creditCategory,
			&flow.debitNumber, &flow.debitName, &flow.debitCategory,
			&flow.creditNumber, &flow.creditName, &flow.creditCategory,
			&unrealized,
			&profit.debitNumber, &profit.debitName, &profit.debitCategory,
			&profit.creditNumber, &profit.creditName, &profit.creditCategory,
			&marginText,
		); err != nil {
			return nil, err
		}
		rule := Rule{
			Type:                      intercompany.TransactionType(txType),
			Balance:                   balance.pair(),
			Flow:                      flow.pair(),
			EliminateUnrealizedProfit: unrealized,
			Profit:                    profit.pair(),
		}
		if marginText != nil {
			margin, err := decimal.NewFromString(*marginText)
			if err != nil {
				return nil, fmt.Errorf("elimination: parse profit margin: %w", err)
			}
			rule.ProfitMargin = &margin
		}
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		rules[rule.Type] = rule
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return DefaultRules(), nil
	}
	return rules, nil
}

type pairCols struct {
	debitNumber, debitName, debitCategory    *string
	creditNumber, creditName, creditCategory *string
}

func (p pairCols) pair() *Pair {
	if p.debitNumber == nil || p.creditNumber == nil {
		return nil
	}
	pair := &Pair{
		Debit:  AccountRef{Number: *p.debitNumber},
		Credit: AccountRef{Number: *p.creditNumber},
	}
	if p.debitName != nil {
		pair.Debit.Name = *p.debitName
	}
	if p.creditName != nil {
		pair.Credit.Name = *p.creditName
	}
	if p.debitCategory != nil {
		pair.Debit.Category = ledger.Category(*p.debitCategory)
	}
	if p.creditCategory != nil {
		pair.Credit.Category = ledger.Category(*p.creditCategory)
	}
	return pair
}
