package consol

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/consolidate/internal/intercompany"
	"github.com/odyssey-erp/consolidate/internal/ledger"
	"github.com/odyssey-erp/consolidate/internal/platform/db"
)

// Repository provides persistence for consolidation runs and their results.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a consolidation repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Group fetches minimal metadata for a consolidation group.
func (r *Repository) Group(ctx context.Context, groupID int64) (string, string, error) {
	if r == nil || r.pool == nil {
		return "", "", fmt.Errorf("consol repo not initialised")
	}
	const query = `SELECT name, reporting_currency FROM consol_groups WHERE id = $1`
	var name, ccy string
	if err := r.pool.QueryRow(ctx, query, groupID).Scan(&name, &ccy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", ErrGroupNotFound
		}
		return "", "", err
	}
	return name, ccy, nil
}

// ListGroupIDs enumerates every consolidation group.
func (r *Repository) ListGroupIDs(ctx context.Context) ([]int64, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("consol repo not initialised")
	}
	const query = `SELECT id FROM consol_groups ORDER BY id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const membersQuery = `
SELECT company_id, group_id, name, ownership_pct::text, functional_currency, method
FROM consol_group_members
WHERE group_id = $1 AND enabled
ORDER BY company_id`

// Members returns enabled members for the group.
func (r *Repository) Members(ctx context.Context, groupID int64) ([]MemberCompany, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("consol repo not initialised")
	}
	rows, err := r.pool.Query(ctx, membersQuery, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []MemberCompany
	for rows.Next() {
		var (
			m             MemberCompany
			ownershipText string
			method        string
		)
		if err := rows.Scan(&m.CompanyID, &m.GroupID, &m.Name, &ownershipText, &m.FunctionalCurrency, &method); err != nil {
			return nil, err
		}
		if m.Ownership, err = decimal.NewFromString(ownershipText); err != nil {
			return nil, fmt.Errorf("consol: parse ownership: %w", err)
		}
		m.Method = Method(method)
		members = append(members, m)
	}
	return members, rows.Err()
}

const insertRunQuery = `
INSERT INTO consolidation_runs (group_id, period_ref, as_of, status, created_at)
VALUES ($1, $2, $3, $4, NOW())
RETURNING id, created_at`

// InsertRun stores a new pending run.
func (r *Repository) InsertRun(ctx context.Context, in StartInput) (Run, error) {
	if r == nil || r.pool == nil {
		return Run{}, fmt.Errorf("consol repo not initialised")
	}
	run := Run{
		GroupID:   in.GroupID,
		PeriodRef: in.PeriodRef,
		AsOf:      in.AsOf,
		Status:    RunPending,
	}
	err := r.pool.QueryRow(ctx, insertRunQuery, in.GroupID, in.PeriodRef, in.AsOf, string(RunPending)).
		Scan(&run.ID, &run.CreatedAt)
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

const getRunQuery = `
SELECT id, group_id, period_ref, as_of, status, COALESCE(error, ''), created_at, started_at, finished_at
FROM consolidation_runs
WHERE id = $1`

// GetRun fetches a run by id.
func (r *Repository) GetRun(ctx context.Context, runID int64) (Run, error) {
	if r == nil || r.pool == nil {
		return Run{}, fmt.Errorf("consol repo not initialised")
	}
	var (
		run    Run
		status string
	)
	err := r.pool.QueryRow(ctx, getRunQuery, runID).Scan(
		&run.ID, &run.GroupID, &run.PeriodRef, &run.AsOf, &status, &run.Error,
		&run.CreatedAt, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, err
	}
	run.Status = RunStatus(status)
	return run, nil
}

const activeRunQuery = `
SELECT id, group_id, period_ref, as_of, status, COALESCE(error, ''), created_at, started_at, finished_at
FROM consolidation_runs
WHERE group_id = $1 AND period_ref = $2 AND status IN ('PENDING', 'IN_PROGRESS')
ORDER BY id DESC
LIMIT 1`

// ActiveRun returns the non-terminal run for (group, period) when one exists.
func (r *Repository) ActiveRun(ctx context.Context, groupID int64, periodRef string) (Run, bool, error) {
	if r == nil || r.pool == nil {
		return Run{}, false, fmt.Errorf("consol repo not initialised")
	}
	var (
		run    Run
		status string
	)
	err := r.pool.QueryRow(ctx, activeRunQuery, groupID, periodRef).Scan(
		&run.ID, &run.GroupID, &run.PeriodRef, &run.AsOf, &status, &run.Error,
		&run.CreatedAt, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, false, nil
		}
		return Run{}, false, err
	}
	run.Status = RunStatus(status)
	return run, true, nil
}

const transitionRunQuery = `
UPDATE consolidation_runs
SET status = $3,
    error = NULLIF($4, ''),
    started_at = CASE WHEN $3 = 'IN_PROGRESS' THEN NOW() ELSE started_at END,
    finished_at = CASE WHEN $3 IN ('COMPLETED', 'FAILED', 'CANCELLED') THEN NOW() ELSE finished_at END
WHERE id = $1 AND status = $2`

// TransitionRun applies a guarded status transition. A zero-row update means
// another transition won the race; the state machine is one-directional so
// the caller must not retry.
func (r *Repository) TransitionRun(ctx context.Context, runID int64, from, to RunStatus, errMsg string) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("consol repo not initialised")
	}
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	tag, err := r.pool.Exec(ctx, transitionRunQuery, runID, string(from), string(to), errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s -> %s for run %d", ErrInvalidTransition, from, to, runID)
	}
	return nil
}

// AppendStep records one pipeline step outcome.
func (r *Repository) AppendStep(ctx context.Context, step Step) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("consol repo not initialised")
	}
	const query = `INSERT INTO consolidation_run_steps (run_id, seq, name, status, detail, occurred_at) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`
	_, err := r.pool.Exec(ctx, query, step.RunID, step.Seq, step.Name, string(step.Status), step.Detail, step.At)
	return err
}

// SaveResult stores the trial balance lines and the open reconciliation
// snapshot of a run in one transaction.
func (r *Repository) SaveResult(ctx context.Context, tb TrialBalance, open []intercompany.Transaction) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("consol repo not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const headerQuery = `
INSERT INTO consolidated_trial_balances (run_id, group_id, period_ref, as_of, currency)
VALUES ($1, $2, $3, $4, $5)`
		if _, err := tx.Exec(ctx, headerQuery, tb.RunID, tb.GroupID, tb.PeriodRef, tb.AsOf, tb.Currency); err != nil {
			return err
		}
		const lineQuery = `
INSERT INTO consolidated_tb_lines (run_id, position, account_number, account_name, category, balance, nci, cash)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		for i, line := range tb.Lines {
			var nci *string
			if line.NCI != nil {
				s := line.NCI.String()
				nci = &s
			}
			if _, err := tx.Exec(ctx, lineQuery,
				tb.RunID, i, line.AccountNumber, line.AccountName, string(line.Category),
				line.Balance.String(), nci, line.Cash,
			); err != nil {
				return err
			}
		}
		const openQuery = `
INSERT INTO consolidation_open_items (run_id, transaction_id, from_company_id, to_company_id, tx_type, amount, currency, status, variance_amount)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
		for _, item := range open {
			var variance *string
			if item.VarianceAmount != nil {
				s := item.VarianceAmount.String()
				variance = &s
			}
			if _, err := tx.Exec(ctx, openQuery,
				tb.RunID, item.ID, item.FromCompanyID, item.ToCompanyID, string(item.Type),
				item.Amount.String(), item.Currency, string(item.Status), variance,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

const trialBalanceQuery = `
SELECT h.run_id, h.group_id, h.period_ref, h.as_of, h.currency,
       l.account_number, l.account_name, l.category, l.balance::text, l.nci::text, l.cash
FROM consolidated_trial_balances h
JOIN consolidated_tb_lines l ON l.run_id = h.run_id
WHERE h.run_id = $1
ORDER BY l.position`

// GetTrialBalance loads the stored trial balance of a completed run.
func (r *Repository) GetTrialBalance(ctx context.Context, runID int64) (TrialBalance, error) {
	if r == nil || r.pool == nil {
		return TrialBalance{}, fmt.Errorf("consol repo not initialised")
	}
	rows, err := r.pool.Query(ctx, trialBalanceQuery, runID)
	if err != nil {
		return TrialBalance{}, err
	}
	defer rows.Close()

	var tb TrialBalance
	for rows.Next() {
		var (
			line        LineItem
			category    string
			balanceText string
			nciText     *string
		)
		if err := rows.Scan(
			&tb.RunID, &tb.GroupID, &tb.PeriodRef, &tb.AsOf, &tb.Currency,
			&line.AccountNumber, &line.AccountName, &category, &balanceText, &nciText, &line.Cash,
		); err != nil {
			return TrialBalance{}, err
		}
		line.Category = ledger.Category(category)
		if line.Balance, err = decimal.NewFromString(balanceText); err != nil {
			return TrialBalance{}, fmt.Errorf("consol: parse balance: %w", err)
		}
		if nciText != nil {
			nci, err := decimal.NewFromString(*nciText)
			if err != nil {
				return TrialBalance{}, fmt.Errorf("consol: parse nci: %w", err)
			}
			line.NCI = &nci
		}
		tb.Lines = append(tb.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return TrialBalance{}, err
	}
	if tb.RunID == 0 {
		return TrialBalance{}, ErrRunNotFound
	}
	return tb, nil
}

const priorRunQuery = `
SELECT id
FROM consolidation_runs
WHERE group_id = $1 AND period_ref < $2 AND status = 'COMPLETED'
ORDER BY period_ref DESC, id DESC
LIMIT 1`

// PriorTrialBalance returns the group's most recent completed trial balance
// for a period before the given one, or nil when none exists. Period refs
// (YYYY-MM) order lexicographically.
func (r *Repository) PriorTrialBalance(ctx context.Context, groupID int64, beforePeriodRef string) (*TrialBalance, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("consol repo not initialised")
	}
	var runID int64
	if err := r.pool.QueryRow(ctx, priorRunQuery, groupID, beforePeriodRef).Scan(&runID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	tb, err := r.GetTrialBalance(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &tb, nil
}

const openItemsQuery = `
SELECT transaction_id, from_company_id, to_company_id, tx_type, amount::text, currency, status, variance_amount::text
FROM consolidation_open_items
WHERE run_id = $1
ORDER BY transaction_id`

// OpenItems loads the reconciliation snapshot captured by a run.
func (r *Repository) OpenItems(ctx context.Context, runID int64) ([]intercompany.Transaction, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("consol repo not initialised")
	}
	rows, err := r.pool.Query(ctx, openItemsQuery, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []intercompany.Transaction
	for rows.Next() {
		var (
			item         intercompany.Transaction
			txType       string
			amountText   string
			status       string
			varianceText *string
		)
		if err := rows.Scan(&item.ID, &item.FromCompanyID, &item.ToCompanyID, &txType, &amountText, &item.Currency, &status, &varianceText); err != nil {
			return nil, err
		}
		item.Type = intercompany.TransactionType(txType)
		item.Status = intercompany.MatchStatus(status)
		if item.Amount, err = decimal.NewFromString(amountText); err != nil {
			return nil, fmt.Errorf("consol: parse open item amount: %w", err)
		}
		if varianceText != nil {
			v, err := decimal.NewFromString(*varianceText)
			if err != nil {
				return nil, fmt.Errorf("consol: parse open item variance: %w", err)
			}
			item.VarianceAmount = &v
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
