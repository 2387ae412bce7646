package intercompany

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists intercompany transactions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs an intercompany repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const insertQuery = `
INSERT INTO intercompany_transactions
  (group_id, from_company_id, to_company_id, tx_type, tx_date, amount, currency, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
RETURNING id, created_at, updated_at`

// Insert stores a new transaction.
func (r *Repository) Insert(ctx context.Context, in CreateInput, status MatchStatus) (Transaction, error) {
	if r == nil || r.pool == nil {
		return Transaction{}, fmt.Errorf("intercompany repo not initialised")
	}
	tx := Transaction{
		GroupID:       in.GroupID,
		FromCompanyID: in.FromCompanyID,
		ToCompanyID:   in.ToCompanyID,
		Type:          in.Type,
		Date:          in.Date,
		Amount:        in.Amount,
		Currency:      in.Currency,
		Status:        status,
	}
	err := r.pool.QueryRow(ctx, insertQuery,
		in.GroupID, in.FromCompanyID, in.ToCompanyID, string(in.Type), in.Date,
		in.Amount.String(), in.Currency, string(status),
	).Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

const getQuery = `
SELECT id, group_id, from_company_id, to_company_id, tx_type, tx_date,
       amount::text, currency,
       from_journal_id, from_amount::text, from_currency,
       to_journal_id, to_amount::text, to_currency,
       status, variance_amount::text, COALESCE(variance_explanation, ''),
       created_at, updated_at
FROM intercompany_transactions
WHERE id = $1`

// Get fetches a transaction by id.
func (r *Repository) Get(ctx context.Context, id int64) (Transaction, error) {
	if r == nil || r.pool == nil {
		return Transaction{}, fmt.Errorf("intercompany repo not initialised")
	}
	tx, err := scanTransaction(r.pool.QueryRow(ctx, getQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	return tx, nil
}

const lockTransactionQuery = getQuery + `
FOR UPDATE`

// Attach stores the journal reference for one side together with the outcome
// evaluated from the stored row. The row lock serialises concurrent attaches,
// so the later writer always evaluates both references.
func (r *Repository) Attach(ctx context.Context, id int64, side Side, ref LedgerRef, evaluate func(Transaction) Outcome) (Transaction, error) {
	if r == nil || r.pool == nil {
		return Transaction{}, fmt.Errorf("intercompany repo not initialised")
	}
	dbtx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, err
	}
	defer func() { _ = dbtx.Rollback(ctx) }()

	tx, err := scanTransaction(dbtx.QueryRow(ctx, lockTransactionQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}

	refQuery := `UPDATE intercompany_transactions SET from_journal_id = $2, from_amount = $3, from_currency = $4, updated_at = NOW() WHERE id = $1`
	if side == SideTo {
		refQuery = `UPDATE intercompany_transactions SET to_journal_id = $2, to_amount = $3, to_currency = $4, updated_at = NOW() WHERE id = $1`
	}
	if _, err := dbtx.Exec(ctx, refQuery, id, ref.JournalEntryID, ref.Amount.String(), ref.Currency); err != nil {
		return Transaction{}, err
	}
	stored := ref
	if side == SideFrom {
		tx.FromRef = &stored
	} else {
		tx.ToRef = &stored
	}

	outcome := evaluate(tx)
	var varText *string
	if outcome.Variance != nil {
		s := outcome.Variance.String()
		varText = &s
	}
	if _, err := dbtx.Exec(ctx, saveOutcomeQuery, id, string(outcome.Status), varText, ""); err != nil {
		return Transaction{}, err
	}
	if err := dbtx.Commit(ctx); err != nil {
		return Transaction{}, err
	}

	tx.Status = outcome.Status
	tx.VarianceAmount = outcome.Variance
	tx.VarianceExplanation = ""
	return tx, nil
}

const saveOutcomeQuery = `
UPDATE intercompany_transactions
SET status = $2, variance_amount = $3, variance_explanation = NULLIF($4, ''), updated_at = NOW()
WHERE id = $1`

// SaveOutcome stores a computed or approved matching outcome.
func (r *Repository) SaveOutcome(ctx context.Context, id int64, status MatchStatus, variance *decimal.Decimal, explanation string) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("intercompany repo not initialised")
	}
	var varText *string
	if variance != nil {
		s := variance.String()
		varText = &s
	}
	tag, err := r.pool.Exec(ctx, saveOutcomeQuery, id, string(status), varText, explanation)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

const listForPeriodQuery = `
SELECT id, group_id, from_company_id, to_company_id, tx_type, tx_date,
       amount::text, currency,
       from_journal_id, from_amount::text, from_currency,
       to_journal_id, to_amount::text, to_currency,
       status, variance_amount::text, COALESCE(variance_explanation, ''),
       created_at, updated_at
FROM intercompany_transactions
WHERE group_id = $1 AND tx_date >= $2 AND tx_date <= $3
ORDER BY tx_date, id`

// ListForPeriod returns transactions dated inside the window.
func (r *Repository) ListForPeriod(ctx context.Context, groupID int64, start, end time.Time) ([]Transaction, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("intercompany repo not initialised")
	}
	rows, err := r.pool.Query(ctx, listForPeriodQuery, groupID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txs []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (Transaction, error) {
	var (
		tx           Transaction
		txType       string
		status       string
		amountText   string
		fromJournal  *int64
		fromAmount   *string
		fromCurrency *string
		toJournal    *int64
		toAmount     *string
		toCurrency   *string
		varianceText *string
	)
	err := row.Scan(
		&tx.ID, &tx.GroupID, &tx.FromCompanyID, &tx.ToCompanyID, &txType, &tx.Date,
		&amountText, &tx.Currency,
		&fromJournal, &fromAmount, &fromCurrency,
		&toJournal, &toAmount, &toCurrency,
		&status, &varianceText, &tx.VarianceExplanation,
		&tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return Transaction{}, err
	}
	tx.Type = TransactionType(txType)
	tx.Status = MatchStatus(status)
	if tx.Amount, err = decimal.NewFromString(amountText); err != nil {
		return Transaction{}, fmt.Errorf("intercompany: parse amount: %w", err)
	}
	if fromJournal != nil && fromAmount != nil {
		amt, err := decimal.NewFromString(*fromAmount)
		if err != nil {
			return Transaction{}, fmt.Errorf("intercompany: parse from amount: %w", err)
		}
		ref := LedgerRef{JournalEntryID: *fromJournal, Amount: amt}
		if fromCurrency != nil {
			ref.Currency = *fromCurrency
		}
		tx.FromRef = &ref
	}
	if toJournal != nil && toAmount != nil {
		amt, err := decimal.NewFromString(*toAmount)
		if err != nil {
			return Transaction{}, fmt.Errorf("intercompany: parse to amount: %w", err)
		}
		ref := LedgerRef{JournalEntryID: *toJournal, Amount: amt}
		if toCurrency != nil {
			ref.Currency = *toCurrency
		}
		tx.ToRef = &ref
	}
	if varianceText != nil {
		v, err := decimal.NewFromString(*varianceText)
		if err != nil {
			return Transaction{}, fmt.Errorf("intercompany: parse variance: %w", err)
		}
		tx.VarianceAmount = &v
	}
	return tx, nil
}
