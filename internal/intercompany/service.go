package intercompany

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/consolidate/internal/shared"
)

// AuditAction identifies audit log entries emitted on variance approval.
const AuditAction = "ic_variance_approve"

// Store describes the persistence operations required by the service.
type Store interface {
	Insert(ctx context.Context, in CreateInput, status MatchStatus) (Transaction, error)
	Get(ctx context.Context, id int64) (Transaction, error)
	// Attach writes one side's journal reference and the outcome evaluated
	// from the stored row in a single atomic step, so two sides attaching
	// concurrently cannot overwrite each other's evidence.
	Attach(ctx context.Context, id int64, side Side, ref LedgerRef, evaluate func(Transaction) Outcome) (Transaction, error)
	SaveOutcome(ctx context.Context, id int64, status MatchStatus, variance *decimal.Decimal, explanation string) error
	ListForPeriod(ctx context.Context, groupID int64, start, end time.Time) ([]Transaction, error)
}

// AuditRecorder captures audit events.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the intercompany transaction lifecycle: unilateral creation,
// ledger side attachment with re-matching, and reviewer variance approval.
type Service struct {
	store     Store
	audit     AuditRecorder
	logger    *slog.Logger
	tolerance decimal.Decimal
	now       func() time.Time
}

// NewService constructs the matching service.
func NewService(store Store, audit AuditRecorder, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		audit:     audit,
		logger:    logger,
		tolerance: DefaultTolerance,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithTolerance overrides the matching tolerance.
func (s *Service) WithTolerance(tol decimal.Decimal) {
	if tol.Sign() > 0 {
		s.tolerance = tol
	}
}

// WithClock overrides the clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Create records a new transaction from either side. It starts Unmatched
// until the opposing ledger reference arrives.
func (s *Service) Create(ctx context.Context, in CreateInput) (Transaction, error) {
	if s == nil || s.store == nil {
		return Transaction{}, errors.New("intercompany: service not initialised")
	}
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	return s.store.Insert(ctx, in, StatusUnmatched)
}

// Get fetches a single transaction.
func (s *Service) Get(ctx context.Context, id int64) (Transaction, error) {
	return s.store.Get(ctx, id)
}

// AttachLedgerRef stores the journal reference recorded by one side and
// re-evaluates the matching outcome. A previously approved variance is
// recomputed: fresh evidence supersedes the approval.
func (s *Service) AttachLedgerRef(ctx context.Context, id int64, side Side, ref LedgerRef) (Transaction, error) {
	if side != SideFrom && side != SideTo {
		return Transaction{}, fmt.Errorf("intercompany: unknown side %q", side)
	}
	if ref.JournalEntryID <= 0 {
		return Transaction{}, errors.New("intercompany: journal entry reference required")
	}
	tx, err := s.store.Attach(ctx, id, side, ref, func(stored Transaction) Outcome {
		return Evaluate(stored, s.tolerance)
	})
	if err != nil {
		return Transaction{}, err
	}
	tx.UpdatedAt = s.now()
	s.log().Info("ledger side attached",
		slog.Int64("transaction_id", id),
		slog.String("side", string(side)),
		slog.String("status", string(tx.Status)))
	return tx, nil
}

// ApproveVariance transitions a PartiallyMatched transaction to
// VarianceApproved. The explanation must be non-empty; this is the only
// manually triggered transition in the lifecycle.
func (s *Service) ApproveVariance(ctx context.Context, id int64, explanation string, actorID int64) (Transaction, error) {
	explanation = strings.TrimSpace(explanation)
	if explanation == "" {
		return Transaction{}, ErrExplanationRequired
	}
	tx, err := s.store.Get(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if tx.Status != StatusPartiallyMatched {
		return Transaction{}, ErrNotPartiallyMatched
	}
	if err := s.store.SaveOutcome(ctx, id, StatusVarianceApproved, tx.VarianceAmount, explanation); err != nil {
		return Transaction{}, err
	}
	tx.Status = StatusVarianceApproved
	tx.VarianceExplanation = explanation
	tx.UpdatedAt = s.now()
	s.recordAudit(ctx, tx, actorID, explanation)
	return tx, nil
}

// ListForPeriod returns every transaction dated inside the period window.
func (s *Service) ListForPeriod(ctx context.Context, groupID int64, start, end time.Time) ([]Transaction, error) {
	return s.store.ListForPeriod(ctx, groupID, start, end)
}

// Reconciliation returns the transactions a consolidation run cannot
// eliminate: unmatched records and unapproved variances. These are surfaced
// for manual review, never silently netted out.
func (s *Service) Reconciliation(ctx context.Context, groupID int64, start, end time.Time) ([]Transaction, error) {
	txs, err := s.store.ListForPeriod(ctx, groupID, start, end)
	if err != nil {
		return nil, err
	}
	open := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if !tx.RequiresElimination() {
			open = append(open, tx)
		}
	}
	return open, nil
}

func (s *Service) recordAudit(ctx context.Context, tx Transaction, actorID int64, explanation string) {
	if s == nil || s.audit == nil {
		return
	}
	variance := ""
	if tx.VarianceAmount != nil {
		variance = tx.VarianceAmount.String()
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   AuditAction,
		Entity:   "intercompany_transactions",
		EntityID: fmt.Sprintf("%d", tx.ID),
		Meta: map[string]any{
			"group_id":        tx.GroupID,
			"from_company_id": tx.FromCompanyID,
			"to_company_id":   tx.ToCompanyID,
			"type":            string(tx.Type),
			"variance":        variance,
			"explanation":     explanation,
		},
		At: s.now(),
	})
}

func (s *Service) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger.With(slog.String("component", "ic_matcher"))
	}
	return slog.Default().With(slog.String("component", "ic_matcher"))
}
