package intercompany

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu     sync.Mutex
	txs    map[int64]Transaction
	nextID int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{txs: make(map[int64]Transaction)}
}

func (m *memoryStore) Insert(ctx context.Context, in CreateInput, status MatchStatus) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	tx := Transaction{
		ID:            m.nextID,
		GroupID:       in.GroupID,
		FromCompanyID: in.FromCompanyID,
		ToCompanyID:   in.ToCompanyID,
		Type:          in.Type,
		Date:          in.Date,
		Amount:        in.Amount,
		Currency:      in.Currency,
		Status:        status,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	m.txs[tx.ID] = tx
	return tx, nil
}

func (m *memoryStore) Get(ctx context.Context, id int64) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return tx, nil
}

func (m *memoryStore) Attach(ctx context.Context, id int64, side Side, ref LedgerRef, evaluate func(Transaction) Outcome) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	if side == SideFrom {
		tx.FromRef = &ref
	} else {
		tx.ToRef = &ref
	}
	outcome := evaluate(tx)
	tx.Status = outcome.Status
	tx.VarianceAmount = outcome.Variance
	tx.VarianceExplanation = ""
	m.txs[id] = tx
	return tx, nil
}

func (m *memoryStore) SaveOutcome(ctx context.Context, id int64, status MatchStatus, variance *decimal.Decimal, explanation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return ErrTransactionNotFound
	}
	tx.Status = status
	tx.VarianceAmount = variance
	tx.VarianceExplanation = explanation
	m.txs[id] = tx
	return nil
}

func (m *memoryStore) ListForPeriod(ctx context.Context, groupID int64, start, end time.Time) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Transaction
	for _, tx := range m.txs {
		if tx.GroupID == groupID && !tx.Date.Before(start) && !tx.Date.After(end) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func createInput(amount string) CreateInput {
	return CreateInput{
		GroupID:       1,
		FromCompanyID: 2,
		ToCompanyID:   1,
		Type:          TypeManagementFee,
		Date:          time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		Amount:        dec(amount),
		Currency:      "USD",
	}
}

func TestCreateRejectsSelfReferential(t *testing.T) {
	svc := NewService(newMemoryStore(), nil, nil)
	in := createInput("1000")
	in.ToCompanyID = in.FromCompanyID
	_, err := svc.Create(context.Background(), in)
	require.ErrorIs(t, err, ErrSelfReferential)
}

func TestMatchingLifecycle(t *testing.T) {
	svc := NewService(newMemoryStore(), nil, nil)
	ctx := context.Background()

	tx, err := svc.Create(ctx, createInput("1000"))
	require.NoError(t, err)
	require.Equal(t, StatusUnmatched, tx.Status)

	tx, err = svc.AttachLedgerRef(ctx, tx.ID, SideFrom, LedgerRef{JournalEntryID: 100, Amount: dec("1000"), Currency: "USD"})
	require.NoError(t, err)
	require.Equal(t, StatusUnmatched, tx.Status, "one recorded side stays unmatched")

	tx, err = svc.AttachLedgerRef(ctx, tx.ID, SideTo, LedgerRef{JournalEntryID: 200, Amount: dec("1000"), Currency: "USD"})
	require.NoError(t, err)
	require.Equal(t, StatusMatched, tx.Status)
	require.Nil(t, tx.VarianceAmount)
	require.True(t, tx.RequiresElimination())
	require.False(t, tx.HasVariance())
}

func TestMatchingWithinToleranceMatches(t *testing.T) {
	svc := NewService(newMemoryStore(), nil, nil)
	ctx := context.Background()

	tx, err := svc.Create(ctx, createInput("1000"))
	require.NoError(t, err)
	_, err = svc.AttachLedgerRef(ctx, tx.ID, SideFrom, LedgerRef{JournalEntryID: 100, Amount: dec("1000.00")})
	require.NoError(t, err)
	tx, err = svc.AttachLedgerRef(ctx, tx.ID, SideTo, LedgerRef{JournalEntryID: 200, Amount: dec("1000.01")})
	require.NoError(t, err)
	require.Equal(t, StatusMatched, tx.Status)
}

func TestAttachLedgerRefConcurrentSidesConverge(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	tx, err := svc.Create(ctx, createInput("1000"))
	require.NoError(t, err)

	// Both companies book the same dealing around the same time. Whichever
	// attach lands second must see the other side's reference.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.AttachLedgerRef(ctx, tx.ID, SideFrom, LedgerRef{JournalEntryID: 100, Amount: dec("1000"), Currency: "USD"})
		errs <- err
	}()
	go func() {
		defer wg.Done()
		_, err := svc.AttachLedgerRef(ctx, tx.ID, SideTo, LedgerRef{JournalEntryID: 200, Amount: dec("1000"), Currency: "USD"})
		errs <- err
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := svc.Get(ctx, tx.ID)
	require.NoError(t, err)
	require.NotNil(t, got.FromRef)
	require.NotNil(t, got.ToRef)
	require.Equal(t, StatusMatched, got.Status)
	require.True(t, got.RequiresElimination())
}

func TestVarianceApprovalFlow(t *testing.T) {
	svc := NewService(newMemoryStore(), nil, nil)
	ctx := context.Background()

	tx, err := svc.Create(ctx, createInput("1000"))
	require.NoError(t, err)
	_, err = svc.AttachLedgerRef(ctx, tx.ID, SideFrom, LedgerRef{JournalEntryID: 100, Amount: dec("1000")})
	require.NoError(t, err)
	tx, err = svc.AttachLedgerRef(ctx, tx.ID, SideTo, LedgerRef{JournalEntryID: 200, Amount: dec("940")})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyMatched, tx.Status)
	require.NotNil(t, tx.VarianceAmount)
	require.True(t, tx.VarianceAmount.Equal(dec("-60")))
	require.True(t, tx.HasVariance())
	require.False(t, tx.RequiresElimination())

	_, err = svc.ApproveVariance(ctx, tx.ID, "   ", 9)
	require.ErrorIs(t, err, ErrExplanationRequired)

	tx, err = svc.ApproveVariance(ctx, tx.ID, "withholding tax deducted at source", 9)
	require.NoError(t, err)
	require.Equal(t, StatusVarianceApproved, tx.Status)
	require.True(t, tx.RequiresElimination())

	// Already approved: the manual transition only applies to partial matches.
	_, err = svc.ApproveVariance(ctx, tx.ID, "again", 9)
	require.ErrorIs(t, err, ErrNotPartiallyMatched)
}

func TestApproveVarianceRejectsMatched(t *testing.T) {
	svc := NewService(newMemoryStore(), nil, nil)
	ctx := context.Background()
	tx, err := svc.Create(ctx, createInput("500"))
	require.NoError(t, err)
	_, err = svc.ApproveVariance(ctx, tx.ID, "no variance exists", 9)
	require.ErrorIs(t, err, ErrNotPartiallyMatched)
}

func TestReconciliationListsOpenItems(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	unmatched, err := svc.Create(ctx, createInput("10000"))
	require.NoError(t, err)
	_, err = svc.AttachLedgerRef(ctx, unmatched.ID, SideFrom, LedgerRef{JournalEntryID: 300, Amount: dec("10000")})
	require.NoError(t, err)

	matched, err := svc.Create(ctx, createInput("1000"))
	require.NoError(t, err)
	_, err = svc.AttachLedgerRef(ctx, matched.ID, SideFrom, LedgerRef{JournalEntryID: 301, Amount: dec("1000")})
	require.NoError(t, err)
	_, err = svc.AttachLedgerRef(ctx, matched.ID, SideTo, LedgerRef{JournalEntryID: 302, Amount: dec("1000")})
	require.NoError(t, err)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	open, err := svc.Reconciliation(ctx, 1, start, end)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, unmatched.ID, open[0].ID)
	require.Equal(t, StatusUnmatched, open[0].Status)
}

func TestEvaluateRecomputesAfterApproval(t *testing.T) {
	svc := NewService(newMemoryStore(), nil, nil)
	ctx := context.Background()

	tx, err := svc.Create(ctx, createInput("1000"))
	require.NoError(t, err)
	_, err = svc.AttachLedgerRef(ctx, tx.ID, SideFrom, LedgerRef{JournalEntryID: 100, Amount: dec("1000")})
	require.NoError(t, err)
	_, err = svc.AttachLedgerRef(ctx, tx.ID, SideTo, LedgerRef{JournalEntryID: 200, Amount: dec("900")})
	require.NoError(t, err)
	_, err = svc.ApproveVariance(ctx, tx.ID, "freight absorbed by buyer", 9)
	require.NoError(t, err)

	// The counterparty corrects its booking: matching is recomputed and the
	// stale approval is discarded.
	tx, err = svc.AttachLedgerRef(ctx, tx.ID, SideTo, LedgerRef{JournalEntryID: 201, Amount: dec("1000")})
	require.NoError(t, err)
	require.Equal(t, StatusMatched, tx.Status)
	require.Empty(t, tx.VarianceExplanation)
}
