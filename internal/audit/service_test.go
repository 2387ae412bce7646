package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	entries []Entry

	lastFilters Filters
	lastLimit   int
	lastOffset  int
}

func (f *fakeRepo) Timeline(_ context.Context, filters Filters, limit, offset int) ([]Entry, error) {
	f.lastFilters = filters
	f.lastLimit = limit
	f.lastOffset = offset
	if offset >= len(f.entries) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.entries) {
		end = len(f.entries)
	}
	return f.entries[offset:end], nil
}

func (f *fakeRepo) Count(context.Context, Filters) (int, error) {
	return len(f.entries), nil
}

func seededRepo(n int) *fakeRepo {
	repo := &fakeRepo{}
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		repo.entries = append(repo.entries, Entry{
			At:       base.Add(time.Duration(i) * time.Hour),
			Action:   "intercompany.created",
			Entity:   "intercompany_transaction",
			EntityID: "1",
		})
	}
	return repo
}

func TestTimelinePagesResults(t *testing.T) {
	repo := seededRepo(45)
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), Filters{Page: 2, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, result.Entries, 20)
	require.Equal(t, 20, repo.lastOffset)
	require.Equal(t, 45, result.Paging.Total)
	require.Equal(t, 3, result.Paging.TotalPages)
}

func TestTimelineDefaultsWindowAndPageSize(t *testing.T) {
	repo := seededRepo(1)
	svc := NewService(repo)

	before := time.Now()
	_, err := svc.Timeline(context.Background(), Filters{})
	require.NoError(t, err)
	require.Equal(t, defaultPageSize, repo.lastLimit)
	require.False(t, repo.lastFilters.To.Before(before))
	require.WithinDuration(t, repo.lastFilters.To.Add(-defaultWindow), repo.lastFilters.From, time.Second)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := seededRepo(1)
	svc := NewService(repo)

	_, err := svc.Timeline(context.Background(), Filters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, maxPageSize, repo.lastLimit)
}

func TestTimelineRejectsInvertedWindow(t *testing.T) {
	svc := NewService(seededRepo(0))

	_, err := svc.Timeline(context.Background(), Filters{
		From: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
}
