package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/consolidate/internal/audit"
	"github.com/odyssey-erp/consolidate/internal/shared"
)

type stubTimeline struct {
	filters audit.Filters
	result  audit.Result
	err     error
}

func (s *stubTimeline) Timeline(_ context.Context, filters audit.Filters) (audit.Result, error) {
	s.filters = filters
	return s.result, s.err
}

func newTestRouter(svc timelineService) *chi.Mux {
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)
	return r
}

func TestTimelineParsesFilters(t *testing.T) {
	stub := &stubTimeline{result: audit.Result{
		Entries: []audit.Entry{{
			At:       time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC),
			ActorID:  7,
			Action:   "consolidation_run.started",
			Entity:   "consolidation_run",
			EntityID: "42",
		}},
		Paging: shared.NewPagination(2, 10, 11),
	}}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/audit/timeline?from=2025-06-01&to=2025-06-30&actor_id=7&entity=consolidation_run&page=2&per_page=10", nil)
	newTestRouter(stub).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, int64(7), stub.filters.ActorID)
	require.Equal(t, "consolidation_run", stub.filters.Entity)
	require.Equal(t, 2, stub.filters.Page)
	require.Equal(t, 10, stub.filters.PageSize)
	require.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), stub.filters.From)

	var resp timelineResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	require.Equal(t, "consolidation_run.started", resp.Entries[0].Action)
	require.Equal(t, 11, resp.Total)
	require.Equal(t, 2, resp.TotalPages)
}

func TestTimelineRejectsBadDate(t *testing.T) {
	stub := &stubTimeline{}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/audit/timeline?from=june", nil)
	newTestRouter(stub).ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}
