package audithttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/consolidate/internal/audit"
	"github.com/odyssey-erp/consolidate/internal/platform/httpx"
)

type timelineService interface {
	Timeline(ctx context.Context, filters audit.Filters) (audit.Result, error)
}

// Handler serves the audit trail read API.
type Handler struct {
	logger  *slog.Logger
	service timelineService
}

// NewHandler returns an audit HTTP handler.
func NewHandler(logger *slog.Logger, service timelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger.With(slog.String("component", "audit_http")), service: service}
}

// MountRoutes registers the audit routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/audit/timeline", h.timeline)
}

type timelineEntry struct {
	At       time.Time      `json:"at"`
	ActorID  int64          `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
}

type timelineResponse struct {
	Entries    []timelineEntry `json:"entries"`
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	Total      int             `json:"total"`
	TotalPages int             `json:"total_pages"`
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}

	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "failed to load audit timeline")
		return
	}

	resp := timelineResponse{
		Entries:    make([]timelineEntry, 0, len(result.Entries)),
		Page:       result.Paging.Page,
		PerPage:    result.Paging.PerPage,
		Total:      result.Paging.Total,
		TotalPages: result.Paging.TotalPages,
	}
	for _, e := range result.Entries {
		resp.Entries = append(resp.Entries, timelineEntry{
			At:       e.At,
			ActorID:  e.ActorID,
			Action:   e.Action,
			Entity:   e.Entity,
			EntityID: e.EntityID,
			Meta:     e.Meta,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func parseFilters(r *http.Request) (audit.Filters, error) {
	q := r.URL.Query()
	filters := audit.Filters{
		Entity: q.Get("entity"),
		Action: q.Get("action"),
	}
	var err error
	if filters.From, err = parseDate(q.Get("from")); err != nil {
		return audit.Filters{}, err
	}
	if filters.To, err = parseDate(q.Get("to")); err != nil {
		return audit.Filters{}, err
	}
	if raw := q.Get("actor_id"); raw != "" {
		if filters.ActorID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return audit.Filters{}, err
		}
	}
	if raw := q.Get("page"); raw != "" {
		if filters.Page, err = strconv.Atoi(raw); err != nil {
			return audit.Filters{}, err
		}
	}
	if raw := q.Get("per_page"); raw != "" {
		if filters.PageSize, err = strconv.Atoi(raw); err != nil {
			return audit.Filters{}, err
		}
	}
	return filters, nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}
