// Package consolhttp exposes the consolidation run API.
package consolhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/consolidate/internal/consol"
	"github.com/odyssey-erp/consolidate/internal/consol/reports"
	"github.com/odyssey-erp/consolidate/internal/intercompany"
	"github.com/odyssey-erp/consolidate/internal/platform/httpx"
)

type consolService interface {
	StartRun(ctx context.Context, in consol.StartInput) (consol.Run, error)
	GetRun(ctx context.Context, runID int64) (consol.Run, error)
	Cancel(ctx context.Context, runID int64) error
	GetConsolidatedTrialBalance(ctx context.Context, runID int64) (consol.TrialBalance, error)
	TrialBalanceWithPrior(ctx context.Context, runID int64) (consol.TrialBalance, *consol.TrialBalance, error)
	OpenItems(ctx context.Context, runID int64) ([]intercompany.Transaction, error)
}

// RunEnqueuer hands a pending run to the background worker.
type RunEnqueuer interface {
	EnqueueRun(ctx context.Context, runID int64) error
}

// Handler wires the consolidation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  consolService
	enqueuer RunEnqueuer
	validate *validator.Validate
}

// NewHandler constructs a consolidation HTTP handler.
func NewHandler(logger *slog.Logger, service consolService, enqueuer RunEnqueuer) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		enqueuer: enqueuer,
		validate: validator.New(),
	}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/consolidation", func(r chi.Router) {
		r.With(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))).
			Post("/runs", h.startRun)
		r.Route("/runs/{id}", func(r chi.Router) {
			r.Get("/", h.getRun)
			r.Post("/cancel", h.cancelRun)
			r.Get("/trial-balance", h.trialBalance)
			r.Get("/open-items", h.openItems)
			r.Route("/reports", func(r chi.Router) {
				r.Get("/balance-sheet", h.balanceSheet)
				r.Get("/income-statement", h.incomeStatement)
				r.Get("/cash-flow", h.cashFlow)
				r.Get("/equity", h.equityStatement)
			})
		})
	})
}

type startRunRequest struct {
	GroupID   int64  `json:"group_id" validate:"required,gt=0"`
	PeriodRef string `json:"period_ref" validate:"required"`
	AsOf      string `json:"as_of" validate:"required,datetime=2006-01-02"`
}

type runResponse struct {
	ID         int64      `json:"id"`
	GroupID    int64      `json:"group_id"`
	PeriodRef  string     `json:"period_ref"`
	AsOf       time.Time  `json:"as_of"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func toRunResponse(run consol.Run) runResponse {
	return runResponse{
		ID:         run.ID,
		GroupID:    run.GroupID,
		PeriodRef:  run.PeriodRef,
		AsOf:       run.AsOf,
		Status:     string(run.Status),
		Error:      run.Error,
		CreatedAt:  run.CreatedAt,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
}

type trialBalanceLine struct {
	AccountNumber string  `json:"account_number"`
	AccountName   string  `json:"account_name"`
	Category      string  `json:"category"`
	Balance       string  `json:"balance"`
	NCI           *string `json:"nci,omitempty"`
	Cash          bool    `json:"cash,omitempty"`
}

type trialBalanceResponse struct {
	RunID     int64              `json:"run_id"`
	GroupID   int64              `json:"group_id"`
	PeriodRef string             `json:"period_ref"`
	AsOf      time.Time          `json:"as_of"`
	Currency  string             `json:"currency"`
	Lines     []trialBalanceLine `json:"lines"`
}

func toTrialBalanceResponse(tb consol.TrialBalance) trialBalanceResponse {
	out := trialBalanceResponse{
		RunID:     tb.RunID,
		GroupID:   tb.GroupID,
		PeriodRef: tb.PeriodRef,
		AsOf:      tb.AsOf,
		Currency:  tb.Currency,
		Lines:     make([]trialBalanceLine, 0, len(tb.Lines)),
	}
	for _, line := range tb.Lines {
		dto := trialBalanceLine{
			AccountNumber: line.AccountNumber,
			AccountName:   line.AccountName,
			Category:      string(line.Category),
			Balance:       line.Balance.StringFixed(2),
			Cash:          line.Cash,
		}
		if line.NCI != nil {
			nci := line.NCI.StringFixed(2)
			dto.NCI = &nci
		}
		out.Lines = append(out.Lines, dto)
	}
	return out
}

func (h *Handler) startRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	asOf, err := time.Parse("2006-01-02", req.AsOf)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
		return
	}

	run, err := h.service.StartRun(r.Context(), consol.StartInput{
		GroupID:   req.GroupID,
		PeriodRef: req.PeriodRef,
		AsOf:      asOf,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if run.Status == consol.RunPending && h.enqueuer != nil {
		if err := h.enqueuer.EnqueueRun(r.Context(), run.ID); err != nil {
			h.logger.Error("enqueue consolidation run",
				slog.Int64("run_id", run.ID), slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable",
				"run created but not scheduled; retry the request")
			return
		}
	}
	httpx.JSON(w, http.StatusAccepted, toRunResponse(run))
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	run, err := h.service.GetRun(r.Context(), runID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRunResponse(run))
}

func (h *Handler) cancelRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	if err := h.service.Cancel(r.Context(), runID); err != nil {
		h.respondError(w, r, err)
		return
	}
	run, err := h.service.GetRun(r.Context(), runID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRunResponse(run))
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	tb, err := h.service.GetConsolidatedTrialBalance(r.Context(), runID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTrialBalanceResponse(tb))
}

type openItemResponse struct {
	ID             int64   `json:"id"`
	FromCompanyID  int64   `json:"from_company_id"`
	ToCompanyID    int64   `json:"to_company_id"`
	Type           string  `json:"type"`
	Amount         string  `json:"amount"`
	Currency       string  `json:"currency"`
	Status         string  `json:"status"`
	VarianceAmount *string `json:"variance_amount,omitempty"`
}

func (h *Handler) openItems(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	items, err := h.service.OpenItems(r.Context(), runID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]openItemResponse, 0, len(items))
	for _, item := range items {
		dto := openItemResponse{
			ID:            item.ID,
			FromCompanyID: item.FromCompanyID,
			ToCompanyID:   item.ToCompanyID,
			Type:          string(item.Type),
			Amount:        item.Amount.StringFixed(2),
			Currency:      item.Currency,
			Status:        string(item.Status),
		}
		if item.VarianceAmount != nil {
			v := item.VarianceAmount.StringFixed(2)
			dto.VarianceAmount = &v
		}
		out = append(out, dto)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	tb, err := h.service.GetConsolidatedTrialBalance(r.Context(), runID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	bs, err := reports.BuildBalanceSheet(tb)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bs)
}

func (h *Handler) incomeStatement(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	tb, err := h.service.GetConsolidatedTrialBalance(r.Context(), runID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reports.BuildIncomeStatement(tb))
}

func (h *Handler) cashFlow(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	tb, prior, err := h.service.TrialBalanceWithPrior(r.Context(), runID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reports.BuildCashFlowStatement(tb, prior))
}

func (h *Handler) equityStatement(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	tb, prior, err := h.service.TrialBalanceWithPrior(r.Context(), runID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reports.BuildEquityStatement(tb, prior))
}

func (h *Handler) runID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "run id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var notBalanced *reports.BalanceSheetNotBalancedError
	switch {
	case errors.Is(err, consol.ErrRunNotFound), errors.Is(err, consol.ErrGroupNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, consol.ErrRunNotCancellable), errors.Is(err, consol.ErrRunNotCompleted):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &notBalanced):
		h.logger.Error("balance sheet identity broken", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Inconsistent Run Data", err.Error())
	default:
		h.logger.Error("consolidation request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
