// Package intercompanyhttp exposes the intercompany matching API.
package intercompanyhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/consolidate/internal/intercompany"
	"github.com/odyssey-erp/consolidate/internal/platform/httpx"
)

type matcherService interface {
	Create(ctx context.Context, in intercompany.CreateInput) (intercompany.Transaction, error)
	Get(ctx context.Context, id int64) (intercompany.Transaction, error)
	AttachLedgerRef(ctx context.Context, id int64, side intercompany.Side, ref intercompany.LedgerRef) (intercompany.Transaction, error)
	ApproveVariance(ctx context.Context, id int64, explanation string, actorID int64) (intercompany.Transaction, error)
	Reconciliation(ctx context.Context, groupID int64, start, end time.Time) ([]intercompany.Transaction, error)
}

// Handler wires the intercompany transaction endpoints.
type Handler struct {
	logger   *slog.Logger
	service  matcherService
	validate *validator.Validate
}

// NewHandler constructs an intercompany HTTP handler.
func NewHandler(logger *slog.Logger, service matcherService) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/intercompany", func(r chi.Router) {
		r.Post("/transactions", h.create)
		r.Get("/transactions/{id}", h.get)
		r.Post("/transactions/{id}/ledger-refs", h.attachLedgerRef)
		r.Post("/transactions/{id}/approve-variance", h.approveVariance)
		r.Get("/reconciliation", h.reconciliation)
	})
}

type createRequest struct {
	GroupID       int64  `json:"group_id" validate:"required,gt=0"`
	FromCompanyID int64  `json:"from_company_id" validate:"required,gt=0"`
	ToCompanyID   int64  `json:"to_company_id" validate:"required,gt=0"`
	Type          string `json:"type" validate:"required"`
	Date          string `json:"date" validate:"required,datetime=2006-01-02"`
	Amount        string `json:"amount" validate:"required"`
	Currency      string `json:"currency" validate:"required,len=3"`
}

type ledgerRefRequest struct {
	Side           string `json:"side" validate:"required,oneof=FROM TO"`
	JournalEntryID int64  `json:"journal_entry_id" validate:"required,gt=0"`
	Amount         string `json:"amount" validate:"required"`
	Currency       string `json:"currency" validate:"omitempty,len=3"`
}

type approveVarianceRequest struct {
	Explanation string `json:"explanation" validate:"required"`
	ActorID     int64  `json:"actor_id" validate:"required,gt=0"`
}

type ledgerRefResponse struct {
	JournalEntryID int64  `json:"journal_entry_id"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency,omitempty"`
}

type transactionResponse struct {
	ID                  int64              `json:"id"`
	GroupID             int64              `json:"group_id"`
	FromCompanyID       int64              `json:"from_company_id"`
	ToCompanyID         int64              `json:"to_company_id"`
	Type                string             `json:"type"`
	Date                string             `json:"date"`
	Amount              string             `json:"amount"`
	Currency            string             `json:"currency"`
	Status              string             `json:"status"`
	FromRef             *ledgerRefResponse `json:"from_ref,omitempty"`
	ToRef               *ledgerRefResponse `json:"to_ref,omitempty"`
	VarianceAmount      *string            `json:"variance_amount,omitempty"`
	VarianceExplanation string             `json:"variance_explanation,omitempty"`
}

func toLedgerRefResponse(ref *intercompany.LedgerRef) *ledgerRefResponse {
	if ref == nil {
		return nil
	}
	return &ledgerRefResponse{
		JournalEntryID: ref.JournalEntryID,
		Amount:         ref.Amount.StringFixed(2),
		Currency:       ref.Currency,
	}
}

func toTransactionResponse(tx intercompany.Transaction) transactionResponse {
	out := transactionResponse{
		ID:                  tx.ID,
		GroupID:             tx.GroupID,
		FromCompanyID:       tx.FromCompanyID,
		ToCompanyID:         tx.ToCompanyID,
		Type:                string(tx.Type),
		Date:                tx.Date.Format("2006-01-02"),
		Amount:              tx.Amount.StringFixed(2),
		Currency:            tx.Currency,
		Status:              string(tx.Status),
		FromRef:             toLedgerRefResponse(tx.FromRef),
		ToRef:               toLedgerRefResponse(tx.ToRef),
		VarianceExplanation: tx.VarianceExplanation,
	}
	if tx.VarianceAmount != nil {
		v := tx.VarianceAmount.StringFixed(2)
		out.VarianceAmount = &v
	}
	return out
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal number")
		return
	}

	in := intercompany.CreateInput{
		GroupID:       req.GroupID,
		FromCompanyID: req.FromCompanyID,
		ToCompanyID:   req.ToCompanyID,
		Type:          intercompany.TransactionType(req.Type),
		Date:          date,
		Amount:        amount,
		Currency:      req.Currency,
	}
	if err := in.Validate(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	tx, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.transactionID(w, r)
	if !ok {
		return
	}
	tx, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (h *Handler) attachLedgerRef(w http.ResponseWriter, r *http.Request) {
	id, ok := h.transactionID(w, r)
	if !ok {
		return
	}
	var req ledgerRefRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal number")
		return
	}

	tx, err := h.service.AttachLedgerRef(r.Context(), id, intercompany.Side(req.Side), intercompany.LedgerRef{
		JournalEntryID: req.JournalEntryID,
		Amount:         amount,
		Currency:       req.Currency,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (h *Handler) approveVariance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.transactionID(w, r)
	if !ok {
		return
	}
	var req approveVarianceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	tx, err := h.service.ApproveVariance(r.Context(), id, req.Explanation, req.ActorID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (h *Handler) reconciliation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	groupID, err := strconv.ParseInt(q.Get("group_id"), 10, 64)
	if err != nil || groupID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "group_id must be a positive integer")
		return
	}
	start, err := time.Parse("2006-01-02", q.Get("start"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "start must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse("2006-01-02", q.Get("end"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "end must be YYYY-MM-DD")
		return
	}

	open, err := h.service.Reconciliation(r.Context(), groupID, start, end)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]transactionResponse, 0, len(open))
	for _, tx := range open {
		out = append(out, toTransactionResponse(tx))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) transactionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "transaction id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, intercompany.ErrTransactionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, intercompany.ErrSelfReferential),
		errors.Is(err, intercompany.ErrExplanationRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, intercompany.ErrNotPartiallyMatched):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("intercompany request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
