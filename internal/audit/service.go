package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/consolidate/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	defaultWindow   = 7 * 24 * time.Hour
)

// Repository reads the audit trail.
type Repository interface {
	Timeline(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error)
	Count(ctx context.Context, filters Filters) (int, error)
}

// Service coordinates timeline reads with paging and window defaults.
type Service struct {
	repo Repository
}

// NewService returns an audit timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of the audit trail. A missing window defaults to
// the last seven days ending now.
func (s *Service) Timeline(ctx context.Context, filters Filters) (Result, error) {
	if s == nil || s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	if filters.To.IsZero() {
		filters.To = time.Now()
	}
	if filters.From.IsZero() {
		filters.From = filters.To.Add(-defaultWindow)
	}
	if filters.From.After(filters.To) {
		return Result{}, fmt.Errorf("audit: window start after end")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}

	total, err := s.repo.Count(ctx, filters)
	if err != nil {
		return Result{}, err
	}
	entries, err := s.repo.Timeline(ctx, filters, pageSize, (page-1)*pageSize)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Entries: entries,
		Paging:  shared.NewPagination(page, pageSize, total),
	}, nil
}
