package audit

import (
	"time"

	"github.com/odyssey-erp/consolidate/internal/shared"
)

// Entry is one row of the audit trail.
type Entry struct {
	At       time.Time
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
}

// Filters narrows the audit timeline. Zero-value fields are ignored.
type Filters struct {
	From     time.Time
	To       time.Time
	ActorID  int64
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// Result is one page of the timeline plus paging metadata.
type Result struct {
	Entries []Entry
	Paging  shared.Pagination
}
