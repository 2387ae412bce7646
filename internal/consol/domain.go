package consol

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/consolidate/internal/ledger"
)

// Method enumerates how a member company enters the consolidation.
type Method string

const (
	// MethodFullConsolidation consolidates line by line with an NCI split.
	MethodFullConsolidation Method = "FULL_CONSOLIDATION"
	// MethodEquity carries the investment as one line with equity pickup on
	// the parent's books; the member's accounts are not consolidated.
	MethodEquity Method = "EQUITY_METHOD"
	// MethodCost carries the investment at cost on the parent's books.
	MethodCost Method = "COST_METHOD"
	// MethodVariableInterestEntity consolidates per control assessment,
	// line by line regardless of ownership percentage.
	MethodVariableInterestEntity Method = "VARIABLE_INTEREST_ENTITY"
)

// Valid reports whether the method is recognised.
func (m Method) Valid() bool {
	switch m {
	case MethodFullConsolidation, MethodEquity, MethodCost, MethodVariableInterestEntity:
		return true
	}
	return false
}

// LineByLine reports whether the member's accounts are aggregated into the
// consolidated trial balance.
func (m Method) LineByLine() bool {
	return m == MethodFullConsolidation || m == MethodVariableInterestEntity
}

// MemberCompany describes one company inside a consolidation group. Member
// records are immutable for the duration of a run; changes apply to future
// runs only.
type MemberCompany struct {
	CompanyID          int64
	GroupID            int64
	Name               string
	Ownership          decimal.Decimal // percentage, 0-100
	FunctionalCurrency string
	Method             Method
}

// Validate rejects malformed member records before they can enter a run.
func (m MemberCompany) Validate() error {
	if m.CompanyID <= 0 {
		return errors.New("consol: member company id required")
	}
	if m.Ownership.Sign() < 0 || m.Ownership.Cmp(decimal.NewFromInt(100)) > 0 {
		return fmt.Errorf("consol: ownership %s%% outside 0-100 for company %d", m.Ownership, m.CompanyID)
	}
	if strings.TrimSpace(m.FunctionalCurrency) == "" {
		return fmt.Errorf("consol: functional currency required for company %d", m.CompanyID)
	}
	if !m.Method.Valid() {
		return fmt.Errorf("consol: unknown consolidation method %q for company %d", m.Method, m.CompanyID)
	}
	return nil
}

// minorityHeld reports whether an NCI portion exists for the member.
func (m MemberCompany) minorityHeld() bool {
	return m.Method == MethodFullConsolidation && m.Ownership.Cmp(decimal.NewFromInt(100)) < 0
}

// RunStatus captures the lifecycle of a consolidation run.
type RunStatus string

const (
	// RunPending indicates the run is created but not started.
	RunPending RunStatus = "PENDING"
	// RunInProgress indicates the pipeline is executing.
	RunInProgress RunStatus = "IN_PROGRESS"
	// RunCompleted indicates the trial balance is built and validated.
	RunCompleted RunStatus = "COMPLETED"
	// RunFailed indicates a fatal step failed.
	RunFailed RunStatus = "FAILED"
	// RunCancelled indicates the run was aborted before it started.
	RunCancelled RunStatus = "CANCELLED"
)

// Terminal reports whether the status is final. There are no retries from a
// terminal state; the retry is a new run.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// CanTransition enforces the one-directional state machine.
func (s RunStatus) CanTransition(to RunStatus) bool {
	switch s {
	case RunPending:
		return to == RunInProgress || to == RunCancelled
	case RunInProgress:
		return to == RunCompleted || to == RunFailed
	}
	return false
}

// Run is one consolidation of a group for a period.
type Run struct {
	ID         int64
	GroupID    int64
	PeriodRef  string
	AsOf       time.Time
	Status     RunStatus
	Error      string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// StepStatus marks the outcome of one pipeline step.
type StepStatus string

const (
	StepOK     StepStatus = "OK"
	StepFailed StepStatus = "FAILED"
)

// Step is one entry of the append-only run log, kept so partial failures stay
// diagnosable after the fact.
type Step struct {
	RunID  int64
	Seq    int
	Name   string
	Status StepStatus
	Detail string
	At     time.Time
}

// LineItem is one account of the consolidated trial balance. Balance carries
// the parent-attributable portion; NCI, present only for accounts touched by
// partially owned fully consolidated members, carries the non-controlling
// portion. Balance plus NCI reproduces the pre-split total.
type LineItem struct {
	AccountNumber string
	AccountName   string
	Category      ledger.Category
	Balance       decimal.Decimal
	NCI           *decimal.Decimal
	Cash          bool
}

// Total returns the pre-split balance of the line.
func (l LineItem) Total() decimal.Decimal {
	if l.NCI == nil {
		return l.Balance
	}
	return l.Balance.Add(*l.NCI)
}

// TrialBalance is the immutable output of a completed run: one netted,
// eliminated line per distinct account across the group, ordered by account
// number.
type TrialBalance struct {
	RunID     int64
	GroupID   int64
	PeriodRef string
	AsOf      time.Time
	Currency  string
	Lines     []LineItem
}

// StartInput carries the parameters of StartRun.
type StartInput struct {
	GroupID   int64
	PeriodRef string
	AsOf      time.Time
}

// Validate rejects malformed run requests.
func (in StartInput) Validate() error {
	if in.GroupID <= 0 {
		return errors.New("consol: group id required")
	}
	if strings.TrimSpace(in.PeriodRef) == "" {
		return errors.New("consol: period ref required")
	}
	if in.AsOf.IsZero() {
		return errors.New("consol: as-of date required")
	}
	return nil
}

var (
	// ErrRunNotFound occurs when a run lookup misses.
	ErrRunNotFound = errors.New("consol: run not found")
	// ErrGroupNotFound occurs when the consolidation group is missing.
	ErrGroupNotFound = errors.New("consol: group not found")
	// ErrRunNotCompleted guards trial balance access before completion.
	ErrRunNotCompleted = errors.New("consol: run not completed")
	// ErrRunNotCancellable rejects cancelling a run that already started.
	ErrRunNotCancellable = errors.New("consol: only pending runs can be cancelled")
	// ErrInvalidTransition indicates a state machine violation, usually a
	// concurrent transition racing this one.
	ErrInvalidTransition = errors.New("consol: invalid run status transition")
	// ErrTrialBalanceNotBalanced indicates the assembled trial balance does
	// not net to zero. Never auto-corrected.
	ErrTrialBalanceNotBalanced = errors.New("consol: trial balance does not net to zero")
)
