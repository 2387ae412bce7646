package consol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/consolidate/internal/elimination"
	"github.com/odyssey-erp/consolidate/internal/fx"
	"github.com/odyssey-erp/consolidate/internal/intercompany"
	"github.com/odyssey-erp/consolidate/internal/ledger"
)

// netTolerance bounds the rounding drift the assembled trial balance may
// carry before the run is declared inconsistent.
var netTolerance = decimal.NewFromFloat(0.01)

// MatchSource pins the intercompany matching statuses a run observes at start
// time. Matching keeps running concurrently, but a run never sees mid-run
// mutations.
type MatchSource interface {
	ListForPeriod(ctx context.Context, groupID int64, start, end time.Time) ([]intercompany.Transaction, error)
}

// RuleSource loads the group's elimination rule table.
type RuleSource interface {
	RulesForGroup(ctx context.Context, groupID int64) (elimination.RuleSet, error)
}

// StepSink receives the append-only log of pipeline step outcomes.
type StepSink interface {
	Record(ctx context.Context, name string, status StepStatus, detail string)
}

// Orchestrator drives the consolidation pipeline for one run: fetch member
// balances, translate, eliminate, attribute NCI, assemble.
type Orchestrator struct {
	balances    ledger.BalanceSource
	periods     ledger.PeriodResolver
	translator  *fx.Translator
	matches     MatchSource
	rules       RuleSource
	logger      *slog.Logger
	parallelism int
}

// NewOrchestrator wires the pipeline dependencies. All collaborators are
// injected; there is no ambient state.
func NewOrchestrator(
	balances ledger.BalanceSource,
	periods ledger.PeriodResolver,
	translator *fx.Translator,
	matches MatchSource,
	rules RuleSource,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		balances:    balances,
		periods:     periods,
		translator:  translator,
		matches:     matches,
		rules:       rules,
		logger:      logger,
		parallelism: 4,
	}
}

// WithParallelism bounds the translation fan-out.
func (o *Orchestrator) WithParallelism(n int) {
	if n > 0 {
		o.parallelism = n
	}
}

// Outcome is the result of a successful pipeline execution.
type Outcome struct {
	TrialBalance TrialBalance
	// OpenItems lists the unmatched and unapproved-variance transactions
	// excluded from elimination, surfaced for manual reconciliation.
	OpenItems []intercompany.Transaction
}

// Execute runs steps 1-5 for the given run. Any error is fatal to the run;
// nothing partially built is returned.
func (o *Orchestrator) Execute(ctx context.Context, run Run, reportingCurrency string, members []MemberCompany, steps StepSink) (Outcome, error) {
	if o == nil || o.balances == nil || o.periods == nil || o.translator == nil {
		return Outcome{}, errors.New("consol: orchestrator not initialised")
	}
	reportingCurrency = strings.ToUpper(strings.TrimSpace(reportingCurrency))
	if reportingCurrency == "" {
		return Outcome{}, errors.New("consol: reporting currency required")
	}

	period, err := step(ctx, steps, "resolve_period", func() (ledger.Period, error) {
		return o.periods.Resolve(ctx, run.PeriodRef)
	})
	if err != nil {
		return Outcome{}, err
	}

	included, err := step(ctx, steps, "load_members", func() ([]MemberCompany, error) {
		filtered, err := lineByLineMembers(members)
		if err != nil {
			return nil, err
		}
		if len(filtered) == 0 {
			return nil, fmt.Errorf("consol: group %d has no line-by-line members", run.GroupID)
		}
		return filtered, nil
	})
	if err != nil {
		return Outcome{}, err
	}

	translated, err := step(ctx, steps, "translate_balances", func() ([][]ledger.AccountBalance, error) {
		return o.translateMembers(ctx, run, reportingCurrency, included)
	})
	if err != nil {
		return Outcome{}, err
	}

	elim, err := step(ctx, steps, "apply_eliminations", func() (elimination.Result, error) {
		txs, err := o.matches.ListForPeriod(ctx, run.GroupID, period.Start, period.End)
		if err != nil {
			return elimination.Result{}, err
		}
		rules, err := o.rules.RulesForGroup(ctx, run.GroupID)
		if err != nil {
			return elimination.Result{}, err
		}
		return elimination.NewEngine(rules, o.logger).Build(txs)
	})
	if err != nil {
		return Outcome{}, err
	}

	tb, err := step(ctx, steps, "assemble_trial_balance", func() (TrialBalance, error) {
		return assemble(run, reportingCurrency, included, translated, elim.Adjustments)
	})
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{TrialBalance: tb, OpenItems: elim.Open}, nil
}

// translateMembers loads and translates member trial balances concurrently.
// Members do not share mutable state, so the fan-out is safe; the reduction
// steps that follow observe the complete snapshot.
func (o *Orchestrator) translateMembers(ctx context.Context, run Run, reportingCurrency string, members []MemberCompany) ([][]ledger.AccountBalance, error) {
	translated := make([][]ledger.AccountBalance, len(members))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)
	for i, member := range members {
		i, member := i, member
		g.Go(func() error {
			balances, err := o.balances.TrialBalance(ctx, member.CompanyID, run.PeriodRef)
			if err != nil {
				return fmt.Errorf("company %d: %w", member.CompanyID, err)
			}
			for _, bal := range balances {
				if err := bal.Validate(); err != nil {
					return fmt.Errorf("company %d account %s: %w", member.CompanyID, bal.AccountNumber, err)
				}
			}
			out, err := o.translator.Translate(ctx, fx.Input{
				CompanyID:          member.CompanyID,
				FunctionalCurrency: member.FunctionalCurrency,
				ReportingCurrency:  reportingCurrency,
				AsOf:               run.AsOf,
				PeriodRef:          run.PeriodRef,
				Balances:           balances,
			})
			if err != nil {
				return err
			}
			translated[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return translated, nil
}

// lineByLineMembers validates every member and keeps the ones consolidated
// line by line. Equity and cost method members enter only through the
// investment lines already on the parent's books.
func lineByLineMembers(members []MemberCompany) ([]MemberCompany, error) {
	included := make([]MemberCompany, 0, len(members))
	for _, m := range members {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if m.Method.LineByLine() {
			included = append(included, m)
		}
	}
	return included, nil
}

type accountLine struct {
	number   string
	name     string
	category ledger.Category
	cash     bool
	parent   decimal.Decimal
	nci      decimal.Decimal
	hasNCI   bool
}

// assemble sums translated member balances per account, applies elimination
// adjustments, and splits partially owned contributions between parent and
// NCI. NCI is computed on the members' translated statutory balances;
// elimination adjustments are carried in full by the controlling interest.
func assemble(run Run, currency string, members []MemberCompany, translated [][]ledger.AccountBalance, adjustments []elimination.Adjustment) (TrialBalance, error) {
	hundred := decimal.NewFromInt(100)
	accounts := make(map[string]*accountLine)

	line := func(number, name string, category ledger.Category, cash bool) *accountLine {
		acc, ok := accounts[number]
		if !ok {
			acc = &accountLine{number: number, name: name, category: category, cash: cash}
			accounts[number] = acc
		}
		if acc.name == "" {
			acc.name = name
		}
		acc.cash = acc.cash || cash
		return acc
	}

	for i, member := range members {
		share := member.Ownership.Div(hundred)
		for _, bal := range translated[i] {
			acc := line(bal.AccountNumber, bal.AccountName, bal.Category, bal.Cash)
			if member.minorityHeld() {
				parentPortion := bal.Balance.Mul(share).Round(2)
				acc.parent = acc.parent.Add(parentPortion)
				acc.nci = acc.nci.Add(bal.Balance.Sub(parentPortion))
				acc.hasNCI = true
			} else {
				acc.parent = acc.parent.Add(bal.Balance)
			}
		}
	}

	for _, adj := range adjustments {
		for _, entry := range adj.Entries {
			acc := line(entry.Account.Number, entry.Account.Name, entry.Account.Category, false)
			acc.parent = acc.parent.Add(entry.Debit).Sub(entry.Credit)
		}
	}

	numbers := make([]string, 0, len(accounts))
	for number := range accounts {
		numbers = append(numbers, number)
	}
	sort.Strings(numbers)

	lines := make([]LineItem, 0, len(numbers))
	net := decimal.Zero
	for _, number := range numbers {
		acc := accounts[number]
		item := LineItem{
			AccountNumber: acc.number,
			AccountName:   acc.name,
			Category:      acc.category,
			Balance:       acc.parent,
			Cash:          acc.cash,
		}
		if acc.hasNCI {
			nci := acc.nci
			item.NCI = &nci
		}
		lines = append(lines, item)
		net = net.Add(item.Total())
	}

	if net.Abs().Cmp(netTolerance) > 0 {
		return TrialBalance{}, fmt.Errorf("%w: net %s", ErrTrialBalanceNotBalanced, net)
	}

	return TrialBalance{
		RunID:     run.ID,
		GroupID:   run.GroupID,
		PeriodRef: run.PeriodRef,
		AsOf:      run.AsOf,
		Currency:  currency,
		Lines:     lines,
	}, nil
}

// step runs fn and records its outcome in the append-only run log.
func step[T any](ctx context.Context, sink StepSink, name string, fn func() (T, error)) (T, error) {
	out, err := fn()
	if sink != nil {
		if err != nil {
			sink.Record(ctx, name, StepFailed, err.Error())
		} else {
			sink.Record(ctx, name, StepOK, "")
		}
	}
	return out, err
}
