// Package jobs wires the background task queue: consolidation run execution
// and the scheduled reconciliation sweep.
package jobs

import (
	jobmetrics "github.com/odyssey-erp/consolidate/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskConsolidationRun executes one pending consolidation run.
	TaskConsolidationRun = "consol:run"
	// TaskReconciliationSweep surveys open intercompany items per group.
	TaskReconciliationSweep = "ic:reconciliation_sweep"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)
