package reconcile

import (
	"context"
	"errors"
	"log"
	"time"

	"energy-exchange/internal/observability/metrics"
	"energy-exchange/internal/reconcile/notify"
)

const recommendedAction = "freeze trading, compare the listed counters with their records and correct the drift before reopening"

// SnapshotSource produces snapshots to check.
type SnapshotSource interface {
	Load(ctx context.Context, asset string) (Snapshot, error)
}

// Runner loads a snapshot, checks it, writes the report and alerts on drift.
type Runner struct {
	source   SnapshotSource
	asset    string
	outDir   string
	notifier notify.Notifier
	logger   *log.Logger
}

// NewRunner constructs a Runner. outDir and notifier are optional.
func NewRunner(source SnapshotSource, asset, outDir string, notifier notify.Notifier, logger *log.Logger) (*Runner, error) {
	if source == nil {
		return nil, errors.New("reconcile runner: nil source")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{source: source, asset: asset, outDir: outDir, notifier: notifier, logger: logger}, nil
}

// RunOnce performs a single reconciliation.
func (r *Runner) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()
	snapshot, err := r.source.Load(ctx, r.asset)
	if err != nil {
		metrics.ObserveReconcile("failed", time.Since(start), nil, nil)
		return Report{}, err
	}
	report := Check(snapshot)

	status := "clean"
	if !report.Clean() {
		status = "drift"
	}
	metrics.ObserveReconcile(status, time.Since(start), Checks, report.CountByCheck())

	var reportPath string
	if r.outDir != "" {
		path, err := WriteReport(r.outDir, report)
		if err != nil {
			r.logger.Printf("reconcile: write report id=%s: %v", report.ID, err)
		} else {
			reportPath = path
		}
	}

	if report.Clean() {
		r.logger.Printf("reconcile: clean id=%s checked=%d", report.ID, report.Checked)
		return report, nil
	}
	r.logger.Printf("reconcile: drift id=%s checked=%d findings=%d", report.ID, report.Checked, len(report.Findings))
	if r.notifier != nil {
		err := r.notifier.Notify(ctx, notify.AlertMessage{
			ReportID:          report.ID,
			Asset:             report.Asset,
			CheckedAt:         report.CheckedAt,
			Findings:          len(report.Findings),
			ByCheck:           report.CountByCheck(),
			ReportPath:        reportPath,
			RecommendedAction: recommendedAction,
		})
		if err != nil {
			r.logger.Printf("reconcile: notify id=%s: %v", report.ID, err)
		} else {
			metrics.IncReconcileAlert()
		}
	}
	return report, nil
}

// Run reconciles every interval until ctx is done.
func (r *Runner) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Printf("reconcile: run failed: %v", err)
			}
		}
	}
}
