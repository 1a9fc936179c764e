package worker

import (
	"context"
	"fmt"

	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the periodic ledger jobs on cron specs.
type Scheduler struct {
	cron *cron.Cron
}

type ScheduleConfig struct {
	// ReconcileSpec schedules the rail balance reconciliation. Empty disables it.
	ReconcileSpec string
	// IntegritySpec schedules the balance-versus-history check. Empty disables it.
	IntegritySpec string
}

type zapCronLogger struct{}

func (zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	zap.S().Debugw("cron: "+msg, keysAndValues...)
}

func (zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	zap.S().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}

func NewScheduler(cfg ScheduleConfig, reconciler *service.BalanceReconciler, integrity *service.IntegrityService) (*Scheduler, error) {
	logger := zapCronLogger{}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	if cfg.ReconcileSpec != "" && reconciler != nil {
		if _, err := c.AddFunc(cfg.ReconcileSpec, func() { runReconcileAll(reconciler) }); err != nil {
			return nil, fmt.Errorf("schedule reconciliation %q: %w", cfg.ReconcileSpec, err)
		}
	}
	if cfg.IntegritySpec != "" && integrity != nil {
		if _, err := c.AddFunc(cfg.IntegritySpec, func() { runIntegrity(integrity) }); err != nil {
			return nil, fmt.Errorf("schedule integrity check %q: %w", cfg.IntegritySpec, err)
		}
	}
	return &Scheduler{cron: c}, nil
}

func (s *Scheduler) Start() {
	zap.L().Info("scheduler starting", zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()
}

// Stop stops scheduling and returns a context done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func runReconcileAll(reconciler *service.BalanceReconciler) {
	summary, err := reconciler.ReconcileAll(context.Background())
	if err != nil {
		observability.IncrementWorkerRun("reconciliation", "failed")
		zap.L().Error("reconciliation run failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("reconciliation", "success")
	zap.L().Info("reconciliation run finished",
		zap.Int("checked", summary.Checked),
		zap.Int("overwritten", summary.Overwritten),
		zap.Int("failed", summary.Failed),
	)
}

func runIntegrity(integrity *service.IntegrityService) {
	if _, err := integrity.Run(context.Background()); err != nil {
		observability.IncrementWorkerRun("integrity", "failed")
		zap.L().Error("integrity check failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("integrity", "success")
}
