package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner deletes expired audit rows on a cron schedule while the server runs.
type Pruner struct {
	store     *SQLiteStore
	retention time.Duration
	logger    *slog.Logger

	cron   *cron.Cron
	lock   sync.Mutex
	cancel context.CancelFunc
}

// ParseSchedule validates a five-field cron expression or descriptor such as
// "@daily".
func ParseSchedule(spec string) (cron.Schedule, error) {
	return cron.ParseStandard(spec)
}

// StartPruner schedules Prune(retention) and returns the running pruner.
func StartPruner(st *SQLiteStore, schedule string, retention time.Duration, logger *slog.Logger) (*Pruner, error) {
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return nil, fmt.Errorf("audit prune schedule %q: %w", schedule, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pruner{
		store:     st,
		retention: retention,
		logger:    logger,
		cron:      cron.New(),
		cancel:    cancel,
	}
	p.cron.Schedule(sched, cron.FuncJob(func() { p.run(ctx) }))
	p.cron.Start()
	logger.Debug("audit pruner started", "schedule", schedule, "retention", retention)
	return p, nil
}

// run prunes once; a tick that overlaps a running prune is skipped.
func (p *Pruner) run(ctx context.Context) {
	if !p.lock.TryLock() {
		p.logger.Warn("audit prune still running, skipping tick")
		return
	}
	defer p.lock.Unlock()

	if _, err := p.store.Prune(ctx, p.retention); err != nil {
		p.logger.Error("audit prune failed", "err", err)
	}
}

// Stop cancels an in-flight prune and waits for it to return.
func (p *Pruner) Stop() {
	p.cancel()
	<-p.cron.Stop().Done()
}
