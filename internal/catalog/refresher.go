package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultRefreshSchedule refreshes catalogs every 15 minutes.
const DefaultRefreshSchedule = "*/15 * * * *"

// Refresher re-fetches catalogs on a cron schedule.
type Refresher struct {
	service  *Service
	schedule cron.Schedule
	expr     string
	tick     time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	next   time.Time

	inflight sync.Mutex
}

// ParseSchedule parses a standard five-field cron expression or a
// descriptor such as "@every 10m" or "@hourly".
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// NewRefresher creates a Refresher for service. An empty expr uses
// DefaultRefreshSchedule.
func NewRefresher(service *Service, expr string, logger *slog.Logger) (*Refresher, error) {
	if expr == "" {
		expr = DefaultRefreshSchedule
	}
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		service:  service,
		schedule: schedule,
		expr:     expr,
		tick:     time.Second,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Start performs an initial refresh and launches the background loop.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.done != nil {
		r.mu.Unlock()
		return fmt.Errorf("catalog refresher already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.next = r.schedule.Next(r.now())
	r.mu.Unlock()

	go r.loop(loopCtx)
	r.logger.Info("catalog refresher started",
		slog.String("schedule", r.expr), slog.Time("next_run", r.NextRun()))
	return nil
}

func (r *Refresher) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	r.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := r.now()
			r.mu.Lock()
			due := !r.next.After(now)
			if due {
				r.next = r.schedule.Next(now)
			}
			r.mu.Unlock()
			if due {
				r.RunOnce(ctx)
			}
		}
	}
}

// RunOnce refreshes immediately unless a refresh is already in flight.
// Reports whether it ran.
func (r *Refresher) RunOnce(ctx context.Context) bool {
	if !r.inflight.TryLock() {
		return false
	}
	defer r.inflight.Unlock()

	snap := r.service.Refresh(ctx)
	r.logger.InfoContext(ctx, "catalogs refreshed",
		slog.Int("tasks", len(snap.Nodes.Tasks)),
		slog.Int("conditions", len(snap.Conditions)),
		slog.Int("products", len(snap.Products)),
		slog.Int("employees", len(snap.Employees)))
	return true
}

// NextRun returns the time of the next scheduled refresh.
func (r *Refresher) NextRun() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

// Stop gracefully shuts down the refresher.
func (r *Refresher) Stop() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	r.logger.Info("catalog refresher stopped")
	return nil
}
