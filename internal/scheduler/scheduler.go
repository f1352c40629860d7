package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sentraops/sentra/internal/store"
	"github.com/sentraops/sentra/pkg/schema"
)

// ExecutionStarter is the interface the scheduler uses to start playbook
// runs. Satisfied by the orchestrator (avoids import cycle).
type ExecutionStarter interface {
	StartExecution(ctx context.Context, playbookID string, version int, source schema.TriggerSource, seed map[string]any) (*store.Execution, error)
}

// Scheduler periodically scans active schedule-triggered playbooks and starts
// executions when their cron expressions come due. Fire times are tracked
// in memory: a restarted scheduler primes each playbook's next fire from its
// cron expression rather than replaying missed windows.
type Scheduler struct {
	store    store.Store
	starter  ExecutionStarter
	parser   cron.Parser
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex

	nextMu sync.Mutex
	next   map[string]time.Time // playbook ID -> next fire time
}

// NewScheduler creates a Scheduler. interval <= 0 defaults to one minute.
func NewScheduler(s store.Store, starter ExecutionStarter, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    s,
		starter:  starter,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		interval: interval,
		logger:   logger,
		next:     make(map[string]time.Time),
	}
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Prime fire times immediately so the first real tick can fire.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick scans active schedule-triggered playbooks and fires the due ones.
func (s *Scheduler) tick(ctx context.Context) {
	playbooks, err := s.store.ListActivePlaybooks(ctx)
	if err != nil {
		s.logger.Error("failed to list active playbooks", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(playbooks))

	for _, pb := range playbooks {
		if pb.Definition.TriggerType != schema.TriggerSchedule {
			continue
		}
		seen[pb.ID] = true

		sched, err := s.parser.Parse(pb.Definition.Schedule)
		if err != nil {
			s.logger.Error("invalid cron expression on active playbook",
				slog.String("playbook_id", pb.ID),
				slog.String("schedule", pb.Definition.Schedule),
				slog.String("error", err.Error()),
			)
			continue
		}

		due, primed := s.dueAt(pb.ID)
		if !primed {
			// First sight: arm the next fire without running. A scheduler
			// restart must not re-fire every playbook at once.
			s.arm(pb.ID, sched.Next(now))
			continue
		}
		if due.After(now) {
			continue
		}

		s.arm(pb.ID, sched.Next(now))
		s.fire(ctx, pb, due)
	}

	s.prune(seen)
}

// fire starts one scheduled execution.
func (s *Scheduler) fire(ctx context.Context, pb *store.Playbook, due time.Time) {
	s.logger.Info("firing scheduled playbook",
		slog.String("playbook_id", pb.ID),
		slog.Int("version", pb.Version),
		slog.Time("due", due),
	)

	seed := map[string]any{
		"scheduled_for": due.Format(time.RFC3339),
	}
	source := schema.TriggerSource{Kind: schema.TriggerSchedule}

	if _, err := s.starter.StartExecution(ctx, pb.ID, pb.Version, source, seed); err != nil {
		s.logger.Error("failed to start scheduled execution",
			slog.String("playbook_id", pb.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Scheduler) dueAt(playbookID string) (time.Time, bool) {
	s.nextMu.Lock()
	defer s.nextMu.Unlock()
	t, ok := s.next[playbookID]
	return t, ok
}

func (s *Scheduler) arm(playbookID string, at time.Time) {
	s.nextMu.Lock()
	defer s.nextMu.Unlock()
	s.next[playbookID] = at
}

// prune drops fire times for playbooks that are no longer active
// schedule-triggered, so a re-activated playbook is primed fresh.
func (s *Scheduler) prune(seen map[string]bool) {
	s.nextMu.Lock()
	defer s.nextMu.Unlock()
	for id := range s.next {
		if !seen[id] {
			delete(s.next, id)
		}
	}
}

// CalculateNextRun computes the next fire time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	sched, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return sched.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
