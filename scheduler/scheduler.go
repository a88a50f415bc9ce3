package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/yourusername/freelance-billing/billing"
)

// Runner is the billing boundary the scheduler triggers.
type Runner interface {
	RunRecurringBillingPass(ctx context.Context, asOf time.Time) (*billing.RecurringRunResult, error)
	SendOverdueReminders(ctx context.Context, asOf time.Time) (*billing.ReminderRunResult, error)
}

// Scheduler fires the recurring pass and overdue reminders on cron schedules.
// Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	log    zerolog.Logger
	clock  func() time.Time

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func New(runner Runner, log zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		runner: runner,
		log:    log.With().Str("component", "scheduler").Logger(),
		clock:  time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
	s.cron = cron.New(cron.WithLocation(time.UTC), cron.WithChain(
		cron.Recover(cronLogger{s.log}),
		cron.SkipIfStillRunning(cronLogger{s.log}),
	))
	return s
}

// Register adds both jobs. An empty schedule disables that job.
func (s *Scheduler) Register(recurringSchedule, reminderSchedule string) error {
	if recurringSchedule != "" {
		if _, err := s.cron.AddFunc(recurringSchedule, s.RunRecurring); err != nil {
			return fmt.Errorf("invalid recurring schedule %q: %w", recurringSchedule, err)
		}
	}
	if reminderSchedule != "" {
		if _, err := s.cron.AddFunc(reminderSchedule, s.RunReminders); err != nil {
			return fmt.Errorf("invalid reminder schedule %q: %w", reminderSchedule, err)
		}
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop cancels running passes between subjects and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) RunRecurring() {
	res, err := s.runner.RunRecurringBillingPass(s.runContext(), s.clock())
	if err != nil {
		s.log.Error().Err(err).Msg("recurring billing pass failed")
		return
	}
	s.log.Info().Int("succeeded", len(res.Succeeded)).Int("skipped", len(res.Skipped)).Msg("recurring billing pass done")
}

func (s *Scheduler) RunReminders() {
	res, err := s.runner.SendOverdueReminders(s.runContext(), s.clock())
	if err != nil {
		s.log.Error().Err(err).Msg("overdue reminders failed")
		return
	}
	s.log.Info().Int("sent", len(res.Sent)).Int("failed", len(res.Failed)).Msg("overdue reminders done")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
