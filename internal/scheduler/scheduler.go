// Package scheduler runs sweeps on a cron schedule. Each job sweeps its
// ranges one after another through the orchestrator, so scheduled sweeps
// share the process-wide single-sweep lock with API and CLI requests.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/anstrom/netsweep/internal/discovery"
	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/orchestrator"
)

// Sweeper runs one sweep to completion.
type Sweeper interface {
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
}

// Scheduler manages scheduled sweep jobs.
type Scheduler struct {
	sweeper Sweeper
	cron    *cron.Cron
	jobs    map[uuid.UUID]*ScheduledJob
	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *logging.Logger
}

// ScheduledJob is one cron entry and its run bookkeeping.
type ScheduledJob struct {
	ID        uuid.UUID
	CronID    cron.EntryID
	Name      string
	Cron      string
	Ranges    []string
	LastRun   time.Time
	NextRun   time.Time
	LastError string
	Runs      int
	Skipped   int
	Running   bool
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewScheduler creates a scheduler that sweeps through sweeper.
func NewScheduler(sweeper Sweeper) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	logger := logging.Default().WithComponent("scheduler")
	cl := cronLogger{logger: logger}

	return &Scheduler{
		sweeper: sweeper,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:   make(map[uuid.UUID]*ScheduledJob),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// AddSweep schedules a job that sweeps ranges on cronExpr.
func (s *Scheduler) AddSweep(name, cronExpr string, ranges []string) (uuid.UUID, error) {
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return uuid.Nil, errors.NewConfigFieldError(errors.CodeValidation,
			fmt.Sprintf("invalid cron expression: %v", err), "cron", cronExpr)
	}
	if len(ranges) == 0 {
		return uuid.Nil, errors.ErrConfigMissing("ranges")
	}
	for _, r := range ranges {
		if _, err := discovery.ExpandRange(r, 0); err != nil {
			return uuid.Nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job := &ScheduledJob{
		ID:      uuid.New(),
		Name:    name,
		Cron:    cronExpr,
		Ranges:  append([]string(nil), ranges...),
		NextRun: schedule.Next(time.Now()),
	}

	id := job.ID
	cronID, err := s.cron.AddFunc(cronExpr, func() { s.runJob(id) })
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to add cron job: %w", err)
	}
	job.CronID = cronID
	s.jobs[job.ID] = job

	s.logger.Info("Added scheduled sweep", "job", name, "cron", cronExpr, "ranges", ranges)
	return job.ID, nil
}

// RemoveJob removes a scheduled job.
func (s *Scheduler) RemoveJob(jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return errors.ErrNotFound("scheduled job", jobID)
	}
	s.cron.Remove(job.CronID)
	delete(s.jobs, jobID)

	s.logger.Info("Removed scheduled sweep", "job", job.Name)
	return nil
}

// Jobs returns a snapshot of the scheduled jobs ordered by name.
func (s *Scheduler) Jobs() []ScheduledJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ScheduledJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		snapshot := *job
		if entry := s.cron.Entry(job.CronID); entry.Valid() && !entry.Next.IsZero() {
			snapshot.NextRun = entry.Next
		}
		out = append(out, snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start begins firing jobs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	if s.ctx.Err() != nil {
		return fmt.Errorf("scheduler has been stopped")
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("Scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop halts the schedule and waits for a running job to return or ctx to
// end, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out waiting for a running job")
	}
	s.logger.Info("Scheduler stopped")
}

// RunNow runs a job immediately on the caller's goroutine.
func (s *Scheduler) RunNow(jobID uuid.UUID) error {
	s.mu.RLock()
	_, exists := s.jobs[jobID]
	s.mu.RUnlock()
	if !exists {
		return errors.ErrNotFound("scheduled job", jobID)
	}
	s.runJob(jobID)
	return nil
}

func (s *Scheduler) runJob(jobID uuid.UUID) {
	s.mu.Lock()
	job, exists := s.jobs[jobID]
	if !exists || job.Running {
		s.mu.Unlock()
		return
	}
	job.Running = true
	job.LastRun = time.Now()
	ranges := append([]string(nil), job.Ranges...)
	name := job.Name
	s.mu.Unlock()

	var (
		lastErr error
		skipped int
	)
	for _, r := range ranges {
		if s.ctx.Err() != nil {
			break
		}

		result, err := s.sweeper.Run(s.ctx, orchestrator.Request{IPRange: r, Trigger: orchestrator.TriggerSchedule})
		switch {
		case errors.IsCode(err, errors.CodeScanInProgress):
			skipped++
			s.logger.Info("Skipped scheduled sweep, another sweep is running", "job", name, "range", r)
		case err != nil:
			lastErr = err
			s.logger.ErrorScan("Scheduled sweep failed", r, err, "job", name)
		default:
			s.logger.InfoScan("Scheduled sweep finished", r,
				"job", name, "alive", len(result.Devices), "duration", result.Duration)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	job.Running = false
	job.Runs++
	job.Skipped += skipped
	job.LastError = ""
	if lastErr != nil {
		job.LastError = lastErr.Error()
	}
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
