package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a unit of background work run on a cron schedule.
type Job interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

// FuncJob adapts a function to Job.
type FuncJob struct {
	JobName string
	Spec    string
	Fn      func(ctx context.Context) error
	Timeout time.Duration
}

func (j FuncJob) Name() string     { return j.JobName }
func (j FuncJob) Schedule() string { return j.Spec }

func (j FuncJob) Run(ctx context.Context) error {
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	return j.Fn(ctx)
}

type Scheduler struct {
	cron   *cron.Cron
	jobs   []Job
	ctx    context.Context
	logger *zap.Logger
}

// New returns a scheduler whose jobs receive ctx. Overlapping runs of the same job are skipped.
func New(ctx context.Context, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:    ctx,
		logger: logger,
	}
}

// Register schedules job. A job with an empty schedule can only be run by name.
func (s *Scheduler) Register(job Job) error {
	s.jobs = append(s.jobs, job)

	spec := job.Schedule()
	if spec == "" {
		s.logger.Info("registered on-demand job", zap.String("job", job.Name()))
		return nil
	}
	if _, err := s.cron.AddFunc(spec, func() { s.run(s.ctx, job) }); err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name(), err)
	}
	s.logger.Info("scheduled job", zap.String("job", job.Name()), zap.String("schedule", spec))
	return nil
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	log := s.logger.With(zap.String("job", job.Name()))
	log.Debug("job started")
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		log.Error("job failed", zap.Error(err))
		return err
	}
	log.Debug("job completed", zap.Duration("took", time.Since(start)))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop halts scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunByName runs a registered job immediately.
func (s *Scheduler) RunByName(ctx context.Context, name string) error {
	for _, job := range s.jobs {
		if job.Name() == name {
			return s.run(ctx, job)
		}
	}
	return fmt.Errorf("job %q not registered", name)
}

func (s *Scheduler) Jobs() []string {
	names := make([]string, len(s.jobs))
	for i, job := range s.jobs {
		names[i] = job.Name()
	}
	return names
}
