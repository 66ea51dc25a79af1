package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/univers/internal/config"
	"github.com/tejusbharadwaj/univers/internal/csvexport"
	"github.com/tejusbharadwaj/univers/internal/export"
)

// Options holds the collaborators of a Scheduler.
type Options struct {
	Store     *config.Store
	Sources   export.SourceFactory
	Export    export.Options
	OutputDir string
	Logger    *logrus.Logger
	// Timeout bounds a single run.
	Timeout time.Duration
}

// Scheduler runs configured exports of a trailing window on cron schedules.
type Scheduler struct {
	ctx    context.Context
	opts   Options
	logger *logrus.Logger
	cron   *cron.Cron
	now    func() time.Time
}

func NewScheduler(ctx context.Context, opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Export.Logger == nil {
		opts.Export.Logger = opts.Logger
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Minute
	}

	cronLogger := cron.PrintfLogger(opts.Logger)
	return &Scheduler{
		ctx:    ctx,
		opts:   opts,
		logger: opts.Logger,
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
		now: time.Now,
	}
}

// Add registers a job. The cron expression and project are checked now
// rather than at first run.
func (s *Scheduler) Add(job config.ScheduleConfig) error {
	if _, err := s.opts.Store.Project(job.Project); err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	if job.Lookback <= 0 {
		return fmt.Errorf("schedule %s: lookback must be positive", job.Name)
	}

	_, err := s.cron.AddFunc(job.Cron, func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.Timeout)
		defer cancel()

		if _, _, err := s.Run(ctx, job); err != nil {
			s.logger.WithField("schedule", job.Name).WithError(err).Error("Scheduled export failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s: invalid cron expression %q: %w", job.Name, job.Cron, err)
	}
	return nil
}

// Start the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop the scheduler; the returned context is done when running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Window is the range a run at now exports: lookback ending at now truncated
// to the interval.
func Window(now time.Time, lookback time.Duration, intervalMinutes int) (time.Time, time.Time) {
	end := now.UTC()
	if intervalMinutes > 0 {
		end = end.Truncate(time.Duration(intervalMinutes) * time.Minute)
	}
	return end.Add(-lookback), end
}

// Run exports one window of job and writes it under the output directory.
// It returns the written path.
func (s *Scheduler) Run(ctx context.Context, job config.ScheduleConfig) (string, *export.Result, error) {
	project, err := s.opts.Store.Project(job.Project)
	if err != nil {
		return "", nil, err
	}
	source, err := s.opts.Sources(project)
	if err != nil {
		return "", nil, err
	}

	exp := export.NewExporter(source, s.opts.Export)
	start, end := Window(s.now(), job.Lookback, job.IntervalMinutes)
	if err := exp.ValidateRange(start, end, job.IntervalMinutes); err != nil {
		return "", nil, err
	}
	selected, err := exp.ResolveModels(ctx, job.Models)
	if err != nil {
		return "", nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"schedule": job.Name,
		"project":  project.Name,
		"start":    start.Format(time.RFC3339),
		"end":      end.Format(time.RFC3339),
	})
	log.Info("Running scheduled export")

	result, err := exp.Export(ctx, export.Request{
		Models:          selected,
		Start:           start,
		End:             end,
		IntervalMinutes: job.IntervalMinutes,
	}, nil)
	if err != nil {
		return "", nil, err
	}

	compression := csvexport.None
	if job.Gzip {
		compression = csvexport.Gzip
	}
	dir := job.OutputDir
	if dir == "" {
		dir = s.opts.OutputDir
	}
	path := filepath.Join(dir, csvexport.FileName(project.Name, start, end, compression))
	if err := csvexport.WriteFile(path, result, csvexport.Options{Compression: compression}); err != nil {
		return "", nil, err
	}

	entry := log.WithFields(logrus.Fields{"path": path, "rows": len(result.Rows)})
	if result.Partial() {
		entry.WithField("failed", result.FailedModels()).Warn("Scheduled export finished with failed models")
	} else {
		entry.Info("Scheduled export written")
	}
	return path, result, nil
}
