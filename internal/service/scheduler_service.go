package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultJobTimeout = 5 * time.Minute

// Job is a unit of scheduled work.
type Job func(ctx context.Context) error

// JobObserver is told about every finished run, for metrics.
type JobObserver interface {
	JobRun(name string, took time.Duration, err error)
}

// SchedulerService wraps cron-based jobs. An entry never overlaps itself.
type SchedulerService struct {
	cron       *cron.Cron
	log        *slog.Logger
	jobTimeout time.Duration
	observer   JobObserver
	jobs       map[cron.EntryID]string
}

func NewSchedulerService(loc *time.Location, log *slog.Logger) *SchedulerService {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = slog.Default()
	}
	cl := cronLogger{log: log}
	return &SchedulerService{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:        log,
		jobTimeout: defaultJobTimeout,
		jobs:       make(map[cron.EntryID]string),
	}
}

// SetObserver must be called before Start.
func (s *SchedulerService) SetObserver(o JobObserver) {
	s.observer = o
}

// ScheduleDaily registers a daily job at the given HH:MM time string.
func (s *SchedulerService) ScheduleDaily(timeStr string, job func()) (cron.EntryID, error) {
	spec, err := buildDailySpec(timeStr)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, job)
}

// ScheduleInterval registers a periodic job every given duration.
func (s *SchedulerService) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	spec := fmt.Sprintf("@every %ds", seconds)
	return s.cron.AddFunc(spec, job)
}

// RunDaily schedules job once a day at HH:MM. Failures are logged and the
// next tick is the retry.
func (s *SchedulerService) RunDaily(name, timeStr string, job Job) (cron.EntryID, error) {
	id, err := s.ScheduleDaily(timeStr, s.wrap(name, job))
	if err != nil {
		return 0, fmt.Errorf("schedule %s: %w", name, err)
	}
	s.jobs[id] = name
	s.log.Info("job scheduled", "job", name, "at", timeStr)
	return id, nil
}

// RunEvery schedules job at a fixed interval with the same failure handling
// as RunDaily.
func (s *SchedulerService) RunEvery(name string, interval time.Duration, job Job) (cron.EntryID, error) {
	id, err := s.ScheduleInterval(interval, s.wrap(name, job))
	if err != nil {
		return 0, fmt.Errorf("schedule %s: %w", name, err)
	}
	s.jobs[id] = name
	s.log.Info("job scheduled", "job", name, "every", interval)
	return id, nil
}

func (s *SchedulerService) wrap(name string, job Job) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()

		started := time.Now()
		err := job(ctx)
		took := time.Since(started)
		if s.observer != nil {
			s.observer.JobRun(name, took, err)
		}
		if err != nil {
			s.log.Error("job failed", "job", name, "error", err)
			return
		}
		s.log.Info("job finished", "job", name, "took", took)
	}
}

// nextRun returns when the entry fires next. Zero until the scheduler runs.
func (s *SchedulerService) nextRun(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

// Start runs the scheduler and logs when each named job fires next.
func (s *SchedulerService) Start() {
	s.cron.Start()
	for id, name := range s.jobs {
		s.log.Info("job next run", "job", name, "next_run", s.nextRun(id))
	}
}

func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// ValidateDailyTime reports whether timeStr is an HH:MM time RunDaily
// accepts.
func ValidateDailyTime(timeStr string) error {
	_, err := buildDailySpec(timeStr)
	return err
}

func buildDailySpec(timeStr string) (string, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", timeStr)
	}
	// cron format: second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}

// cronLogger routes cron's own messages to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
