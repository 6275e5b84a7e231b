package scheduler

import (
	"fmt"
	"io"
	"io/ioutil"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/extalife/extalife-agent/pkg/backup"
)

// Job is one scheduled backup: a schedule label with its retention pool
// settings.
type Job struct {
	Schedule  string `yaml:"schedule"`
	Retention int    `yaml:"retention"`
	Path      string `yaml:"path"`
}

// Config is the on-disk schedule file.
type Config struct {
	Schedules []Job `yaml:"schedules"`
}

// Load parses a schedule file.
func Load(r io.Reader) (*Config, error) {
	buf, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("scheduler: parse schedule file: %w", err)
	}
	for i, job := range cfg.Schedules {
		if err := validate(job); err != nil {
			return nil, fmt.Errorf("scheduler: schedule %d: %w", i, err)
		}
	}
	return &cfg, nil
}

func validate(job Job) error {
	if _, ok := SpecFor(job.Schedule); !ok {
		return fmt.Errorf("unknown schedule label %q", job.Schedule)
	}
	if job.Retention < 0 || job.Retention > backup.MaxRetention {
		return fmt.Errorf("retention %d out of range 0..%d", job.Retention, backup.MaxRetention)
	}
	return nil
}

// SpecFor maps a schedule label onto a cron spec.
func SpecFor(schedule string) (string, bool) {
	switch strings.ToLower(schedule) {
	case backup.ScheduleDaily:
		return "@daily", true
	case backup.ScheduleWeekly:
		return "@weekly", true
	case backup.ScheduleMonthly:
		return "@monthly", true
	case backup.ScheduleYearly:
		return "@yearly", true
	}
	return "", false
}

// BackupFunc runs one scheduled backup for a pool.
type BackupFunc func(job Job) error

// Scheduler triggers configuration backups on their cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	run    BackupFunc
	logger *zap.Logger
}

// New creates a Scheduler dispatching to run.
func New(run BackupFunc, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{cron: cron.New(), run: run, logger: logger}
}

// Add registers one backup job.
func (s *Scheduler) Add(job Job) error {
	if err := validate(job); err != nil {
		return err
	}
	spec, _ := SpecFor(job.Schedule)
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Info("running scheduled backup",
			zap.String("schedule", job.Schedule),
			zap.Int("retention", job.Retention))
		if err := s.run(job); err != nil {
			s.logger.Error("scheduled backup failed",
				zap.String("schedule", job.Schedule), zap.Error(err))
		}
	})
	return err
}

// AddAll registers every job of a schedule file.
func (s *Scheduler) AddAll(cfg *Config) error {
	for _, job := range cfg.Schedules {
		if err := s.Add(job); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels future runs; running jobs finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
