package scraper

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"mpscraper/pkg/logger"
)

// Job is one scheduled unit of work
type Job func(ctx context.Context)

// Scheduler runs a Job on a cron schedule. A run that is still going when
// the next tick fires makes that tick a no-op.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	job    Job
	logger logger.Logger
}

// NewScheduler parses spec (standard five-field cron) and prepares job
func NewScheduler(spec string, job Job, log logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}

	adapter := cronLogger{log: log}
	c := cron.New(
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
	)
	return &Scheduler{cron: c, spec: spec, job: job, logger: log}, nil
}

// Run executes the job once right away when runNow is set, then on every
// tick until ctx is done. It returns after the running job finished.
func (s *Scheduler) Run(ctx context.Context, runNow bool) error {
	id, err := s.cron.AddFunc(s.spec, func() { s.job(ctx) })
	if err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.logger.InfoWithFields("Scheduler started", map[string]interface{}{
		"schedule": s.spec,
		"next_run": s.cron.Entry(id).Next,
	})

	if runNow {
		s.cron.Entry(id).WrappedJob.Run()
	}

	<-ctx.Done()
	s.logger.Info("Scheduler stopping, waiting for the running job")
	<-s.cron.Stop().Done()
	return nil
}

// cronLogger feeds cron's internal messages into logger.Logger
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.DebugWithFields("cron: "+msg, kvFields(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.WithError(err).ErrorWithFields("cron: "+msg, kvFields(keysAndValues))
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
