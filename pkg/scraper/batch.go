package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mpscraper/pkg/checkpoint"
	"mpscraper/pkg/config"
	errs "mpscraper/pkg/errors"
	"mpscraper/pkg/logger"
	"mpscraper/pkg/models"
	"mpscraper/pkg/retry"
)

// AccountScraper harvests one account. *Scraper implements it.
type AccountScraper interface {
	ScrapeAccount(ctx context.Context, name string, opts Options) ([]models.Article, error)
}

// ArticleSink stores the articles of one account. *Persister implements it.
type ArticleSink interface {
	PersistAll(ctx context.Context, articles []models.Article) (int, error)
}

// BatchReporter is told about account progress during a batch run.
// *ui.StatusTracker implements it.
type BatchReporter interface {
	AccountStarted(name string)
	AccountFinished(name string, articles, saved int, err error)
	AccountSkipped(name string)
}

// BatchOptions controls one batch run
type BatchOptions struct {
	Options      Options
	Resume       bool
	ForceRestart bool
}

// AccountResult is the outcome of one account in a batch
type AccountResult struct {
	Name     string
	Articles int
	Saved    int
	Attempts int
	Skipped  bool
	Err      error
}

// BatchReport summarizes a batch run
type BatchReport struct {
	Accounts  []AccountResult
	Resumed   bool
	StartedAt time.Time
	Duration  time.Duration
}

// Failed returns the accounts that ended with an error
func (r *BatchReport) Failed() []AccountResult {
	var failed []AccountResult
	for _, a := range r.Accounts {
		if a.Err != nil {
			failed = append(failed, a)
		}
	}
	return failed
}

// TotalArticles sums the harvested articles of all accounts
func (r *BatchReport) TotalArticles() int {
	total := 0
	for _, a := range r.Accounts {
		total += a.Articles
	}
	return total
}

// ErrCheckpointExists is returned when an unfinished batch checkpoint is
// found and neither resume nor restart was requested.
var ErrCheckpointExists = errors.New("checkpoint exists - use --resume to continue or --force-restart to start fresh")

// BatchRunner scrapes several accounts one after another
type BatchRunner struct {
	scraper     AccountScraper
	sink        ArticleSink
	checkpoints *checkpoint.Manager
	cfg         config.BatchConfig
	reporter    BatchReporter
	logger      logger.Logger
	sleep       Sleeper
	now         func() time.Time
}

// NewBatchRunner creates a BatchRunner. sink and checkpoints may be nil.
func NewBatchRunner(s AccountScraper, sink ArticleSink, checkpoints *checkpoint.Manager, cfg config.BatchConfig, log logger.Logger) *BatchRunner {
	if log == nil {
		log = logger.GetLogger()
	}
	return &BatchRunner{
		scraper:     s,
		sink:        sink,
		checkpoints: checkpoints,
		cfg:         cfg,
		logger:      log,
		sleep:       retry.Wait,
		now:         time.Now,
	}
}

// SetReporter attaches a progress reporter
func (b *BatchRunner) SetReporter(r BatchReporter) {
	b.reporter = r
}

// Run scrapes accounts sequentially with the configured pause between
// them. Rate-limited accounts are retried after the pause. Credential,
// persistence and cancellation errors abort the batch; other failures are
// recorded and the batch moves on.
func (b *BatchRunner) Run(ctx context.Context, accounts []string, opts BatchOptions) (*BatchReport, error) {
	report := &BatchReport{StartedAt: b.now()}
	defer func() { report.Duration = b.now().Sub(report.StartedAt) }()

	if len(accounts) == 0 {
		return report, errs.New(errs.ErrorTypeInvalidOptions, "no accounts to scrape")
	}

	cp, err := b.openCheckpoint(accounts, opts)
	if err != nil {
		return report, err
	}
	report.Resumed = cp != nil && len(cp.Completed) > 0

	b.logger.InfoWithFields("Starting batch", map[string]interface{}{
		"accounts": len(accounts),
		"resumed":  report.Resumed,
		"interval": b.cfg.AccountInterval.String(),
	})

	first := true
	for _, name := range accounts {
		if cp != nil && cp.IsAccountDone(name) {
			report.Accounts = append(report.Accounts, AccountResult{Name: name, Skipped: true})
			if b.reporter != nil {
				b.reporter.AccountSkipped(name)
			}
			b.logger.DebugWithFields("Account already done, skipping", map[string]interface{}{"account": name})
			continue
		}

		if !first {
			if err := b.sleep(ctx, b.cfg.AccountInterval); err != nil {
				return report, errs.Wrap(errs.ErrorTypeCancelled, err, "batch cancelled")
			}
		}
		first = false

		if b.reporter != nil {
			b.reporter.AccountStarted(name)
		}
		result := b.runAccount(ctx, name, opts.Options)
		report.Accounts = append(report.Accounts, result)
		if b.reporter != nil {
			b.reporter.AccountFinished(name, result.Articles, result.Saved, result.Err)
		}

		if result.Err != nil {
			b.recordFailure(cp, name, result.Err)
			if abortsBatch(result.Err) {
				b.logger.WithError(result.Err).ErrorWithFields("Batch aborted", map[string]interface{}{
					"account": name,
				})
				return report, result.Err
			}
			b.logger.WithError(result.Err).WarnWithFields("Account failed, continuing with next", map[string]interface{}{
				"account":  name,
				"attempts": result.Attempts,
			})
			continue
		}

		if cp != nil {
			if err := b.checkpoints.RecordAccount(cp, name, result.Articles, result.Saved); err != nil {
				b.logger.WithError(err).Warn("Failed to update checkpoint")
			}
		}
		b.logger.InfoWithFields("Account done", map[string]interface{}{
			"account":  name,
			"articles": result.Articles,
			"saved":    result.Saved,
		})
	}

	if cp != nil && len(report.Failed()) == 0 {
		if err := b.checkpoints.Delete(); err != nil {
			b.logger.WithError(err).Warn("Failed to delete finished checkpoint")
		}
	}

	b.logger.InfoWithFields("Batch finished", map[string]interface{}{
		"accounts": len(report.Accounts),
		"failed":   len(report.Failed()),
		"articles": report.TotalArticles(),
	})
	return report, nil
}

func (b *BatchRunner) runAccount(ctx context.Context, name string, opts Options) AccountResult {
	result := AccountResult{Name: name}

	var articles []models.Article
	var err error
	for {
		result.Attempts++
		articles, err = b.scraper.ScrapeAccount(ctx, name, opts)
		if !errs.IsType(err, errs.ErrorTypeRateLimited) || result.Attempts > b.cfg.RateLimitRetries {
			break
		}
		logger.LogRateLimit(b.logger.WithField("account", name), "listing", b.cfg.AccountInterval.String())
		if werr := b.sleep(ctx, b.cfg.AccountInterval); werr != nil {
			result.Err = errs.Wrap(errs.ErrorTypeCancelled, werr, "batch cancelled")
			return result
		}
	}
	if err != nil {
		result.Err = err
		return result
	}

	result.Articles = len(articles)
	if b.sink != nil {
		result.Saved, result.Err = b.sink.PersistAll(ctx, articles)
	}
	return result
}

func (b *BatchRunner) openCheckpoint(accounts []string, opts BatchOptions) (*checkpoint.Checkpoint, error) {
	if b.checkpoints == nil {
		return nil, nil
	}

	if opts.ForceRestart {
		if err := b.checkpoints.Delete(); err != nil {
			b.logger.WithError(err).Warn("Failed to delete existing checkpoint")
		}
	} else if b.checkpoints.Exists() {
		if !opts.Resume {
			return nil, ErrCheckpointExists
		}
		cp, err := b.checkpoints.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load checkpoint: %w", err)
		}
		if cp != nil {
			return cp, nil
		}
	}

	cp, err := b.checkpoints.Create("batch", accounts)
	if err != nil {
		b.logger.WithError(err).Warn("Failed to create checkpoint, continuing without one")
		return nil, nil
	}
	return cp, nil
}

func (b *BatchRunner) recordFailure(cp *checkpoint.Checkpoint, name string, cause error) {
	if cp == nil {
		return
	}
	if err := b.checkpoints.RecordFailure(cp, name, cause); err != nil {
		b.logger.WithError(err).Warn("Failed to update checkpoint")
	}
}

func abortsBatch(err error) bool {
	switch errs.TypeOf(err) {
	case errs.ErrorTypeAuthExpired, errs.ErrorTypeCancelled, errs.ErrorTypePersistenceFailure:
		return true
	}
	return false
}
