package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mpscraper/internal/downloader"
	"mpscraper/pkg/auth"
	"mpscraper/pkg/config"
	errs "mpscraper/pkg/errors"
	"mpscraper/pkg/events"
	"mpscraper/pkg/logger"
	"mpscraper/pkg/mp"
	"mpscraper/pkg/normalize"
	"mpscraper/pkg/scraper"
	"mpscraper/pkg/storage"
)

// app bundles the configured collaborators of one command invocation
type app struct {
	cfg      *config.Config
	log      logger.Logger
	client   *mp.Client
	creds    *auth.Manager
	provider *auth.Provider
}

func loadApp(flags map[string]interface{}) (*app, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	switch {
	case logLevel != "":
		flags["log-level"] = logLevel
	case verbose:
		flags["log-level"] = "debug"
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	creds, err := auth.NewManager(cfg.Auth.CacheFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	maxAge := time.Duration(cfg.Auth.ExpireHours) * time.Hour

	return &app{
		cfg:      cfg,
		log:      log,
		client:   mp.NewClient(cfg.HTTP, log),
		creds:    creds,
		provider: auth.NewProvider(creds, profile, maxAge),
	}, nil
}

func (a *app) newScraper(existence scraper.ExistenceChecker) *scraper.Scraper {
	return scraper.New(scraper.Deps{
		Client:      a.client,
		Normalizer:  normalize.New(a.log),
		Credentials: a.provider,
		Existence:   existence,
		Logger:      a.log,
	}, scraper.SettingsFromConfig(a.cfg.Scraper))
}

// persistence holds the storage targets selected by storage.mode
type persistence struct {
	persister *scraper.Persister
	repo      storage.Repository
	publisher events.Publisher
	log       logger.Logger
}

func (a *app) openPersistence(ctx context.Context) (*persistence, error) {
	p := &persistence{publisher: events.Nop{}, log: a.log}

	var local scraper.LocalSaver
	if a.cfg.UsesLocal() {
		files, err := storage.NewManager(a.cfg.Storage.Local.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		var media storage.MediaFetcher
		if a.cfg.Media.Download {
			media = downloader.NewFetcher(a.client, files, a.cfg.Media, a.log)
		}
		local = storage.NewLocalWriter(files, a.cfg.Storage.Local, media, a.log)
	}

	var store scraper.ArticleStore
	if a.cfg.UsesDatabase() {
		repo, err := storage.OpenRepository(a.cfg.Storage.Database, a.log)
		if err != nil {
			return nil, err
		}
		p.repo = repo
		store = repo
	}

	if a.cfg.Events.Enabled {
		pub, err := events.NewRabbitPublisher(ctx, a.cfg.Events, a.log)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to connect event broker: %w", err)
		}
		p.publisher = pub
	}

	p.persister = scraper.NewPersister(local, store, p.publisher, a.log)
	return p, nil
}

// existence returns the database as existence checker, or nil without one
func (p *persistence) existence() scraper.ExistenceChecker {
	if p == nil || p.repo == nil {
		return nil
	}
	return p.repo
}

func (p *persistence) Close() {
	if p.repo != nil {
		if err := p.repo.Close(); err != nil {
			p.log.WithError(err).Warn("Failed to close article store")
		}
	}
	if err := p.publisher.Close(); err != nil {
		p.log.WithError(err).Warn("Failed to close event publisher")
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// explain prefixes pipeline errors with a hint for the user
func explain(err error) error {
	if err == nil {
		return nil
	}
	switch errs.TypeOf(err) {
	case errs.ErrorTypeAuthExpired:
		return fmt.Errorf("session missing or expired, run 'mpscraper auth set': %w", err)
	case errs.ErrorTypeAccountNotFound:
		return fmt.Errorf("account not found, try 'mpscraper search': %w", err)
	case errs.ErrorTypeRateLimited:
		return fmt.Errorf("the platform is throttling requests, wait before retrying: %w", err)
	case errs.ErrorTypeCancelled:
		return fmt.Errorf("interrupted: %w", err)
	case errs.ErrorTypePersistenceFailure:
		return fmt.Errorf("could not store articles: %w", err)
	}
	return err
}
