package scraper

import (
	"context"
	"fmt"
	"time"

	"mpscraper/pkg/auth"
	errs "mpscraper/pkg/errors"
	"mpscraper/pkg/logger"
	"mpscraper/pkg/models"
	"mpscraper/pkg/retry"
)

// ListingClient is the subset of the remote platform client the pipeline
// drives.
type ListingClient interface {
	SearchAccount(ctx context.Context, cred *auth.Credential, query string) ([]models.Account, error)
	ListPage(ctx context.Context, cred *auth.Credential, fakeID string, page int) ([]models.ItemStub, error)
	FetchContent(ctx context.Context, cred *auth.Credential, url string) (models.RawContent, error)
}

// ContentNormalizer turns a raw article page into markup and media lists.
type ContentNormalizer interface {
	Normalize(raw models.RawContent) models.NormalizedContent
}

// CredentialProvider hands out the current login credential.
type CredentialProvider interface {
	GetCredential() (*auth.Credential, error)
}

// ExistenceChecker reports which URLs are already stored.
type ExistenceChecker interface {
	FilterExisting(ctx context.Context, urls []string) ([]string, error)
}

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Deps are the collaborators of a Scraper. Existence may be nil, in which
// case SkipExisting only logs a warning.
type Deps struct {
	Client      ListingClient
	Normalizer  ContentNormalizer
	Credentials CredentialProvider
	Existence   ExistenceChecker
	Logger      logger.Logger
}

// Scraper harvests the article list of one account per call
type Scraper struct {
	client      ListingClient
	normalizer  ContentNormalizer
	credentials CredentialProvider
	existence   ExistenceChecker
	settings    Settings
	logger      logger.Logger
	sleep       Sleeper
	now         func() time.Time
}

// Option customizes a Scraper
type Option func(*Scraper)

// WithSleeper replaces the context-aware timer used between requests.
func WithSleeper(s Sleeper) Option {
	return func(sc *Scraper) { sc.sleep = s }
}

// WithClock replaces time.Now when resolving date windows.
func WithClock(now func() time.Time) Option {
	return func(sc *Scraper) { sc.now = now }
}

// New creates a Scraper from explicit dependencies
func New(deps Deps, settings Settings, opts ...Option) *Scraper {
	log := deps.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	s := &Scraper{
		client:      deps.Client,
		normalizer:  deps.Normalizer,
		credentials: deps.Credentials,
		existence:   deps.Existence,
		settings:    settings,
		logger:      log,
		sleep:       retry.Wait,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScrapeAccount resolves name, pages through its published articles and
// optionally fetches each body. Aborted runs return no articles.
func (s *Scraper) ScrapeAccount(ctx context.Context, name string, opts Options) ([]models.Article, error) {
	p, err := resolve(opts, s.settings, s.now())
	if err != nil {
		return nil, err
	}

	log := s.logger.WithField("account", name)
	log.InfoWithFields("Starting account scrape", map[string]interface{}{
		"max_pages":       p.maxPages,
		"limit":           p.limit,
		"days":            p.days,
		"window":          p.window.Enabled,
		"include_content": p.includeContent,
		"skip_existing":   p.skipExisting,
	})

	cred, err := s.credentials.GetCredential()
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeAuthExpired, err, "no usable credential")
	}

	account, err := s.resolveAccount(ctx, cred, name)
	if err != nil {
		return nil, err
	}
	log = log.WithField("fakeid", account.FakeID)

	articles, err := s.paginate(ctx, cred, account, p, log)
	if err != nil {
		return nil, err
	}

	if p.skipExisting {
		articles, err = s.dropExisting(ctx, articles, log)
		if err != nil {
			return nil, err
		}
	}

	if p.includeContent {
		if err := s.fetchContents(ctx, cred, account.Name, articles, log); err != nil {
			return nil, err
		}
	}

	log.InfoWithFields("Account scrape finished", map[string]interface{}{
		"articles": len(articles),
	})
	return articles, nil
}

func (s *Scraper) resolveAccount(ctx context.Context, cred *auth.Credential, name string) (models.Account, error) {
	if err := ctx.Err(); err != nil {
		return models.Account{}, errs.Wrap(errs.ErrorTypeCancelled, err, "scrape cancelled")
	}
	matches, err := s.client.SearchAccount(ctx, cred, name)
	if err != nil {
		return models.Account{}, fmt.Errorf("search account %q: %w", name, err)
	}
	if len(matches) == 0 {
		return models.Account{}, errs.Newf(errs.ErrorTypeAccountNotFound, "no account matches %q", name)
	}
	if len(matches) > 1 {
		s.logger.DebugWithFields("Several accounts matched, using the first", map[string]interface{}{
			"query":   name,
			"matches": len(matches),
			"chosen":  matches[0].Name,
		})
	}
	return matches[0], nil
}

func (s *Scraper) paginate(ctx context.Context, cred *auth.Credential, account models.Account, p plan, log logger.Logger) ([]models.Article, error) {
	var articles []models.Article
	seen := make(map[string]bool)

	for page := 0; !p.pageCapped() || page < p.maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.ErrorTypeCancelled, err, "scrape cancelled")
		}

		stubs, err := s.client.ListPage(ctx, cred, account.FakeID, page)
		if err != nil {
			switch errs.TypeOf(err) {
			case errs.ErrorTypeCancelled, errs.ErrorTypeAuthExpired, errs.ErrorTypeRateLimited:
				return nil, err
			}
			log.WithError(err).WarnWithFields("Listing failed, keeping collected articles", map[string]interface{}{
				"page":      page,
				"collected": len(articles),
			})
			break
		}

		if len(stubs) == 0 {
			if page == 0 {
				log.Warn("Account has no published articles")
			} else {
				log.DebugWithFields("Reached the last page", map[string]interface{}{"page": page})
			}
			break
		}

		stop := false
		for _, stub := range stubs {
			updated := stub.UpdateTime()
			if p.window.Enabled && updated.Before(p.window.Start) {
				stop = true
				break
			}
			if p.window.Enabled && updated.After(p.window.End) {
				continue
			}
			if seen[stub.CanonicalURL] {
				continue
			}
			seen[stub.CanonicalURL] = true

			articles = append(articles, models.Article{
				AccountName:  account.Name,
				Title:        stub.Title,
				URL:          stub.CanonicalURL,
				PublishEpoch: stub.UpdateEpoch,
				Digest:       stub.Digest,
			})
			if p.limit > 0 && len(articles) >= p.limit {
				stop = true
				break
			}
		}

		log.DebugWithFields("Page processed", map[string]interface{}{
			"page":      page,
			"items":     len(stubs),
			"collected": len(articles),
			"stop":      stop,
		})

		if stop || (p.pageCapped() && page+1 >= p.maxPages) {
			break
		}
		if err := s.sleep(ctx, s.settings.RequestInterval); err != nil {
			return nil, errs.Wrap(errs.ErrorTypeCancelled, err, "scrape cancelled")
		}
	}

	return articles, nil
}

func (s *Scraper) dropExisting(ctx context.Context, articles []models.Article, log logger.Logger) ([]models.Article, error) {
	if s.existence == nil {
		log.Warn("Skip existing requested without a persistence store, keeping all articles")
		return articles, nil
	}
	if len(articles) == 0 {
		return articles, nil
	}

	urls := make([]string, len(articles))
	for i, a := range articles {
		urls[i] = a.URL
	}
	existing, err := s.existence.FilterExisting(ctx, urls)
	if err != nil {
		if errs.IsType(err, errs.ErrorTypeCancelled) || errs.IsType(err, errs.ErrorTypePersistenceFailure) {
			return nil, err
		}
		return nil, errs.Wrap(errs.ErrorTypePersistenceFailure, err, "existence check failed")
	}

	stored := make(map[string]bool, len(existing))
	for _, u := range existing {
		stored[u] = true
	}
	fresh := articles[:0]
	for _, a := range articles {
		if !stored[a.URL] {
			fresh = append(fresh, a)
		}
	}

	log.InfoWithFields("Skipped stored articles", map[string]interface{}{
		"skipped":   len(articles) - len(fresh),
		"remaining": len(fresh),
	})
	return fresh, nil
}

func (s *Scraper) fetchContents(ctx context.Context, cred *auth.Credential, account string, articles []models.Article, log logger.Logger) error {
	for i := range articles {
		if err := ctx.Err(); err != nil {
			return errs.Wrap(errs.ErrorTypeCancelled, err, "scrape cancelled")
		}

		a := &articles[i]
		raw, err := s.client.FetchContent(ctx, cred, a.URL)
		if err != nil {
			if errs.IsType(err, errs.ErrorTypeCancelled) {
				return err
			}
			log.WithError(err).WarnWithFields("Content fetch failed, keeping article without body", map[string]interface{}{
				"url":   a.URL,
				"title": a.Title,
			})
		} else {
			n := s.normalizer.Normalize(raw)
			a.Content = n.Markup
			a.HTML = n.HTML
			a.Author = n.Author
			a.Images = n.Images
			a.Videos = n.Videos
		}

		logger.LogScrapeProgress(log, account, i+1, len(articles))

		if i+1 < len(articles) {
			if err := s.sleep(ctx, s.settings.ContentInterval); err != nil {
				return errs.Wrap(errs.ErrorTypeCancelled, err, "scrape cancelled")
			}
		}
	}
	return nil
}
