package scraper

import (
	"context"

	errs "mpscraper/pkg/errors"
	"mpscraper/pkg/events"
	"mpscraper/pkg/logger"
	"mpscraper/pkg/models"
)

// LocalSaver writes one article below the output directory and returns
// the article directory.
type LocalSaver interface {
	Save(ctx context.Context, a *models.Article) (string, error)
}

// ArticleStore upserts articles into the database.
type ArticleStore interface {
	Upsert(ctx context.Context, a *models.Article) error
}

// Persister stores harvested articles in every configured target and
// announces each one. A nil target is skipped.
type Persister struct {
	local     LocalSaver
	store     ArticleStore
	publisher events.Publisher
	logger    logger.Logger
}

// NewPersister creates a Persister
func NewPersister(local LocalSaver, store ArticleStore, publisher events.Publisher, log logger.Logger) *Persister {
	if log == nil {
		log = logger.GetLogger()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Persister{local: local, store: store, publisher: publisher, logger: log}
}

// PersistAll saves articles in order and returns how many were stored.
// Storage failures abort; event publishing failures are only logged.
func (p *Persister) PersistAll(ctx context.Context, articles []models.Article) (int, error) {
	saved := 0
	for i := range articles {
		if err := ctx.Err(); err != nil {
			return saved, errs.Wrap(errs.ErrorTypeCancelled, err, "persist cancelled")
		}
		if err := p.Persist(ctx, &articles[i]); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

// Persist stores a single article
func (p *Persister) Persist(ctx context.Context, a *models.Article) error {
	var dir string
	if p.local != nil {
		d, err := p.local.Save(ctx, a)
		if err != nil {
			return asPersistence(err, "save article locally")
		}
		dir = d
	}

	if p.store != nil {
		if err := p.store.Upsert(ctx, a); err != nil {
			return asPersistence(err, "upsert article")
		}
	}

	if err := p.publisher.PublishArticleHarvested(ctx, a, dir); err != nil {
		p.logger.WithError(err).WarnWithFields("Failed to publish harvest event", map[string]interface{}{
			"url": a.URL,
		})
	}

	p.logger.DebugWithFields("Article persisted", map[string]interface{}{
		"account": a.AccountName,
		"title":   a.Title,
		"dir":     dir,
	})
	return nil
}

func asPersistence(err error, op string) error {
	switch errs.TypeOf(err) {
	case errs.ErrorTypePersistenceFailure, errs.ErrorTypeCancelled:
		return err
	}
	return errs.Wrap(errs.ErrorTypePersistenceFailure, err, op)
}
