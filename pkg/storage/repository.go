package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mpscraper/pkg/config"
	errs "mpscraper/pkg/errors"
	"mpscraper/pkg/logger"
	"mpscraper/pkg/models"
)

// Platform tags account rows so the schema can hold other sources later.
const Platform = "wechat"

// Repository stores harvested articles keyed by URL.
type Repository interface {
	// FilterExisting returns the subset of urls already stored, in input
	// order.
	FilterExisting(ctx context.Context, urls []string) ([]string, error)
	// Upsert creates the article's account if needed and inserts or
	// updates the article by URL.
	Upsert(ctx context.Context, a *models.Article) error
	Close() error
}

// OpenRepository opens the configured database backend.
func OpenRepository(cfg config.DatabaseConfig, log logger.Logger) (Repository, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	driver := strings.TrimSpace(strings.ToLower(cfg.Driver))
	switch driver {
	case config.DriverBolt:
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return OpenBolt(cfg.Path, log)
	case config.DriverPostgres, config.DriverMySQL:
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, fmt.Errorf("%s storage requires a dsn", driver)
		}
		return OpenSQL(driver, cfg.DSN, log)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// articleRecord is the stored form of an article
type articleRecord struct {
	Account     string    `json:"account"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishTime int64     `json:"publish_time"`
	Digest      string    `json:"digest,omitempty"`
	Author      string    `json:"author,omitempty"`
	Content     string    `json:"content,omitempty"`
	Images      []string  `json:"images,omitempty"`
	Videos      []string  `json:"videos,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// merge applies a newer harvest of the same article. Content-less
// harvests never erase a previously stored body.
func (r *articleRecord) merge(a *models.Article, now time.Time) {
	r.Account = a.AccountName
	r.Title = a.Title
	r.URL = a.URL
	r.PublishTime = a.PublishEpoch
	r.UpdatedAt = now
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if a.Digest != "" {
		r.Digest = a.Digest
	}
	if a.HasContent() {
		r.Author = a.Author
		r.Content = a.Content
		r.Images = a.Images
		r.Videos = a.Videos
	}
}

func persistenceError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errs.IsType(err, errs.ErrorTypePersistenceFailure) || errs.IsType(err, errs.ErrorTypeCancelled) {
		return err
	}
	return errs.Wrap(errs.ErrorTypePersistenceFailure, err, op)
}

func checkContext(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.ErrorTypeCancelled, err, op)
	}
	return nil
}

// keepOrder returns the urls present in found, in the order of urls.
func keepOrder(urls []string, found map[string]bool) []string {
	var out []string
	for _, u := range urls {
		if found[u] {
			out = append(out, u)
		}
	}
	return out
}
