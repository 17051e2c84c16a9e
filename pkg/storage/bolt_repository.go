package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"mpscraper/pkg/logger"
	"mpscraper/pkg/models"
)

const (
	articleBucket = "articles"
	accountBucket = "accounts"
)

type accountRecord struct {
	Name      string    `json:"name"`
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"created_at"`
}

// BoltRepository is an embedded single-file article store.
type BoltRepository struct {
	db     *bolt.DB
	logger logger.Logger
	now    func() time.Time
}

// OpenBolt opens or creates a bbolt database at path.
func OpenBolt(path string, log logger.Logger) (*BoltRepository, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{articleBucket, accountBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	log.DebugWithFields("Opened article store", map[string]interface{}{
		"driver": "bbolt",
		"path":   path,
	})
	return &BoltRepository{db: db, logger: log, now: time.Now}, nil
}

// FilterExisting implements Repository
func (b *BoltRepository) FilterExisting(ctx context.Context, urls []string) ([]string, error) {
	if err := checkContext(ctx, "filter existing"); err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, nil
	}

	found := make(map[string]bool, len(urls))
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(articleBucket))
		if bucket == nil {
			return fmt.Errorf("article bucket missing")
		}
		for _, u := range urls {
			if bucket.Get([]byte(u)) != nil {
				found[u] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, persistenceError(err, "filter existing")
	}
	return keepOrder(urls, found), nil
}

// Upsert implements Repository
func (b *BoltRepository) Upsert(ctx context.Context, a *models.Article) error {
	if err := checkContext(ctx, "upsert article"); err != nil {
		return err
	}
	now := b.now()

	err := b.db.Update(func(tx *bolt.Tx) error {
		accounts := tx.Bucket([]byte(accountBucket))
		articles := tx.Bucket([]byte(articleBucket))
		if accounts == nil || articles == nil {
			return fmt.Errorf("bucket missing")
		}

		if accounts.Get([]byte(a.AccountName)) == nil {
			data, err := json.Marshal(accountRecord{Name: a.AccountName, Platform: Platform, CreatedAt: now})
			if err != nil {
				return err
			}
			if err := accounts.Put([]byte(a.AccountName), data); err != nil {
				return err
			}
		}

		var rec articleRecord
		if existing := articles.Get([]byte(a.URL)); existing != nil {
			if err := json.Unmarshal(existing, &rec); err != nil {
				return fmt.Errorf("decode stored article: %w", err)
			}
		}
		rec.merge(a, now)

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return articles.Put([]byte(a.URL), data)
	})
	return persistenceError(err, "upsert article")
}

// Get returns the stored article for url, or false when absent
func (b *BoltRepository) Get(url string) (*models.Article, bool, error) {
	var rec *articleRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(articleBucket)).Get([]byte(url))
		if data == nil {
			return nil
		}
		rec = &articleRecord{}
		return json.Unmarshal(data, rec)
	})
	if err != nil || rec == nil {
		return nil, false, err
	}

	return &models.Article{
		AccountName:  rec.Account,
		Title:        rec.Title,
		URL:          rec.URL,
		PublishEpoch: rec.PublishTime,
		Digest:       rec.Digest,
		Author:       rec.Author,
		Content:      rec.Content,
		Images:       rec.Images,
		Videos:       rec.Videos,
	}, true, nil
}

// Count returns the number of stored articles
func (b *BoltRepository) Count() (int, error) {
	var n int
	err := b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(articleBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the database.
func (b *BoltRepository) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
