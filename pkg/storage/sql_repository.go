package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"mpscraper/pkg/config"
	"mpscraper/pkg/logger"
	"mpscraper/pkg/models"
)

// Account is one harvested official account
type Account struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"size:128;uniqueIndex:idx_account_name_platform" json:"name"`
	Platform string `gorm:"size:32;uniqueIndex:idx_account_name_platform" json:"platform"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ArticleRow is the relational form of an article
type ArticleRow struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	AccountID        uint           `gorm:"index" json:"accountId"`
	Title            string         `gorm:"size:512" json:"title"`
	URL              string         `gorm:"size:768;uniqueIndex" json:"url"`
	PublishTimestamp int64          `gorm:"index" json:"publishTimestamp"`
	PublishTime      *time.Time     `json:"publishTime"`
	Digest           string         `gorm:"size:1024" json:"digest"`
	Author           string         `gorm:"size:128" json:"author"`
	Content          string         `gorm:"type:text" json:"content"`
	Images           datatypes.JSON `json:"images"`
	Videos           datatypes.JSON `json:"videos"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName keeps the table name independent of the Go type
func (ArticleRow) TableName() string { return "articles" }

// SQLRepository stores articles in PostgreSQL or MySQL through gorm.
type SQLRepository struct {
	DB     *gorm.DB
	logger logger.Logger
}

// OpenSQL connects to driver ("postgres" or "mysql") and migrates the
// schema.
func OpenSQL(driver, dsn string, log logger.Logger) (*SQLRepository, error) {
	var dialector gorm.Dialector
	switch driver {
	case config.DriverPostgres:
		dialector = postgres.Open(dsn)
	case config.DriverMySQL:
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return NewSQLRepository(db, log)
}

// NewSQLRepository wraps an open gorm handle and migrates the schema.
func NewSQLRepository(db *gorm.DB, log logger.Logger) (*SQLRepository, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if err := db.AutoMigrate(&Account{}, &ArticleRow{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	log.DebugWithFields("Opened article store", map[string]interface{}{
		"driver": db.Dialector.Name(),
	})
	return &SQLRepository{DB: db, logger: log}, nil
}

// FilterExisting implements Repository
func (s *SQLRepository) FilterExisting(ctx context.Context, urls []string) ([]string, error) {
	if err := checkContext(ctx, "filter existing"); err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, nil
	}

	var existing []string
	if err := s.DB.WithContext(ctx).Model(&ArticleRow{}).Where("url IN ?", urls).Pluck("url", &existing).Error; err != nil {
		return nil, persistenceError(err, "filter existing")
	}

	found := make(map[string]bool, len(existing))
	for _, u := range existing {
		found[u] = true
	}
	return keepOrder(urls, found), nil
}

// Upsert implements Repository
func (s *SQLRepository) Upsert(ctx context.Context, a *models.Article) error {
	if err := checkContext(ctx, "upsert article"); err != nil {
		return err
	}

	row, err := toRow(a)
	if err != nil {
		return persistenceError(err, "upsert article")
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account := Account{Name: a.AccountName, Platform: Platform}
		if err := tx.Where("name = ? AND platform = ?", account.Name, account.Platform).FirstOrCreate(&account).Error; err != nil {
			return fmt.Errorf("ensure account: %w", err)
		}
		row.AccountID = account.ID

		updates := map[string]any{
			"account_id":        row.AccountID,
			"title":             row.Title,
			"publish_timestamp": row.PublishTimestamp,
			"publish_time":      row.PublishTime,
		}
		if row.Digest != "" {
			updates["digest"] = row.Digest
		}
		if a.HasContent() {
			updates["author"] = row.Author
			updates["content"] = row.Content
			updates["images"] = row.Images
			updates["videos"] = row.Videos
		}

		var stored ArticleRow
		if err := tx.Where("url = ?", row.URL).Attrs(row).FirstOrCreate(&stored).Error; err != nil {
			return fmt.Errorf("create article: %w", err)
		}
		return tx.Model(&stored).Updates(updates).Error
	})
	return persistenceError(err, "upsert article")
}

// Close releases the connection pool
func (s *SQLRepository) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(a *models.Article) (ArticleRow, error) {
	images, err := json.Marshal(nonNilSlice(a.Images))
	if err != nil {
		return ArticleRow{}, err
	}
	videos, err := json.Marshal(nonNilSlice(a.Videos))
	if err != nil {
		return ArticleRow{}, err
	}

	row := ArticleRow{
		Title:            truncateRunes(strings.ToValidUTF8(a.Title, "�"), 512),
		URL:              a.URL,
		PublishTimestamp: a.PublishEpoch,
		Digest:           truncateRunes(strings.ToValidUTF8(a.Digest, "�"), 1024),
		Author:           truncateRunes(a.Author, 128),
		Content:          strings.ToValidUTF8(a.Content, "�"),
		Images:           datatypes.JSON(images),
		Videos:           datatypes.JSON(videos),
	}
	if a.PublishEpoch > 0 {
		t := a.PublishTime()
		row.PublishTime = &t
	}
	return row, nil
}

func truncateRunes(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
