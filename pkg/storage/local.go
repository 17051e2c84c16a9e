package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"mpscraper/pkg/config"
	"mpscraper/pkg/logger"
	"mpscraper/pkg/metadata"
	"mpscraper/pkg/models"
)

const maxFolderNameRunes = 100

var (
	reservedChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespace    = regexp.MustCompile(`\s+`)
	underscores   = regexp.MustCompile(`_{2,}`)
)

// MediaFetcher downloads article media into a directory
type MediaFetcher interface {
	FetchAll(ctx context.Context, refs []models.MediaRef, destDir string) []models.MediaRef
}

// LocalWriter saves articles as directories of files:
//
//	<base_dir>/<account>/<folder>/article.md
//	<base_dir>/<account>/<folder>/article.json
//	<base_dir>/<account>/<folder>/images/image_1.png
type LocalWriter struct {
	files  *Manager
	cfg    config.LocalConfig
	media  MediaFetcher
	logger logger.Logger
	now    func() time.Time
}

// NewLocalWriter creates a writer. A nil media fetcher keeps remote media
// links untouched.
func NewLocalWriter(files *Manager, cfg config.LocalConfig, media MediaFetcher, log logger.Logger) *LocalWriter {
	if log == nil {
		log = logger.GetLogger()
	}
	return &LocalWriter{files: files, cfg: cfg, media: media, logger: log, now: time.Now}
}

// Save writes one article and returns its directory.
func (w *LocalWriter) Save(ctx context.Context, a *models.Article) (string, error) {
	dir := w.ArticleDir(a)

	var media []models.MediaRef
	if w.media != nil && (len(a.Images) > 0 || len(a.Videos) > 0) {
		w.logger.DebugWithFields("Downloading article media", map[string]interface{}{
			"url":    a.URL,
			"images": len(a.Images),
			"videos": len(a.Videos),
		})
		media = w.media.FetchAll(ctx, a.MediaRefs(), dir)
	}

	body, name := a.Content, "article.md"
	if w.cfg.SaveAs == "html" {
		body, name = a.HTML, "article.html"
	}
	body = rewriteLinks(body, media, dir)

	if w.cfg.IncludeMetadata {
		meta := metadata.FromArticle(a, media, dir, w.now())
		meta.ContentFile = name
		data, err := meta.Encode()
		if err != nil {
			return "", err
		}
		if err := w.files.WriteFile(filepath.Join(dir, metadata.FileName), data); err != nil {
			return "", fmt.Errorf("failed to save metadata: %w", err)
		}
	}

	if err := w.files.WriteFile(filepath.Join(dir, name), []byte(body)); err != nil {
		return "", fmt.Errorf("failed to save article: %w", err)
	}

	w.logger.InfoWithFields("Article saved", map[string]interface{}{
		"title": a.Title,
		"dir":   dir,
	})
	return dir, nil
}

// ArticleDir returns the directory an article is saved into
func (w *LocalWriter) ArticleDir(a *models.Article) string {
	folder := FolderName(w.cfg.FolderNameTemplate, a)
	if w.cfg.SanitizeFilename {
		folder = SanitizeFilename(folder)
	}
	return w.files.Path(pathSegment(SanitizeFilename(a.AccountName)), pathSegment(folder))
}

// pathSegment keeps name a single directory below its parent, whatever
// sanitize_filename says.
func pathSegment(name string) string {
	name = strings.NewReplacer("/", "-", "\\", "-").Replace(name)
	switch strings.TrimSpace(name) {
	case "", ".", "..":
		return "_"
	}
	return name
}

// FolderName expands {date} and {title} in template. Articles without a
// publish time get the date "unknown".
func FolderName(template string, a *models.Article) string {
	if template == "" {
		template = "{date}_{title}"
	}
	date := "unknown"
	if a.PublishEpoch > 0 {
		date = a.PublishTime().Format("2006-01-02")
	}
	return strings.NewReplacer("{date}", date, "{title}", a.Title).Replace(template)
}

// SanitizeFilename replaces characters that are unsafe in file names,
// collapses whitespace to underscores and caps the length.
func SanitizeFilename(name string) string {
	name = reservedChars.ReplaceAllString(name, "-")
	name = whitespace.ReplaceAllString(name, "_")
	name = underscores.ReplaceAllString(name, "_")
	if r := []rune(name); len(r) > maxFolderNameRunes {
		name = string(r[:maxFolderNameRunes])
	}
	return name
}

func rewriteLinks(body string, media []models.MediaRef, dir string) string {
	for _, ref := range media {
		if !ref.Downloaded() {
			continue
		}
		rel, err := filepath.Rel(dir, ref.LocalPath)
		if err != nil {
			continue
		}
		body = strings.ReplaceAll(body, ref.RemoteURL, filepath.ToSlash(rel))
	}
	return body
}
