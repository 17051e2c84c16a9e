package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mpscraper/pkg/models"
)

// FileName is the metadata file written next to each saved article
const FileName = "article.json"

// ArticleMetadata describes one saved article
type ArticleMetadata struct {
	// Core identifiers
	Title   string `json:"title"`
	URL     string `json:"url"`
	Account string `json:"account"`
	Author  string `json:"author,omitempty"`
	Digest  string `json:"digest,omitempty"`

	// Timestamps
	PublishTime  *time.Time `json:"publish_time,omitempty"`
	DownloadedAt time.Time  `json:"downloaded_at"`

	// Remote media as found in the article body
	Images []string `json:"images"`
	Videos []string `json:"videos"`

	// Media stored next to the article
	Media []MediaFile `json:"media,omitempty"`

	ContentFile string `json:"content_file,omitempty"`
}

// MediaFile maps a remote resource to its file relative to the article
// directory
type MediaFile struct {
	URL  string `json:"url"`
	Kind string `json:"kind"`
	Path string `json:"path"`
}

// FromArticle builds metadata for an article. Only downloaded media refs
// are listed under Media; paths are made relative to articleDir.
func FromArticle(a *models.Article, media []models.MediaRef, articleDir string, downloadedAt time.Time) *ArticleMetadata {
	meta := &ArticleMetadata{
		Title:        a.Title,
		URL:          a.URL,
		Account:      a.AccountName,
		Author:       a.Author,
		Digest:       a.Digest,
		DownloadedAt: downloadedAt,
		Images:       nonNil(a.Images),
		Videos:       nonNil(a.Videos),
	}

	if a.PublishEpoch > 0 {
		t := a.PublishTime()
		meta.PublishTime = &t
	}

	for _, ref := range media {
		if !ref.Downloaded() {
			continue
		}
		rel, err := filepath.Rel(articleDir, ref.LocalPath)
		if err != nil {
			rel = ref.LocalPath
		}
		meta.Media = append(meta.Media, MediaFile{
			URL:  ref.RemoteURL,
			Kind: string(ref.Kind),
			Path: filepath.ToSlash(rel),
		})
	}

	return meta
}

// Encode renders the metadata as indented JSON
func (m *ArticleMetadata) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return data, nil
}

// Load reads the metadata file of an article directory
func Load(articleDir string) (*ArticleMetadata, error) {
	data, err := os.ReadFile(filepath.Join(articleDir, FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var meta ArticleMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &meta, nil
}

// Exists checks if an article directory carries a metadata file
func Exists(articleDir string) bool {
	_, err := os.Stat(filepath.Join(articleDir, FileName))
	return err == nil
}

// LocalPaths returns the remote-to-relative path mapping of stored media
func (m *ArticleMetadata) LocalPaths() map[string]string {
	paths := make(map[string]string, len(m.Media))
	for _, f := range m.Media {
		paths[f.URL] = f.Path
	}
	return paths
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
