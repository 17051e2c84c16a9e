package downloader

import (
	"context"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"mpscraper/pkg/config"
	"mpscraper/pkg/logger"
	"mpscraper/pkg/models"
	"mpscraper/pkg/ratelimit"
)

// DefaultNamingPattern names media files by kind and per-kind index.
const DefaultNamingPattern = "{type}_{index}.{ext}"

// Fetcher downloads the media of one article at a time through a
// bounded worker pool.
type Fetcher struct {
	client  MediaClient
	storage MediaStorage
	opts    PoolOptions
	pattern string
	logger  logger.Logger
}

// NewFetcher creates a Fetcher from the media section of the config.
func NewFetcher(client MediaClient, storage MediaStorage, cfg config.MediaConfig, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	pattern := cfg.NamingPattern
	if pattern == "" {
		pattern = DefaultNamingPattern
	}

	return &Fetcher{
		client:  client,
		storage: storage,
		opts: PoolOptions{
			Workers:    cfg.Concurrent,
			RetryTimes: cfg.RetryTimes,
			RetryDelay: cfg.RetryDelay,
			Timeout:    cfg.Timeout,
			Overwrite:  cfg.OverwriteExisting,
			Limiter:    ratelimit.PerMinute(cfg.RequestsPerMinute),
		},
		pattern: pattern,
		logger:  log,
	}
}

// FetchAll downloads refs into destDir/images and destDir/videos. The
// result has one entry per input in input order; LocalPath is set only for
// resources that were stored. Individual failures never fail the batch.
func (f *Fetcher) FetchAll(ctx context.Context, refs []models.MediaRef, destDir string) []models.MediaRef {
	out := make([]models.MediaRef, len(refs))
	for i, ref := range refs {
		ref.LocalPath = ""
		out[i] = ref
	}
	if len(refs) == 0 {
		return out
	}

	jobs := f.plan(refs, destDir)

	pool := NewWorkerPool(ctx, f.client, f.storage, f.opts, f.logger)
	pool.Start()

	go func() {
		defer pool.Stop()
		for _, job := range jobs {
			if err := pool.Submit(job); err != nil {
				f.logger.WithError(err).Debug("Media submission stopped")
				return
			}
		}
	}()

	var stored, failed int
	for result := range pool.Results() {
		if result.Success {
			out[result.Job.Index].LocalPath = result.Job.Path
			stored++
		} else {
			failed++
		}
	}

	f.logger.DebugWithFields("Media batch finished", map[string]interface{}{
		"dest":   destDir,
		"total":  len(refs),
		"stored": stored,
		"failed": failed,
	})
	return out
}

// plan assigns file paths. Indices count per kind from 1 in input order.
func (f *Fetcher) plan(refs []models.MediaRef, destDir string) []DownloadJob {
	counters := make(map[models.MediaKind]int)
	jobs := make([]DownloadJob, 0, len(refs))
	for i, ref := range refs {
		counters[ref.Kind]++
		name := FileName(f.pattern, ref, counters[ref.Kind])
		jobs = append(jobs, DownloadJob{
			Index: i,
			Ref:   ref,
			Path:  filepath.Join(destDir, kindDir(ref.Kind), name),
		})
	}
	return jobs
}

// FileName expands a naming pattern for one resource.
func FileName(pattern string, ref models.MediaRef, index int) string {
	r := strings.NewReplacer(
		"{type}", string(ref.Kind),
		"{index}", strconv.Itoa(index),
		"{ext}", Extension(ref),
	)
	return r.Replace(pattern)
}

// Extension derives a file extension from the resource URL. WeChat image
// URLs carry the format in a wx_fmt query parameter instead of the path.
func Extension(ref models.MediaRef) string {
	if u, err := url.Parse(ref.RemoteURL); err == nil {
		if ext := strings.TrimPrefix(path.Ext(u.Path), "."); validExt(ext) {
			return strings.ToLower(ext)
		}
		if ext := u.Query().Get("wx_fmt"); validExt(ext) {
			return strings.ToLower(ext)
		}
	}

	if ref.Kind == models.MediaVideo {
		return "mp4"
	}
	return "jpg"
}

func validExt(ext string) bool {
	if ext == "" || len(ext) > 5 {
		return false
	}
	for _, r := range ext {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func kindDir(kind models.MediaKind) string {
	if kind == models.MediaVideo {
		return "videos"
	}
	return "images"
}
