package downloader

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mpscraper/pkg/config"
	errs "mpscraper/pkg/errors"
	"mpscraper/pkg/logger"
	"mpscraper/pkg/models"
	"mpscraper/pkg/storage"
)

// MockClient fails the first failures[url] calls for a URL
type MockClient struct {
	downloadDelay   time.Duration
	failures        map[string]int
	downloadCounter int32
	inFlight        int32
	maxInFlight     int32
	calls           map[string]int
	mu              sync.Mutex
}

func (m *MockClient) DownloadMedia(ctx context.Context, url string) ([]byte, error) {
	atomic.AddInt32(&m.downloadCounter, 1)

	current := atomic.AddInt32(&m.inFlight, 1)
	defer atomic.AddInt32(&m.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&m.maxInFlight)
		if current <= peak || atomic.CompareAndSwapInt32(&m.maxInFlight, peak, current) {
			break
		}
	}

	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[url]++
	n := m.calls[url]
	m.mu.Unlock()

	if m.downloadDelay > 0 {
		select {
		case <-time.After(m.downloadDelay):
		case <-ctx.Done():
			return nil, errs.Wrap(errs.ErrorTypeCancelled, ctx.Err(), "download media")
		}
	}
	if n <= m.failures[url] {
		return nil, errs.Newf(errs.ErrorTypeServerError, "status 502 for %s", url)
	}
	return []byte("media:" + url), nil
}

// MaxInFlight returns the highest number of simultaneous downloads seen
func (m *MockClient) MaxInFlight() int {
	return int(atomic.LoadInt32(&m.maxInFlight))
}

func (m *MockClient) GetDownloadCount() int {
	return int(atomic.LoadInt32(&m.downloadCounter))
}

// MockStorage keeps saved files in memory
type MockStorage struct {
	files map[string]string
	mu    sync.Mutex
}

func NewMockStorage() *MockStorage {
	return &MockStorage{files: make(map[string]string)}
}

func (m *MockStorage) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

func (m *MockStorage) Save(r io.Reader, path string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = string(data)
	return nil
}

func (m *MockStorage) GetSavedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

func testMediaConfig() config.MediaConfig {
	cfg := config.DefaultConfig().Media
	cfg.RetryDelay = time.Millisecond
	cfg.Timeout = 0
	return cfg
}

func refs(urls ...string) []models.MediaRef {
	var out []models.MediaRef
	for _, u := range urls {
		kind := models.MediaImage
		if strings.Contains(u, "video") {
			kind = models.MediaVideo
		}
		out = append(out, models.MediaRef{RemoteURL: u, Kind: kind})
	}
	return out
}

func TestFetchAllPreservesOrder(t *testing.T) {
	client := &MockClient{downloadDelay: 5 * time.Millisecond}
	store := NewMockStorage()
	f := NewFetcher(client, store, testMediaConfig(), logger.NewNopLogger())

	input := refs(
		"https://mmbiz.qpic.cn/a/640?wx_fmt=png",
		"https://mpvideo.qpic.cn/video1.mp4",
		"https://mmbiz.qpic.cn/b.gif",
		"https://mmbiz.qpic.cn/c/0",
		"https://v.qq.com/video/preview",
	)
	out := f.FetchAll(context.Background(), input, "dest")

	if len(out) != len(input) {
		t.Fatalf("Expected %d results, got %d", len(input), len(out))
	}

	want := []string{
		filepath.Join("dest", "images", "image_1.png"),
		filepath.Join("dest", "videos", "video_1.mp4"),
		filepath.Join("dest", "images", "image_2.gif"),
		filepath.Join("dest", "images", "image_3.jpg"),
		filepath.Join("dest", "videos", "video_2.mp4"),
	}
	for i, ref := range out {
		if ref.RemoteURL != input[i].RemoteURL {
			t.Errorf("Result %d out of order: %s", i, ref.RemoteURL)
		}
		if ref.LocalPath != want[i] {
			t.Errorf("Result %d: expected path %s, got %s", i, want[i], ref.LocalPath)
		}
	}

	if store.GetSavedCount() != len(input) {
		t.Errorf("Expected %d saved files, got %d", len(input), store.GetSavedCount())
	}
}

func TestFetchAllRetries(t *testing.T) {
	client := &MockClient{failures: map[string]int{
		"https://mmbiz.qpic.cn/flaky.png":  2,
		"https://mmbiz.qpic.cn/broken.png": 100,
	}}
	store := NewMockStorage()
	cfg := testMediaConfig()
	cfg.RetryTimes = 3
	f := NewFetcher(client, store, cfg, logger.NewNopLogger())

	out := f.FetchAll(context.Background(), refs(
		"https://mmbiz.qpic.cn/flaky.png",
		"https://mmbiz.qpic.cn/broken.png",
		"https://mmbiz.qpic.cn/fine.png",
	), "dest")

	if !out[0].Downloaded() {
		t.Error("Expected flaky resource to succeed after retries")
	}
	if out[1].Downloaded() {
		t.Error("Expected broken resource to have no local path")
	}
	if !out[2].Downloaded() {
		t.Error("Expected healthy resource to be stored")
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if client.calls["https://mmbiz.qpic.cn/flaky.png"] != 3 {
		t.Errorf("Expected 3 attempts for flaky resource, got %d", client.calls["https://mmbiz.qpic.cn/flaky.png"])
	}
	if client.calls["https://mmbiz.qpic.cn/broken.png"] != 4 {
		t.Errorf("Expected 1+3 attempts for broken resource, got %d", client.calls["https://mmbiz.qpic.cn/broken.png"])
	}
}

func TestFetchAllSkipsExisting(t *testing.T) {
	client := &MockClient{}
	store := NewMockStorage()
	store.files[filepath.Join("dest", "images", "image_1.jpg")] = "old"

	f := NewFetcher(client, store, testMediaConfig(), nil)
	out := f.FetchAll(context.Background(), refs(
		"https://mmbiz.qpic.cn/first.jpg",
		"https://mmbiz.qpic.cn/second.jpg",
	), "dest")

	if !out[0].Downloaded() || !out[1].Downloaded() {
		t.Error("Expected both resources to resolve to local paths")
	}
	if client.GetDownloadCount() != 1 {
		t.Errorf("Expected 1 download, got %d", client.GetDownloadCount())
	}
	if store.files[filepath.Join("dest", "images", "image_1.jpg")] != "old" {
		t.Error("Expected existing file to be kept")
	}

	cfg := testMediaConfig()
	cfg.OverwriteExisting = true
	f = NewFetcher(client, store, cfg, nil)
	f.FetchAll(context.Background(), refs("https://mmbiz.qpic.cn/first.jpg"), "dest")
	if store.files[filepath.Join("dest", "images", "image_1.jpg")] == "old" {
		t.Error("Expected existing file to be overwritten")
	}
}

func TestFetchAllConcurrency(t *testing.T) {
	client := &MockClient{downloadDelay: 100 * time.Millisecond}
	cfg := testMediaConfig()
	cfg.Concurrent = 5
	f := NewFetcher(client, NewMockStorage(), cfg, nil)

	var input []models.MediaRef
	for i := 0; i < 10; i++ {
		input = append(input, models.MediaRef{RemoteURL: fmt.Sprintf("https://example.com/%d.jpg", i), Kind: models.MediaImage})
	}

	start := time.Now()
	out := f.FetchAll(context.Background(), input, "dest")
	elapsed := time.Since(start)

	// 10 jobs of 100ms over 5 workers take about 200ms
	if elapsed > 500*time.Millisecond {
		t.Errorf("Downloads took too long: %v", elapsed)
	}
	if len(out) != 10 {
		t.Errorf("Expected 10 results, got %d", len(out))
	}
	if peak := client.MaxInFlight(); peak != cfg.Concurrent {
		t.Errorf("Expected exactly %d simultaneous downloads, saw %d", cfg.Concurrent, peak)
	}
}

func TestFetchAllRespectsWorkerLimit(t *testing.T) {
	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("%d workers", workers), func(t *testing.T) {
			client := &MockClient{downloadDelay: 30 * time.Millisecond}
			cfg := testMediaConfig()
			cfg.Concurrent = workers
			f := NewFetcher(client, NewMockStorage(), cfg, nil)

			var input []models.MediaRef
			for i := 0; i < 4*workers; i++ {
				input = append(input, models.MediaRef{RemoteURL: fmt.Sprintf("https://example.com/%d.jpg", i), Kind: models.MediaImage})
			}
			f.FetchAll(context.Background(), input, "dest")

			if peak := client.MaxInFlight(); peak > workers {
				t.Errorf("Expected at most %d simultaneous downloads, saw %d", workers, peak)
			}
			if client.GetDownloadCount() != len(input) {
				t.Errorf("Expected %d downloads, got %d", len(input), client.GetDownloadCount())
			}
		})
	}
}

func TestFetchAllCancelled(t *testing.T) {
	client := &MockClient{downloadDelay: time.Second}
	cfg := testMediaConfig()
	cfg.Concurrent = 2
	f := NewFetcher(client, NewMockStorage(), cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	input := refs("https://a/1.jpg", "https://a/2.jpg", "https://a/3.jpg", "https://a/4.jpg", "https://a/5.jpg", "https://a/6.jpg", "https://a/7.jpg")
	start := time.Now()
	out := f.FetchAll(ctx, input, "dest")

	if time.Since(start) > 500*time.Millisecond {
		t.Error("Expected cancellation to stop the pool promptly")
	}
	if len(out) != len(input) {
		t.Fatalf("Expected %d results, got %d", len(input), len(out))
	}
	for _, ref := range out {
		if ref.Downloaded() {
			t.Errorf("Expected no local path after cancellation, got %s", ref.LocalPath)
		}
	}
}

func TestFetchAllWritesThroughStorageManager(t *testing.T) {
	manager, err := storage.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	f := NewFetcher(&MockClient{}, manager, testMediaConfig(), nil)

	dest := manager.Path("acct", "article")
	out := f.FetchAll(context.Background(), refs("https://mmbiz.qpic.cn/x.webp"), dest)

	if out[0].LocalPath != filepath.Join(dest, "images", "image_1.webp") {
		t.Errorf("Unexpected local path %s", out[0].LocalPath)
	}
	if !manager.Exists(out[0].LocalPath) {
		t.Error("Expected file on disk")
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		pattern string
		ref     models.MediaRef
		index   int
		want    string
	}{
		{DefaultNamingPattern, models.MediaRef{RemoteURL: "https://x/a.PNG", Kind: models.MediaImage}, 3, "image_3.png"},
		{DefaultNamingPattern, models.MediaRef{RemoteURL: "https://x/640?wx_fmt=jpeg&tp=webp", Kind: models.MediaImage}, 1, "image_1.jpeg"},
		{DefaultNamingPattern, models.MediaRef{RemoteURL: "https://x/noext", Kind: models.MediaImage}, 2, "image_2.jpg"},
		{DefaultNamingPattern, models.MediaRef{RemoteURL: "https://v.qq.com/iframe/preview.html?vid=1", Kind: models.MediaVideo}, 1, "video_1.html"},
		{"{index}-{type}.{ext}", models.MediaRef{RemoteURL: "https://x/clip", Kind: models.MediaVideo}, 4, "4-video.mp4"},
	}

	for _, tt := range tests {
		if got := FileName(tt.pattern, tt.ref, tt.index); got != tt.want {
			t.Errorf("FileName(%q, %s) = %s, want %s", tt.pattern, tt.ref.RemoteURL, got, tt.want)
		}
	}
}
