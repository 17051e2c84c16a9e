package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mpscraper/pkg/config"
	"mpscraper/pkg/logger"
	"mpscraper/pkg/metadata"
	"mpscraper/pkg/models"
)

// stubFetcher stores every resource except those listed in fail
type stubFetcher struct {
	fail  map[string]bool
	calls int
}

func (s *stubFetcher) FetchAll(_ context.Context, refs []models.MediaRef, destDir string) []models.MediaRef {
	s.calls++
	out := make([]models.MediaRef, len(refs))
	for i, ref := range refs {
		out[i] = ref
		if !s.fail[ref.RemoteURL] {
			out[i].LocalPath = filepath.Join(destDir, string(ref.Kind)+"s", filepath.Base(ref.RemoteURL))
		}
	}
	return out
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`2024-01-02_a/b:c*d?`, `2024-01-02_a-b-c-d-`},
		{"hello   world\tagain", "hello_world_again"},
		{"a _ b", "a_b"},
		{`<x>"y"|z\`, `-x--y--z-`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), tt.in)
	}

	long := strings.Repeat("文", 150)
	assert.Equal(t, 100, len([]rune(SanitizeFilename(long))))
}

func TestFolderName(t *testing.T) {
	a := &models.Article{Title: "Title", PublishEpoch: time.Date(2024, 3, 9, 12, 0, 0, 0, time.Local).Unix()}
	assert.Equal(t, "2024-03-09_Title", FolderName("{date}_{title}", a))
	assert.Equal(t, "Title-2024-03-09", FolderName("{title}-{date}", a))
	assert.Equal(t, "unknown_x", FolderName("", &models.Article{Title: "x"}))
}

func TestLocalWriterSave(t *testing.T) {
	files, err := NewManager(t.TempDir())
	require.NoError(t, err)

	fetcher := &stubFetcher{fail: map[string]bool{"https://img/broken.png": true}}
	cfg := config.DefaultConfig().Storage.Local
	w := NewLocalWriter(files, cfg, fetcher, logger.NewNopLogger())
	w.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }

	a := &models.Article{
		AccountName:  "Daily Tech",
		Title:        "Week 1: notes",
		URL:          "https://mp/s/1",
		PublishEpoch: time.Date(2024, 4, 30, 8, 0, 0, 0, time.Local).Unix(),
		Content:      "![](https://img/a.png)\n\ntext ![](https://img/broken.png) ![](https://img/a.png)",
		Images:       []string{"https://img/a.png", "https://img/broken.png"},
		Videos:       []string{"https://vid/v.mp4"},
	}

	dir, err := w.Save(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, files.Path("Daily_Tech", "2024-04-30_Week_1-_notes"), dir)
	assert.Equal(t, 1, fetcher.calls)

	body, err := os.ReadFile(filepath.Join(dir, "article.md"))
	require.NoError(t, err)
	assert.Equal(t, "![](images/a.png)\n\ntext ![](https://img/broken.png) ![](images/a.png)", string(body))

	meta, err := metadata.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "Week 1: notes", meta.Title)
	assert.Equal(t, "https://mp/s/1", meta.URL)
	assert.Equal(t, "article.md", meta.ContentFile)
	assert.Equal(t, a.Images, meta.Images)
	assert.Equal(t, map[string]string{
		"https://img/a.png": "images/a.png",
		"https://vid/v.mp4": "videos/v.mp4",
	}, meta.LocalPaths())
	require.NotNil(t, meta.PublishTime)
	assert.Equal(t, a.PublishEpoch, meta.PublishTime.Unix())
}

func TestLocalWriterHTMLWithoutMedia(t *testing.T) {
	files, err := NewManager(t.TempDir())
	require.NoError(t, err)

	cfg := config.DefaultConfig().Storage.Local
	cfg.SaveAs = "html"
	cfg.IncludeMetadata = false
	cfg.FolderNameTemplate = "{title}"
	w := NewLocalWriter(files, cfg, nil, nil)

	a := &models.Article{
		AccountName: "acct",
		Title:       "plain",
		URL:         "https://mp/s/2",
		Content:     "markdown",
		HTML:        `<p><img src="https://img/a.png"></p>`,
		Images:      []string{"https://img/a.png"},
	}
	dir, err := w.Save(context.Background(), a)
	require.NoError(t, err)

	body, err := os.ReadFile(filepath.Join(dir, "article.html"))
	require.NoError(t, err)
	assert.Equal(t, a.HTML, string(body))
	assert.False(t, metadata.Exists(dir))
}

func TestLocalWriterStaysUnderRoot(t *testing.T) {
	root := t.TempDir()
	files, err := NewManager(filepath.Join(root, "out"))
	require.NoError(t, err)

	cfg := config.DefaultConfig().Storage.Local
	cfg.SanitizeFilename = false
	cfg.IncludeMetadata = false
	cfg.FolderNameTemplate = "{title}"
	w := NewLocalWriter(files, cfg, nil, logger.NewNopLogger())

	for _, title := range []string{"../../escaped", "..", `..\..\win`, "a/b"} {
		a := &models.Article{AccountName: "Daily Tech", Title: title, URL: "https://mp/s/" + title, Content: "body"}
		dir, err := w.Save(context.Background(), a)
		require.NoError(t, err, title)

		account := files.Path("Daily_Tech")
		assert.Equal(t, account, filepath.Dir(dir), title)
		assert.True(t, strings.HasPrefix(dir, files.Root()+string(filepath.Separator)), title)
	}
	assert.NoDirExists(t, filepath.Join(root, "escaped"))
	assert.NoFileExists(t, filepath.Join(root, "out", "article.md"))
}
