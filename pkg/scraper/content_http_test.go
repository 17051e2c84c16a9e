package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mpscraper/pkg/auth"
	"mpscraper/pkg/config"
	"mpscraper/pkg/logger"
	"mpscraper/pkg/models"
	"mpscraper/pkg/mp"
	"mpscraper/pkg/normalize"
)

// pageServingClient lists from a mock and fetches article pages over HTTP
type pageServingClient struct {
	*MockListingClient
	pages *mp.Client
}

func (c pageServingClient) FetchContent(ctx context.Context, cred *auth.Credential, url string) (models.RawContent, error) {
	return c.pages.FetchContent(ctx, cred, url)
}

func TestScrapeAccountForbiddenArticlePage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/s/forbidden" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprintf(w, `<div class="rich_media_content"><p>%s</p></div>`, r.URL.Path)
	}))
	defer server.Close()

	stubs := make([]models.ItemStub, 3)
	for i, path := range []string{"/s/first", "/s/forbidden", "/s/third"} {
		stubs[i] = models.ItemStub{
			RemoteID:     path,
			Title:        path,
			CanonicalURL: server.URL + path,
			UpdateEpoch:  testNow.Add(-time.Duration(i+1) * time.Hour).Unix(),
		}
	}

	listing := &MockListingClient{}
	expectAccount(listing)
	listing.On("ListPage", mock.Anything, testCred, "MzA1", 0).Return(stubs, nil).Once()
	listing.On("ListPage", mock.Anything, testCred, "MzA1", 1).Return(nil, nil).Once()

	httpCfg := config.DefaultConfig().HTTP
	httpCfg.BaseURL = server.URL
	httpCfg.Timeout = 5 * time.Second

	s := New(Deps{
		Client:      pageServingClient{MockListingClient: listing, pages: mp.NewClient(httpCfg, logger.NewNopLogger())},
		Normalizer:  normalize.New(logger.NewNopLogger()),
		Credentials: staticCredentials{cred: testCred},
		Logger:      logger.NewNopLogger(),
	}, testSettings(), WithSleeper((&sleepRecorder{}).sleep), WithClock(func() time.Time { return testNow }))

	articles, err := s.ScrapeAccount(context.Background(), "Daily Tech", Options{})
	require.NoError(t, err)
	require.Len(t, articles, 3)

	assert.Contains(t, articles[0].Content, "/s/first")
	assert.False(t, articles[1].HasContent())
	assert.Equal(t, "/s/forbidden", articles[1].Title)
	assert.Contains(t, articles[2].Content, "/s/third")
}
