package mp

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-resty/resty/v2"
	"mpscraper/pkg/auth"
	"mpscraper/pkg/config"
	errs "mpscraper/pkg/errors"
	"mpscraper/pkg/logger"
	"mpscraper/pkg/models"
)

// Client talks to the official-account admin endpoints and fetches public
// article pages. It holds no state besides the HTTP transport and never
// retries on its own.
type Client struct {
	http   *resty.Client
	logger logger.Logger
}

// NewClient creates a client from the HTTP section of the config.
func NewClient(cfg config.HTTPConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")

	c := &Client{http: http, logger: log}
	http.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.LogRequest(c.logger, resp.Request.Method, resp.Request.URL, resp.StatusCode(), float64(resp.Time().Milliseconds()))
		return nil
	})
	return c
}

// SearchAccount resolves a display name to candidate accounts.
func (c *Client) SearchAccount(ctx context.Context, cred *auth.Credential, query string) ([]models.Account, error) {
	resp, err := c.adminRequest(ctx, cred).
		SetQueryParams(map[string]string{
			"action": "search_biz",
			"begin":  "0",
			"count":  "10",
			"query":  query,
		}).
		Get(SearchBizPath)
	if err != nil {
		return nil, c.transportError(ctx, "search account", err)
	}
	if err := statusError(resp); err != nil {
		return nil, err
	}

	accounts, err := decodeAccounts(resp.Body())
	if err != nil {
		c.logger.WarnWithFields("search response rejected", map[string]interface{}{
			"query":        query,
			"error":        err.Error(),
			"body_preview": preview(resp.Body()),
		})
		return nil, err
	}
	return accounts, nil
}

// ListPage fetches one zero-based page of the account's published items.
func (c *Client) ListPage(ctx context.Context, cred *auth.Credential, fakeID string, page int) ([]models.ItemStub, error) {
	resp, err := c.adminRequest(ctx, cred).
		SetQueryParams(map[string]string{
			"action": "list_ex",
			"begin":  strconv.Itoa(page * models.PageSize),
			"count":  strconv.Itoa(models.PageSize),
			"fakeid": fakeID,
			"type":   "9",
			"query":  "",
		}).
		Get(AppMsgPath)
	if err != nil {
		return nil, c.transportError(ctx, fmt.Sprintf("list page %d", page), err)
	}
	if err := statusError(resp); err != nil {
		return nil, err
	}

	stubs, err := decodePage(resp.Body())
	if err != nil {
		c.logger.WarnWithFields("listing response rejected", map[string]interface{}{
			"fakeid":       fakeID,
			"page":         page,
			"error":        err.Error(),
			"body_preview": preview(resp.Body()),
		})
		return nil, err
	}
	return stubs, nil
}

// FetchContent downloads the HTML of one article page.
func (c *Client) FetchContent(ctx context.Context, cred *auth.Credential, url string) (models.RawContent, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Referer", c.http.BaseURL+"/")
	if cred != nil && cred.Cookie != "" {
		req.SetHeader("Cookie", cred.Cookie)
	}

	resp, err := req.Get(url)
	if err != nil {
		return models.RawContent{}, c.transportError(ctx, "fetch content", err)
	}
	if err := pageStatusError(resp); err != nil {
		return models.RawContent{}, err
	}
	if len(resp.Body()) == 0 {
		return models.RawContent{}, errs.Newf(errs.ErrorTypeMalformed, "empty body for %s", url)
	}

	return models.RawContent{URL: url, HTML: string(resp.Body())}, nil
}

// DownloadMedia fetches a media resource. Media hosts reject requests
// that carry a foreign referer, so none is sent.
func (c *Client) DownloadMedia(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, c.transportError(ctx, "download media", err)
	}
	if err := statusError(resp); err != nil {
		return nil, err
	}
	if len(resp.Body()) == 0 {
		return nil, errs.Newf(errs.ErrorTypeMediaFetchFailed, "empty body for %s", url)
	}
	return resp.Body(), nil
}

func (c *Client) adminRequest(ctx context.Context, cred *auth.Credential) *resty.Request {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Referer", c.http.BaseURL+"/").
		SetQueryParams(map[string]string{
			"lang": "zh_CN",
			"f":    "json",
			"ajax": "1",
		})
	if cred != nil {
		req.SetQueryParam("token", cred.Token)
		req.SetHeader("Cookie", cred.Cookie)
	}
	return req
}

func (c *Client) transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errs.Wrap(errs.ErrorTypeCancelled, ctxErr, op)
	}
	c.logger.WithError(err).Warn(op + ": transport failure")
	return errs.Wrap(errs.ErrorTypeNetwork, err, op)
}

func statusError(resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= 200 && code < 300 {
		return nil
	}

	t := errs.FromStatusCode(code)
	if t == errs.ErrorTypeUnknown {
		t = errs.ErrorTypeMalformed
	}
	return &errs.Error{Type: t, Code: code, Message: fmt.Sprintf("unexpected status for %s", resp.Request.URL)}
}

// pageStatusError maps the status of a public article page. Pages are
// served without the admin session, so a rejection concerns that one
// article only.
func pageStatusError(resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= 200 && code < 300 {
		return nil
	}

	t := errs.ErrorTypeMalformed
	if code == http.StatusNotFound {
		t = errs.ErrorTypeNotFound
	}
	return &errs.Error{Type: t, Code: code, Message: fmt.Sprintf("unexpected status for %s", resp.Request.URL)}
}

func preview(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
