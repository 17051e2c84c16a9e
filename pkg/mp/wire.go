package mp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	errs "mpscraper/pkg/errors"
	"mpscraper/pkg/models"
)

// Remote status codes carried in base_resp.ret.
const (
	retOK             = 0
	retInvalidSession = 200003
	retInvalidToken   = 200040
	retFreqControl    = 200013
)

// baseResp is the status envelope every admin endpoint returns.
type baseResp struct {
	Ret    *int   `json:"ret"`
	ErrMsg string `json:"err_msg"`
}

type searchBizResponse struct {
	BaseResp *baseResp      `json:"base_resp"`
	List     *[]wireAccount `json:"list"`
	Total    int            `json:"total"`
}

type wireAccount struct {
	FakeID    string `json:"fakeid"`
	Nickname  string `json:"nickname"`
	Alias     string `json:"alias"`
	Signature string `json:"signature"`
}

type appMsgResponse struct {
	BaseResp *baseResp   `json:"base_resp"`
	Count    int         `json:"app_msg_cnt"`
	List     *[]wireItem `json:"app_msg_list"`
}

type wireItem struct {
	AID        string      `json:"aid"`
	AppMsgID   json.Number `json:"appmsgid"`
	ItemIdx    json.Number `json:"itemidx"`
	Title      string      `json:"title"`
	Link       string      `json:"link"`
	Digest     string      `json:"digest"`
	Cover      string      `json:"cover"`
	UpdateTime json.Number `json:"update_time"`
	CreateTime json.Number `json:"create_time"`
}

// checkBaseResp maps the status envelope to a typed error. A missing
// envelope or ret field is malformed.
func checkBaseResp(br *baseResp) error {
	if br == nil || br.Ret == nil {
		return errs.New(errs.ErrorTypeMalformed, "response has no base_resp.ret")
	}

	ret := *br.Ret
	switch ret {
	case retOK:
		return nil
	case retInvalidSession, retInvalidToken:
		return &errs.Error{Type: errs.ErrorTypeAuthExpired, Code: ret, Message: br.ErrMsg}
	case retFreqControl:
		return &errs.Error{Type: errs.ErrorTypeRateLimited, Code: ret, Message: br.ErrMsg}
	default:
		return &errs.Error{Type: errs.ErrorTypeMalformed, Code: ret, Message: fmt.Sprintf("remote status: %s", br.ErrMsg)}
	}
}

// decodeAccounts turns a searchbiz body into accounts.
func decodeAccounts(body []byte) ([]models.Account, error) {
	var resp searchBizResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeMalformed, err, "decode search response")
	}
	if err := checkBaseResp(resp.BaseResp); err != nil {
		return nil, err
	}
	if resp.List == nil {
		return nil, errs.New(errs.ErrorTypeMalformed, "search response has no list")
	}

	accounts := make([]models.Account, 0, len(*resp.List))
	for i, w := range *resp.List {
		if w.FakeID == "" {
			return nil, errs.Newf(errs.ErrorTypeMalformed, "search result %d has no fakeid", i)
		}
		accounts = append(accounts, models.Account{
			Name:      w.Nickname,
			FakeID:    w.FakeID,
			Alias:     w.Alias,
			Signature: w.Signature,
		})
	}
	return accounts, nil
}

// decodePage turns an appmsg list body into stubs, in remote order.
func decodePage(body []byte) ([]models.ItemStub, error) {
	var resp appMsgResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeMalformed, err, "decode listing response")
	}
	if err := checkBaseResp(resp.BaseResp); err != nil {
		return nil, err
	}
	if resp.List == nil {
		return nil, errs.New(errs.ErrorTypeMalformed, "listing response has no app_msg_list")
	}

	stubs := make([]models.ItemStub, 0, len(*resp.List))
	for i, w := range *resp.List {
		stub, err := w.toStub()
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypeMalformed, err, fmt.Sprintf("listing item %d", i))
		}
		stubs = append(stubs, stub)
	}
	return stubs, nil
}

func (w wireItem) toStub() (models.ItemStub, error) {
	if strings.TrimSpace(w.Link) == "" {
		return models.ItemStub{}, fmt.Errorf("missing link")
	}
	update, err := parseEpoch(w.UpdateTime)
	if err != nil || update <= 0 {
		return models.ItemStub{}, fmt.Errorf("missing or invalid update_time %q", w.UpdateTime)
	}
	created, _ := parseEpoch(w.CreateTime)

	id := w.AID
	if id == "" && w.AppMsgID != "" {
		id = fmt.Sprintf("%s_%s", w.AppMsgID, w.ItemIdx)
	}

	return models.ItemStub{
		RemoteID:     id,
		Title:        w.Title,
		CanonicalURL: normalizeLink(w.Link),
		UpdateEpoch:  update,
		CreateEpoch:  created,
		Digest:       w.Digest,
		Cover:        w.Cover,
	}, nil
}

func parseEpoch(n json.Number) (int64, error) {
	if n == "" {
		return 0, fmt.Errorf("empty")
	}
	return strconv.ParseInt(string(n), 10, 64)
}

// normalizeLink upgrades the http links the listing returns and strips
// the tracking fragment so the URL is a stable dedup key.
func normalizeLink(link string) string {
	link = strings.TrimSpace(link)
	link = strings.ReplaceAll(link, "&amp;", "&")
	if strings.HasPrefix(link, "http://") {
		link = "https://" + strings.TrimPrefix(link, "http://")
	}
	if i := strings.Index(link, "#"); i >= 0 {
		link = link[:i]
	}
	return link
}
