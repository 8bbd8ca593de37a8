// Package youdao exports the wordbook of a youdao dictionary account.
package youdao

import (
	"context"
	"fmt"
	"net/url"

	"dictsync/internal/apperr"
	"dictsync/internal/components/assert"
	"dictsync/internal/components/telemetry"
	"dictsync/internal/session"

	"github.com/go-resty/resty/v2"
)

const (
	report_client_login = "client.login"
	report_client_words = "client.words"
)

const (
	RequestPrimeCookie = "fetch-cookie-outfox-search-user-id"
	RequestLogin       = "login"
	RequestWords       = "get-words"
)

// PageSize is how many words are requested per page.
const PageSize = 1000

const (
	cookieDomain = "youdao.com"
	cookiePath   = "/"
)

var sessionCookies = []string{"OUTFOX_SEARCH_USER_ID", "DICT_PERS"}

const loginRedirect = "http://dict.youdao.com/wordbook/wordlist?keyfrom=dict2.index#/"

type Options struct {
	Username string
	// Password is the md5 hex digest the youdao login page computes client-side, not the
	// plain text password.
	Password string
	Session  session.Options
}

// WordItem is one wordbook entry, ModifiedTime is in milliseconds since the unix epoch.
type WordItem struct {
	ItemId       string `json:"itemId"`
	BookId       string `json:"bookId"`
	BookName     string `json:"bookName"`
	Word         string `json:"word"`
	Trans        string `json:"trans"`
	Phonetic     string `json:"phonetic"`
	ModifiedTime int64  `json:"modifiedTime"`
}

type result[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

type page[T any] struct {
	Total    int `json:"total"`
	ItemList []T `json:"itemList"`
}

type Client struct {
	tel      telemetry.API
	session  *session.Session
	username string
	password string
}

func New(opts Options, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)
	assert.NotEmptyStr(opts.Username)
	tel = telemetry.NewScopedAPI("youdao", tel)

	s, err := session.Open(opts.Session, tel)
	if err != nil {
		return nil, err
	}
	return &Client{
		tel:      tel,
		session:  s,
		username: opts.Username,
		password: opts.Password,
	}, nil
}

// HasLoggedIn reports whether the jar holds both session cookies.
func (c *Client) HasLoggedIn() bool {
	return c.session.HasCookies(cookieDomain, cookiePath, sessionCookies...)
}

func (c *Client) primeCookies(ctx context.Context) error {
	res, err := c.session.Send(ctx, RequestPrimeCookie, nil, nil)
	if err != nil {
		return err
	}
	c.session.Ingest(res)
	return nil
}

// Login signs in with the configured credentials, it is not retried because repeated logins
// get the account blacklisted for a while.
func (c *Client) Login(ctx context.Context) error {
	err := c.primeCookies(ctx)
	if err != nil {
		return fmt.Errorf("prime cookies: %w", err)
	}

	form := url.Values{
		"username":    {c.username},
		"password":    {c.password},
		"savelogin":   {"1"},
		"cf":          {"7"},
		"app":         {"web"},
		"tp":          {"urstoken"},
		"fr":          {"1"},
		"ru":          {loginRedirect},
		"product":     {"DICT"},
		"type":        {"1"},
		"um":          {"true"},
		"agreePrRule": {"1"},
	}
	res, err := c.session.Send(ctx, RequestLogin, nil, form)
	if err != nil {
		return err
	}
	return c.checkLogin(res)
}

func (c *Client) checkLogin(res *resty.Response) error {
	c.session.Ingest(res)
	if len(res.Header().Values("Set-Cookie")) == 0 {
		c.tel.ReportBroken(report_client_login, "no set-cookie in login response", res.Status(), string(res.Body()))
		return apperr.New(apperr.KindAuth, "youdao login", apperr.ErrLoginNoSetCookie)
	}
	if !c.HasLoggedIn() {
		c.tel.ReportBroken(report_client_login, "session cookies missing after login", res.Status(), string(res.Body()))
		return apperr.New(apperr.KindAuth, "youdao login", apperr.ErrLoginMissingCookie)
	}
	return nil
}

func (c *Client) fetchPage(ctx context.Context, offset, limit int) (page[WordItem], error) {
	res, err := c.session.Send(ctx, RequestWords, func(u string) string {
		return fmt.Sprintf("%s?limit=%d&offset=%d", u, limit, offset)
	}, nil)
	if err != nil {
		return page[WordItem]{}, err
	}
	out, err := session.DecodeJSON[result[page[WordItem]]](res)
	if err != nil {
		return page[WordItem]{}, err
	}
	c.tel.ReportDebug("got words page", out.Code, out.Msg, offset, len(out.Data.ItemList))
	return out.Data, nil
}

func (c *Client) requireLogin(op string) error {
	if !c.HasLoggedIn() {
		return apperr.New(apperr.KindAuth, op, apperr.ErrNotLoggedIn)
	}
	return nil
}

// WordsTotal asks the server how many words the wordbook holds.
func (c *Client) WordsTotal(ctx context.Context) (int, error) {
	err := c.requireLogin("youdao words total")
	if err != nil {
		return 0, err
	}
	p, err := c.fetchPage(ctx, 0, 1)
	if err != nil {
		return 0, err
	}
	return p.Total, nil
}

// Words fetches the whole wordbook.
func (c *Client) Words(ctx context.Context) ([]WordItem, error) {
	err := c.requireLogin("youdao words")
	if err != nil {
		return nil, err
	}
	total, err := c.WordsTotal(ctx)
	if err != nil {
		return nil, err
	}
	c.tel.ReportCount(report_client_words, int64(total))

	return session.Paginate(ctx, total, PageSize, func(ctx context.Context, offset, limit int) ([]WordItem, error) {
		p, err := c.fetchPage(ctx, offset, limit)
		if err != nil {
			return nil, err
		}
		return p.ItemList, nil
	})
}

// Close persists the cookie jar.
func (c *Client) Close() error {
	return c.session.Close()
}
