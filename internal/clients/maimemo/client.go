// Package maimemo reads and edits the notepads of a maimemo account.
package maimemo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"dictsync/internal/apperr"
	"dictsync/internal/components/assert"
	"dictsync/internal/components/chrono"
	"dictsync/internal/components/telemetry"
	"dictsync/internal/session"
	"dictsync/lib/htmlutil"
)

const (
	report_client_login    = "client.login"
	report_client_notepads = "client.notepads"
	report_client_save     = "client.save-notepad"
)

const (
	RequestLogin         = "login"
	RequestNotepadSearch = "notepad-search"
	RequestNotepadDetail = "notepad-detail"
	RequestCaptcha       = "service-captcha"
	RequestNotepadSave   = "notepad-save"
)

// PageSize is how many notepads are requested per search page.
const PageSize = 30

const (
	cookieDomain    = "www.maimemo.com"
	cookiePath      = "/"
	userTokenCookie = "userToken"
	contentSelector = "#content"
)

type Options struct {
	// Username is the account email.
	Username string
	Password string
	Session  session.Options
	// Clock stamps captcha requests, it defaults to the system clock.
	Clock chrono.API
}

type Client struct {
	tel      telemetry.API
	time     chrono.API
	session  *session.Session
	username string
	password string
}

func New(opts Options, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)
	assert.NotEmptyStr(opts.Username)
	tel = telemetry.NewScopedAPI("maimemo", tel)

	clock := opts.Clock
	if clock == nil {
		clock = chrono.NewStandardImpl()
	}
	s, err := session.Open(opts.Session, tel)
	if err != nil {
		return nil, err
	}
	return &Client{
		tel:      tel,
		time:     clock,
		session:  s,
		username: opts.Username,
		password: opts.Password,
	}, nil
}

func (c *Client) userToken() (string, bool) {
	cookie, ok := c.session.Jar().Lookup(cookieDomain, cookiePath, userTokenCookie)
	return cookie.Value, ok
}

// HasLoggedIn reports whether the jar holds the user token cookie.
func (c *Client) HasLoggedIn() bool {
	return c.session.HasCookies(cookieDomain, cookiePath, userTokenCookie)
}

func (c *Client) requireLogin(op string) error {
	if !c.HasLoggedIn() {
		return apperr.New(apperr.KindAuth, op, apperr.ErrNotLoggedIn)
	}
	return nil
}

// Login signs in with the configured email and password, it is never retried.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{
		"email":    {c.username},
		"password": {c.password},
	}
	res, err := c.session.Send(ctx, RequestLogin, nil, form)
	if err != nil {
		return err
	}
	c.session.Ingest(res)

	if len(res.Header().Values("Set-Cookie")) == 0 {
		c.tel.ReportBroken(report_client_login, "no set-cookie in login response", res.Status(), string(res.Body()))
		return apperr.New(apperr.KindAuth, "maimemo login", apperr.ErrLoginNoSetCookie)
	}
	if !c.HasLoggedIn() {
		c.tel.ReportBroken(report_client_login, "user token missing after login", res.Status(), string(res.Body()))
		return apperr.New(apperr.KindAuth, "maimemo login", apperr.ErrLoginMissingCookie)
	}
	c.tel.ReportDebug("login successful")
	return nil
}

type searchPayload struct {
	Keyword   *string `json:"keyword"`
	Scope     string  `json:"scope"`
	Recommend bool    `json:"recommend"`
	Offset    int     `json:"offset"`
	Limit     int     `json:"limit"`
	Total     int     `json:"total"`
}

type searchResult struct {
	Error   string    `json:"error"`
	Valid   int       `json:"valid"`
	Total   int       `json:"total"`
	Notepad []Notepad `json:"notepad"`
}

func (c *Client) search(ctx context.Context, offset, limit int) (searchResult, error) {
	token, ok := c.userToken()
	if !ok {
		return searchResult{}, apperr.New(apperr.KindAuth, "maimemo notepad search", apperr.ErrNotLoggedIn)
	}
	res, err := c.session.Send(ctx, RequestNotepadSearch, func(u string) string {
		return u + token
	}, searchPayload{
		Scope:  "MINE",
		Offset: offset,
		Limit:  limit,
		Total:  -1,
	})
	if err != nil {
		return searchResult{}, err
	}
	out, err := session.DecodeJSON[searchResult](res)
	if err != nil {
		return searchResult{}, err
	}
	if out.Notepad == nil {
		c.tel.ReportBroken(report_client_notepads, "search returned no notepad list", out.Error, out.Valid)
		return searchResult{}, apperr.Newf(apperr.KindProtocol, "maimemo notepad search", "server error: %q", out.Error)
	}
	return out, nil
}

// NotepadList fetches every notepad of the account without its contents.
func (c *Client) NotepadList(ctx context.Context) ([]Notepad, error) {
	err := c.requireLogin("maimemo notepad list")
	if err != nil {
		return nil, err
	}
	first, err := c.search(ctx, 0, 1)
	if err != nil {
		return nil, err
	}
	c.tel.ReportCount(report_client_notepads, int64(first.Total))

	return session.Paginate(ctx, first.Total, PageSize, func(ctx context.Context, offset, limit int) ([]Notepad, error) {
		result, err := c.search(ctx, offset, limit)
		if err != nil {
			return nil, err
		}
		return result.Notepad, nil
	})
}

// NotepadContents fetches the detail page of a notepad and returns the text of its content
// element.
func (c *Client) NotepadContents(ctx context.Context, id string) (string, error) {
	err := c.requireLogin("maimemo notepad contents")
	if err != nil {
		return "", err
	}
	res, err := c.session.Send(ctx, RequestNotepadDetail, func(u string) string {
		return u + id
	}, nil)
	if err != nil {
		return "", err
	}
	body := res.Body()
	if len(body) == 0 {
		return "", apperr.Newf(apperr.KindProtocol, "maimemo notepad contents", "empty detail page for notepad %s", id)
	}
	text, found, err := htmlutil.SelectText(body, contentSelector)
	if err != nil {
		return "", apperr.Newf(apperr.KindEncoding, "maimemo notepad contents", "parse detail page: %w", err)
	}
	if !found {
		return "", apperr.Newf(apperr.KindProtocol, "maimemo notepad contents", "element %s not found in detail page of notepad %s", contentSelector, id)
	}
	return text, nil
}

// Notepads fetches the list and then the contents of every notepad.
func (c *Client) Notepads(ctx context.Context) ([]Notepad, error) {
	notepads, err := c.NotepadList(ctx)
	if err != nil {
		return nil, err
	}
	for i := range notepads {
		contents, err := c.NotepadContents(ctx, notepads[i].NotepadId)
		if err != nil {
			return nil, fmt.Errorf("notepad %s: %w", notepads[i].NotepadId, err)
		}
		notepads[i].Contents = contents
	}
	return notepads, nil
}

// RefreshCaptcha requests a new captcha image, the server binds it to the session so it has
// to be solved before the next SaveNotepad.
func (c *Client) RefreshCaptcha(ctx context.Context) ([]byte, error) {
	err := c.requireLogin("maimemo refresh captcha")
	if err != nil {
		return nil, err
	}
	stamp := strconv.FormatInt(c.time.Now().UnixNano(), 10)
	res, err := c.session.Send(ctx, RequestCaptcha, func(u string) string {
		return u + stamp
	}, nil)
	if err != nil {
		return nil, err
	}
	return res.Body(), nil
}

type saveResult struct {
	Valid     int     `json:"valid"`
	ErrorCode *string `json:"errorCode"`
}

// SaveNotepad uploads notepad with the solved captcha.
func (c *Client) SaveNotepad(ctx context.Context, notepad Notepad, captcha string) error {
	err := c.requireLogin("maimemo save notepad")
	if err != nil {
		return err
	}
	form := url.Values{
		"id":         {notepad.NotepadId},
		"title":      {notepad.Title},
		"brief":      {notepad.Brief},
		"content":    {notepad.Contents},
		"is_private": {strconv.FormatBool(notepad.IsPrivate)},
		"captcha":    {captcha},
	}
	res, err := c.session.Send(ctx, RequestNotepadSave, nil, form)
	if err != nil {
		return err
	}
	out, err := session.DecodeJSON[saveResult](res)
	if err != nil {
		// an error page or a redirect to the login page instead of a verdict
		c.tel.ReportWarning(report_client_save, "unreadable save response", notepad.NotepadId, res.StatusCode())
		return apperr.Newf(apperr.KindProtocol, "maimemo save notepad", "%w: unreadable response: %v", apperr.ErrSubmissionRejected, err)
	}
	if out.ErrorCode != nil {
		c.tel.ReportWarning(report_client_save, "save rejected", notepad.NotepadId, *out.ErrorCode)
		return apperr.Newf(apperr.KindProtocol, "maimemo save notepad", "%w: %s", apperr.ErrSubmissionRejected, *out.ErrorCode)
	}
	return nil
}

// Close persists the cookie jar.
func (c *Client) Close() error {
	return c.session.Close()
}
