package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"dictsync/internal/apperr"
	"dictsync/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
)

const report_session_close = "session.close"

type Options struct {
	Templates Templates
	// CookiePath is where the jar is loaded from and saved to, empty keeps cookies in memory.
	CookiePath string
	Transport  TransportOptions
}

// Session owns one cookie jar and the dispatcher that reads from it, it is what a service
// client holds for its whole lifetime.
type Session struct {
	tel        telemetry.API
	jar        *Jar
	dispatcher *Dispatcher
	cookiePath string
	closed     bool
}

func Open(opts Options, tel telemetry.API) (*Session, error) {
	tel = telemetry.NewScopedAPI("session", tel)

	jar, err := LoadJar(opts.CookiePath, tel)
	if err != nil {
		return nil, err
	}
	return &Session{
		tel:        tel,
		jar:        jar,
		dispatcher: NewDispatcher(opts.Templates, jar, opts.Transport, tel),
		cookiePath: opts.CookiePath,
	}, nil
}

// Send dispatches a template, see Dispatcher.Send.
func (s *Session) Send(ctx context.Context, name string, rewrite func(string) string, body any) (*resty.Response, error) {
	if s.closed {
		return nil, apperr.New(apperr.KindConfiguration, fmt.Sprintf("send %s", name), apperr.ErrSessionClosed)
	}
	return s.dispatcher.Send(ctx, name, rewrite, body)
}

// Ingest stores the Set-Cookie headers of res and returns how many cookies were stored.
func (s *Session) Ingest(res *resty.Response) int {
	if res == nil || res.RawResponse == nil {
		return 0
	}
	var origin *url.URL
	if res.RawResponse.Request != nil {
		origin = res.RawResponse.Request.URL
	}
	if origin == nil {
		parsed, err := url.Parse(res.Request.URL)
		if err != nil {
			s.tel.ReportWarning("session.ingest", err)
			return 0
		}
		origin = parsed
	}
	return s.jar.Ingest(res.Header(), origin)
}

// HasCookies reports whether every name is set, and not expired, under exactly domain and
// path. It only reads the jar.
func (s *Session) HasCookies(domain, path string, names ...string) bool {
	for _, name := range names {
		_, ok := s.jar.Lookup(domain, path, name)
		if !ok {
			return false
		}
	}
	return true
}

func (s *Session) Jar() *Jar {
	return s.jar
}

// Close saves the jar to the configured cookie path, the error is reported and returned.
// Calling Close more than once is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cookiePath == "" {
		return nil
	}
	err := s.jar.Save(s.cookiePath)
	if err != nil {
		s.tel.ReportBroken(report_session_close, err, s.cookiePath)
		return apperr.Newf(apperr.KindConfiguration, "save cookies", "%s: %w", s.cookiePath, err)
	}
	return nil
}

// DecodeJSON unmarshals the body of res into T.
func DecodeJSON[T any](res *resty.Response) (T, error) {
	var out T
	err := json.Unmarshal(res.Body(), &out)
	if err != nil {
		return out, apperr.Newf(apperr.KindEncoding, "decode response", "%s: %w", res.Request.URL, err)
	}
	return out, nil
}
