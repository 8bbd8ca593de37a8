package session

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dictsync/internal/apperr"
	"dictsync/internal/components/telemetry"
	"dictsync/lib/restyutil"
	"dictsync/lib/testutil"

	"github.com/stretchr/testify/require"
)

var testTemplates = Templates{
	"form": {
		Url:    "https://www.maimemo.com/auth/login",
		Method: "post",
		Headers: map[string]string{
			"content-type": "application/x-www-form-urlencoded; charset=UTF-8",
			"user-agent":   "Mozilla/5.0",
		},
	},
	"json": {
		Url:    "https://www.maimemo.com/notepad/search",
		Method: "POST",
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	},
	"xml": {
		Url:    "https://www.maimemo.com/notepad/search",
		Method: "POST",
		Headers: map[string]string{
			"content-type": "text/xml",
		},
	},
	"no-content-type": {
		Url:    "https://www.maimemo.com/notepad/search",
		Method: "POST",
		Headers: map[string]string{
			"accept": "*/*",
		},
	},
	"bare": {
		Url:    "https://www.maimemo.com/",
		Method: "GET",
	},
	"get": {
		Url:    "https://www.maimemo.com/notepad/detail",
		Method: "GET",
		Headers: map[string]string{
			"accept":     "text/html",
			"bad header": "x",
			"x-newline":  "a\nb",
		},
	},
	"redirect": {
		Url:    "https://www.maimemo.com/redirect",
		Method: "GET",
		Headers: map[string]string{
			"accept": "*/*",
		},
	},
	"broken": {
		Url:    "https://www.maimemo.com/broken",
		Method: "GET",
		Headers: map[string]string{
			"accept": "*/*",
		},
	},
}

func newTestServer() *testutil.Server {
	server := testutil.NewServer()
	ok := func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}
	server.Handle("www.maimemo.com/auth/login", ok)
	server.Handle("www.maimemo.com/notepad/search", ok)
	server.Handle("www.maimemo.com/notepad/detail", ok)
	server.Handle("www.maimemo.com/", ok)
	server.Handle("www.maimemo.com/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://www.maimemo.com/elsewhere", http.StatusFound)
	})
	server.Handle("www.maimemo.com/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	return server
}

func newTestDispatcher(server *testutil.Server, tel telemetry.API) (*Dispatcher, *Jar) {
	jar := NewJar(tel)
	dispatcher := NewDispatcher(testTemplates, jar, TransportOptions{
		Timeout:   time.Second * 5,
		Transport: server,
	}, tel)
	return dispatcher, jar
}

func TestDispatcherErrors(t *testing.T) {
	server := newTestServer()
	dispatcher, _ := newTestDispatcher(server, &telemetry.Recorder{})
	ctx := context.Background()

	testCases := []struct {
		name     string
		template string
		body     any
		sentinel error
		kind     apperr.Kind
	}{
		{name: "unknown template", template: "missing", sentinel: apperr.ErrTemplateNotFound, kind: apperr.KindConfiguration},
		{name: "no headers", template: "bare", sentinel: apperr.ErrMissingHeaders, kind: apperr.KindConfiguration},
		{name: "body without content type", template: "no-content-type", body: url.Values{}, sentinel: apperr.ErrMissingHeaders, kind: apperr.KindConfiguration},
		{name: "unsupported content type", template: "xml", body: "<a/>", sentinel: apperr.ErrUnsupportedContentType, kind: apperr.KindEncoding},
		{name: "unsupported form body", template: "form", body: 42, kind: apperr.KindEncoding},
	}
	for _, tc := range testCases {
		_, err := dispatcher.Send(ctx, tc.template, nil, tc.body)
		require.Error(t, err, tc.name)
		if tc.sentinel != nil {
			require.ErrorIs(t, err, tc.sentinel, tc.name)
		}
		require.Equal(t, tc.kind, apperr.KindOf(err), tc.name)
	}
	require.Equal(t, 0, server.Count())
}

func TestDispatcherStatus(t *testing.T) {
	server := newTestServer()
	dispatcher, _ := newTestDispatcher(server, &telemetry.Recorder{})
	ctx := context.Background()

	res, err := dispatcher.Send(ctx, "redirect", nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, res.StatusCode())
	require.Equal(t, "https://www.maimemo.com/elsewhere", res.Header().Get("Location"))
	require.Equal(t, 1, server.Count())

	res, err = dispatcher.Send(ctx, "broken", nil, nil)
	require.Error(t, err)
	require.NotNil(t, res)
	var statusErr *apperr.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	require.Equal(t, apperr.KindProtocol, apperr.KindOf(err))
}

func TestDispatcherRequest(t *testing.T) {
	server := newTestServer()
	tel := &telemetry.Recorder{}
	dispatcher, jar := newTestDispatcher(server, tel)
	ctx := context.Background()

	t.Run("TestHeaders", func(t *testing.T) {
		_, err := dispatcher.Send(ctx, "get", func(u string) string {
			return u + "?id=42"
		}, nil)
		require.NoError(t, err)

		req := server.Last(t)
		require.Equal(t, http.MethodGet, req.Method)
		require.Equal(t, "https://www.maimemo.com/notepad/detail?id=42", req.Url)
		require.Equal(t, "text/html", req.Header.Get("Accept"))
		require.Empty(t, req.Header.Get("X-Newline"))
		require.Empty(t, req.Header.Get("Cookie"))
		require.Len(t, tel.Find("warning", report_dispatcher_header), 2)
	})

	t.Run("TestCookies", func(t *testing.T) {
		jar.Ingest(setCookies(
			"userToken=abc; Path=/",
			"other=1; Domain=youdao.com",
		), mustParseUrl(t, "https://www.maimemo.com/"))
		jar.Ingest(setCookies("OUTFOX_SEARCH_USER_ID=x; Domain=youdao.com"), mustParseUrl(t, "https://dict.youdao.com/"))

		_, err := dispatcher.Send(ctx, "get", nil, nil)
		require.NoError(t, err)
		require.Equal(t, "userToken=abc", server.Last(t).Header.Get("Cookie"))
	})

	t.Run("TestFormBody", func(t *testing.T) {
		_, err := dispatcher.Send(ctx, "form", nil, map[string]string{
			"password": "p",
			"email":    "a@b.c",
		})
		require.NoError(t, err)

		req := server.Last(t)
		require.Equal(t, http.MethodPost, req.Method)
		require.Equal(t, "email=a%40b.c&password=p", string(req.Body))
		require.Equal(t, "application/x-www-form-urlencoded; charset=UTF-8", req.Header.Get("Content-Type"))
		require.Equal(t, "Mozilla/5.0", req.Header.Get("User-Agent"))
	})

	t.Run("TestJsonBody", func(t *testing.T) {
		_, err := dispatcher.Send(ctx, "json", nil, map[string]any{
			"limit":  1,
			"offset": 0,
		})
		require.NoError(t, err)
		require.JSONEq(t, `{"limit":1,"offset":0}`, string(server.Last(t).Body))
	})
}

func TestSessionLifecycle(t *testing.T) {
	server := newTestServer()
	server.Handle("www.maimemo.com/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "userToken", Value: "abc", Path: "/", MaxAge: 3600})
		w.Write([]byte("{}"))
	})

	cookiePath := filepath.Join(t.TempDir(), "cookies.json")
	opts := Options{
		Templates:  testTemplates,
		CookiePath: cookiePath,
		Transport:  TransportOptions{Transport: server},
	}
	ctx := context.Background()

	{
		s, err := Open(opts, &telemetry.Recorder{})
		require.NoError(t, err)
		require.False(t, s.HasCookies("www.maimemo.com", "/", "userToken"))

		res, err := s.Send(ctx, "form", nil, url.Values{"email": {"a@b.c"}})
		require.NoError(t, err)
		require.Equal(t, 1, s.Ingest(res))
		require.True(t, s.HasCookies("www.maimemo.com", "/", "userToken"))
		require.False(t, s.HasCookies("www.maimemo.com", "/", "userToken", "other"))

		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		_, err = s.Send(ctx, "get", nil, nil)
		require.ErrorIs(t, err, apperr.ErrSessionClosed)
		require.Equal(t, 1, server.Count())
	}

	{
		s, err := Open(opts, &telemetry.Recorder{})
		require.NoError(t, err)
		require.True(t, s.HasCookies("www.maimemo.com", "/", "userToken"))

		_, err = s.Send(ctx, "get", nil, nil)
		require.NoError(t, err)
		require.Equal(t, "userToken=abc", server.Last(t).Header.Get("Cookie"))
	}
}

func TestDispatcherDump(t *testing.T) {
	server := newTestServer()
	rec := &telemetry.Recorder{}
	dir := filepath.Join(t.TempDir(), "http")
	output, err := restyutil.NewFilesystemOutput(dir)
	if err != nil {
		t.Fatal(err)
	}

	jar := NewJar(rec)
	dispatcher := NewDispatcher(testTemplates, jar, TransportOptions{
		Transport: server,
		Output:    output,
	}, rec)

	_, err = dispatcher.Send(context.Background(), "form", nil, url.Values{"email": {"someone@example.com"}})
	if err != nil {
		t.Fatal(err)
	}

	contents, err := os.ReadFile(filepath.Join(dir, "1.http"))
	if err != nil {
		t.Fatal(err)
	}
	message := string(contents)
	require.Contains(t, message, "---- REQUEST ----")
	require.Contains(t, message, "POST https://www.maimemo.com/auth/login")
	require.Contains(t, message, "User-Agent: Mozilla/5.0")
	require.Contains(t, message, "---- RESPONSE ----")
	require.Contains(t, message, "200 https://www.maimemo.com/auth/login")

	require.Len(t, rec.Find("debug", "resty.request"), 1)
	require.Len(t, rec.Find("debug", "resty.response"), 1)
}

func TestDispatcherHeaderSet(t *testing.T) {
	server := newTestServer()
	dispatcher, jar := newTestDispatcher(server, &telemetry.Recorder{})
	ctx := context.Background()

	_, err := dispatcher.Send(ctx, "json", nil, map[string]any{"limit": 1})
	require.NoError(t, err)
	require.Equal(t, http.Header{
		"Content-Type": {"application/json"},
		"User-Agent":   {""},
	}, server.Last(t).Header)

	_, err = dispatcher.Send(ctx, "get", nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.Header{
		"Accept":     {"text/html"},
		"User-Agent": {""},
	}, server.Last(t).Header)

	jar.Ingest(setCookies("userToken=abc; Path=/"), mustParseUrl(t, "https://www.maimemo.com/"))
	_, err = dispatcher.Send(ctx, "form", nil, url.Values{"email": {"a@b.c"}})
	require.NoError(t, err)
	require.Equal(t, http.Header{
		"Content-Type": {"application/x-www-form-urlencoded; charset=UTF-8"},
		"User-Agent":   {"Mozilla/5.0"},
		"Cookie":       {"userToken=abc"},
	}, server.Last(t).Header)
}

func TestDispatcherIgnoresSetCookie(t *testing.T) {
	server := newTestServer()
	server.Handle("www.maimemo.com/notepad/detail", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "userToken", Value: "abc", Path: "/"})
		w.Write([]byte("ok"))
	})
	dispatcher, jar := newTestDispatcher(server, &telemetry.Recorder{})
	ctx := context.Background()

	res, err := dispatcher.Send(ctx, "get", nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Header().Values("Set-Cookie"))

	_, err = dispatcher.Send(ctx, "get", nil, nil)
	require.NoError(t, err)
	require.Empty(t, server.Last(t).Header.Get("Cookie"))
	require.Equal(t, 0, jar.Len())
}
