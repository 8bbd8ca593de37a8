package youdao

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"dictsync/internal/apperr"
	"dictsync/internal/components/telemetry"
	"dictsync/internal/session"
	"dictsync/lib/testutil"

	"github.com/stretchr/testify/require"
)

var headers = map[string]string{
	"accept":     "application/json, text/plain, */*",
	"user-agent": "Mozilla/5.0",
}

var templates = session.Templates{
	RequestPrimeCookie: {
		Url:     "https://dict.youdao.com/",
		Method:  "GET",
		Headers: headers,
	},
	RequestLogin: {
		Url:    "https://logindict.youdao.com/login/acc/login",
		Method: "POST",
		Headers: map[string]string{
			"content-type": "application/x-www-form-urlencoded",
			"user-agent":   "Mozilla/5.0",
		},
	},
	RequestWords: {
		Url:     "https://dict.youdao.com/wordbook/webapi/words",
		Method:  "GET",
		Headers: headers,
	},
}

func newTestClient(t testing.TB, server *testutil.Server) *Client {
	t.Helper()
	client, err := New(Options{
		Username: "someone@example.com",
		Password: "5f4dcc3b5aa765d61d8327deb882cf99",
		Session: session.Options{
			Templates: templates,
			Transport: session.TransportOptions{Transport: server},
		},
	}, &telemetry.Recorder{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func handleLogin(server *testutil.Server, loginCookies ...*http.Cookie) {
	server.Handle("dict.youdao.com/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "OUTFOX_SEARCH_USER_ID", Value: "-123@10.0.0.1", Domain: ".youdao.com", Path: "/"})
	})
	server.Handle("logindict.youdao.com/login/acc/login", func(w http.ResponseWriter, r *http.Request) {
		for _, c := range loginCookies {
			http.SetCookie(w, c)
		}
		w.WriteHeader(http.StatusFound)
	})
}

func handleWords(server *testutil.Server, total, items int) {
	server.Handle("dict.youdao.com/wordbook/webapi/words", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		list := []WordItem{}
		for i := offset; i < offset+limit && i < items; i++ {
			list = append(list, WordItem{
				ItemId:       fmt.Sprint(i),
				Word:         fmt.Sprintf("word-%d", i),
				ModifiedTime: int64(i) * 1000,
			})
		}
		body, _ := json.Marshal(result[page[WordItem]]{
			Code: 0,
			Msg:  "SUCCESS",
			Data: page[WordItem]{Total: total, ItemList: list},
		})
		w.Header().Set("content-type", "application/json")
		w.Write(body)
	})
}

var dictPers = &http.Cookie{Name: "DICT_PERS", Value: "v2|urstoken||DICT", Domain: ".youdao.com", Path: "/"}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("TestSuccess", func(t *testing.T) {
		server := testutil.NewServer()
		handleLogin(server, dictPers)
		client := newTestClient(t, server)

		require.False(t, client.HasLoggedIn())
		require.NoError(t, client.Login(ctx))
		require.True(t, client.HasLoggedIn())

		login := server.Last(t)
		form, err := url.ParseQuery(string(login.Body))
		require.NoError(t, err)
		require.Equal(t, "someone@example.com", form.Get("username"))
		require.Equal(t, "urstoken", form.Get("tp"))
		require.Equal(t, "7", form.Get("cf"))
		require.Equal(t, loginRedirect, form.Get("ru"))
		require.Equal(t, "OUTFOX_SEARCH_USER_ID=-123@10.0.0.1", login.Header.Get("Cookie"))
	})

	t.Run("TestNoSetCookie", func(t *testing.T) {
		server := testutil.NewServer()
		handleLogin(server)
		client := newTestClient(t, server)

		err := client.Login(ctx)
		require.ErrorIs(t, err, apperr.ErrLoginNoSetCookie)
		require.Equal(t, apperr.KindAuth, apperr.KindOf(err))
		require.False(t, client.HasLoggedIn())
	})

	t.Run("TestMissingSessionCookie", func(t *testing.T) {
		server := testutil.NewServer()
		handleLogin(server, &http.Cookie{Name: "JSESSIONID", Value: "x", Path: "/"})
		client := newTestClient(t, server)

		err := client.Login(ctx)
		require.ErrorIs(t, err, apperr.ErrLoginMissingCookie)
		require.False(t, client.HasLoggedIn())
	})

	t.Run("TestRejected", func(t *testing.T) {
		server := testutil.NewServer()
		handleLogin(server)
		server.Handle("logindict.youdao.com/login/acc/login", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
		client := newTestClient(t, server)

		err := client.Login(ctx)
		var statusErr *apperr.StatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, http.StatusForbidden, statusErr.Code)
	})
}

func TestWords(t *testing.T) {
	ctx := context.Background()

	t.Run("TestNotLoggedIn", func(t *testing.T) {
		server := testutil.NewServer()
		handleWords(server, 10, 10)
		client := newTestClient(t, server)

		_, err := client.Words(ctx)
		require.ErrorIs(t, err, apperr.ErrNotLoggedIn)
		_, err = client.WordsTotal(ctx)
		require.ErrorIs(t, err, apperr.ErrNotLoggedIn)
		require.Equal(t, 0, server.Count())
	})

	t.Run("TestPagination", func(t *testing.T) {
		server := testutil.NewServer()
		handleLogin(server, dictPers)
		handleWords(server, 2500, 2500)
		client := newTestClient(t, server)
		require.NoError(t, client.Login(ctx))
		before := server.Count()

		total, err := client.WordsTotal(ctx)
		require.NoError(t, err)
		require.Equal(t, 2500, total)

		words, err := client.Words(ctx)
		require.NoError(t, err)
		require.Len(t, words, 2500)
		require.Equal(t, "word-2499", words[2499].Word)

		var queries []string
		for _, req := range server.Requests[before:] {
			u, err := url.Parse(req.Url)
			require.NoError(t, err)
			queries = append(queries, u.RawQuery)
		}
		require.Equal(t, []string{
			"limit=1&offset=0",
			"limit=1&offset=0",
			"limit=1000&offset=0",
			"limit=1000&offset=1000",
			"limit=1000&offset=2000",
		}, queries)
	})

	t.Run("TestCountMismatch", func(t *testing.T) {
		server := testutil.NewServer()
		handleLogin(server, dictPers)
		handleWords(server, 2490, 3000)
		client := newTestClient(t, server)
		require.NoError(t, client.Login(ctx))

		_, err := client.Words(ctx)
		require.ErrorIs(t, err, apperr.ErrCountMismatch)
	})
}
