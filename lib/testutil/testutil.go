package testutil

import (
	"bytes"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	_ "modernc.org/sqlite"
)

// Request is a request captured by Server.
type Request struct {
	Method string
	Url    string
	Header http.Header
	Body   []byte
}

// Server is an http.RoundTripper that serves requests with in-process handlers, routes are
// keyed by "<host><path>" so tests can use the real hostnames cookies are scoped to.
type Server struct {
	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	Requests []Request
}

func NewServer() *Server {
	return &Server{routes: make(map[string]http.HandlerFunc)}
}

func (s *Server) Handle(hostPath string, handler http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[hostPath] = handler
}

func (s *Server) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	s.mu.Lock()
	s.Requests = append(s.Requests, Request{
		Method: req.Method,
		Url:    req.URL.String(),
		Header: req.Header.Clone(),
		Body:   body,
	})
	handler, ok := s.routes[req.URL.Host+req.URL.Path]
	s.mu.Unlock()

	rec := httptest.NewRecorder()
	if ok {
		handler(rec, req)
	} else {
		http.NotFound(rec, req)
	}
	res := rec.Result()
	res.Request = req
	return res, nil
}

// Count returns how many requests have been served.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

// Last returns the most recent request, it fails the test when there is none.
func (s *Server) Last(t testing.TB) Request {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Requests) == 0 {
		t.Fatal("no requests were made")
	}
	return s.Requests[len(s.Requests)-1]
}

// OpenMemoryDB opens an in-memory sqlite database that is closed with the test.
func OpenMemoryDB(t testing.TB) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
