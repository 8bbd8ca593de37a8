package session

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dictsync/internal/apperr"
	"dictsync/internal/components/telemetry"

	cookiejar "github.com/juju/persistent-cookiejar"
	"golang.org/x/net/publicsuffix"
)

const (
	report_jar_ingest = "jar.ingest"
	report_jar_load   = "jar.load"
)

// Jar holds the cookies of one Session. Matching, expiry and the snapshot format come from
// persistent-cookiejar; only cookies with an expiry (Expires or Max-Age) are written to the
// snapshot, session cookies live as long as the process.
//
// A Jar is owned by a single Session.
type Jar struct {
	tel telemetry.API
	jar *cookiejar.Jar
}

func newMemoryJar() *cookiejar.Jar {
	// a jar that does not persist never reads a file so it cannot fail
	jar, _ := cookiejar.New(&cookiejar.Options{
		PublicSuffixList: publicsuffix.List,
		NoPersist:        true,
	})
	return jar
}

func NewJar(tel telemetry.API) *Jar {
	return &Jar{tel: tel, jar: newMemoryJar()}
}

// LoadJar reads a cookie snapshot. An empty path, a missing file or an empty file results in an
// empty jar.
func LoadJar(path string, tel telemetry.API) (*Jar, error) {
	if path == "" {
		return NewJar(tel), nil
	}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		tel.ReportDebug("cookie snapshot not found, starting empty", path)
		return NewJar(tel), nil
	}
	if err != nil {
		return nil, apperr.Newf(apperr.KindConfiguration, "load cookies", "stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		tel.ReportDebug("cookie snapshot is empty, starting empty", path)
		return NewJar(tel), nil
	}

	jar, err := cookiejar.New(&cookiejar.Options{
		Filename:         path,
		PublicSuffixList: publicsuffix.List,
	})
	if err != nil {
		return nil, apperr.Newf(apperr.KindConfiguration, "load cookies", "parse %s: %w", path, err)
	}
	j := &Jar{tel: tel, jar: jar}
	tel.ReportCount(report_jar_load, int64(j.Len()))
	return j, nil
}

// Save writes the persistent cookies to path. The snapshot is written next to path first and
// renamed over it, an interrupted save leaves the previous snapshot intact.
func (j *Jar) Save(path string) error {
	contents, err := j.jar.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}

	dir := filepath.Dir(path)
	err = os.MkdirAll(dir, 0700)
	if err != nil {
		return fmt.Errorf("create cookie directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	_, err = tmp.Write(contents)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	err = os.Rename(tmp.Name(), path)
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// All returns every unexpired cookie ordered by domain, path and name.
func (j *Jar) All() []*http.Cookie {
	out := j.jar.AllCookies()
	sort.Slice(out, func(a, b int) bool {
		if out[a].Domain != out[b].Domain {
			return out[a].Domain < out[b].Domain
		}
		if out[a].Path != out[b].Path {
			return out[a].Path < out[b].Path
		}
		return out[a].Name < out[b].Name
	})
	return out
}

func (j *Jar) Len() int {
	return len(j.jar.AllCookies())
}

// Lookup returns the unexpired cookie stored under exactly (domain, path, name). domain is the
// cookie's Domain attribute, or the host that set it for host-only cookies.
func (j *Jar) Lookup(domain, path, name string) (*http.Cookie, bool) {
	domain = normalizeDomain(domain)
	for _, c := range j.jar.AllCookies() {
		if c.Name == name && c.Path == path && normalizeDomain(c.Domain) == domain {
			return c, true
		}
	}
	return nil, false
}

// Applicable returns the cookies that should be sent to u, longest path first.
func (j *Jar) Applicable(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

// CookieHeader renders cookies as the value of a Cookie request header.
func CookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, len(cookies))
	for i, c := range cookies {
		parts[i] = c.Name + "=" + c.Value
	}
	return strings.Join(parts, "; ")
}

// Ingest parses every Set-Cookie value of header on its own and hands the valid ones to the
// jar, malformed values and cookies the origin may not set are reported and skipped. It
// returns how many cookies were applied, a cookie that expires immediately removes the stored
// one.
func (j *Jar) Ingest(header http.Header, origin *url.URL) int {
	applied := 0
	for _, line := range header.Values("Set-Cookie") {
		parsed, err := http.ParseSetCookie(line)
		if err != nil {
			j.tel.ReportWarning(report_jar_ingest, fmt.Errorf("malformed set-cookie %q: %w", line, err))
			continue
		}
		err = checkDomain(parsed, origin)
		if err != nil {
			j.tel.ReportWarning(report_jar_ingest, err)
			continue
		}
		j.jar.SetCookies(origin, []*http.Cookie{parsed})
		applied++
	}
	return applied
}

// checkDomain rejects what the jar would drop silently, so it can be reported.
func checkDomain(sc *http.Cookie, origin *url.URL) error {
	if sc.Domain == "" {
		return nil
	}
	host := canonicalHost(origin.Host)
	domain := normalizeDomain(sc.Domain)
	if domain == host {
		return nil
	}
	if net.ParseIP(host) != nil {
		return fmt.Errorf("cookie %s: domain attribute on ip origin %s", sc.Name, host)
	}
	if !strings.HasSuffix(host, "."+domain) {
		return fmt.Errorf("cookie %s: domain %s does not match origin %s", sc.Name, domain, host)
	}
	suffix, _ := publicsuffix.PublicSuffix(domain)
	if suffix == domain {
		return fmt.Errorf("cookie %s: domain %s is a public suffix", sc.Name, domain)
	}
	return nil
}

func normalizeDomain(domain string) string {
	return strings.TrimPrefix(strings.ToLower(domain), ".")
}

func canonicalHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}
