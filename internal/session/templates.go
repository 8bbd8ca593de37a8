package session

import (
	"sort"
	"strings"
)

// RequestTemplate is a declarative description of one browser request, the headers are sent
// as configured because the target services reject traffic that does not look like a browser.
type RequestTemplate struct {
	Url     string            `yaml:"url" json:"url"`
	Method  string            `yaml:"method" json:"method"`
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Header looks up a header case-insensitively.
func (t RequestTemplate) Header(name string) (string, bool) {
	for k, v := range t.Headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

func (t RequestTemplate) ContentType() (string, bool) {
	return t.Header("content-type")
}

// sortedHeaderNames keeps header application deterministic.
func (t RequestTemplate) sortedHeaderNames() []string {
	names := make([]string, 0, len(t.Headers))
	for k := range t.Headers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Templates maps a symbolic request name to its template, it is read-only once loaded.
type Templates map[string]RequestTemplate

func (t Templates) Get(name string) (RequestTemplate, bool) {
	tmpl, ok := t[name]
	return tmpl, ok
}
