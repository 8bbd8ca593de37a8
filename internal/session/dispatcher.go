package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dictsync/internal/apperr"
	"dictsync/internal/components/assert"
	"dictsync/internal/components/telemetry"
	"dictsync/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/http/httpguts"
	"golang.org/x/time/rate"
)

const (
	report_dispatcher_send   = "dispatcher.send"
	report_dispatcher_header = "dispatcher.header"
)

const (
	contentTypeForm = "application/x-www-form-urlencoded"
	contentTypeJson = "application/json"
)

const DefaultTimeout = 30 * time.Second

// TransportOptions configures the HTTP client behind a Dispatcher.
type TransportOptions struct {
	// Timeout bounds a single request, zero means DefaultTimeout.
	Timeout time.Duration
	// RateLimit is the maximum number of requests per second, zero disables limiting.
	RateLimit float64
	// CloudflareBypass wraps the transport with browser-like TLS settings.
	CloudflareBypass bool
	// Transport replaces the default round tripper, tests serve responses in-process with it.
	Transport http.RoundTripper
	// Output receives a dump of every request/response pair when set.
	Output restyutil.InstrumentOutput
}

// Dispatcher turns a named template, a url rewrite and a body into an HTTP request carrying
// the cookies of its jar.
type Dispatcher struct {
	tel       telemetry.API
	templates Templates
	jar       *Jar
	http      *resty.Client
}

func NewDispatcher(templates Templates, jar *Jar, opts TransportOptions, tel telemetry.API) *Dispatcher {
	assert.NotNil(jar)
	assert.NotNil(tel)

	client := resty.New()
	if opts.Transport != nil {
		client.SetTransport(opts.Transport)
	}
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	// cookies are managed by Jar and redirects are returned to the caller as is
	client.SetCookieJar(nil)
	client.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}))

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client.SetTimeout(timeout)

	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(client, tel, opts.Output)
	client.SetPreRequestHook(onlyDeclaredHeaders)

	return &Dispatcher{
		tel:       tel,
		templates: templates,
		jar:       jar,
		http:      client,
	}
}

// Send dispatches the template called name. rewrite receives the template url and returns
// the url to request, nil keeps it unchanged. body is encoded according to the template's
// Content-Type header.
//
// Only 200 and 302 count as success, anything else is returned as *apperr.StatusError along
// with the response. Set-Cookie headers are not ingested here.
func (d *Dispatcher) Send(ctx context.Context, name string, rewrite func(string) string, body any) (*resty.Response, error) {
	op := fmt.Sprintf("send %s", name)

	tmpl, ok := d.templates.Get(name)
	if !ok {
		return nil, apperr.Newf(apperr.KindConfiguration, op, "%w: not found request config with name: %s", apperr.ErrTemplateNotFound, name)
	}
	if len(tmpl.Headers) == 0 {
		return nil, apperr.New(apperr.KindConfiguration, op, apperr.ErrMissingHeaders)
	}

	target := tmpl.Url
	if rewrite != nil {
		target = rewrite(target)
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, apperr.Newf(apperr.KindConfiguration, op, "parse url: %w", err)
	}

	req := d.http.R()
	declared := make(declaredHeaders, len(tmpl.Headers)+1)
	for _, key := range tmpl.sortedHeaderNames() {
		value := tmpl.Headers[key]
		if !httpguts.ValidHeaderFieldName(key) || !httpguts.ValidHeaderFieldValue(value) {
			d.tel.ReportWarning(report_dispatcher_header, "skipping invalid header", name, key)
			continue
		}
		req.SetHeader(key, value)
		declared[http.CanonicalHeaderKey(key)] = true
	}

	cookies := d.jar.Applicable(parsed)
	if len(cookies) > 0 {
		req.SetHeader("Cookie", CookieHeader(cookies))
		declared["Cookie"] = true
	}
	req.SetContext(context.WithValue(ctx, declaredHeadersKey, declared))

	if body != nil {
		encoded, err := encodeBody(tmpl, body)
		if err != nil {
			return nil, apperr.New(apperr.KindOf(err), op, err)
		}
		req.SetBody(encoded)
	}

	method := strings.ToUpper(tmpl.Method)
	if method == "" {
		method = http.MethodGet
	}

	res, err := req.Execute(method, target)
	if err != nil {
		return res, apperr.New(apperr.KindTransport, op, err)
	}
	code := res.StatusCode()
	if code != http.StatusOK && code != http.StatusFound {
		d.tel.ReportDebug("unexpected status", name, code)
		return res, apperr.New(apperr.KindProtocol, op, &apperr.StatusError{
			Code:   code,
			Status: res.Status(),
			Url:    target,
		})
	}
	return res, nil
}

// declaredHeaders is the canonical set of header names a request may carry.
type declaredHeaders map[string]bool

type declaredHeadersKeyType int

var declaredHeadersKey declaredHeadersKeyType

// onlyDeclaredHeaders removes the headers resty adds on its own (User-Agent, Accept), the
// outgoing header set is exactly what the template and the jar provided. An empty User-Agent
// keeps net/http from sending its default one.
func onlyDeclaredHeaders(_ *resty.Client, req *http.Request) error {
	declared, ok := req.Context().Value(declaredHeadersKey).(declaredHeaders)
	if !ok {
		return nil
	}
	for name := range req.Header {
		if !declared[name] {
			delete(req.Header, name)
		}
	}
	if !declared["User-Agent"] {
		req.Header["User-Agent"] = []string{""}
	}
	return nil
}

func encodeBody(tmpl RequestTemplate, body any) ([]byte, error) {
	contentType, ok := tmpl.ContentType()
	if !ok {
		return nil, apperr.New(apperr.KindConfiguration, "", fmt.Errorf("%w: body given without content-type", apperr.ErrMissingHeaders))
	}

	switch {
	case strings.Contains(contentType, contentTypeForm):
		values, err := formValues(body)
		if err != nil {
			return nil, err
		}
		return []byte(values.Encode()), nil
	case strings.Contains(contentType, contentTypeJson):
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, apperr.Newf(apperr.KindEncoding, "", "encode json body: %w", err)
		}
		return encoded, nil
	}
	return nil, apperr.Newf(apperr.KindEncoding, "", "%w: %s", apperr.ErrUnsupportedContentType, contentType)
}

func formValues(body any) (url.Values, error) {
	switch v := body.(type) {
	case url.Values:
		return v, nil
	case map[string]string:
		values := url.Values{}
		for key, value := range v {
			values.Set(key, value)
		}
		return values, nil
	}
	return nil, apperr.Newf(apperr.KindEncoding, "", "encode form body: unsupported type %T", body)
}
