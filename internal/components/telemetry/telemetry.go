package telemetry

import (
	"fmt"
)

// API is an abstraction over logging/metrics, it is passed down explicitly to every component
// that reports anything so tests can assert on what was reported.
//
// note: fault injection point
type API interface {
	// ReportBroken reports a component that failed in a way the operator should look at.
	//
	// The `id` names the **component** that broke, `<struct or intf>.<method>` in lowercase with
	// dashes, ex. `dispatcher.send` or `client.login`. Namespaces are added by ScopedAPI so the
	// package does not need to be part of the id. Detail goes into params or into a wrapped
	// error, not into the id.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something that is not necessarily broken but may be worth a look,
	// ex. a malformed Set-Cookie header that was skipped.
	//
	// For what value to provide as `id` refer to ReportBroken.
	ReportWarning(id string, params ...any)

	// ReportDebug reports debug information that is only shown with --verbose.
	ReportDebug(msg string, params ...any)

	// ReportCount reports the current count of a specific event, counts are points of data and
	// should not be summed.
	//
	// For what value to provide as `id` refer to ReportBroken.
	ReportCount(id string, count int64)
}

// ScopedAPI attaches a namespace to every report of an inner API, kind of like creating a "sub"
// logger with a prefix.
type ScopedAPI struct {
	namespace string
	inner     API
}

// NewScopedAPI creates a ScopedAPI out of a given namespace and another api.
func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}
