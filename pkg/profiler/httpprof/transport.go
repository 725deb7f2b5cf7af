package httpprof

import (
	"io"
	"net/http"
	"sync"

	"mercator-hq/stopwatch/pkg/profiler"
)

// Category is the custom timing category used for outgoing HTTP calls.
const Category = "http"

// Transport is an http.RoundTripper that records outgoing requests on the session in
// the request context.
type Transport struct {
	// Base performs the request.
	// Default: http.DefaultTransport
	Base http.RoundTripper

	// Category overrides the custom timing category.
	// Default: "http"
	Category string
}

// NewClient returns an http.Client whose calls are profiled.
func NewClient(base http.RoundTripper) *http.Client {
	return &http.Client{Transport: &Transport{Base: base}}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	category := t.Category
	if category == "" {
		category = Category
	}

	ct := profiler.StartCustomTiming(req.Context(), category, req.Method+" "+req.URL.String(), req.Method)
	if ct == nil {
		return base.RoundTrip(req)
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		ct.SetErrored()
		ct.Stop()
		return nil, err
	}

	ct.MarkFirstResult()
	if resp.StatusCode >= http.StatusInternalServerError {
		ct.SetErrored()
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		ct.Stop()
		return resp, nil
	}
	resp.Body = &timedBody{ReadCloser: resp.Body, timing: ct}
	return resp, nil
}

// timedBody stops the timing when the response body is closed.
type timedBody struct {
	io.ReadCloser
	timing *profiler.CustomTiming
	once   sync.Once
}

func (b *timedBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(func() { b.timing.Stop() })
	return err
}
