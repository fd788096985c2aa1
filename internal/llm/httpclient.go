// Package llm contains the completion provider adapters. Each adapter turns a
// persona and a user prompt into a single chat-completion call and classifies
// failures into *domain.ProviderError kinds. Adapters never retry; retries are
// added by wrapping a provider in RetryingProvider.
package llm

import (
	"net"
	"net/http"
	"time"
)

// SharedHTTPClient returns a pooled HTTP client for provider calls. The
// per-call deadline comes from the request context; timeout is only a
// safety net.
func SharedHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// headerTransport adds fixed headers to every outgoing request.
type headerTransport struct {
	rt      http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone request to avoid mutating the original
	cl := req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			cl.Header.Add(k, v)
		}
	}
	return t.rt.RoundTrip(cl)
}

// withHeaders returns a copy of client whose transport injects h. The
// original client is returned unchanged when h is empty.
func withHeaders(client *http.Client, h http.Header) *http.Client {
	if len(h) == 0 {
		return client
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	cp := *client
	cp.Transport = headerTransport{rt: base, headers: h}
	return &cp
}

// openRouterHeaders builds the optional attribution headers OpenRouter reads.
func openRouterHeaders(referrer, title string) http.Header {
	h := http.Header{}
	if referrer != "" {
		h.Set("HTTP-Referer", referrer)
	}
	if title != "" {
		h.Set("X-Title", title)
	}
	return h
}
