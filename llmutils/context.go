package llmutils

import (
	"context"
	"net/http"
)

type sessionIDKey struct{}

// WithSessionID attaches the reasoning session ID to ctx.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// SessionIDFromContext returns the session ID stored by WithSessionID.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey{}).(string)
	return id, ok && id != ""
}

// HTTPClientWithSessionHeader wraps an HTTP transport to add the session ID header from context
type HTTPClientWithSessionHeader struct {
	Transport http.RoundTripper
}

// RoundTrip implements http.RoundTripper and adds X-Session-ID from context
func (c *HTTPClientWithSessionHeader) RoundTrip(req *http.Request) (*http.Response, error) {
	if sessionID, ok := SessionIDFromContext(req.Context()); ok {
		req = req.Clone(req.Context())
		req.Header.Set("X-Session-ID", sessionID)
	}

	if c.Transport != nil {
		return c.Transport.RoundTrip(req)
	}
	return http.DefaultTransport.RoundTrip(req)
}

// NewHTTPClientWithSessionHeader creates an HTTP client that adds the session ID header from context
func NewHTTPClientWithSessionHeader(baseClient *http.Client) *http.Client {
	if baseClient == nil {
		baseClient = http.DefaultClient
	}

	transport := baseClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &http.Client{
		Transport:     &HTTPClientWithSessionHeader{Transport: transport},
		Timeout:       baseClient.Timeout,
		CheckRedirect: baseClient.CheckRedirect,
		Jar:           baseClient.Jar,
	}
}
