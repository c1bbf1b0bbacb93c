package oauth2client

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// Option customises a TokenManager or an APIClient.
type Option func(*options)

type options struct {
	httpClient *http.Client
	logger     log.FieldLogger
	now        func() time.Time
	tokens     TokenProvider
	userAgent  string
}

func buildOptions(opts []Option) options {
	o := options{
		logger: log.StandardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithHTTPClient replaces the transport built from the configuration. An APIClient
// applies Config.MaxRedirects to a client without a CheckRedirect. A client with its own
// CheckRedirect keeps it, and the errors that policy returns surface as TransportError.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger sets the logger used for debug tracing. Defaults to the logrus standard logger.
func WithLogger(l log.FieldLogger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides the wall clock used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithTokenProvider makes an APIClient share an existing token source instead of
// creating its own TokenManager.
func WithTokenProvider(p TokenProvider) Option {
	return func(o *options) { o.tokens = p }
}

// WithUserAgent sets the User-Agent sent to the token endpoint.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}
