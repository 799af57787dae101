package transport

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"time"

	"telemetry-courier/internal/common/logging"
	"telemetry-courier/internal/dsn"
)

// Destination is the resolved submission target. It is computed once at
// transport construction and immutable for the transport's lifetime.
type Destination struct {
	// URL is the envelope submission endpoint.
	URL string
	// AuthHeader is the precomputed X-Sentry-Auth value.
	AuthHeader string
	// Secure reports whether the endpoint uses TLS.
	Secure bool
	// ProxyURL is the selected proxy, nil for a direct connection.
	ProxyURL *url.URL
	// InsecureSkipVerify disables TLS certificate verification. Off by
	// default; only diagnostic builds should set it.
	InsecureSkipVerify bool
}

// resolveDestination computes the destination from the parsed DSN and
// the process-wide options.
func resolveDestination(d *dsn.DSN, opts Options, logger logging.Logger) Destination {
	return Destination{
		URL:                d.EnvelopeURL(),
		AuthHeader:         d.AuthHeader(opts.ClientName),
		Secure:             d.Secure(),
		ProxyURL:           resolveProxy(d.Secure(), opts.HTTPSProxy, opts.HTTPProxy, logger),
		InsecureSkipVerify: opts.InsecureSkipVerify,
	}
}

// resolveProxy selects at most one proxy. A secure destination prefers
// the secure-proxy setting; anything else falls back to the general
// proxy setting. An invalid proxy string is logged and treated as
// absent; it never prevents transport construction.
func resolveProxy(secure bool, httpsProxy, httpProxy string, logger logging.Logger) *url.URL {
	if secure && httpsProxy != "" {
		if u, err := parseProxy(httpsProxy); err == nil {
			return u
		} else {
			logger.Warn("invalid HTTPS proxy, ignoring",
				logging.String("proxy", httpsProxy),
				logging.Err(err),
			)
		}
	}
	if httpProxy != "" {
		if u, err := parseProxy(httpProxy); err == nil {
			return u
		} else {
			logger.Warn("invalid proxy, ignoring",
				logging.String("proxy", httpProxy),
				logging.Err(err),
			)
		}
	}
	return nil
}

// parseProxy parses a proxy URL, requiring at least a scheme and host.
func parseProxy(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, &url.Error{Op: "parse", URL: raw, Err: errMissingSchemeOrHost}
	}
	return u, nil
}

var errMissingSchemeOrHost = &proxyError{"proxy URL must include scheme and host"}

type proxyError struct{ msg string }

func (e *proxyError) Error() string { return e.msg }

// newHTTPClient builds the HTTP client for the destination. Proxy and
// TLS settings are baked in once; the client is reused for every
// delivery to keep connections warm.
func newHTTPClient(dest Destination, timeout time.Duration, roundTripper http.RoundTripper) *http.Client {
	if roundTripper == nil {
		httpTransport := &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: dest.InsecureSkipVerify,
			},
		}
		if dest.ProxyURL != nil {
			httpTransport.Proxy = http.ProxyURL(dest.ProxyURL)
		}
		roundTripper = httpTransport
	}

	return &http.Client{
		Transport: roundTripper,
		Timeout:   timeout,
	}
}
