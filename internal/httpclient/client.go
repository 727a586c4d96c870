// Package httpclient builds the outbound HTTP client used to reach the
// employee source.
package httpclient

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/okamoto/hr-dashboard/internal/config"
	"go.uber.org/zap"
)

// New returns an *http.Client with pooled connections and the configured
// overall timeout. A zero timeout leaves requests bounded only by their context.
func New(cfg config.SourceConfig, logger *zap.Logger) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	// Allow insecure TLS if configured (not recommended for production)
	if cfg.TLSInsecureSkip {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // opt-in for local mirrors
		}
		logger.Warn("TLS certificate verification is disabled")
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}
