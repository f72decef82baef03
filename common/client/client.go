package client

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/Laisky/zap"

	"github.com/blackjuly/ultra-mcp/common/logger"
)

// HTTPClient is the default outbound client used for provider requests.
// It has no request timeout; callers bound requests through context
// cancellation instead.
var HTTPClient *http.Client

// ImpatientHTTPClient is a short-timeout client for pricing fetches and
// doctor health checks.
var ImpatientHTTPClient *http.Client

func init() {
	Init()
}

// Init builds the shared HTTP clients with proxy settings read from the
// environment. Proxy resolution order: GLOBAL_AGENT_HTTPS_PROXY, HTTPS_PROXY,
// HTTP_PROXY; first non-empty wins.
func Init() {
	transport := newTransport(proxyFromEnv())

	HTTPClient = &http.Client{
		Transport: transport,
	}
	ImpatientHTTPClient = &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
}

func proxyFromEnv() *url.URL {
	for _, name := range []string{"GLOBAL_AGENT_HTTPS_PROXY", "HTTPS_PROXY", "HTTP_PROXY"} {
		raw := os.Getenv(name)
		if raw == "" {
			continue
		}
		proxyURL, err := url.Parse(raw)
		if err != nil {
			logger.Logger.Warn("ignoring invalid proxy URL",
				zap.String("env", name), zap.Error(err))
			continue
		}
		logger.Logger.Info("using outbound proxy", zap.String("env", name))
		return proxyURL
	}
	return nil
}

// newTransport disables HTTP/2 to avoid stream errors with some upstream
// SSE implementations behind proxies.
func newTransport(proxyURL *url.URL) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:  dialer.DialContext,
		TLSNextProto: make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
	}
	if proxyURL != nil {
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return transport
}
