// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"

	"github.com/crosswin/xwin/internal/xwinerr"
	"github.com/crosswin/xwin/lib/clock"
	"github.com/crosswin/xwin/lib/netutil"
)

// maxAttempts bounds retries the same way the daemon's Matrix event
// retry does: three tries with exponential backoff (1s, 2s) covers
// brief server hiccups without blocking a long download queue.
const maxAttempts = 3

// Config configures a Client.
type Config struct {
	// HTTPSProxy, if set, is used for all requests. A "socks5://" or
	// "socks5h://" scheme routes through a SOCKS5 dialer instead of
	// HTTP CONNECT.
	HTTPSProxy string

	// CABundle, if set, is a PEM file of additional trusted roots,
	// for environments that intercept TLS with a corporate proxy.
	CABundle string

	// MaxRequestsPerSec bounds the request rate across the whole
	// client. Zero means unlimited.
	MaxRequestsPerSec float64

	// HTTPClient overrides the transport. Defaults to a client built
	// from HTTPSProxy/CABundle.
	HTTPClient *http.Client

	// Clock provides time operations. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives retry/rate-limit diagnostics. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Client is xwin's shared HTTP client for talking to aka.ms and the
// Visual Studio CDN.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	clock      clock.Clock
	logger     *slog.Logger
}

// New builds a Client from cfg.
func New(cfg Config) (*Client, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport, err := buildTransport(cfg.HTTPSProxy, cfg.CABundle)
		if err != nil {
			return nil, err
		}
		httpClient = &http.Client{Transport: transport}
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.MaxRequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSec), 1)
	}

	return &Client{httpClient: httpClient, limiter: limiter, clock: clk, logger: logger}, nil
}

func buildTransport(proxyAddr, caBundle string) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyAddr != "" {
		proxyURL, err := url.Parse(proxyAddr)
		if err != nil {
			return nil, xwinerr.Wrap(xwinerr.KindUser, err, "parsing proxy URL %q", proxyAddr)
		}
		if strings.HasPrefix(proxyURL.Scheme, "socks5") {
			dialer, err := proxy.FromURL(proxyURL, proxy.Direct)
			if err != nil {
				return nil, xwinerr.Wrap(xwinerr.KindUser, err, "configuring SOCKS5 proxy %q", proxyAddr)
			}
			transport.Proxy = nil
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		} else {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	if caBundle != "" {
		pem, err := os.ReadFile(caBundle)
		if err != nil {
			return nil, xwinerr.Wrap(xwinerr.KindUser, err, "reading CA bundle %q", caBundle)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, xwinerr.New(xwinerr.KindUser, "no certificates found in CA bundle %q", caBundle)
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: pool}
	}

	return transport, nil
}

// Fetch retrieves the entire body at url, bounded by
// netutil.MaxResponseSize. Intended for small JSON manifests, not for
// multi-hundred-megabyte payloads -- use Open for those.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.doWithRetry(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := netutil.ReadResponse(resp.Body)
	if err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindNetwork, err, "reading response body from %s", url)
	}
	return data, nil
}

// Open returns a streaming reader for the body at url, along with its
// declared Content-Length (-1 if unknown). The caller must close the
// returned body. Retries apply only to establishing the response --
// once streaming begins, a failure must be retried by the caller
// calling Open again.
func (c *Client) Open(ctx context.Context, url string) (body io.ReadCloser, contentLength int64, err error) {
	resp, err := c.doWithRetry(ctx, url)
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}

// doWithRetry performs a GET against url, retrying transient failures
// (connection errors, 429, 5xx) up to maxAttempts times with
// exponential backoff. The returned response's body is the caller's
// responsibility to close.
func (c *Client) doWithRetry(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return nil, xwinerr.Wrap(xwinerr.KindCancelled, ctx.Err(), "fetching %s", url)
			case <-c.clock.After(backoff):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, xwinerr.Wrap(xwinerr.KindCancelled, err, "waiting for rate limiter")
			}
		}

		resp, err := c.doOnce(ctx, url)
		if err == nil {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return resp, nil
			}
			retryable := isRetryableStatus(resp.StatusCode)
			body := netutil.ErrorBody(resp.Body)
			resp.Body.Close()
			statusErr := xwinerr.New(xwinerr.KindNetwork, "GET %s: HTTP %d: %s", url, resp.StatusCode, body)
			lastErr = statusErr
			if !retryable {
				return nil, statusErr
			}
			c.logger.Warn("transient HTTP failure, retrying",
				"url", url, "status", resp.StatusCode, "attempt", attempt+1)
			continue
		}

		lastErr = xwinerr.Wrap(xwinerr.KindNetwork, err, "GET %s", url)
		c.logger.Warn("transient request failure, retrying",
			"url", url, "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	return c.httpClient.Do(req)
}

// isRetryableStatus mirrors the daemon's Matrix retry classification:
// 429 (rate limit) and 5xx (server error) are transient; every other
// 4xx is a permanent client error.
func isRetryableStatus(status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500
}
