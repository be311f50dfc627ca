// Package cloudflare fetches the published Cloudflare edge IP ranges.
package cloudflare

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/plexsphere/cloudflare-ufw-sync/internal/cidr"
)

const (
	// ipsPath is the ranges endpoint relative to BaseURL.
	ipsPath = "/client/v4/ips"

	// maxResponseSize is the maximum decompressed response body size (10 MiB).
	maxResponseSize = 10 * 1024 * 1024

	// userAgentPrefix is the User-Agent header prefix.
	userAgentPrefix = "cloudflare-ufw-sync/"
)

var errDecode = errors.New("cloudflare: decode response")

// ipsResponse is the envelope returned by the ranges endpoint.
type ipsResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result struct {
		IPv4CIDRs []string `json:"ipv4_cidrs"`
		IPv6CIDRs []string `json:"ipv6_cidrs"`
		Etag      string   `json:"etag"`
	} `json:"result"`
}

// Client retrieves the provider's IP ranges.
type Client struct {
	httpClient *http.Client
	cfg        Config
	baseURL    string
	version    string
	logger     *slog.Logger

	// sleep waits between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client with the given configuration.
func NewClient(cfg Config, version string, logger *slog.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		DisableCompression: true,
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
		},
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		version: version,
		logger:  logger.With("component", "cloudflare"),
		sleep:   sleepContext,
	}, nil
}

// FetchRanges returns the raw candidate CIDR strings for each requested
// family. The strings are unvalidated; see cidr.ValidateState.
func (c *Client) FetchRanges(ctx context.Context, families []cidr.Family) (map[cidr.Family][]string, error) {
	var body ipsResponse
	if err := c.getWithRetry(ctx, ipsPath, &body); err != nil {
		return nil, err
	}

	if !body.Success {
		msgs := make([]string, 0, len(body.Errors))
		for _, e := range body.Errors {
			msgs = append(msgs, e.Message)
		}
		if len(msgs) == 0 {
			return nil, ErrUnsuccessful
		}
		return nil, fmt.Errorf("%w: %s", ErrUnsuccessful, strings.Join(msgs, "; "))
	}

	out := make(map[cidr.Family][]string, len(families))
	for _, f := range families {
		switch f {
		case cidr.FamilyV4:
			out[f] = body.Result.IPv4CIDRs
		case cidr.FamilyV6:
			out[f] = body.Result.IPv6CIDRs
		}
	}

	c.logger.Info("fetched cloudflare ranges",
		"v4", len(out[cidr.FamilyV4]),
		"v6", len(out[cidr.FamilyV6]),
		"etag", body.Result.Etag,
	)
	return out, nil
}

// getWithRetry repeats transient failures with doubling delays.
func (c *Client) getWithRetry(ctx context.Context, path string, result any) error {
	delay := c.cfg.RetryDelay
	attempts := c.cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = c.getJSON(ctx, path, result)
		if err == nil || !retryable(err) || attempt == attempts || ctx.Err() != nil {
			break
		}

		wait := delay
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			wait = apiErr.RetryAfter
		}
		c.logger.Warn("cloudflare request failed, retrying",
			"attempt", attempt,
			"retry_in", wait,
			"error", err,
		)
		if serr := c.sleep(ctx, wait); serr != nil {
			return serr
		}
		delay *= 2
	}
	return err
}

// getJSON sends a GET request and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("cloudflare: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", userAgentPrefix+c.version)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cloudflare: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp)
	}

	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: gzip: %w", errDecode, err)
		}
		defer gr.Close()
		reader = gr
	}
	if err := json.NewDecoder(io.LimitReader(reader, maxResponseSize)).Decode(result); err != nil {
		return fmt.Errorf("%w: %w", errDecode, err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
