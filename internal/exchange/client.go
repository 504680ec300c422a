// Package exchange translates a caller's pseudonym into the provider-local
// pseudonym by calling the remote pseudonym exchange service.
//
// The client makes exactly one POST per call: no retries and no caching. Every
// failure, whatever its cause, is returned as an *Error wrapping
// ErrExchangeFailed so the pipeline can fail closed.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pseudonym-gateway/internal/platform/config"
	"pseudonym-gateway/pkg/domain"
	"pseudonym-gateway/pkg/platform/circuit"
	"pseudonym-gateway/pkg/requestcontext"
)

const defaultTimeout = 5 * time.Second

// Client calls the exchange endpoint.
type Client struct {
	endpoint         string
	targetProviderID string
	timeout          time.Duration
	http             *http.Client
	breaker          *circuit.Breaker
	logger           *slog.Logger
	metrics          *Metrics
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithBreaker fails calls fast while b is open.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// New builds a client. Missing endpoint or target provider is a fatal
// configuration error: the client refuses to exist without a defined target.
func New(cfg config.Exchange, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: PSEUDONYM_EXCHANGE_ENDPOINT must be an absolute http(s) URL", config.ErrConfigurationMissing)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		endpoint:         cfg.Endpoint,
		targetProviderID: cfg.TargetProviderID,
		timeout:          timeout,
		http:             &http.Client{Timeout: timeout},
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Exchange turns an external pseudonym into the provider-local pseudonym.
func (c *Client) Exchange(ctx context.Context, external domain.ExternalPseudonym) (domain.ProviderPseudonym, error) {
	start := time.Now()

	if c.breaker != nil && !c.breaker.Allow() {
		err := newError(CategoryCircuitOpen, "exchange circuit is open", nil)
		c.metrics.observe(string(err.Category), time.Since(start))
		return "", err
	}

	pseudonym, err := c.do(ctx, external)
	c.record(ctx, err, time.Since(start))
	if err != nil {
		return "", err
	}
	return pseudonym, nil
}

func (c *Client) do(ctx context.Context, external domain.ExternalPseudonym) (domain.ProviderPseudonym, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(exchangeRequest{
		TargetProviderID: c.targetProviderID,
		SourcePseudonym:  external.String(),
	})
	if err != nil {
		return "", newError(CategoryInternal, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", newError(CategoryInternal, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if id := requestcontext.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return "", newError(CategoryTimeout, "exchange did not respond in "+c.timeout.String(), err)
		}
		return "", newError(CategoryOutage, "exchange unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		if isTimeout(ctx, err) {
			return "", newError(CategoryTimeout, "reading exchange response timed out", err)
		}
		return "", newError(CategoryOutage, "read exchange response", err)
	}
	if len(body) > maxResponseBytes {
		return "", newError(CategoryBadData, "exchange response exceeds "+strconv.Itoa(maxResponseBytes)+" bytes", nil)
	}

	switch {
	case resp.StatusCode >= 500:
		return "", newError(CategoryOutage, "exchange returned "+resp.Status, nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", newError(CategoryContractMismatch, "exchange returned "+resp.Status, nil)
	}

	return parseResponse(body)
}

// parseResponse extracts the exact "pseudonym" key from a JSON object. Any
// other shape fails closed.
func parseResponse(body []byte) (domain.ProviderPseudonym, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", newError(CategoryBadData, "exchange response is not a JSON object", err)
	}
	raw, ok := envelope[responseKeyPseudonym]
	if !ok {
		return "", newError(CategoryContractMismatch, `exchange response has no "pseudonym" field`, nil)
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", newError(CategoryContractMismatch, `"pseudonym" is not a string`, err)
	}
	if strings.TrimSpace(value) == "" {
		return "", newError(CategoryContractMismatch, `"pseudonym" is empty`, nil)
	}
	if len(value) > maxPseudonymLength {
		return "", newError(CategoryContractMismatch, `"pseudonym" is too long`, nil)
	}
	return domain.ProviderPseudonym(value), nil
}

func (c *Client) record(ctx context.Context, err error, d time.Duration) {
	if err == nil {
		if c.breaker != nil {
			if _, change := c.breaker.RecordSuccess(); change.Closed {
				c.logger.InfoContext(ctx, "exchange circuit closed", "breaker", c.breaker.Name())
			}
		}
		c.metrics.observe("ok", d)
		return
	}

	category := CategoryOf(err)
	if c.breaker != nil && countsAgainstBreaker(category) {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.WarnContext(ctx, "exchange circuit opened", "breaker", c.breaker.Name())
		}
	}
	c.metrics.observe(string(category), d)
}

// Only availability failures trip the breaker; a malformed answer proves the
// service is up.
func countsAgainstBreaker(category Category) bool {
	return category == CategoryTimeout || category == CategoryOutage
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
