package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"pseudonym-gateway/internal/platform/config"
	"pseudonym-gateway/internal/platform/logger"
	"pseudonym-gateway/pkg/domain"
	"pseudonym-gateway/pkg/platform/circuit"
	"pseudonym-gateway/pkg/requestcontext"
)

const (
	externalPseudonym = domain.ExternalPseudonym("677b33c7-30e0-4fe1-a740-87fd73c4dfaf")
	providerPseudonym = "9e3a7d12-8c4b-4f61-b0f2-5a1c2e7d9b40"
)

type ClientSuite struct {
	suite.Suite
	server  *httptest.Server
	handler http.HandlerFunc
	calls   atomic.Int32
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.calls.Store(0)
	s.handler = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"pseudonym":"`+providerPseudonym+`"}`)
	}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		s.handler(w, r)
	}))
}

func (s *ClientSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientSuite) newClient(opts ...Option) *Client {
	c, err := New(config.Exchange{
		Endpoint:         s.server.URL + "/exchange",
		TargetProviderID: "provider-a",
		Timeout:          200 * time.Millisecond,
	}, append([]Option{WithLogger(logger.Discard())}, opts...)...)
	s.Require().NoError(err)
	return c
}

func (s *ClientSuite) respond(status int, body string) {
	s.handler = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func (s *ClientSuite) assertFailed(err error, category Category) {
	s.Require().Error(err)
	s.True(errors.Is(err, ErrExchangeFailed), "error should wrap ErrExchangeFailed: %v", err)
	s.Equal(category, CategoryOf(err))
}

// =============================================================================
// Construction
// =============================================================================

func (s *ClientSuite) TestNew() {
	s.Run("missing endpoint is a configuration error", func() {
		_, err := New(config.Exchange{TargetProviderID: "provider-a"})
		s.ErrorIs(err, config.ErrConfigurationMissing)
	})

	s.Run("missing target provider is a configuration error", func() {
		_, err := New(config.Exchange{Endpoint: "http://exchange.local"})
		s.ErrorIs(err, config.ErrConfigurationMissing)
	})

	s.Run("relative endpoint is rejected", func() {
		_, err := New(config.Exchange{Endpoint: "/exchange", TargetProviderID: "provider-a"})
		s.ErrorIs(err, config.ErrConfigurationMissing)
	})

	s.Run("zero timeout falls back to the default", func() {
		c, err := New(config.Exchange{Endpoint: "https://exchange.local", TargetProviderID: "provider-a"})
		s.Require().NoError(err)
		s.Equal(defaultTimeout, c.timeout)
	})
}

// =============================================================================
// Success path
// =============================================================================

func (s *ClientSuite) TestExchange_Success() {
	s.Run("posts the typed request and returns the provider pseudonym", func() {
		var captured exchangeRequest
		var headers http.Header
		var method, path string
		s.handler = func(w http.ResponseWriter, r *http.Request) {
			method, path, headers = r.Method, r.URL.Path, r.Header.Clone()
			_ = json.NewDecoder(r.Body).Decode(&captured)
			_, _ = io.WriteString(w, `{"pseudonym":"`+providerPseudonym+`","issued_at":"2024-01-01"}`)
		}

		ctx := requestcontext.WithRequestID(context.Background(), "req-1")
		got, err := s.newClient().Exchange(ctx, externalPseudonym)

		s.Require().NoError(err)
		s.Equal(domain.ProviderPseudonym(providerPseudonym), got)
		s.Equal(http.MethodPost, method)
		s.Equal("/exchange", path)
		s.Equal("application/json", headers.Get("Accept"))
		s.Equal("application/json", headers.Get("Content-Type"))
		s.Equal("req-1", headers.Get("X-Request-ID"))
		s.Equal(exchangeRequest{TargetProviderID: "provider-a", SourcePseudonym: externalPseudonym.String()}, captured)
	})

	s.Run("provider pseudonym is returned verbatim", func() {
		s.respond(http.StatusOK, `{"pseudonym":" Mixed-Case "}`)
		got, err := s.newClient().Exchange(context.Background(), externalPseudonym)
		s.Require().NoError(err)
		s.Equal(domain.ProviderPseudonym(" Mixed-Case "), got)
	})

	s.Run("one call per exchange, no retry", func() {
		s.calls.Store(0)
		s.respond(http.StatusServiceUnavailable, `{}`)
		_, err := s.newClient().Exchange(context.Background(), externalPseudonym)
		s.Error(err)
		s.Equal(int32(1), s.calls.Load())
	})
}

// =============================================================================
// Failure taxonomy
// =============================================================================

func (s *ClientSuite) TestExchange_FailsClosed() {
	tests := []struct {
		name     string
		status   int
		body     string
		category Category
	}{
		{"missing pseudonym key", http.StatusOK, `{"other":"x"}`, CategoryContractMismatch},
		{"case variant key is not accepted", http.StatusOK, `{"Pseudonym":"abc"}`, CategoryContractMismatch},
		{"empty pseudonym", http.StatusOK, `{"pseudonym":""}`, CategoryContractMismatch},
		{"whitespace pseudonym", http.StatusOK, `{"pseudonym":"   "}`, CategoryContractMismatch},
		{"numeric pseudonym", http.StatusOK, `{"pseudonym":42}`, CategoryContractMismatch},
		{"null pseudonym", http.StatusOK, `{"pseudonym":null}`, CategoryContractMismatch},
		{"overlong pseudonym", http.StatusOK, `{"pseudonym":"` + strings.Repeat("a", maxPseudonymLength+1) + `"}`, CategoryContractMismatch},
		{"non-JSON body", http.StatusOK, `pseudonym=abc`, CategoryBadData},
		{"JSON array", http.StatusOK, `["pseudonym"]`, CategoryBadData},
		{"empty body", http.StatusOK, ``, CategoryBadData},
		{"server error", http.StatusInternalServerError, `{"pseudonym":"abc"}`, CategoryOutage},
		{"client error", http.StatusBadRequest, `{"pseudonym":"abc"}`, CategoryContractMismatch},
		{"not found", http.StatusNotFound, ``, CategoryContractMismatch},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.respond(tt.status, tt.body)
			got, err := s.newClient().Exchange(context.Background(), externalPseudonym)
			s.assertFailed(err, tt.category)
			s.True(got.IsZero())
		})
	}
}

func (s *ClientSuite) TestExchange_Timeout() {
	release := make(chan struct{})
	defer close(release)
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}

	start := time.Now()
	_, err := s.newClient().Exchange(context.Background(), externalPseudonym)

	s.assertFailed(err, CategoryTimeout)
	s.Less(time.Since(start), 2*time.Second)
}

func (s *ClientSuite) TestExchange_Unreachable() {
	url := s.server.URL
	s.server.Close()

	c, err := New(config.Exchange{Endpoint: url, TargetProviderID: "provider-a", Timeout: time.Second},
		WithLogger(logger.Discard()))
	s.Require().NoError(err)

	_, err = c.Exchange(context.Background(), externalPseudonym)
	s.assertFailed(err, CategoryOutage)
}

func (s *ClientSuite) TestExchange_OversizedResponse() {
	s.respond(http.StatusOK, `{"pseudonym":"`+strings.Repeat("a", maxResponseBytes)+`"}`)
	_, err := s.newClient().Exchange(context.Background(), externalPseudonym)
	s.assertFailed(err, CategoryBadData)
}

// =============================================================================
// Circuit breaker and metrics
// =============================================================================

func (s *ClientSuite) TestExchange_Breaker() {
	s.Run("opens after consecutive outages and short-circuits", func() {
		s.respond(http.StatusBadGateway, ``)
		breaker := circuit.New("exchange", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
		c := s.newClient(WithBreaker(breaker))

		for range 2 {
			_, err := c.Exchange(context.Background(), externalPseudonym)
			s.assertFailed(err, CategoryOutage)
		}
		s.True(breaker.IsOpen())

		s.calls.Store(0)
		_, err := c.Exchange(context.Background(), externalPseudonym)
		s.assertFailed(err, CategoryCircuitOpen)
		s.Equal(int32(0), s.calls.Load(), "open breaker must not reach the exchange")
	})

	s.Run("recovers as soon as the exchange is back after cooldown", func() {
		now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		breaker := circuit.New("exchange",
			circuit.WithFailureThreshold(1),
			circuit.WithCooldown(30*time.Second),
			circuit.WithClock(func() time.Time { return now }),
		)
		c := s.newClient(WithBreaker(breaker))

		s.respond(http.StatusServiceUnavailable, ``)
		_, err := c.Exchange(context.Background(), externalPseudonym)
		s.assertFailed(err, CategoryOutage)
		s.Require().True(breaker.IsOpen())

		s.respond(http.StatusOK, `{"pseudonym":"`+providerPseudonym+`"}`)
		now = now.Add(30 * time.Second)
		for i := range 5 {
			got, err := c.Exchange(context.Background(), externalPseudonym)
			s.Require().NoError(err, "call %d after cooldown", i)
			s.Equal(domain.ProviderPseudonym(providerPseudonym), got)
		}
		s.Equal(circuit.StateClosed, breaker.State())
	})

	s.Run("malformed answers do not trip the breaker", func() {
		s.respond(http.StatusOK, `{"nope":true}`)
		breaker := circuit.New("exchange", circuit.WithFailureThreshold(1))
		c := s.newClient(WithBreaker(breaker))

		_, err := c.Exchange(context.Background(), externalPseudonym)
		s.assertFailed(err, CategoryContractMismatch)
		s.False(breaker.IsOpen())
	})
}

func (s *ClientSuite) TestExchange_Metrics() {
	m := NewMetrics(prometheus.NewRegistry())
	c := s.newClient(WithMetrics(m))

	_, err := c.Exchange(context.Background(), externalPseudonym)
	s.Require().NoError(err)
	s.respond(http.StatusOK, `not json`)
	_, _ = c.Exchange(context.Background(), externalPseudonym)

	s.Equal(float64(1), testutil.ToFloat64(m.Requests.WithLabelValues("ok")))
	s.Equal(float64(1), testutil.ToFloat64(m.Requests.WithLabelValues(string(CategoryBadData))))
}

func TestParseResponse(t *testing.T) {
	got, err := parseResponse([]byte(`{"pseudonym":"abc","pseudonymType":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderPseudonym("abc"), got)

	_, err = parseResponse([]byte(`{"PSEUDONYM":"abc"}`))
	assert.ErrorIs(t, err, ErrExchangeFailed)
}

func TestError_Message(t *testing.T) {
	err := newError(CategoryOutage, "exchange returned 503", errors.New("boom"))
	assert.Equal(t, "pseudonym exchange [provider_outage]: exchange returned 503: boom", err.Error())
	assert.Equal(t, CategoryInternal, CategoryOf(errors.New("other")))
}
