// Package remote wraps the game-server file-hosting API. The API offers
// only two primitives, directory listing and whole-file download; there is
// no tail or range read. Every call is wrapped in a bounded retry with
// exponential backoff and passes through a per-service rate limiter.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/logpatrol/logpatrol/internal/logging"
	"github.com/logpatrol/logpatrol/internal/metrics"
	"github.com/logpatrol/logpatrol/internal/reliability"
	"github.com/logpatrol/logpatrol/pkg/types"
)

// CredentialResolver supplies a bearer token for a service. Decryption of
// at-rest secrets is the caller's concern; this package only consumes
// plaintext tokens.
type CredentialResolver interface {
	Token(ctx context.Context, serviceID string) (string, error)
}

// StaticCredentials resolves tokens from a fixed map.
type StaticCredentials map[string]string

func (s StaticCredentials) Token(_ context.Context, serviceID string) (string, error) {
	token, ok := s[serviceID]
	if !ok {
		return "", fmt.Errorf("no credential for service %s", serviceID)
	}
	return token, nil
}

// Config holds client configuration.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// RatePerSecond and RateBurst bound outgoing requests per service.
	RatePerSecond float64
	RateBurst     int

	// Collector records request counts and latency. Optional.
	Collector *metrics.Collector
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = 1 * time.Second
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.RatePerSecond == 0 {
		c.RatePerSecond = 2
	}
	if c.RateBurst == 0 {
		c.RateBurst = 4
	}
}

// Client talks to the file-hosting API.
type Client struct {
	config      Config
	credentials CredentialResolver
	httpClient  *http.Client
	logger      *logging.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient creates a new API client.
func NewClient(config Config, credentials CredentialResolver, logger *logging.Logger) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("credential resolver is required")
	}
	config.applyDefaults()

	return &Client{
		config:      config,
		credentials: credentials,
		httpClient:  &http.Client{Timeout: config.RequestTimeout},
		logger:      logger.WithComponent("remote"),
		limiters:    make(map[string]*rate.Limiter),
	}, nil
}

// ListFiles lists the entries of a remote directory.
func (c *Client) ListFiles(ctx context.Context, serviceID, dir string) ([]types.FileMeta, error) {
	endpoint := fmt.Sprintf("/services/%s/gameservers/file_server/list?dir=%s",
		url.PathEscape(serviceID), url.QueryEscape(dir))

	var resp listResponse
	err := c.retried(ctx, serviceID, "list", endpoint, func(ctx context.Context) error {
		return c.getJSON(ctx, serviceID, endpoint, &resp)
	})
	if err != nil {
		return nil, err
	}

	files := make([]types.FileMeta, 0, len(resp.Data.Entries))
	for _, e := range resp.Data.Entries {
		if e.Type != "" && e.Type != "file" {
			continue
		}
		files = append(files, types.FileMeta{
			Path:       e.Path,
			Name:       e.Name,
			Size:       e.Size,
			ModifiedAt: time.Unix(e.ModifiedAt, 0),
		})
	}
	return files, nil
}

// DownloadFile fetches the full content of a remote file. The API hands out
// a one-shot download URL first; both steps share a single retry attempt.
func (c *Client) DownloadFile(ctx context.Context, serviceID, path string) ([]byte, error) {
	endpoint := fmt.Sprintf("/services/%s/gameservers/file_server/download?file=%s",
		url.PathEscape(serviceID), url.QueryEscape(path))

	var content []byte
	err := c.retried(ctx, serviceID, "download", endpoint, func(ctx context.Context) error {
		var resp downloadResponse
		if err := c.getJSON(ctx, serviceID, endpoint, &resp); err != nil {
			return err
		}
		if resp.Data.Token.URL == "" {
			return &APIError{Endpoint: endpoint, Message: "no download URL in response"}
		}

		data, err := c.getRaw(ctx, resp.Data.Token.URL)
		if err != nil {
			return err
		}
		content = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

// retried wraps a call in the retry executor and the per-service limiter.
// Each attempt is recorded individually, so retries show up as separate
// requests in the metrics.
func (c *Client) retried(ctx context.Context, serviceID, operation, endpoint string, fn reliability.RetryFunc) error {
	return reliability.Retry(ctx, reliability.Config{
		MaxRetries:     c.config.MaxRetries,
		InitialBackoff: c.config.InitialBackoff,
		MaxBackoff:     c.config.MaxBackoff,
		Jitter:         true,
		IsRetryable:    IsRetryable,
	}, func(ctx context.Context) error {
		if err := c.limiter(serviceID).Wait(ctx); err != nil {
			return err
		}
		start := time.Now()
		err := fn(ctx)
		if collector := c.config.Collector; collector != nil {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			collector.RemoteRequests.WithLabelValues(operation, outcome).Inc()
			collector.RemoteRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		}
		if err != nil {
			if IsRateLimited(err) {
				// Logged distinctly from other transients to aid capacity tuning.
				c.logger.Warn().Str("service_id", serviceID).Str("endpoint", endpoint).
					Msg("Upstream rate limit hit")
			} else {
				c.logger.Debug().Err(err).Str("service_id", serviceID).Str("endpoint", endpoint).
					Msg("Remote call failed")
			}
		}
		return err
	})
}

func (c *Client) limiter(serviceID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.limiters[serviceID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.config.RatePerSecond), c.config.RateBurst)
		c.limiters[serviceID] = l
	}
	return l
}

func (c *Client) getJSON(ctx context.Context, serviceID, endpoint string, out interface{}) error {
	token, err := c.credentials.Token(ctx, serviceID)
	if err != nil {
		return fmt.Errorf("resolve credential: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Endpoint: endpoint, Message: err.Error(), Timeout: isTimeout(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newStatusError(endpoint, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode,
			Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

func (c *Client) getRaw(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Endpoint: rawURL, Message: err.Error(), Timeout: isTimeout(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(rawURL, resp)
	}

	return io.ReadAll(resp.Body)
}

type listResponse struct {
	Status string `json:"status"`
	Data   struct {
		Entries []struct {
			Path       string `json:"path"`
			Name       string `json:"name"`
			Type       string `json:"type"`
			Size       int64  `json:"size"`
			ModifiedAt int64  `json:"modified_at"`
		} `json:"entries"`
	} `json:"data"`
}

type downloadResponse struct {
	Status string `json:"status"`
	Data   struct {
		Token struct {
			URL   string `json:"url"`
			Token string `json:"token"`
		} `json:"token"`
	} `json:"data"`
}
