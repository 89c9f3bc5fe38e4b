// Package statuspage fetches and normalizes third-party status pages.
package statuspage

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/stackalert/stackalert/internal/domain"
)

// Service identifies one monitored upstream service. An empty StatusURL
// means the service has no supported status API integration.
type Service struct {
	Slug      string
	Name      string
	StatusURL string
}

// ClientConfig contains client configuration.
type ClientConfig struct {
	FetchTimeout time.Duration
	CacheTTL     time.Duration
	BatchSize    int
	// RequestsPerSecond paces outbound calls across all upstreams.
	RequestsPerSecond float64
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		FetchTimeout:      15 * time.Second,
		CacheTTL:          120 * time.Second,
		BatchSize:         10,
		RequestsPerSecond: 20,
	}
}

// Client fetches live status for monitored services with a TTL cache in
// front of the upstream calls.
type Client struct {
	http      *http.Client
	cache     *Cache
	limiter   *rate.Limiter
	batchSize int
	now       func() time.Time
}

// NewClient creates a status page client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 120 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 20
	}

	return &Client{
		http:      &http.Client{Timeout: cfg.FetchTimeout},
		cache:     NewCache(cfg.CacheTTL),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BatchSize),
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

// Fetch returns the live status for one service. It never returns an
// error: upstream failures collapse to "assume operational" at exactly one
// point, because a false outage alert is worse than a missed one.
func (c *Client) Fetch(ctx context.Context, svc Service) *domain.LiveServiceStatus {
	if cached := c.cache.Get(svc.Slug); cached != nil {
		return cached
	}

	live, err := c.fetchLive(ctx, svc)
	if err != nil {
		slog.Warn("upstream status fetch failed, assuming operational",
			"service", svc.Slug,
			"error", err,
		)
		recordFetch(svc.Slug, "error")
		live = c.assumeOperational(svc)
	} else {
		recordFetch(svc.Slug, "ok")
	}

	c.cache.Set(svc.Slug, live)
	return live
}

// FetchAll fetches every service concurrently in bounded batches, awaiting
// each batch before starting the next.
func (c *Client) FetchAll(ctx context.Context, services []Service) map[string]*domain.LiveServiceStatus {
	results := make(map[string]*domain.LiveServiceStatus, len(services))
	var mu sync.Mutex

	for start := 0; start < len(services); start += c.batchSize {
		end := min(start+c.batchSize, len(services))
		batch := services[start:end]

		var wg sync.WaitGroup
		for _, svc := range batch {
			wg.Add(1)
			go func(svc Service) {
				defer wg.Done()
				live := c.Fetch(ctx, svc)
				mu.Lock()
				results[svc.Slug] = live
				mu.Unlock()
			}(svc)
		}
		wg.Wait()
	}

	return results
}

// fetchLive performs the actual upstream call and normalization.
func (c *Client) fetchLive(ctx context.Context, svc Service) (*domain.LiveServiceStatus, error) {
	if svc.StatusURL == "" {
		// No supported integration: report operational with no incidents.
		return c.assumeOperational(svc), nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	start := c.now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.StatusURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", svc.StatusURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: unexpected status %d", svc.StatusURL, resp.StatusCode)
	}

	var raw summaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	observeFetchDuration(svc.Slug, c.now().Sub(start))

	return normalize(svc, &raw, c.now()), nil
}

func (c *Client) assumeOperational(svc Service) *domain.LiveServiceStatus {
	return &domain.LiveServiceStatus{
		Slug:      svc.Slug,
		Name:      svc.Name,
		Status:    domain.StatusOperational,
		FetchedAt: c.now(),
	}
}
