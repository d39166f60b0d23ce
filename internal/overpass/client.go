// Package overpass asks the Overpass API which OSM areas contain a point.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/EmpoweredVote/geocode/internal/logger"
	"github.com/EmpoweredVote/geocode/internal/metrics"
	"github.com/EmpoweredVote/geocode/internal/retry"
)

// DefaultURL is the Overpass instance used when none is configured.
const DefaultURL = "https://lz4.overpass-api.de"

// Bounds is the bounding box returned by "out bb".
type Bounds struct {
	MinLat float64 `json:"minlat"`
	MinLon float64 `json:"minlon"`
	MaxLat float64 `json:"maxlat"`
	MaxLon float64 `json:"maxlon"`
}

// Element is a way or relation enclosing the queried point.
type Element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Bounds *Bounds           `json:"bounds,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// OSMURL links to the element on openstreetmap.org.
func (e Element) OSMURL() string {
	return fmt.Sprintf("https://www.openstreetmap.org/%s/%d", e.Type, e.ID)
}

type response struct {
	Elements []Element `json:"elements"`
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
	Policy     *retry.Policy
	Limiter    *rate.Limiter
	Cache      Cache
}

// Client runs is_in queries.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	policy     retry.Policy
	limiter    *rate.Limiter
	cache      Cache
}

// NewClient creates an Overpass client.
func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		httpClient: cfg.HTTPClient,
		limiter:    cfg.Limiter,
		cache:      cfg.Cache,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if c.cache == nil {
		c.cache = NoCache{}
	}
	if cfg.Policy != nil {
		c.policy = *cfg.Policy
	} else {
		c.policy = retry.DefaultPolicy()
	}
	if c.policy.Logger == nil {
		c.policy.Logger = logger.L()
	}
	return c
}

// IsInQuery is the Overpass QL for the ways and relations enclosing a point.
func IsInQuery(lat, lon float64) string {
	return fmt.Sprintf(`
[out:json][timeout:25];
is_in(%s,%s)->.a;
(way(pivot.a); rel(pivot.a););
out bb tags qt;`, formatCoord(lat), formatCoord(lon))
}

// IsIn returns the elements enclosing the point, from cache when possible.
func (c *Client) IsIn(ctx context.Context, lat, lon float64) ([]Element, error) {
	key := CacheKey(lat, lon)
	if raw, ok := c.cache.Get(ctx, key); ok {
		var r response
		if err := json.Unmarshal(raw, &r); err == nil {
			return r.Elements, nil
		}
	}

	raw, err := c.run(ctx, IsInQuery(lat, lon))
	if err != nil {
		return nil, err
	}
	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode overpass: %w", err)
	}
	c.cache.Set(ctx, key, raw)
	return r.Elements, nil
}

// run posts the query and returns the raw JSON body.
func (c *Client) run(ctx context.Context, oql string) ([]byte, error) {
	endpoint := c.baseURL + "/api/interpreter"
	p := c.policy
	p.Retryable = func(error) bool { return ctx.Err() == nil }

	return retry.DoWithResult(ctx, p, func(int) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(oql))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		start := time.Now()
		logger.LogRequest("overpass", http.MethodPost, endpoint)
		resp, err := c.httpClient.Do(req)
		metrics.UpstreamDurationMs.WithLabelValues("overpass").Observe(float64(time.Since(start).Milliseconds()))
		if err != nil {
			metrics.UpstreamRequestsTotal.WithLabelValues("overpass", "transport_error").Inc()
			logger.LogError("overpass", "fetch", err)
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read overpass body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			metrics.UpstreamRequestsTotal.WithLabelValues("overpass", "bad_status").Inc()
			err := fmt.Errorf("overpass status %d", resp.StatusCode)
			logger.LogError("overpass", "fetch", err)
			return nil, err
		}
		if !json.Valid(body) {
			metrics.UpstreamRequestsTotal.WithLabelValues("overpass", "bad_body").Inc()
			return nil, fmt.Errorf("overpass returned invalid JSON (%d bytes)", len(body))
		}

		metrics.UpstreamRequestsTotal.WithLabelValues("overpass", "ok").Inc()
		logger.LogResponse("overpass", resp.StatusCode, time.Since(start), len(body))
		return body, nil
	})
}
