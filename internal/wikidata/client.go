package wikidata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/EmpoweredVote/geocode/internal/logger"
	"github.com/EmpoweredVote/geocode/internal/mail"
	"github.com/EmpoweredVote/geocode/internal/metrics"
	"github.com/EmpoweredVote/geocode/internal/retry"
)

const (
	// APIURL is the MediaWiki action API of Wikidata.
	APIURL = "https://www.wikidata.org/w/api.php"

	// QueryServiceURL is the SPARQL endpoint of the Wikidata Query Service.
	QueryServiceURL = "https://query.wikidata.org/bigdata/namespace/wdq/sparql"

	// QueryUIURL is the query service web UI, used for diagnostic links.
	QueryUIURL = "https://query.wikidata.org/"

	DefaultUserAgent = "UK geocode/0.1 (https://github.com/EmpoweredVote/geocode)"

	// AdminMailSubject is the subject of every retry-exhaustion mail.
	AdminMailSubject = "Geocode error"
)

// Config configures a Client. Zero fields fall back to defaults.
type Config struct {
	APIURL     string
	QueryURL   string
	UserAgent  string
	HTTPClient *http.Client
	Policy     *retry.Policy
	Limiter    *rate.Limiter
	Notifier   mail.Notifier
}

// Client talks to the Wikidata entity API and the query service.
type Client struct {
	apiURL     string
	queryURL   string
	userAgent  string
	httpClient *http.Client
	policy     retry.Policy
	limiter    *rate.Limiter
	notifier   mail.Notifier
}

// NewClient creates a Wikidata client.
func NewClient(cfg Config) *Client {
	c := &Client{
		apiURL:     cfg.APIURL,
		queryURL:   cfg.QueryURL,
		userAgent:  cfg.UserAgent,
		httpClient: cfg.HTTPClient,
		limiter:    cfg.Limiter,
		notifier:   cfg.Notifier,
	}
	if c.apiURL == "" {
		c.apiURL = APIURL
	}
	if c.queryURL == "" {
		c.queryURL = QueryServiceURL
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if c.notifier == nil {
		c.notifier = mail.Discard{}
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

// attempt performs one HTTP exchange and returns the body of a 2xx response.
func (c *Client) attempt(ctx context.Context, service string, newReq func() (*http.Request, error)) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	req, err := newReq()
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	logger.LogRequest(service, req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	metrics.UpstreamDurationMs.WithLabelValues(service).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(service, "transport_error").Inc()
		logger.LogError(service, "fetch", err)
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(service, "transport_error").Inc()
		logger.LogError(service, "read", err)
		return nil, resp.StatusCode, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.UpstreamRequestsTotal.WithLabelValues(service, "bad_status").Inc()
		f := &httpFailure{status: resp.StatusCode, body: string(body)}
		logger.LogError(service, "fetch", f)
		return nil, resp.StatusCode, f
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(service, "ok").Inc()
	logger.LogResponse(service, resp.StatusCode, time.Since(start), len(body))
	return body, resp.StatusCode, nil
}

// policyFor stops retrying once the caller's context is gone.
func (c *Client) policyFor(ctx context.Context) retry.Policy {
	p := c.policy
	inner := p.Retryable
	p.Retryable = func(err error) bool {
		if ctx.Err() != nil {
			return false
		}
		return inner == nil || inner(err)
	}
	return p
}

// apiCall sends a GET to the entity API and decodes the JSON answer into out.
func (c *Client) apiCall(ctx context.Context, params url.Values, out any) error {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("formatversion", "2")
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	fullURL := c.apiURL + "?" + q.Encode()

	err := retry.Do(ctx, c.policyFor(ctx), func(int) error {
		body, status, err := c.attempt(ctx, "wikidata_api", func() (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		})
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, out); err != nil {
			return &httpFailure{status: status, body: string(body), err: err}
		}
		return nil
	})

	var f *httpFailure
	if errors.As(err, &f) {
		c.notify(ctx, "Error making Wikidata API call\n\n"+f.body)
		return &APIResponseError{StatusCode: f.status, Body: f.body, Err: f.err}
	}
	return err
}

type sparqlResponse struct {
	Results struct {
		Bindings []Row `json:"bindings"`
	} `json:"results"`
}

// Query runs a SPARQL query against the query service.
func (c *Client) Query(ctx context.Context, query string) ([]Row, error) {
	form := url.Values{}
	form.Set("query", query)
	form.Set("format", "json")
	encoded := form.Encode()

	var rows []Row
	err := retry.Do(ctx, c.policyFor(ctx), func(int) error {
		body, status, err := c.attempt(ctx, "wikidata_query", func() (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.queryURL, strings.NewReader(encoded))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.Header.Set("Accept", "application/sparql-results+json")
			return req, nil
		})
		if err != nil {
			return err
		}
		var parsed sparqlResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return &httpFailure{status: status, body: string(body), err: err}
		}
		rows = parsed.Results.Bindings
		return nil
	})

	var f *httpFailure
	if errors.As(err, &f) {
		c.notify(ctx, "Error making Wikidata query service call\n\n"+query+"\n\n"+f.body)
		return nil, &QueryError{Query: query, StatusCode: f.status, Body: f.body, Err: f.err}
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) notify(ctx context.Context, body string) {
	if err := c.notifier.SendToAdmin(context.WithoutCancel(ctx), AdminMailSubject, body); err != nil {
		logger.L().Error("admin notification failed", zap.Error(err))
	}
}
