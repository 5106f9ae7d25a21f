package spapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"feeledger/internal/core"
)

const (
	defaultMaxTokenPages = 500
	defaultMaxRetries    = 6
	defaultPageSize      = 100
	tokenExpirySlack     = 60 * time.Second
)

// HTTPConfig configures the live API client.
type HTTPConfig struct {
	Marketplace  Marketplace
	ClientID     string
	ClientSecret string
	RefreshToken string

	TokenURL       string  // defaults to the LWA token endpoint
	RequestsPerSec float64 // defaults to 0.5
	MaxTokenPages  int     // pagination guard, defaults to 500
	MaxRetries     int     // per-call retry budget, defaults to 6
	PageSize       int     // MaxResultsPerPage, defaults to 100

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// HTTPClient talks to the selling-partner API over HTTPS with LWA token
// auth, client-side pacing and throttle-aware retries.
type HTTPClient struct {
	cfg     HTTPConfig
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// NewHTTPClient builds a live client. It validates nothing against the API;
// the first call surfaces credential problems.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.TokenURL == "" {
		cfg.TokenURL = lwaTokenURL
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 0.5
	}
	if cfg.MaxTokenPages <= 0 {
		cfg.MaxTokenPages = defaultMaxTokenPages
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		cfg:     cfg,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		log:     logger,
	}
}

// accessToken returns a cached LWA access token, refreshing it when it is
// within the expiry slack.
func (c *HTTPClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExp.Add(-tokenExpirySlack)) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.cfg.RefreshToken},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned an empty access token")
	}

	c.token = tok.AccessToken
	c.tokenExp = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.token, nil
}

// backoffDelay grows exponentially, capped at one minute, with a small
// jitter so concurrent workers do not retry in lockstep.
func backoffDelay(attempt int) time.Duration {
	secs := math.Min(60, 2*math.Pow(2, float64(attempt-1)))
	jitter := time.Duration(rand.Int63n(int64(300 * time.Millisecond)))
	return time.Duration(secs*float64(time.Second)) + jitter
}

// getJSON performs one paced, retried GET against the regional endpoint and
// decodes the body. 403 and 400 are terminal; 429, 5xx and transport errors
// consume the retry budget.
func (c *HTTPClient) getJSON(ctx context.Context, path string, q url.Values) (core.Document, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		doc, retry, err := c.getJSONOnce(ctx, path, q)
		if err == nil {
			return doc, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err

		delay := backoffDelay(attempt)
		c.log.Warn("request failed, backing off",
			"path", path, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("retry budget exhausted for %s: %w", path, lastErr)
}

func (c *HTTPClient) getJSONOnce(ctx context.Context, path string, q url.Values) (doc core.Document, retry bool, err error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, true, err
	}

	u := c.cfg.Marketplace.Endpoint + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("x-amz-access-token", token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusForbidden:
		return nil, false, fmt.Errorf("%w (%s)", ErrForbidden, path)
	case resp.StatusCode == http.StatusBadRequest:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, false, fmt.Errorf("%w (%s): %s", ErrBadRequest, path, strings.TrimSpace(string(body)))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("%w (%s)", ErrThrottled, path)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, true, fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, path, strings.TrimSpace(string(body)))
	}

	var payload core.Document
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, true, fmt.Errorf("decode %s response: %w", path, err)
	}
	return payload, false, nil
}

// ListEventGroups pages through the financial event group listing for the
// given window.
func (c *HTTPClient) ListEventGroups(ctx context.Context, after, before time.Time) ([]EventGroup, error) {
	var groups []EventGroup
	nextToken := ""

	for page := 0; page < c.cfg.MaxTokenPages; page++ {
		q := url.Values{}
		if nextToken != "" {
			q.Set("NextToken", nextToken)
		} else {
			q.Set("FinancialEventGroupStartedAfter", after.UTC().Format(time.RFC3339))
			q.Set("FinancialEventGroupStartedBefore", before.UTC().Format(time.RFC3339))
			q.Set("MaxResultsPerPage", fmt.Sprint(c.cfg.PageSize))
		}

		doc, err := c.getJSON(ctx, "/finances/v0/financialEventGroups", q)
		if err != nil {
			return groups, err
		}
		payload := doc.Doc("payload")
		if payload == nil {
			payload = doc
		}

		for _, g := range payload.List("FinancialEventGroupList") {
			currency := g.Doc("OriginalTotal").Str("CurrencyCode")
			groups = append(groups, EventGroup{
				ID:       g.Str("FinancialEventGroupId"),
				Status:   g.Str("ProcessingStatus"),
				Start:    parseRFC3339(g.Str("FinancialEventGroupStart")),
				End:      parseRFC3339(g.Str("FinancialEventGroupEnd")),
				Currency: currency,
			})
		}

		nextToken = payload.Str("NextToken")
		if nextToken == "" {
			return groups, nil
		}
	}
	c.log.Warn("group listing hit the pagination guard", "pages", c.cfg.MaxTokenPages)
	return groups, nil
}

// ListEventsForGroup fetches every event page of one group and merges the
// per-page event lists. A bad request mid-pagination returns the pages
// already merged together with the error, so callers can keep partials.
func (c *HTTPClient) ListEventsForGroup(ctx context.Context, groupID string) (Events, error) {
	events := make(Events)
	nextToken := ""

	for page := 0; page < c.cfg.MaxTokenPages; page++ {
		q := url.Values{}
		if nextToken != "" {
			q.Set("NextToken", nextToken)
		} else {
			q.Set("MaxResultsPerPage", fmt.Sprint(c.cfg.PageSize))
		}

		doc, err := c.getJSON(ctx, "/finances/v0/financialEventGroups/"+url.PathEscape(groupID)+"/financialEvents", q)
		if err != nil {
			return events, err
		}
		payload := doc.Doc("payload")
		if payload == nil {
			payload = doc
		}

		if fe := payload.Doc("FinancialEvents"); fe != nil {
			for listName, raw := range fe {
				items, isList := raw.([]any)
				if !isList {
					continue
				}
				for _, item := range items {
					if d, isDoc := core.AsDocument(item); isDoc {
						events[listName] = append(events[listName], d)
					}
				}
			}
		}

		nextToken = payload.Str("NextToken")
		if nextToken == "" {
			return events, nil
		}
	}
	c.log.Warn("event listing hit the pagination guard", "group_id", groupID, "pages", c.cfg.MaxTokenPages)
	return events, nil
}

// ListOrders pages through the orders listing for the window, filtering by
// creation or last-update date per the window's mode. A NextToken repeating
// verbatim would loop forever, so it terminates paging.
func (c *HTTPClient) ListOrders(ctx context.Context, w OrderWindow) ([]core.Document, error) {
	var orders []core.Document
	nextToken := ""
	prevToken := ""

	afterParam, beforeParam := "CreatedAfter", "CreatedBefore"
	if w.Mode == DateModeUpdated {
		afterParam, beforeParam = "LastUpdatedAfter", "LastUpdatedBefore"
	}

	for page := 0; page < c.cfg.MaxTokenPages; page++ {
		q := url.Values{}
		if nextToken != "" {
			q.Set("NextToken", nextToken)
		} else {
			q.Set("MarketplaceIds", c.cfg.Marketplace.ID)
			q.Set(afterParam, w.After.UTC().Format(time.RFC3339))
			q.Set(beforeParam, w.Before.UTC().Format(time.RFC3339))
			q.Set("MaxResultsPerPage", fmt.Sprint(c.cfg.PageSize))
		}

		doc, err := c.getJSON(ctx, "/orders/v0/orders", q)
		if err != nil {
			return orders, err
		}
		payload := doc.Doc("payload")
		if payload == nil {
			payload = doc
		}

		for _, o := range payload.List("Orders") {
			orders = append(orders, o)
		}

		prevToken, nextToken = nextToken, payload.Str("NextToken")
		if nextToken == "" {
			return orders, nil
		}
		if nextToken == prevToken {
			c.log.Warn("order listing returned a repeated token, stopping", "page", page)
			return orders, nil
		}
	}
	c.log.Warn("order listing hit the pagination guard", "pages", c.cfg.MaxTokenPages)
	return orders, nil
}

func parseRFC3339(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
