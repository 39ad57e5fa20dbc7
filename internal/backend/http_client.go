package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/iDeFi-AI/api-v2/internal/flagged"
	"github.com/iDeFi-AI/api-v2/internal/logging"
	"github.com/iDeFi-AI/api-v2/internal/risk"
)

var ErrEmptyEndpoint = errors.New("empty backend endpoint")

const (
	checkPath   = "/api/checkaddress"
	flaggedPath = "/api/get_flagged_addresses"

	defaultFlaggedTTL = 5 * time.Minute
	maxErrorBody      = 4096
)

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient talks to the risk backend's JSON API. Rate limiting is left to
// the Limited wrapper.
type HTTPClient struct {
	base        string
	label       string
	apiKey      string
	hc          httpDoer
	maxRetries  int
	backoffBase time.Duration
	cache       *flaggedCache
}

// NewHTTPClient constructs a client for endpoint (scheme://host[/prefix]).
// A nil client gets a default with a 30s timeout.
func NewHTTPClient(endpoint, apiKey string, client *http.Client) (*HTTPClient, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, ErrEmptyEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("backend endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend endpoint: unsupported scheme %q", u.Scheme)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		base:        endpoint,
		label:       deriveLabel(endpoint),
		apiKey:      apiKey,
		hc:          client,
		maxRetries:  2,
		backoffBase: 100 * time.Millisecond,
		cache:       newFlaggedCache(defaultFlaggedTTL),
	}, nil
}

// deriveLabel returns the host of endpoint for logs, never its credentials.
func deriveLabel(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	return endpoint
}

type checkRequest struct {
	Addresses []string `json:"addresses"`
	Chain     string   `json:"chain,omitempty"`
}

type flaggedResponse struct {
	FlaggedAddresses json.RawMessage `json:"flagged_addresses"`
}

// flaggedSet reads flagged_addresses in either form the backend serves: a list
// of family entries, or an object keyed by address.
func (fr flaggedResponse) flaggedSet() (risk.FlaggedSet, error) {
	raw := bytes.TrimSpace(fr.FlaggedAddresses)
	if len(raw) == 0 || string(raw) == "null" {
		return risk.FlaggedSet{}, errors.New("missing flagged_addresses")
	}
	if raw[0] == '[' {
		var entries []flagged.Entry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return risk.FlaggedSet{}, err
		}
		return flagged.New(entries).Addresses(), nil
	}
	var byAddr map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byAddr); err != nil {
		return risk.FlaggedSet{}, err
	}
	addrs := make([]string, 0, len(byAddr))
	for a := range byAddr {
		addrs = append(addrs, a)
	}
	return risk.NewFlaggedSet(addrs...), nil
}

// CheckAddresses posts addrs to the backend and decodes the returned rows.
// Malformed rows are reported in a *risk.BatchError next to the valid ones.
func (c *HTTPClient) CheckAddresses(ctx context.Context, chain string, addrs []string) ([]risk.AddressRecord, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(checkRequest{Addresses: addrs, Chain: chain})
	if err != nil {
		return nil, err
	}
	raw, err := c.do(ctx, http.MethodPost, checkPath, body)
	if err != nil {
		return nil, err
	}
	recs, err := risk.DecodeRecords(raw)
	var be *risk.BatchError
	if errors.As(err, &be) {
		logger().Warn("backend returned malformed records",
			"backend", c.label, "chain", chain, "valid", len(recs), "invalid", len(be.Errs))
		return recs, err
	}
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", checkPath, err)
	}
	return recs, nil
}

// FlaggedAddresses returns the backend's flagged set, served from cache while
// it is fresh.
func (c *HTTPClient) FlaggedAddresses(ctx context.Context) (risk.FlaggedSet, error) {
	now := time.Now()
	if set, ok := c.cache.get(now); ok {
		return set, nil
	}
	raw, err := c.do(ctx, http.MethodGet, flaggedPath, nil)
	if err != nil {
		return risk.FlaggedSet{}, err
	}
	var fr flaggedResponse
	if err := json.Unmarshal(raw, &fr); err != nil {
		return risk.FlaggedSet{}, fmt.Errorf("backend %s: %w", flaggedPath, err)
	}
	set, err := fr.flaggedSet()
	if err != nil {
		return risk.FlaggedSet{}, fmt.Errorf("backend %s: %w", flaggedPath, err)
	}
	c.cache.put(set, now)
	logger().Debug("flagged set refreshed", "backend", c.label, "size", set.Len())
	return set, nil
}

// do performs one logical request with retries on transport errors, 429 and
// 5xx. It returns the body of the first 2xx response.
func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var lastErr error
	attempts := c.maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}
		out, retry, err := c.roundTrip(req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retry {
			break
		}
		if attempt < attempts-1 {
			d := c.backoffBase * (1 << attempt)
			logger().Warn("backend request retry",
				"backend", c.label, "path", path, "attempt", attempt+1, "backoff", d.String(), "err", err.Error())
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}
	}
	return nil, lastErr
}

func (c *HTTPClient) roundTrip(req *http.Request) (body []byte, retry bool, err error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, req.Context().Err() == nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		sc := resp.StatusCode
		return nil, sc == http.StatusTooManyRequests || sc >= 500,
			fmt.Errorf("backend %s http %d: %s", req.URL.Path, sc, strings.TrimSpace(string(b)))
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	return b, false, nil
}

// flaggedCache keeps the most recent flagged set for ttl. ttl <= 0 disables it.
type flaggedCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	set       risk.FlaggedSet
	expiresAt time.Time
	ok        bool
}

func newFlaggedCache(ttl time.Duration) *flaggedCache {
	return &flaggedCache{ttl: ttl}
}

func (c *flaggedCache) get(now time.Time) (risk.FlaggedSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ok || !now.Before(c.expiresAt) {
		return risk.FlaggedSet{}, false
	}
	return c.set, true
}

func (c *flaggedCache) put(set risk.FlaggedSet, now time.Time) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.set, c.expiresAt, c.ok = set, now.Add(c.ttl), true
	c.mu.Unlock()
}

func logger() *slog.Logger { return logging.Component("backend") }
