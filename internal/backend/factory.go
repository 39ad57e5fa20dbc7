package backend

import (
	"net/http"
	"time"
)

// New builds an HTTP backend client with tuned retries, backoff and flagged
// cache TTL, wrapped with a rate limiter. Zero retries/backoff keep defaults;
// cacheTTL <= 0 disables the flagged-set cache.
func New(endpoint, apiKey string, rateLimit, retries int, backoff, cacheTTL time.Duration) (Source, error) {
	c, err := NewHTTPClient(endpoint, apiKey, &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		return nil, err
	}
	if retries > 0 {
		c.maxRetries = retries
	}
	if backoff > 0 {
		c.backoffBase = backoff
	}
	c.cache = newFlaggedCache(cacheTTL)
	return WrapWithLimiter(c, NewLimiter(rateLimit)), nil
}
