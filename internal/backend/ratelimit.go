package backend

import (
	"context"
	"sync"
	"time"

	"github.com/iDeFi-AI/api-v2/internal/risk"
)

// Limiter paces backend calls.
type Limiter interface {
	Wait(ctx context.Context) error
}

type nopLimiter struct{}

func (nopLimiter) Wait(ctx context.Context) error { return ctx.Err() }

// intervalLimiter hands out evenly spaced call slots. The first call is
// immediate; a slot is consumed even if the caller gives up while waiting.
type intervalLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

func (l *intervalLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	if l.next.Before(now) {
		l.next = now
	}
	wait := l.next.Sub(now)
	l.next = l.next.Add(l.interval)
	l.mu.Unlock()

	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NewLimiter returns a Limiter allowing rate calls per second. rate <= 0 means
// unlimited.
func NewLimiter(rate int) Limiter {
	if rate <= 0 {
		return nopLimiter{}
	}
	interval := time.Second / time.Duration(rate)
	if interval <= 0 {
		interval = time.Nanosecond
	}
	return &intervalLimiter{interval: interval}
}

// Limited wraps a Source with a Limiter.
type Limited struct {
	src Source
	l   Limiter
}

func WrapWithLimiter(src Source, l Limiter) Source { return Limited{src: src, l: l} }

func (r Limited) CheckAddresses(ctx context.Context, chain string, addrs []string) ([]risk.AddressRecord, error) {
	if err := r.l.Wait(ctx); err != nil {
		return nil, err
	}
	return r.src.CheckAddresses(ctx, chain, addrs)
}

func (r Limited) FlaggedAddresses(ctx context.Context) (risk.FlaggedSet, error) {
	if err := r.l.Wait(ctx); err != nil {
		return risk.FlaggedSet{}, err
	}
	return r.src.FlaggedAddresses(ctx)
}
