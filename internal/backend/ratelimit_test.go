package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iDeFi-AI/api-v2/internal/risk"
)

func TestNewLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLimiter_Cancel(t *testing.T) {
	l := NewLimiter(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatalf("expected error on canceled context")
	}
}

func TestLimiter_SpacesCalls(t *testing.T) {
	l := NewLimiter(50)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	// First slot is immediate, the next two are 20ms apart.
	if el := time.Since(start); el < 35*time.Millisecond {
		t.Fatalf("calls not paced: %v", el)
	}
}

func TestLimiter_CancelWhileWaiting(t *testing.T) {
	l := NewLimiter(1)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
}

func TestLimiter_ImmediateTick(t *testing.T) {
	// Interval truncates to zero and is bumped to 1ns.
	l := NewLimiter(2000000000)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("unexpected wait error: %v", err)
	}
}

type fakeSource struct{}

func (fakeSource) CheckAddresses(ctx context.Context, chain string, addrs []string) ([]risk.AddressRecord, error) {
	return []risk.AddressRecord{{Address: addrs[0]}}, nil
}

func (fakeSource) FlaggedAddresses(ctx context.Context) (risk.FlaggedSet, error) {
	return risk.NewFlaggedSet("0x1"), nil
}

type errLimiter struct{}

func (errLimiter) Wait(ctx context.Context) error { return errors.New("rate limited") }

func TestLimited_ForwardsOnOK(t *testing.T) {
	s := WrapWithLimiter(fakeSource{}, NewLimiter(0))
	recs, err := s.CheckAddresses(context.Background(), "ethereum", []string{"0xa"})
	if err != nil || len(recs) != 1 {
		t.Fatalf("recs=%v err=%v", recs, err)
	}
	set, err := s.FlaggedAddresses(context.Background())
	if err != nil || !set.Has("0x1") {
		t.Fatalf("set=%v err=%v", set, err)
	}
}

func TestLimited_PropagatesLimiterError(t *testing.T) {
	s := Limited{src: fakeSource{}, l: errLimiter{}}
	if _, err := s.CheckAddresses(context.Background(), "ethereum", []string{"0xa"}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := s.FlaggedAddresses(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestFactory_WrapsLimiterAndTunes(t *testing.T) {
	if _, err := New("", "", 1, 0, 0, 0); !errors.Is(err, ErrEmptyEndpoint) {
		t.Fatalf("err=%v", err)
	}
	s, err := New("http://localhost:8000", "k", 5, 4, 50*time.Millisecond, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	lim, ok := s.(Limited)
	if !ok {
		t.Fatalf("expected Limited wrapper, got %T", s)
	}
	c := lim.src.(*HTTPClient)
	if c.maxRetries != 4 || c.backoffBase != 50*time.Millisecond || c.cache.ttl != time.Minute {
		t.Fatalf("client not tuned: retries=%d backoff=%v ttl=%v", c.maxRetries, c.backoffBase, c.cache.ttl)
	}
}
