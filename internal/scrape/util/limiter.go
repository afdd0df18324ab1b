package util

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter serializes requests per hostname in submission order and keeps
// at least minDelay between the starts of consecutive requests to one host.
type HostLimiter struct {
	mu       sync.Mutex
	m        map[string]*hostSlot
	minDelay time.Duration
}

type hostSlot struct {
	lim  *rate.Limiter
	tail chan struct{} // closed when the last queued holder releases
}

func NewHostLimiter(minDelay time.Duration) *HostLimiter {
	return &HostLimiter{
		m:        make(map[string]*hostSlot),
		minDelay: minDelay,
	}
}

func (hl *HostLimiter) slotFor(host string) *hostSlot {
	if s, ok := hl.m[host]; ok {
		return s
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if hl.minDelay > 0 {
		lim = rate.NewLimiter(rate.Every(hl.minDelay), 1)
	}
	s := &hostSlot{lim: lim}
	hl.m[host] = s
	return s
}

// Acquire blocks until the caller owns host. The returned release must be
// called exactly once when the request is done.
func (hl *HostLimiter) Acquire(ctx context.Context, host string) (release func(), err error) {
	hl.mu.Lock()
	s := hl.slotFor(host)
	prev := s.tail
	mine := make(chan struct{})
	s.tail = mine
	hl.mu.Unlock()

	var once sync.Once
	release = func() { once.Do(func() { close(mine) }) }

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// keep the chain intact for whoever queued behind us
			go func() {
				<-prev
				release()
			}()
			return nil, ctx.Err()
		}
	}

	if err := s.lim.Wait(ctx); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

// WaitURL acquires and immediately releases the host of raw. It only spaces
// requests; it does not serialize them.
func (hl *HostLimiter) WaitURL(ctx context.Context, raw string) error {
	release, err := hl.Acquire(ctx, HostOf(raw))
	if err != nil {
		return err
	}
	release()
	return nil
}
