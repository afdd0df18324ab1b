package util

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalURL(t *testing.T) {
	cases := map[string]string{
		"HTTP://WWW.Azubi.de/ausbildungsplatz/123-mechatroniker/#apply":  "http://www.azubi.de/ausbildungsplatz/123-mechatroniker",
		"https://www.ausbildung.de:443/stellen/abc/?utm_source=x&b=2&a=1": "https://www.ausbildung.de/stellen/abc?a=1&b=2",
		"https://example.com/":     "https://example.com/",
		"  ":                       "",
	}
	for in, want := range cases {
		assert.Equal(t, want, CanonicalURL(in), in)
	}
}

func TestResolve(t *testing.T) {
	base, _ := url.Parse("https://www.azubi.de/suche?text=koch")
	assert.Equal(t, "https://www.azubi.de/ausbildungsplatz/1", Resolve(base, "/ausbildungsplatz/1"))
	assert.Equal(t, "", Resolve(base, "mailto:a@b.de"))
	assert.Equal(t, "", Resolve(base, "javascript:void(0)"))
}

func TestNormalizeLocation(t *testing.T) {
	assert.Equal(t, "Berlin, Deutschland", NormalizeLocation(" Standort:  Berlin, Berlin , Deutschland"))
	assert.Equal(t, "", NormalizeLocation("  "))
	assert.Equal(t, "München, Bayern", NormalizeLocation("ort: 80331 München, Bayern"))
	assert.Equal(t, "Köln", NormalizeLocation("D-50667 Köln, Köln"))
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Kauffrau für Büromanagement", CleanText(" Kauf\u00adfrau\u00a0für\n  Büromanagement\u200b "))
}

func TestHostLimiterSerializesInOrder(t *testing.T) {
	hl := NewHostLimiter(20 * time.Millisecond)
	ctx := context.Background()

	var (
		mu     sync.Mutex
		order  []int
		starts []time.Time
	)

	first, err := hl.Acquire(ctx, "a.example")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			release, err := hl.Acquire(ctx, "a.example")
			if err != nil {
				return
			}
			mu.Lock()
			order = append(order, i)
			starts = append(starts, time.Now())
			mu.Unlock()
			release()
		}(i)
		// make submission order deterministic
		time.Sleep(5 * time.Millisecond)
	}
	first()
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3}, order)
	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), 15*time.Millisecond)
	}
}

func TestHostLimiterCancelKeepsChain(t *testing.T) {
	hl := NewHostLimiter(0)
	first, err := hl.Acquire(context.Background(), "h")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := hl.Acquire(ctx, "h")
		done <- err
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	first()
	release, err := hl.Acquire(context.Background(), "h")
	require.NoError(t, err)
	release()
}
