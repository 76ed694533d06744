package client

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxBackoff caps the delay of a policy without MaxDelay.
const maxBackoff = time.Hour

// RetryPolicy bounds the retry loop of one call. MaxRetries counts retries
// after the first attempt, which always runs without waiting.
type RetryPolicy struct {
	Enabled           bool
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	JitterRatio       float64
	RetryableStatuses map[int]bool
}

// DefaultRetryPolicy retries rate limits, timeouts and server errors twice.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Enabled:     true,
		MaxRetries:  2,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		JitterRatio: 0.3,
		RetryableStatuses: map[int]bool{
			http.StatusRequestTimeout:      true,
			http.StatusTooManyRequests:     true,
			http.StatusInternalServerError: true,
			http.StatusBadGateway:          true,
			http.StatusServiceUnavailable:  true,
			http.StatusGatewayTimeout:      true,
		},
	}
}

func (p RetryPolicy) attempts() int {
	if !p.Enabled || p.MaxRetries <= 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Delay returns the wait before retry n+1:
// floor(min(base*2^n, max) * (1 + random*jitter)) in whole milliseconds.
// random must return a value in [0, 1).
func (p RetryPolicy) Delay(n int, random func() float64) time.Duration {
	if n < 0 {
		n = 0
	}

	limit := p.MaxDelay
	if limit <= 0 {
		limit = maxBackoff
	}

	capped := p.BaseDelay
	for i := 0; i < n && capped > 0 && capped < limit; i++ {
		capped *= 2
	}
	capped = min(capped, limit)

	ms := float64(capped) / float64(time.Millisecond)
	jitter := 0.0
	if p.JitterRatio > 0 && random != nil {
		jitter = random() * p.JitterRatio * ms
	}

	return time.Duration(math.Floor(ms+jitter)) * time.Millisecond
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(header http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0
	}

	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}

	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}

	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
