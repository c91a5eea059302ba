package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// backoff retries a call with a doubling delay from base up to ceiling.
// A Retry-After hint from the endpoint replaces the computed delay.
type backoff struct {
	attempts int
	base     time.Duration
	ceiling  time.Duration
	sleep    func(time.Duration)
}

func (b backoff) do(ctx context.Context, call func() error) error {
	attempts := max(b.attempts, 1)
	var err error
	for attempt := 1; ; attempt++ {
		if err = call(); err == nil {
			return nil
		}
		if attempt >= attempts || ctx.Err() != nil {
			break
		}
		hint, ok := transient(err)
		if !ok {
			return err
		}
		delay := b.delay(attempt)
		if hint > 0 {
			delay = b.clamp(hint)
		}
		if waitErr := b.wait(ctx, delay); waitErr != nil {
			return waitErr
		}
	}
	if attempts > 1 {
		return &exhaustedError{attempts: attempts, last: err}
	}
	return err
}

func (b backoff) delay(attempt int) time.Duration {
	if b.base <= 0 {
		return 0
	}
	d := b.base << (attempt - 1)
	if d <= 0 {
		d = b.ceiling
	}
	return b.clamp(d)
}

func (b backoff) clamp(d time.Duration) time.Duration {
	if b.ceiling > 0 && d > b.ceiling {
		return b.ceiling
	}
	return max(d, 0)
}

func (b backoff) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if b.sleep != nil {
		b.sleep(d)
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// transient reports whether err is worth another request, along with any
// server-provided delay.
func transient(err error) (time.Duration, bool) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	var status *statusError
	if errors.As(err, &status) {
		return status.retryAfter, !status.permanent()
	}
	var empty *emptyReplyError
	if errors.As(err, &empty) {
		return 0, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return 0, true
	}
	return 0, false
}

// retryAfterHeader accepts both delay-seconds and HTTP-date forms.
func retryAfterHeader(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(max(seconds, 0)) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil && when.After(now) {
		return when.Sub(now)
	}
	return 0
}
