package reader

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"cardgate/metrics"
)

const (
	minBackoff = 50 * time.Millisecond
	maxBackoff = 2 * time.Second
)

// Grabber takes and gives back exclusive ownership of an input device.
type Grabber interface {
	Lock() error
	Unlock() error
}

// Capture keeps the device grabbed except while the session waits for a
// card. Ownership changes are retried until they succeed; giving up would
// leave the reader either open to other processes or unusable.
type Capture struct {
	dev      Grabber
	captured bool
	log      zerolog.Logger

	// sleep waits between attempts and reports false when ctx is done.
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewCapture creates a Capture for dev, initially released.
func NewCapture(dev Grabber, log zerolog.Logger) *Capture {
	return &Capture{dev: dev, log: log, sleep: sleepCtx}
}

// Captured reports whether the device is currently grabbed.
func (c *Capture) Captured() bool {
	return c.captured
}

// Sync brings ownership in line with the session's waiting flag.
func (c *Capture) Sync(ctx context.Context, waiting bool) {
	switch {
	case waiting && c.captured:
		if c.retry(ctx, "release", c.dev.Unlock) {
			c.captured = false
			c.log.Debug().Msg("Reader released")
		}
	case !waiting && !c.captured:
		if c.retry(ctx, "capture", c.dev.Lock) {
			c.captured = true
			c.log.Debug().Msg("Reader captured")
		}
	}
}

// Release gives the device back before shutdown, trying for at most timeout.
func (c *Capture) Release(timeout time.Duration) {
	if !c.captured {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if c.retry(ctx, "release", c.dev.Unlock) {
		c.captured = false
	}
}

func (c *Capture) retry(ctx context.Context, op string, fn func() error) bool {
	delay := minBackoff
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return true
		}
		metrics.CaptureRetriesTotal.WithLabelValues(op).Inc()
		c.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("backoff", delay).Msg("Reader ownership change failed, retrying")

		if !c.sleep(ctx, delay) {
			return false
		}
		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
