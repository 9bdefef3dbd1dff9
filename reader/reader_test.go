package reader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// scan codes for "1234"
var card1234 = []uint16{2, 3, 4, 5}

func typeCard(d *Decoder, codes []uint16, terminator uint16) {
	for _, c := range codes {
		d.Feed(KeyEvent{Code: c, Value: 1})
		d.Feed(KeyEvent{Code: c, Value: 0})
	}
	d.Feed(KeyEvent{Code: terminator, Value: 1})
	d.Feed(KeyEvent{Code: terminator, Value: 0})
}

func TestDecoderPublishesWhileWaiting(t *testing.T) {
	h := &Handoff{}
	h.SetWaiting(true)
	d := NewDecoder(h, 0, zerolog.Nop())

	typeCard(d, card1234, keyEnter)

	card, ok := h.Take()
	require.True(t, ok)
	require.Equal(t, "1234", card)
	require.Zero(t, d.Pending())

	_, ok = h.Take()
	require.False(t, ok)
}

func TestDecoderDropsWhenNotWaiting(t *testing.T) {
	h := &Handoff{}
	d := NewDecoder(h, 0, zerolog.Nop())

	typeCard(d, card1234, keyEnter)
	require.Zero(t, d.Pending())
	_, ok := h.Take()
	require.False(t, ok)

	// A stray terminator with nothing buffered changes nothing either.
	d.Feed(KeyEvent{Code: keyEnter, Value: 1})
	_, ok = h.Take()
	require.False(t, ok)
}

func TestDecoderIgnoresNonDigitsAndRepeats(t *testing.T) {
	h := &Handoff{}
	h.SetWaiting(true)
	d := NewDecoder(h, 0, zerolog.Nop())

	d.Feed(KeyEvent{Code: 2, Value: 1})
	d.Feed(KeyEvent{Code: 2, Value: 2})  // autorepeat
	d.Feed(KeyEvent{Code: 30, Value: 1}) // KEY_A
	d.Feed(KeyEvent{Code: 42, Value: 1}) // KEY_LEFTSHIFT
	d.Feed(KeyEvent{Code: 82, Value: 1}) // KP0
	d.Feed(KeyEvent{Code: keyKPEnter, Value: 1})

	card, ok := h.Take()
	require.True(t, ok)
	require.Equal(t, "10", card)
}

func TestDecoderDigitCount(t *testing.T) {
	h := &Handoff{}
	h.SetWaiting(true)
	d := NewDecoder(h, 6, zerolog.Nop())

	typeCard(d, card1234, keyEnter)
	_, ok := h.Take()
	require.False(t, ok)

	typeCard(d, []uint16{2, 3, 4, 5, 6, 7}, keyEnter)
	card, ok := h.Take()
	require.True(t, ok)
	require.Equal(t, "123456", card)
}

func TestDecoderOverflowDiscards(t *testing.T) {
	h := &Handoff{}
	h.SetWaiting(true)
	d := NewDecoder(h, 0, zerolog.Nop())

	for i := 0; i < maxDigits+3; i++ {
		d.Feed(KeyEvent{Code: 2, Value: 1})
	}
	require.Equal(t, 3, d.Pending())
}

func TestHandoffOverwrite(t *testing.T) {
	h := &Handoff{}
	require.False(t, h.Offer("1"))

	h.SetWaiting(true)
	require.True(t, h.Offer("1"))
	require.True(t, h.Offer("2"))
	card, ok := h.Take()
	require.True(t, ok)
	require.Equal(t, "2", card)
}

type fakeGrabber struct {
	mu        sync.Mutex
	lockErrs  int
	locks     int
	unlocks   int
	unlockErr error
}

func (f *fakeGrabber) Lock() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockErrs > 0 {
		f.lockErrs--
		return errors.New("device busy")
	}
	f.locks++
	return nil
}

func (f *fakeGrabber) Unlock() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unlockErr != nil {
		return f.unlockErr
	}
	f.unlocks++
	return nil
}

func (f *fakeGrabber) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locks, f.unlocks
}

func noSleep(ctx context.Context, _ time.Duration) bool {
	return ctx.Err() == nil
}

func TestCaptureRetriesUntilSuccess(t *testing.T) {
	g := &fakeGrabber{lockErrs: 5}
	c := NewCapture(g, zerolog.Nop())
	c.sleep = noSleep

	c.Sync(context.Background(), false)
	require.True(t, c.Captured())
	locks, _ := g.counts()
	require.Equal(t, 1, locks)

	// Already captured and not waiting: nothing to do.
	c.Sync(context.Background(), false)
	locks, _ = g.counts()
	require.Equal(t, 1, locks)

	c.Sync(context.Background(), true)
	require.False(t, c.Captured())
	_, unlocks := g.counts()
	require.Equal(t, 1, unlocks)
}

func TestCaptureRetryStopsOnCancel(t *testing.T) {
	g := &fakeGrabber{lockErrs: 1 << 30}
	c := NewCapture(g, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	c.Sync(ctx, false)
	require.False(t, c.Captured())
}

func TestRunLoopReleasesOnExit(t *testing.T) {
	h := &Handoff{}
	g := &fakeGrabber{}
	capture := NewCapture(g, zerolog.Nop())
	dec := NewDecoder(h, 0, zerolog.Nop())
	events := make(chan KeyEvent)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runLoop(ctx, events, capture, dec, h, zerolog.Nop())
		close(done)
	}()

	// Not waiting: the loop grabs the device; scans are dropped.
	for _, c := range card1234 {
		events <- KeyEvent{Code: c, Value: 1}
	}
	events <- KeyEvent{Code: keyEnter, Value: 1}
	_, ok := h.Take()
	require.False(t, ok)

	// Waiting: the next event wakes the loop, the device is released and the
	// scan is published.
	h.SetWaiting(true)
	for _, c := range card1234 {
		events <- KeyEvent{Code: c, Value: 1}
	}
	events <- KeyEvent{Code: keyEnter, Value: 1}
	var card string
	require.Eventually(t, func() bool {
		card, ok = h.Take()
		return ok
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, "1234", card)
	_, unlocks := g.counts()
	require.Equal(t, 1, unlocks)

	h.SetWaiting(false)
	events <- KeyEvent{Code: 2, Value: 0}
	require.Eventually(t, func() bool {
		locks, _ := g.counts()
		return locks == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
	_, unlocks = g.counts()
	require.Equal(t, 2, unlocks)
}

func TestRunLoopStopsWhenDeviceCloses(t *testing.T) {
	h := &Handoff{}
	events := make(chan KeyEvent)
	close(events)

	done := make(chan struct{})
	go func() {
		runLoop(context.Background(), events, NewCapture(&fakeGrabber{}, zerolog.Nop()), NewDecoder(h, 0, zerolog.Nop()), h, zerolog.Nop())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestRunWithoutDevice(t *testing.T) {
	// Returns immediately instead of blocking.
	Run(context.Background(), Config{}, &Handoff{}, zerolog.Nop())
	Run(context.Background(), Config{Device: "/nonexistent/event0"}, &Handoff{}, zerolog.Nop())
}

func TestParseFrame(t *testing.T) {
	data := []byte{0x09, 0x00, 0x00, 0x12, 0x34, 0x56}
	xor := data[0]
	for _, b := range data[1:] {
		xor ^= b
	}
	frame := append([]byte{0x02}, data...)
	frame = append(frame, xor, 0x03)

	tag, ok := parseFrame(frame)
	require.True(t, ok)
	require.Equal(t, uint64(0x123456), tag)

	frame[7] ^= 0xff
	_, ok = parseFrame(frame)
	require.False(t, ok)

	_, ok = parseFrame(frame[:8])
	require.False(t, ok)
}
