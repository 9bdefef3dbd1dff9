package reader

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	idleInterval   = 500 * time.Millisecond
	releaseTimeout = 2 * time.Second
)

// Config holds configuration for the card reader.
type Config struct {
	Type   string `yaml:"type"`   // "keyboard" (default), "serial"
	Device string `yaml:"device"` // e.g. "/dev/input/by-id/usb-...-event-kbd", "/dev/ttyUSB0"
	Baud   int    `yaml:"baud"`   // serial readers only
	Digits int    `yaml:"digits"` // expected card id length, 0 = any
}

// Run reads cards into h until ctx is cancelled. A missing or unusable
// device is logged and ends only this task; the rest of the system keeps
// running without card input.
func Run(ctx context.Context, cfg Config, h *Handoff, log zerolog.Logger) {
	if cfg.Device == "" {
		log.Warn().Msg("No reader device configured, card input disabled")
		return
	}

	switch cfg.Type {
	case "serial":
		s, err := NewSerial(cfg.Device, cfg.Baud, log)
		if err != nil {
			log.Error().Err(err).Msg("Card input disabled")
			return
		}
		defer s.Close()
		s.Run(ctx, h)

	case "keyboard", "":
		k, err := NewKeyboard(cfg.Device, log)
		if err != nil {
			log.Error().Err(err).Msg("Card input disabled")
			return
		}
		defer k.Close()
		runLoop(ctx, k.Events(ctx), NewCapture(k, log), NewDecoder(h, cfg.Digits, log), h, log)

	default:
		log.Error().Str("type", cfg.Type).Msg("Unknown reader type, card input disabled")
	}
}

// runLoop is the capture and decode task. It wakes on every key event and at
// least every idleInterval to reconcile device ownership, and releases the
// device before returning.
func runLoop(ctx context.Context, events <-chan KeyEvent, capture *Capture, dec *Decoder, h *Handoff, log zerolog.Logger) {
	defer capture.Release(releaseTimeout)

	ticker := time.NewTicker(idleInterval)
	defer ticker.Stop()

	for {
		capture.Sync(ctx, h.Waiting())

		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				log.Error().Msg("Reader device closed")
				return
			}
			if err := feed(dec, ev); err != nil {
				log.Error().Err(err).Msg("Decode failed")
			}
		case <-ticker.C:
		}
	}
}

func feed(dec *Decoder, ev KeyEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event %d/%d: %v", ev.Code, ev.Value, r)
		}
	}()
	dec.Feed(ev)
	return nil
}
