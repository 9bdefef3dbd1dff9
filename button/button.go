//go:build linux

// Package button watches the request-to-exit push button next to the door.
package button

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/warthog618/go-gpiocdev"
)

const defaultDebounce = 20 * time.Millisecond

// Button handles a push button wired between a GPIO line and ground.
type Button struct {
	line    *gpiocdev.Line
	presses atomic.Int64
	onPress func()
	log     zerolog.Logger
}

// Config holds configuration for the exit button.
type Config struct {
	Chip     string        `yaml:"chip"` // default "gpiochip0"
	Pin      int           `yaml:"pin"`  // 0 = no button
	Debounce time.Duration `yaml:"debounce"`
}

// New starts watching the button. onPress runs on the gpiocdev event
// goroutine. Returns nil if no pin is configured.
func New(cfg Config, onPress func(), log zerolog.Logger) (*Button, error) {
	if cfg.Pin == 0 {
		return nil, nil
	}
	if cfg.Chip == "" {
		cfg.Chip = "gpiochip0"
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = defaultDebounce
	}

	b := &Button{onPress: onPress, log: log}

	var err error
	b.line, err = gpiocdev.RequestLine(cfg.Chip, cfg.Pin,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithDebounce(cfg.Debounce),
		gpiocdev.WithEventHandler(b.handleEvent))
	if err != nil {
		return nil, err
	}

	log.Info().Str("chip", cfg.Chip).Int("pin", cfg.Pin).Msg("Exit button ready")
	return b, nil
}

func (b *Button) handleEvent(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventFallingEdge {
		return
	}
	b.press()
}

func (b *Button) press() {
	n := b.presses.Add(1)
	b.log.Debug().Int64("presses", n).Msg("Exit button pressed")
	if b.onPress != nil {
		b.onPress()
	}
}

// Presses returns how many times the button was pressed.
func (b *Button) Presses() int64 {
	return b.presses.Load()
}

// Release releases GPIO resources.
func (b *Button) Release() error {
	if b.line != nil {
		return b.line.Close()
	}
	return nil
}
