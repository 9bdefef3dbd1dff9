//go:build !linux

package button

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
)

var ErrNotSupported = errors.New("exit button not supported on this platform")

// Button is a stub for non-linux platforms.
type Button struct{}

// Config holds configuration for the exit button.
type Config struct {
	Chip     string        `yaml:"chip"`
	Pin      int           `yaml:"pin"`
	Debounce time.Duration `yaml:"debounce"`
}

// New returns an error on non-linux platforms when a pin is configured.
func New(cfg Config, onPress func(), log zerolog.Logger) (*Button, error) {
	if cfg.Pin == 0 {
		return nil, nil
	}
	return nil, ErrNotSupported
}

func (b *Button) Presses() int64 { return 0 }
func (b *Button) Release() error { return nil }
