package reader

import (
	"context"
	"fmt"

	"github.com/kenshaw/evdev"
	"github.com/rs/zerolog"
)

// Keyboard is a USB keyboard-style RFID reader that types the card digits
// followed by Enter.
type Keyboard struct {
	device *evdev.Evdev
}

// NewKeyboard opens the input device at path.
func NewKeyboard(path string, log zerolog.Logger) (*Keyboard, error) {
	dev, err := evdev.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open evdev %s: %w", path, err)
	}

	log.Info().
		Str("name", dev.Name()).
		Str("vendor", fmt.Sprintf("0x%04x", dev.ID().Vendor)).
		Str("product", fmt.Sprintf("0x%04x", dev.ID().Product)).
		Msg("Opened keyboard reader")

	return &Keyboard{device: dev}, nil
}

// Lock implements Grabber.Lock.
func (k *Keyboard) Lock() error {
	return k.device.Lock()
}

// Unlock implements Grabber.Unlock.
func (k *Keyboard) Unlock() error {
	return k.device.Unlock()
}

// Events streams key events until ctx is cancelled or the device goes away.
// The channel is closed in both cases.
func (k *Keyboard) Events(ctx context.Context) <-chan KeyEvent {
	out := make(chan KeyEvent)
	in := k.device.Poll(ctx)

	go func() {
		defer close(out)
		for {
			var event *evdev.EventEnvelope
			select {
			case <-ctx.Done():
				return
			case event = <-in:
			}
			if event == nil {
				return
			}

			if _, ok := event.Type.(evdev.KeyType); !ok {
				continue
			}
			select {
			case out <- KeyEvent{Code: event.Code, Value: event.Value}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Close releases the device.
func (k *Keyboard) Close() error {
	if k.device == nil {
		return nil
	}
	return k.device.Close()
}
