package actuator

import (
	"fmt"
	"sync"
	"time"

	"github.com/hjkoskel/govattu"
	"github.com/rs/zerolog"
)

const defaultPulse = 3 * time.Second

// pins is the part of the GPIO hardware the actuator drives.
type pins interface {
	Set(pin uint8)
	Clear(pin uint8)
	Close() error
}

type vattuPins struct {
	hw govattu.Vattu
}

func (v vattuPins) Set(pin uint8)   { v.hw.PinSet(pin) }
func (v vattuPins) Clear(pin uint8) { v.hw.PinClear(pin) }
func (v vattuPins) Close() error    { return v.hw.Close() }

// GPIO implements Actuator with a lock relay and discrete LEDs wired to the
// Raspberry Pi header.
type GPIO struct {
	mu        sync.Mutex
	hw        pins
	lockPin   *uint8
	openHigh  bool
	pulse     time.Duration
	greenPin  *uint8
	yellowPin *uint8
	redPin    *uint8
	relock    *time.Timer
	log       zerolog.Logger
}

// NewGPIO opens the GPIO hardware and sets every configured pin as an output,
// starting locked with all LEDs off.
func NewGPIO(cfg GPIOConfig, log zerolog.Logger) (*GPIO, error) {
	hw, err := govattu.Open()
	if err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}

	var lockPin *uint8
	if cfg.LockPin != nil {
		p := uint8(*cfg.LockPin)
		lockPin = &p
	}
	for _, p := range []*uint8{lockPin, cfg.GreenPin, cfg.YellowPin, cfg.RedPin} {
		if p != nil {
			hw.PinMode(*p, govattu.ALToutput)
		}
	}

	g := newGPIO(vattuPins{hw: hw}, lockPin, cfg, log)
	log.Info().Msg("GPIO actuator ready")
	return g, nil
}

func newGPIO(hw pins, lockPin *uint8, cfg GPIOConfig, log zerolog.Logger) *GPIO {
	pulse := cfg.Pulse
	if pulse == 0 {
		pulse = defaultPulse
	}
	g := &GPIO{
		hw:        hw,
		lockPin:   lockPin,
		openHigh:  cfg.OpenHigh,
		pulse:     pulse,
		greenPin:  cfg.GreenPin,
		yellowPin: cfg.YellowPin,
		redPin:    cfg.RedPin,
		log:       log,
	}
	g.setRelay(false)
	g.ledsOff()
	return g
}

// Send implements Actuator.Send.
func (g *GPIO) Send(cmd Command) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch cmd {
	case Open:
		g.setRelay(true)
		if g.relock != nil {
			g.relock.Stop()
		}
		g.relock = time.AfterFunc(g.pulse, func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			g.setRelay(false)
		})
	case Idle:
		g.ledsOff()
	case Lock:
		g.setRelay(false)
		g.ledsOff()
		g.led(g.yellowPin)
	case SignalOk:
		g.ledsOff()
		g.led(g.greenPin)
	case SignalFail:
		g.ledsOff()
		g.led(g.redPin)
	case Maintenance:
		g.ledsOff()
		g.led(g.yellowPin)
		g.led(g.greenPin)
	default:
		g.log.Warn().Uint8("command", uint8(cmd)).Msg("Unknown actuator command")
	}
}

// Release implements Actuator.Release. The door is left locked.
func (g *GPIO) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.relock != nil {
		g.relock.Stop()
	}
	g.setRelay(false)
	g.ledsOff()
	return g.hw.Close()
}

func (g *GPIO) setRelay(open bool) {
	if g.lockPin == nil {
		return
	}
	if open == g.openHigh {
		g.hw.Set(*g.lockPin)
	} else {
		g.hw.Clear(*g.lockPin)
	}
}

func (g *GPIO) led(pin *uint8) {
	if pin != nil {
		g.hw.Set(*pin)
	}
}

func (g *GPIO) ledsOff() {
	for _, p := range []*uint8{g.greenPin, g.yellowPin, g.redPin} {
		if p != nil {
			g.hw.Clear(*p)
		}
	}
}
