// Package actuator drives the door hardware: a microcontroller on a serial
// line that understands one-byte commands, optionally backed by Raspberry Pi
// GPIO for a lock relay and status LEDs.
package actuator

import (
	"time"

	"github.com/rs/zerolog"
)

// Command is a request to the door hardware.
type Command byte

// Commands understood by the door microcontroller. The numeric values are
// part of the wire protocol.
const (
	Open        Command = 1
	Idle        Command = 2
	Lock        Command = 3
	SignalOk    Command = 4
	SignalFail  Command = 5
	Maintenance Command = 6
)

// Commands lists every command in wire order.
var Commands = []Command{Open, Idle, Lock, SignalOk, SignalFail, Maintenance}

func (c Command) String() string {
	switch c {
	case Open:
		return "open"
	case Idle:
		return "idle"
	case Lock:
		return "lock"
	case SignalOk:
		return "signal_ok"
	case SignalFail:
		return "signal_fail"
	case Maintenance:
		return "maintenance"
	default:
		return "unknown"
	}
}

// Encode returns the byte sent on the wire for c: its code as an ASCII digit.
func Encode(c Command) byte {
	return '0' + byte(c)
}

// Actuator is the interface for all door hardware implementations.
type Actuator interface {
	// Send delivers one command. Faults are logged and the command is
	// dropped; the caller never sees an error.
	Send(cmd Command)

	// Release releases any hardware resources.
	Release() error
}

// Config holds configuration for the actuator.
type Config struct {
	Port   string        `yaml:"port"`   // e.g. "/dev/ttyACM0"; empty = commands are logged and dropped
	Baud   int           `yaml:"baud"`   // default 9600
	Settle time.Duration `yaml:"settle"` // delay after each byte before closing, default 10ms
	GPIO   GPIOConfig    `yaml:"gpio"`
}

// GPIOConfig describes an optional direct-wired relay and LEDs.
type GPIOConfig struct {
	LockPin   *int          `yaml:"lock_pin"`  // relay pin (nil = not configured)
	OpenHigh  bool          `yaml:"open_high"` // true = set pin high to open
	Pulse     time.Duration `yaml:"pulse"`     // how long Open energizes the relay, default 3s
	GreenPin  *uint8        `yaml:"green_pin"`
	YellowPin *uint8        `yaml:"yellow_pin"`
	RedPin    *uint8        `yaml:"red_pin"`
}

func (g GPIOConfig) configured() bool {
	return g.LockPin != nil || g.GreenPin != nil || g.YellowPin != nil || g.RedPin != nil
}

// New creates an Actuator based on the provided configuration. The serial
// backend is always present; a GPIO backend is added when any pin is set.
func New(cfg Config, log zerolog.Logger) (Actuator, error) {
	s := NewSerial(cfg.Port, cfg.Baud, cfg.Settle, log)
	if !cfg.GPIO.configured() {
		return s, nil
	}

	g, err := NewGPIO(cfg.GPIO, log)
	if err != nil {
		return nil, err
	}
	return NewMulti(s, g), nil
}
