package actuator

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tarm/serial"

	"cardgate/metrics"
)

const (
	defaultBaud   = 9600
	defaultSettle = 10 * time.Millisecond
)

// Serial implements Actuator for the door microcontroller. Every command
// opens the port, writes one byte, waits for the controller to take it and
// closes the port again, so a replugged controller is picked up on the next
// command.
type Serial struct {
	mu     sync.Mutex
	port   string
	baud   int
	settle time.Duration
	log    zerolog.Logger

	open  func(c *serial.Config) (io.WriteCloser, error)
	sleep func(d time.Duration)
}

// NewSerial creates a serial actuator. Nothing is opened until the first
// command.
func NewSerial(port string, baud int, settle time.Duration, log zerolog.Logger) *Serial {
	if baud == 0 {
		baud = defaultBaud
	}
	if settle == 0 {
		settle = defaultSettle
	}
	return &Serial{
		port:   port,
		baud:   baud,
		settle: settle,
		log:    log,
		open:   openPort,
		sleep:  time.Sleep,
	}
}

func openPort(c *serial.Config) (io.WriteCloser, error) {
	return serial.OpenPort(c)
}

// Send implements Actuator.Send.
func (s *Serial) Send(cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metrics.ActuatorCommandsTotal.WithLabelValues(cmd.String()).Inc()

	if s.port == "" {
		metrics.ActuatorFailuresTotal.WithLabelValues("no_port").Inc()
		s.log.Warn().Stringer("command", cmd).Msg("No actuator port configured, command dropped")
		return
	}

	if err := s.write(cmd); err != nil {
		s.log.Error().Err(err).Stringer("command", cmd).Msg("Actuator command dropped")
		return
	}
	s.log.Debug().Stringer("command", cmd).Msg("Actuator command sent")
}

func (s *Serial) write(cmd Command) error {
	p, err := s.open(&serial.Config{Name: s.port, Baud: s.baud})
	if err != nil {
		metrics.ActuatorFailuresTotal.WithLabelValues("open").Inc()
		return fmt.Errorf("open %s: %w", s.port, err)
	}
	defer p.Close()

	if _, err := p.Write([]byte{Encode(cmd)}); err != nil {
		metrics.ActuatorFailuresTotal.WithLabelValues("write").Inc()
		return fmt.Errorf("write %s: %w", s.port, err)
	}
	s.sleep(s.settle)
	return nil
}

// Release implements Actuator.Release. The port is never held open.
func (s *Serial) Release() error {
	return nil
}
