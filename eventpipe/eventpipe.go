// Package eventpipe accepts simulated hardware events on a named pipe, for
// bench testing a node without a reader or button attached.
package eventpipe

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Config holds configuration for the event pipe.
type Config struct {
	Path string `yaml:"path"` // Path to named pipe (e.g., "/tmp/cardgate-events")
}

// Kind identifies a simulated event.
type Kind int

const (
	// Card is a card presented to the reader.
	Card Kind = iota
	// Button is a press of the exit button.
	Button
)

// Event is one parsed pipe command.
type Event struct {
	Kind Kind
	Card string
}

// EventHandler is called when an event is received from the pipe.
type EventHandler func(Event)

// EventPipe listens for events on a named pipe.
type EventPipe struct {
	path    string
	handler EventHandler
	log     zerolog.Logger
}

// New creates the named pipe. Returns nil if path is empty.
func New(cfg Config, handler EventHandler, log zerolog.Logger) (*EventPipe, error) {
	if cfg.Path == "" {
		return nil, nil
	}

	os.Remove(cfg.Path)
	if err := syscall.Mkfifo(cfg.Path, 0660); err != nil {
		return nil, fmt.Errorf("create named pipe %s: %w", cfg.Path, err)
	}

	return &EventPipe{path: cfg.Path, handler: handler, log: log}, nil
}

// Run listens for events until ctx is cancelled, then removes the pipe.
func (ep *EventPipe) Run(ctx context.Context) {
	ep.log.Info().Str("path", ep.path).Msg("Event pipe listening")

	done := make(chan struct{})
	defer close(done)
	defer os.Remove(ep.path)
	go ep.wakeOnCancel(ctx, done)

	for ctx.Err() == nil {
		// Blocks until a writer connects.
		file, err := os.OpenFile(ep.path, os.O_RDONLY, 0)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			ep.log.Error().Err(err).Msg("Event pipe open failed")
			return
		}
		ep.consume(ctx, file)
		file.Close()
	}
}

// wakeOnCancel unblocks a reader waiting in open once ctx ends. The open
// only succeeds while a reader is waiting, so it is repeated until Run
// returns.
func (ep *EventPipe) wakeOnCancel(ctx context.Context, done <-chan struct{}) {
	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if f, err := os.OpenFile(ep.path, os.O_WRONLY|syscall.O_NONBLOCK, 0); err == nil {
			f.Close()
		}
		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}

func (ep *EventPipe) consume(ctx context.Context, file *os.File) {
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		event, err := parseLine(line)
		if err != nil {
			ep.log.Warn().Err(err).Str("line", line).Msg("Event pipe parse error")
			continue
		}
		if ep.handler != nil {
			ep.handler(event)
		}
	}
}

// parseLine parses a command line into an Event.
// Command format:
//
//	card <id>      - Card presented (decimal digits)
//	rfid <id>      - Alias for card
//	tag <id>       - Alias for card
//	button         - Exit button press
func parseLine(line string) (Event, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return Event{}, fmt.Errorf("empty command")
	}

	cmd := strings.ToLower(parts[0])

	switch cmd {
	case "card", "rfid", "tag":
		if len(parts) < 2 {
			return Event{}, fmt.Errorf("%s requires a card id", cmd)
		}
		if _, err := strconv.ParseUint(parts[1], 10, 64); err != nil {
			return Event{}, fmt.Errorf("invalid card id: %s", parts[1])
		}
		return Event{Kind: Card, Card: parts[1]}, nil

	case "button":
		return Event{Kind: Button}, nil

	default:
		return Event{}, fmt.Errorf("unknown command: %s", cmd)
	}
}
