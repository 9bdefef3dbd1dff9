// Package audit keeps the append-only visit logs. Every line goes to the day
// log when its hour falls inside the legality window and to the night log
// otherwise, so out-of-hours activity can be reviewed on its own.
package audit

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"cardgate/metrics"
)

// TimeLayout renders "<weekday>, <day> <month> <year>, <HH:MM:SS>".
const TimeLayout = "Mon, 02 January 2006, 15:04:05"

// Category classifies an audit line.
type Category int

const (
	Visit Category = iota
	WrongPassword
	UnknownCard
	BlockedCard
	ExpiredCard
	InsufficientAccess
	ProgramExit
	ProgramStart
)

func (c Category) String() string {
	switch c {
	case Visit:
		return "visit"
	case WrongPassword:
		return "wrong password"
	case UnknownCard:
		return "unknown card"
	case BlockedCard:
		return "blocked card"
	case ExpiredCard:
		return "expired card"
	case InsufficientAccess:
		return "insufficient access"
	case ProgramExit:
		return "program exit"
	case ProgramStart:
		return "program start"
	default:
		return fmt.Sprintf("category %d", int(c))
	}
}

// Log selects one of the two destinations.
type Log int

const (
	Day Log = iota
	Night
)

func (l Log) String() string {
	if l == Night {
		return "night"
	}
	return "day"
}

var validate = validator.New()

const (
	defaultLegalFrom = 9
	defaultLegalTo   = 21
)

// Config holds audit log settings. An unset bound takes its default (9 and
// 21); any hour 0..23 may be set, including 0.
type Config struct {
	DayFile   string `yaml:"day_file"`   // default "visits.log"
	NightFile string `yaml:"night_file"` // default "illegal.log"

	LegalFrom *int `yaml:"legal_from" validate:"omitempty,gte=0,lte=23"` // first legal hour, inclusive
	LegalTo   *int `yaml:"legal_to" validate:"omitempty,gte=0,lte=23"`   // last legal hour, inclusive
}

// Window is an inclusive range of hours. From > To wraps around midnight.
type Window struct {
	From, To int
}

// Contains reports whether hour lies inside the window.
func (w Window) Contains(hour int) bool {
	if w.From <= w.To {
		return hour >= w.From && hour <= w.To
	}
	return hour >= w.From || hour <= w.To
}

// Router appends audit lines to the day or night log.
type Router struct {
	mu     sync.Mutex
	paths  [2]string
	window Window
	now    func() time.Time
	log    zerolog.Logger
}

// New creates a Router. Hours outside 0..23 are rejected.
func New(cfg Config, log zerolog.Logger) (*Router, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("audit config: %w", err)
	}
	if cfg.DayFile == "" {
		cfg.DayFile = "visits.log"
	}
	if cfg.NightFile == "" {
		cfg.NightFile = "illegal.log"
	}
	w := Window{From: defaultLegalFrom, To: defaultLegalTo}
	if cfg.LegalFrom != nil {
		w.From = *cfg.LegalFrom
	}
	if cfg.LegalTo != nil {
		w.To = *cfg.LegalTo
	}
	return &Router{
		paths:  [2]string{cfg.DayFile, cfg.NightFile},
		window: w,
		now:    time.Now,
		log:    log,
	}, nil
}

// SetClock replaces the time source.
func (r *Router) SetClock(now func() time.Time) {
	r.now = now
}

// Record appends "<category>: <detail>" to the log chosen by the current hour.
func (r *Router) Record(cat Category, detail string) error {
	now := r.now()
	dest := Day
	if !r.window.Contains(now.Hour()) {
		dest = Night
	}
	line := fmt.Sprintf("%s: %s: %s\n", now.Format(TimeLayout), cat, detail)

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.paths[dest], os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("open %s log: %w", dest, err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write %s log: %w", dest, err)
	}
	metrics.AuditLinesTotal.WithLabelValues(dest.String(), cat.String()).Inc()
	r.log.Debug().Str("log", dest.String()).Str("category", cat.String()).Str("detail", detail).Msg("Audit")
	return nil
}

// Tail returns up to the last n lines of a log, oldest first. A missing log
// has no lines.
func (r *Router) Tail(which Log, n int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Tail(r.paths[which], n)
}

// Clear removes a log. It is recreated by the next Record.
func (r *Router) Clear(which Log) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.paths[which]); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s log: %w", which, err)
	}
	r.log.Warn().Str("log", which.String()).Msg("Audit log cleared")
	return nil
}

// Tail returns up to the last n lines of the file at path.
func Tail(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}
