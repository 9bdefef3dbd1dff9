// Package console is the text terminal the operator uses at the door: the
// confirmation shown after each card, password prompts and the
// administrative menu.
package console

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"cardgate/account"
)

// TTY is a line-oriented terminal. Input is read by a background goroutine
// so every prompt can be abandoned when its context ends.
type TTY struct {
	in    *os.File
	out   io.Writer
	lines chan string
	log   zerolog.Logger
}

// NewTTY starts reading lines from in.
func NewTTY(in *os.File, out io.Writer, log zerolog.Logger) *TTY {
	t := &TTY{
		in:    in,
		out:   out,
		lines: make(chan string),
		log:   log,
	}
	go t.readLines()
	return t
}

func (t *TTY) readLines() {
	defer close(t.lines)
	scanner := bufio.NewScanner(t.in)
	scanner.Split(newLineSplitter().split)
	for scanner.Scan() {
		t.lines <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		t.log.Error().Err(err).Msg("Terminal input failed")
	}
}

// lineSplitter splits on "\n", "\r" or "\r\n". A "\r" ends the line at
// once; a "\n" arriving right after it in a later read is skipped.
type lineSplitter struct {
	skipLF bool
}

func newLineSplitter() *lineSplitter {
	return &lineSplitter{}
}

func (l *lineSplitter) split(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if l.skipLF && len(data) > 0 {
		l.skipLF = false
		if data[0] == '\n' {
			return 1, nil, nil
		}
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
			} else {
				l.skipLF = true
			}
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func (t *TTY) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(t.out, format, args...)
}

// drain discards lines typed before a prompt was shown.
func (t *TTY) drain() {
	for {
		select {
		case _, ok := <-t.lines:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (t *TTY) readLine(ctx context.Context) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-t.lines:
		return strings.TrimSpace(line), ok
	}
}

// Input asks for one line of text.
func (t *TTY) Input(ctx context.Context, prompt string) (string, bool) {
	t.drain()
	t.printf("%s: ", prompt)
	return t.readLine(ctx)
}

// Choose shows a numbered list and returns the index picked.
func (t *TTY) Choose(ctx context.Context, title string, options []string) (int, bool) {
	t.drain()
	for {
		t.printf("\n%s\n", title)
		for i, o := range options {
			t.printf("  %2d) %s\n", i+1, o)
		}
		t.printf("Choice (empty to go back): ")

		line, ok := t.readLine(ctx)
		if !ok || line == "" {
			return 0, false
		}
		n, err := strconv.Atoi(line)
		if err == nil && n >= 1 && n <= len(options) {
			return n - 1, true
		}
		t.printf("Invalid choice %q\n", line)
	}
}

// Show prints lines.
func (t *TTY) Show(lines ...string) {
	for _, l := range lines {
		t.printf("%s\n", l)
	}
}

// Granted implements session.Prompter.Granted. Pressing Enter before d
// elapses asks for the console.
func (t *TTY) Granted(ctx context.Context, a *account.Account, d time.Duration) bool {
	t.drain()
	t.printf("\nAccess granted\nMember: %s\nLevel:  %s\nPress Enter within %s for the console\n", a.Name, a.Level, d)

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	_, ok := t.readLine(ctx)
	return ok
}

// Denied implements session.Prompter.Denied.
func (t *TTY) Denied(reason string) {
	t.printf("\n%s! The attempt has been logged\n", reason)
}

// Notify implements session.Prompter.Notify.
func (t *TTY) Notify(msg string) {
	t.printf("%s\n", msg)
}

// Confirm implements session.Prompter.Confirm.
func (t *TTY) Confirm(ctx context.Context, question string) bool {
	t.drain()
	t.printf("%s [y/N] ", question)
	line, ok := t.readLine(ctx)
	if !ok {
		return false
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// Password implements session.Prompter.Password. Echo is turned off while
// the secret is typed when the input is a terminal.
func (t *TTY) Password(ctx context.Context, title string) (string, bool) {
	t.drain()
	fd := int(t.in.Fd())
	if term.IsTerminal(fd) {
		restore, err := disableEcho(fd)
		if err != nil {
			t.log.Warn().Err(err).Msg("Cannot disable echo")
		} else {
			defer func() {
				if err := restore(); err != nil {
					t.log.Error().Err(err).Msg("Cannot restore terminal")
				}
				t.printf("\n")
			}()
		}
	}

	t.printf("%s: ", title)
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-t.lines:
		return line, ok
	}
}
