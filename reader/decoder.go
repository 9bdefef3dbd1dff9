package reader

import (
	"github.com/rs/zerolog"
)

// Linux input event codes (include/uapi/linux/input-event-codes.h).
const (
	keyEnter   = 28
	keyKPEnter = 96

	keyDown = 1

	maxDigits = 64
)

var digitTable = map[uint16]byte{
	2: '1', 3: '2', 4: '3', 5: '4', 6: '5', 7: '6', 8: '7', 9: '8', 10: '9', 11: '0',
	// keypad
	79: '1', 80: '2', 81: '3', 75: '4', 76: '5', 77: '6', 71: '7', 72: '8', 73: '9', 82: '0',
}

// KeyEvent is a key event from the input device.
type KeyEvent struct {
	Code  uint16
	Value int32 // 0 up, 1 down, 2 autorepeat
}

// Decoder assembles key-down digits into a card id terminated by Enter.
type Decoder struct {
	handoff *Handoff
	digits  int // expected number of digits (0 = any)
	buf     []byte
	log     zerolog.Logger
}

// NewDecoder creates a decoder publishing to h.
func NewDecoder(h *Handoff, digits int, log zerolog.Logger) *Decoder {
	return &Decoder{
		handoff: h,
		digits:  digits,
		buf:     make([]byte, 0, 16),
		log:     log,
	}
}

// Feed processes one key event.
func (d *Decoder) Feed(ev KeyEvent) {
	if ev.Value != keyDown {
		return
	}

	if c, ok := digitTable[ev.Code]; ok {
		if len(d.buf) >= maxDigits {
			d.log.Warn().Int("len", len(d.buf)).Msg("Card buffer overflow, discarding")
			d.buf = d.buf[:0]
		}
		d.buf = append(d.buf, c)
		return
	}

	if ev.Code != keyEnter && ev.Code != keyKPEnter {
		return
	}

	card := string(d.buf)
	d.buf = d.buf[:0]
	if card == "" {
		return
	}

	if d.digits > 0 && len(card) != d.digits {
		d.log.Warn().Int("expected", d.digits).Int("got", len(card)).Str("card", card).Msg("Bad badge")
		return
	}

	if !d.handoff.Offer(card) {
		d.log.Debug().Msg("Card scanned while not waiting, dropped")
		return
	}
	d.log.Info().Str("card", card).Msg("Card read")
}

// Pending returns the number of buffered digits.
func (d *Decoder) Pending() int {
	return len(d.buf)
}
