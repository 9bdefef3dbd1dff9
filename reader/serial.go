package reader

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/tarm/serial"
)

// Serial is an RFID reader on a serial line speaking
// [0x02][0x09][data x5][xor][0x03] frames.
type Serial struct {
	port *serial.Port
	log  zerolog.Logger
}

// NewSerial opens a serial RFID reader.
func NewSerial(device string, baud int, log zerolog.Logger) (*Serial, error) {
	if baud == 0 {
		baud = 115200
	}
	c := &serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: time.Second,
	}
	port, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}

	log.Info().Str("device", device).Int("baud", baud).Msg("Opened serial reader")
	return &Serial{port: port, log: log}, nil
}

// Run reads frames until ctx is cancelled, offering each card to h.
func (s *Serial) Run(ctx context.Context, h *Handoff) {
	buff := make([]byte, 9)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := s.port.Read(buff)
		if err != nil || n != len(buff) {
			// Timeout or partial read.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		tag, ok := parseFrame(buff)
		if !ok {
			continue
		}
		card := strconv.FormatUint(tag, 10)
		if h.Offer(card) {
			s.log.Info().Str("card", card).Msg("Card read")
		}
	}
}

// Close releases the port.
func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	return s.port.Close()
}

func parseFrame(buff []byte) (uint64, bool) {
	if len(buff) != 9 {
		return 0, false
	}
	if !bytes.Equal(buff[0:2], []byte{0x02, 0x09}) || buff[8] != 0x03 {
		return 0, false
	}

	data := buff[1:7]
	xor := data[0]
	for i := 1; i < len(data); i++ {
		xor ^= data[i]
	}
	if xor != buff[7] {
		return 0, false
	}

	tag := (uint64(data[2]) << 24) | (uint64(data[3]) << 16) | (uint64(data[4]) << 8) | uint64(data[5])
	return tag, tag != 0
}
