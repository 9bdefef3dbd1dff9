//go:build linux

package button

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/go-gpiocdev"
)

func TestUnconfigured(t *testing.T) {
	b, err := New(Config{}, func() {}, zerolog.Nop())
	require.NoError(t, err)
	require.Nil(t, b)
}

func TestFallingEdgePresses(t *testing.T) {
	var pressed int
	b := &Button{onPress: func() { pressed++ }, log: zerolog.Nop()}

	b.handleEvent(gpiocdev.LineEvent{Type: gpiocdev.LineEventFallingEdge})
	b.handleEvent(gpiocdev.LineEvent{Type: gpiocdev.LineEventRisingEdge})
	b.handleEvent(gpiocdev.LineEvent{Type: gpiocdev.LineEventFallingEdge})

	require.Equal(t, 2, pressed)
	require.EqualValues(t, 2, b.Presses())
	require.NoError(t, b.Release())
}
