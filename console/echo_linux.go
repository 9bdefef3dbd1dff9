//go:build linux

package console

import "golang.org/x/sys/unix"

// disableEcho turns off echo while keeping the terminal in canonical mode,
// so the kernel still handles Enter and Backspace. The returned func restores
// the previous settings.
func disableEcho(fd int) (func() error, error) {
	old, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}
	state := *old
	state.Lflag &^= unix.ECHO
	state.Lflag |= unix.ICANON | unix.ISIG
	state.Iflag |= unix.ICRNL
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &state); err != nil {
		return nil, err
	}
	return func() error {
		return unix.IoctlSetTermios(fd, unix.TCSETS, old)
	}, nil
}
