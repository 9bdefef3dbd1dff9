//go:build !linux

package console

import "errors"

func disableEcho(int) (func() error, error) {
	return nil, errors.New("echo control not supported on this platform")
}
