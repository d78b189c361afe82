// SPDX-License-Identifier: MIT
//go:build !linux

package sensor

import (
	"errors"
	"runtime"
)

// I2CDev is only available on Linux.
type I2CDev struct{}

// OpenI2C always fails outside Linux.
func OpenI2C(path string) (*I2CDev, error) {
	return nil, errors.New("sensor: i2c-dev is not supported on " + runtime.GOOS)
}

func (*I2CDev) Write(addr uint16, buf []byte) (int, error) { return 0, errors.ErrUnsupported }
func (*I2CDev) Read(addr uint16, buf []byte) (int, error)  { return 0, errors.ErrUnsupported }
func (*I2CDev) Close() error                               { return nil }
