// SPDX-License-Identifier: MIT
/*
Package sensor acquires time-domain blocks from a 3-axis ADXL345
accelerometer on a register bus.

A Bus is the two-call surface of an I2C master: a write that sets the
register pointer (optionally followed by register data) and a burst read
from that pointer. The ADXL345 itself is driven by the TinyGo driver, which
is handed the bus through an adapter.
*/
package sensor

import (
	"errors"
	"fmt"
)

// DefaultAddress is the ADXL345 address with SDO/ALT ADDRESS tied low.
const DefaultAddress = 0x53

// ErrNoDevice is returned when nothing acknowledges an address.
var ErrNoDevice = errors.New("sensor: no device at address")

// Bus is an I2C master. Write sends buf to the device at addr; Read fills
// buf from it. Both return the number of bytes transferred.
type Bus interface {
	Write(addr uint16, buf []byte) (int, error)
	Read(addr uint16, buf []byte) (int, error)
}

// i2cAdapter presents a Bus as the I2C interface of the TinyGo drivers.
// The driver ignores transfer errors on reads, so the last one is kept
// for the caller to collect.
type i2cAdapter struct {
	bus Bus
	err error
}

// Tx writes w and then reads into r; either may be empty.
func (a *i2cAdapter) Tx(addr uint16, w, r []byte) error {
	if len(w) > 0 {
		n, err := a.bus.Write(addr, w)
		if err == nil && n != len(w) {
			err = fmt.Errorf("short write: %d of %d bytes", n, len(w))
		}
		if err != nil {
			return a.fail(fmt.Errorf("i2c write 0x%02x: %w", addr, err))
		}
	}
	if len(r) > 0 {
		n, err := a.bus.Read(addr, r)
		if err == nil && n != len(r) {
			err = fmt.Errorf("short read: %d of %d bytes", n, len(r))
		}
		if err != nil {
			return a.fail(fmt.Errorf("i2c read 0x%02x: %w", addr, err))
		}
	}
	return nil
}

// ReadRegister and WriteRegister cover drivers built against the older,
// register-oriented form of the interface.
func (a *i2cAdapter) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return a.Tx(uint16(addr), []byte{reg}, buf)
}

func (a *i2cAdapter) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	w := make([]byte, 0, len(buf)+1)
	w = append(w, reg)
	w = append(w, buf...)
	return a.Tx(uint16(addr), w, nil)
}

func (a *i2cAdapter) fail(err error) error {
	a.err = err
	return err
}

// takeErr returns and clears the last transfer error.
func (a *i2cAdapter) takeErr() error {
	err := a.err
	a.err = nil
	return err
}

// readRegister reads one register with the pointer-then-burst sequence.
func readRegister(bus Bus, addr uint16, reg byte) (byte, error) {
	a := &i2cAdapter{bus: bus}
	buf := []byte{0}
	if err := a.Tx(addr, []byte{reg}, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}
