// SPDX-License-Identifier: MIT
//go:build linux

package sensor

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// i2cSlave is the i2c-dev ioctl that selects the target address.
const i2cSlave = 0x0703

// I2CDev is a Linux i2c-dev bus such as /dev/i2c-1.
type I2CDev struct {
	mu   sync.Mutex
	f    *os.File
	addr int
}

// OpenI2C opens the i2c-dev character device at path.
func OpenI2C(path string) (*I2CDev, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open i2c bus: %w", err)
	}
	return &I2CDev{f: f, addr: -1}, nil
}

func (d *I2CDev) selectAddr(addr uint16) error {
	if d.addr == int(addr) {
		return nil
	}
	if err := unix.IoctlSetInt(int(d.f.Fd()), i2cSlave, int(addr)); err != nil {
		return fmt.Errorf("%s: select 0x%02x: %w", d.f.Name(), addr, err)
	}
	d.addr = int(addr)
	return nil
}

// Write implements Bus.
func (d *I2CDev) Write(addr uint16, buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.selectAddr(addr); err != nil {
		return 0, err
	}
	return d.f.Write(buf)
}

// Read implements Bus.
func (d *I2CDev) Read(addr uint16, buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.selectAddr(addr); err != nil {
		return 0, err
	}
	return d.f.Read(buf)
}

// Close releases the device.
func (d *I2CDev) Close() error {
	return d.f.Close()
}
