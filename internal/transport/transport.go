// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"fmt"
)

// Transport defines a generic interface for sending consumer reports or
// events. Implementations should be thread-safe and must not block the
// consumer loop for long.
type Transport interface {
	Send(data any) error
	Close() error
}

// Multi fans every message out to a list of transports.
type Multi []Transport

// Send delivers data to every transport and joins their errors.
func (m Multi) Send(data any) error {
	var errs []error
	for i, t := range m {
		if err := t.Send(data); err != nil {
			errs = append(errs, fmt.Errorf("transport %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every transport and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Transport = Multi(nil)
