// SPDX-License-Identifier: MIT
//go:build !unix

package shm

import (
	"errors"
	"runtime"
)

// OpenShared is only available on unix systems.
func OpenShared(path string, size int) (*Memory, error) {
	return nil, errors.New("shm: shared mappings are not supported on " + runtime.GOOS)
}
