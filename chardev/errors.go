// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package chardev

import (
	"errors"
	"fmt"
)

// ErrNotSupported is returned by Read.
var ErrNotSupported = fmt.Errorf("chardev: read: %w", errors.ErrUnsupported)

// ErrLoaded is returned by Load on a driver that is already loaded.
var ErrLoaded = errors.New("chardev: driver already loaded")

// RegistrationError reports a failed step of device registration.
type RegistrationError struct {
	Step string
	Err  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("chardev: %s: %v", e.Step, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// TransferError reports bytes that could not be copied from the caller.
type TransferError struct {
	Requested int
	NotCopied int
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("chardev: %d of %d bytes not transferred", e.NotCopied, e.Requested)
}
