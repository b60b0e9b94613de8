// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lines

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAcquired is returned when driving a line that is not held.
	ErrNotAcquired = errors.New("line not acquired")
	// ErrHeld is returned by AcquireAll when lines are still held.
	ErrHeld = errors.New("lines already held")
	// ErrBusy is returned by a Claimer when the line is already claimed.
	ErrBusy = errors.New("line busy")
	// ErrNotFound is returned by a Claimer for an unknown line name.
	ErrNotFound = errors.New("line not found")
	// ErrNotClaimed is returned by a Claimer when unclaiming a free line.
	ErrNotClaimed = errors.New("line not claimed")
)

// AcquisitionError reports a line that could not be claimed.
type AcquisitionError struct {
	Line Line
	Name string
	Err  error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("lines: acquiring %s (%s): %v", e.Line, e.Name, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// DirectionError reports a claimed line that could not be set as an output.
type DirectionError struct {
	Line Line
	Name string
	Err  error
}

func (e *DirectionError) Error() string {
	return fmt.Sprintf("lines: setting %s (%s) as output: %v", e.Line, e.Name, e.Err)
}

func (e *DirectionError) Unwrap() error {
	return e.Err
}
