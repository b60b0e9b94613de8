// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package chardev

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/GermanBionicSystems/lcd16x2/hd44780"
)

// BufferSize is the capacity of the per-write buffer: one display line plus
// a spare slot that is never sent.
const BufferSize = 17

// Protocol emits single transactions. *hd44780.Engine implements it.
type Protocol interface {
	SendCommand(b byte) error
	SendData(b byte) error
}

// TransferFunc copies src from the caller into dst and returns how many
// bytes could not be transferred. len(dst) == len(src).
type TransferFunc func(dst, src []byte) (notCopied int)

// CopyTransfer is the default TransferFunc. It never fails.
func CopyTransfer(dst, src []byte) int {
	return len(dst) - copy(dst, src)
}

// Operations is the set of file operations a registered device serves.
type Operations interface {
	Open() error
	Release() error
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
}

// File maps file operations on the device node onto display transactions.
//
// Any number of callers may hold the file open. Writes are not serialized:
// two concurrent writers interleave their transactions and the screen shows
// a mix of both.
type File struct {
	proto    Protocol
	transfer TransferFunc
	log      logrus.FieldLogger
	opens    atomic.Uint64
}

// NewFile returns a File writing through proto. A nil transfer means
// CopyTransfer.
func NewFile(proto Protocol, transfer TransferFunc, log logrus.FieldLogger) *File {
	if transfer == nil {
		transfer = CopyTransfer
	}
	return &File{proto: proto, transfer: transfer, log: log}
}

// Open implements Operations. It always succeeds.
func (f *File) Open() error {
	n := f.opens.Add(1)
	f.log.WithField("count", n).Info("device file opened")
	return nil
}

// Release implements Operations. The display is left as is.
func (f *File) Release() error {
	f.log.Info("device file released")
	return nil
}

// Write clears the screen and shows the first BufferSize-1 bytes of p.
// The rest is dropped without error.
//
// The count returned is the number of bytes copied minus the number that
// failed to transfer. When the transfer was partial, the bytes that did not
// arrive are still sent (as zero) and a *TransferError is returned with the
// count.
func (f *File) Write(p []byte) (int, error) {
	var buf [BufferSize]byte
	n := min(len(p), BufferSize-1)
	errorCount := f.transfer(buf[:n], p[:n])

	if err := f.proto.SendCommand(hd44780.ClearDisplay); err != nil {
		return 0, fmt.Errorf("chardev: clearing display: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := f.proto.SendData(buf[i]); err != nil {
			return i, fmt.Errorf("chardev: writing byte %d: %w", i, err)
		}
	}

	fields := logrus.Fields{"bytes": n, "dropped": len(p) - n}
	if errorCount > 0 {
		f.log.WithFields(fields).WithField("not_copied", errorCount).Warn("partial transfer")
		return n - errorCount, &TransferError{Requested: n, NotCopied: errorCount}
	}
	f.log.WithFields(fields).Debug("device file written")
	return n - errorCount, nil
}

// Read implements Operations. The display is write only.
func (f *File) Read(p []byte) (int, error) {
	return 0, ErrNotSupported
}

// Opens returns how many times the file was opened.
func (f *File) Opens() uint64 {
	return f.opens.Load()
}

var _ Operations = &File{}
