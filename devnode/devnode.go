// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package devnode publishes a chardev device as a named pipe.
//
// Node implements chardev.Registrar with plain files: the class and device
// entries are directories under a sysfs-like root, the device entry carries a
// "dev" file with the major:minor pair, and the node itself is a FIFO that
// any process can open and write to:
//
//	echo -n HELLO > /dev/device_LCD
//
// Serve maps what happens on the FIFO onto the registered operations: a
// writer opening the pipe is an Open, every chunk read from it is a Write,
// and the last writer closing it is a Release. A single write(2) of at most
// ReadSize bytes arrives as one chunk unless the writer outruns the reader.
package devnode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/GermanBionicSystems/lcd16x2/chardev"
)

// ReadSize is the largest chunk handed to a single Write. It is the Linux
// PIPE_BUF, the largest write(2) the kernel keeps atomic on a pipe.
const ReadSize = 4096

// ErrNotRegistered is returned by Serve before the device is created and
// its operations are added.
var ErrNotRegistered = errors.New("devnode: device not registered")

// Opts configures a Node.
type Opts struct {
	// DevDir holds the FIFO. Defaults to /dev.
	DevDir string
	// ClassRoot holds the class directories. Defaults to /run/lcd16x2/class.
	ClassRoot string
	// Major to use. Zero picks a free one in the local range 240-254.
	Major uint32
	// Mode of the FIFO. Defaults to 0o622: anyone may write.
	Mode uint32
}

// Node is a FIFO-backed device registration.
type Node struct {
	opts Opts
	log  logrus.FieldLogger

	mu   sync.Mutex
	path string
	ops  chardev.Operations
	cur  *os.File
}

// New returns a Node. Nothing is created until the registration calls.
func New(opts *Opts, log logrus.FieldLogger) *Node {
	o := *opts
	if o.DevDir == "" {
		o.DevDir = "/dev"
	}
	if o.ClassRoot == "" {
		o.ClassRoot = "/run/lcd16x2/class"
	}
	if o.Mode == 0 {
		o.Mode = 0o622
	}
	return &Node{opts: o, log: log}
}

// Path returns the FIFO path once CreateDevice succeeded.
func (n *Node) Path() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

func (n *Node) String() string {
	return fmt.Sprintf("devnode{%s}", n.Path())
}

// AllocRegion implements chardev.Registrar.
func (n *Node) AllocRegion(baseMinor uint32, name string) (chardev.DevNum, error) {
	major, err := majors.alloc(n.opts.Major)
	if err != nil {
		return chardev.DevNum{}, err
	}
	return chardev.DevNum{Major: major, Minor: baseMinor}, nil
}

// FreeRegion implements chardev.Registrar.
func (n *Node) FreeRegion(num chardev.DevNum) {
	majors.free(num.Major)
}

// CreateClass implements chardev.Registrar. An existing directory is
// reused.
func (n *Node) CreateClass(name string) error {
	return os.MkdirAll(filepath.Join(n.opts.ClassRoot, name), 0o755)
}

// DestroyClass implements chardev.Registrar.
func (n *Node) DestroyClass(name string) {
	n.remove(filepath.Join(n.opts.ClassRoot, name))
}

// CreateDevice implements chardev.Registrar. A stale FIFO left at the node
// path is replaced; any other file there is an error.
func (n *Node) CreateDevice(class string, num chardev.DevNum, name string) error {
	entry := filepath.Join(n.opts.ClassRoot, class, name)
	path := filepath.Join(n.opts.DevDir, name)
	if fi, err := os.Lstat(path); err == nil {
		if fi.Mode()&fs.ModeNamedPipe == 0 {
			return fmt.Errorf("devnode: %s exists and is not a FIFO", path)
		}
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(entry, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(entry, "dev"), []byte(num.String()+"\n"), 0o444); err != nil {
		_ = os.RemoveAll(entry)
		return err
	}
	if err := unix.Mkfifo(path, n.opts.Mode); err != nil {
		_ = os.RemoveAll(entry)
		return fmt.Errorf("devnode: mkfifo %s: %w", path, err)
	}
	// Mkfifo is subject to the umask.
	if err := os.Chmod(path, fs.FileMode(n.opts.Mode)); err != nil {
		_ = os.Remove(path)
		_ = os.RemoveAll(entry)
		return err
	}
	n.mu.Lock()
	n.path = path
	n.mu.Unlock()
	n.log.WithFields(logrus.Fields{"node": path, "devnum": num}).Info("device node created")
	return nil
}

// DestroyDevice implements chardev.Registrar.
func (n *Node) DestroyDevice(class string, num chardev.DevNum, name string) {
	n.mu.Lock()
	path := n.path
	n.path = ""
	n.mu.Unlock()
	if path != "" {
		n.remove(path)
	}
	if err := os.RemoveAll(filepath.Join(n.opts.ClassRoot, class, name)); err != nil {
		n.log.WithError(err).Warn("removing device entry")
	}
}

// AddDevice implements chardev.Registrar.
func (n *Node) AddDevice(num chardev.DevNum, ops chardev.Operations) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ops != nil {
		return fmt.Errorf("devnode: %s already has operations", num)
	}
	n.ops = ops
	return nil
}

// DelDevice implements chardev.Registrar.
func (n *Node) DelDevice(num chardev.DevNum) {
	n.mu.Lock()
	n.ops = nil
	n.mu.Unlock()
}

func (n *Node) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		n.log.WithError(err).WithField("path", path).Warn("cleanup")
	}
}

// Serve reads the FIFO until ctx is done. It returns nil on cancellation.
//
// The operations are the ones registered when Serve starts; the device must
// not be deleted while Serve runs.
func (n *Node) Serve(ctx context.Context) error {
	n.mu.Lock()
	path, ops := n.path, n.ops
	n.mu.Unlock()
	if path == "" || ops == nil {
		return ErrNotRegistered
	}

	done := make(chan struct{})
	defer close(done)
	stop := context.AfterFunc(ctx, func() { n.interrupt(path, done) })
	defer stop()

	n.log.WithField("node", path).Info("serving device node")
	buf := make([]byte, ReadSize)
	for {
		// Blocks until a writer shows up.
		f, err := os.OpenFile(path, os.O_RDONLY, 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("devnode: opening %s: %w", path, err)
		}
		// Checked under mu: once interrupt ran it will not see a later cur.
		n.mu.Lock()
		if ctx.Err() != nil {
			n.mu.Unlock()
			_ = f.Close()
			return nil
		}
		n.cur = f
		n.mu.Unlock()

		n.session(ops, f, buf)

		n.mu.Lock()
		n.cur = nil
		n.mu.Unlock()
		_ = f.Close()
		if ctx.Err() != nil {
			return nil
		}
	}
}

// session serves one run of writers, from the first open to the last close.
func (n *Node) session(ops chardev.Operations, f *os.File, buf []byte) {
	log := n.log.WithField("session", uuid.Must(uuid.NewV7()).String())
	if err := ops.Open(); err != nil {
		log.WithError(err).Warn("open rejected")
		return
	}
	chunks := 0
	defer func() {
		if err := ops.Release(); err != nil {
			log.WithError(err).Warn("release failed")
		}
		log.WithField("chunks", chunks).Debug("session closed")
	}()
	for {
		k, err := f.Read(buf)
		if k > 0 {
			chunks++
			if _, werr := ops.Write(buf[:k]); werr != nil {
				log.WithError(werr).Warn("write failed")
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
				log.WithError(err).Warn("read failed")
			}
			return
		}
	}
}

// interrupt unblocks Serve: it closes the pipe being read and keeps opening
// the FIFO for writing, which releases a reader blocked in open, until Serve
// is done.
func (n *Node) interrupt(path string, done <-chan struct{}) {
	n.mu.Lock()
	if n.cur != nil {
		_ = n.cur.Close()
	}
	n.mu.Unlock()
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()
	for {
		if fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0); err == nil {
			_ = unix.Close(fd)
		}
		select {
		case <-done:
			return
		case <-t.C:
		}
	}
}

var _ chardev.Registrar = &Node{}

// majorTable hands out major numbers within the process.
type majorTable struct {
	mu   sync.Mutex
	used map[uint32]bool
}

var majors = majorTable{used: map[uint32]bool{}}

const (
	firstLocalMajor = 240
	lastLocalMajor  = 254
)

func (m *majorTable) alloc(want uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if want != 0 {
		if m.used[want] {
			return 0, fmt.Errorf("devnode: major %d: %w", want, unix.EBUSY)
		}
		m.used[want] = true
		return want, nil
	}
	for major := uint32(firstLocalMajor); major <= lastLocalMajor; major++ {
		if !m.used[major] {
			m.used[major] = true
			return major, nil
		}
	}
	return 0, fmt.Errorf("devnode: no free major: %w", unix.EBUSY)
}

func (m *majorTable) free(major uint32) {
	m.mu.Lock()
	delete(m.used, major)
	m.mu.Unlock()
}
