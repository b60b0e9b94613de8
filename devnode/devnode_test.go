// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package devnode

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/sys/unix"

	"github.com/GermanBionicSystems/lcd16x2/chardev"
)

func getNode(t *testing.T) *Node {
	t.Helper()
	n, _ := getNodeWithHook(t)
	return n
}

func getNodeWithHook(t *testing.T) (*Node, *logtest.Hook) {
	t.Helper()
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	dir := t.TempDir()
	return New(&Opts{DevDir: filepath.Join(dir, "dev"), ClassRoot: filepath.Join(dir, "class")}, log), hook
}

func register(t *testing.T, n *Node, ops chardev.Operations) chardev.DevNum {
	t.Helper()
	if err := os.MkdirAll(n.opts.DevDir, 0o755); err != nil {
		t.Fatal(err)
	}
	num, err := n.AllocRegion(12, "device_LCD")
	if err != nil {
		t.Fatal(err)
	}
	if err := n.CreateClass("class_LCD"); err != nil {
		t.Fatal(err)
	}
	if err := n.CreateDevice("class_LCD", num, "device_LCD"); err != nil {
		t.Fatal(err)
	}
	if err := n.AddDevice(num, ops); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		n.DelDevice(num)
		n.DestroyDevice("class_LCD", num, "device_LCD")
		n.DestroyClass("class_LCD")
		n.FreeRegion(num)
	})
	return num
}

func TestRegistration(t *testing.T) {
	n := getNode(t)
	num := register(t, n, &recorder{})
	if num.Minor != 12 || num.Major < firstLocalMajor || num.Major > lastLocalMajor {
		t.Fatalf("unexpected device number %s", num)
	}
	fi, err := os.Stat(n.Path())
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode()&fs.ModeNamedPipe == 0 {
		t.Fatalf("%s is not a FIFO: %s", n.Path(), fi.Mode())
	}
	if perm := fi.Mode().Perm(); perm != 0o622 {
		t.Fatalf("mode %o", perm)
	}
	b, err := os.ReadFile(filepath.Join(n.opts.ClassRoot, "class_LCD", "device_LCD", "dev"))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(b)); got != num.String() {
		t.Fatalf("dev = %q, want %q", got, num)
	}

	path := n.Path()
	n.DelDevice(num)
	n.DestroyDevice("class_LCD", num, "device_LCD")
	n.DestroyClass("class_LCD")
	n.FreeRegion(num)
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("node still present: %v", err)
	}
	if _, err := os.Stat(filepath.Join(n.opts.ClassRoot, "class_LCD")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("class still present: %v", err)
	}
	// Teardown twice is harmless.
	n.DestroyDevice("class_LCD", num, "device_LCD")
	n.DestroyClass("class_LCD")
}

func TestCreateDeviceReplacesStaleFIFO(t *testing.T) {
	n := getNode(t)
	if err := os.MkdirAll(n.opts.DevDir, 0o755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(n.opts.DevDir, "device_LCD")
	if err := unix.Mkfifo(stale, 0o600); err != nil {
		t.Fatal(err)
	}
	register(t, n, &recorder{})
	fi, err := os.Stat(stale)
	if err != nil {
		t.Fatal(err)
	}
	if perm := fi.Mode().Perm(); perm != 0o622 {
		t.Fatalf("stale FIFO kept, mode %o", perm)
	}
}

func TestCreateDeviceRefusesRegularFile(t *testing.T) {
	n := getNode(t)
	if err := os.MkdirAll(n.opts.DevDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(n.opts.DevDir, "device_LCD"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := n.CreateDevice("class_LCD", chardev.DevNum{Major: 250, Minor: 12}, "device_LCD"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(filepath.Join(n.opts.ClassRoot, "class_LCD", "device_LCD")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("device entry left behind: %v", err)
	}
}

func TestAllocRegionFixedMajor(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	a := New(&Opts{Major: 123}, log)
	b := New(&Opts{Major: 123}, log)
	num, err := a.AllocRegion(0, "a")
	if err != nil {
		t.Fatal(err)
	}
	defer a.FreeRegion(num)
	if num.Major != 123 {
		t.Fatalf("major %d", num.Major)
	}
	if _, err := b.AllocRegion(0, "b"); !errors.Is(err, unix.EBUSY) {
		t.Fatalf("expected EBUSY, got %v", err)
	}
}

func TestAddDeviceTwice(t *testing.T) {
	n := getNode(t)
	num := register(t, n, &recorder{})
	if err := n.AddDevice(num, &recorder{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestServeNotRegistered(t *testing.T) {
	n := getNode(t)
	if err := n.Serve(context.Background()); err != ErrNotRegistered {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestServe(t *testing.T) {
	n, hook := getNodeWithHook(t)
	r := &recorder{released: make(chan struct{}, 4)}
	register(t, n, r)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- n.Serve(ctx) }()

	// Blocks until Serve opened the reading end.
	f, err := os.OpenFile(n.Path(), os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte("HELLO")); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-r.released:
	case <-time.After(5 * time.Second):
		t.Fatal("no release")
	}
	opens, writes := r.get()
	if opens != 1 {
		t.Fatalf("opens = %d", opens)
	}
	if got := strings.Join(writes, ""); got != "HELLO" {
		t.Fatalf("wrote %q", got)
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	if opens, _ := r.get(); opens != 1 {
		t.Fatalf("shutdown opened a session: %d", opens)
	}
	var sessions []string
	for _, e := range hook.AllEntries() {
		if e.Message == "session closed" {
			sessions = append(sessions, e.Data["session"].(string))
		}
	}
	if len(sessions) != 1 {
		t.Fatalf("%d sessions logged", len(sessions))
	}
	if id, err := uuid.Parse(sessions[0]); err != nil || id.Version() != 7 {
		t.Fatalf("session id %q: %v", sessions[0], err)
	}
}

func TestServeCancelDuringSession(t *testing.T) {
	n := getNode(t)
	r := &recorder{released: make(chan struct{}, 4)}
	register(t, n, r)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- n.Serve(ctx) }()

	f, err := os.OpenFile(n.Path(), os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.Write([]byte("A")); err != nil {
		t.Fatal(err)
	}
	for deadline := time.Now().Add(5 * time.Second); ; {
		if _, writes := r.get(); len(writes) != 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("write not served")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	select {
	case <-r.released:
	default:
		t.Fatal("open session was not released")
	}
}

func TestServeCancelWithWriterAttached(t *testing.T) {
	// Cancel at different points of the open/session handoff while a writer
	// keeps the node open; Serve must always return.
	for i := 0; i < 10; i++ {
		delay := time.Duration(i) * 200 * time.Microsecond
		t.Run(delay.String(), func(t *testing.T) {
			n := getNode(t)
			register(t, n, &recorder{})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			served := make(chan error, 1)
			go func() { served <- n.Serve(ctx) }()
			writer := make(chan *os.File, 1)
			go func() {
				f, err := os.OpenFile(n.Path(), os.O_WRONLY, 0)
				if err != nil {
					f = nil
				}
				writer <- f
			}()

			time.Sleep(delay)
			cancel()
			select {
			case err := <-served:
				if err != nil {
					t.Fatal(err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("Serve did not return")
			}

			// Unblock the writer when Serve never opened the reading end.
			if r, err := os.OpenFile(n.Path(), os.O_RDONLY|unix.O_NONBLOCK, 0); err == nil {
				defer r.Close()
			}
			if f := <-writer; f != nil {
				_ = f.Close()
			}
		})
	}
}

// recorder is a chardev.Operations that records calls.
type recorder struct {
	released chan struct{}

	mu     sync.Mutex
	opens  int
	writes []string
}

func (r *recorder) Open() error {
	r.mu.Lock()
	r.opens++
	r.mu.Unlock()
	return nil
}

func (r *recorder) Release() error {
	if r.released != nil {
		r.released <- struct{}{}
	}
	return nil
}

func (r *recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	r.writes = append(r.writes, string(p))
	r.mu.Unlock()
	return len(p), nil
}

func (r *recorder) Read(p []byte) (int, error) {
	return 0, chardev.ErrNotSupported
}

func (r *recorder) get() (int, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens, append([]string(nil), r.writes...)
}
