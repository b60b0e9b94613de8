// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package chardev exposes an HD44780 display as a write-only character
// device.
//
// A Driver holds everything the device needs: its registration, the GPIO
// lines and the protocol engine. Load brings it up in a fixed order
// (device number, class, device entry, file operations, GPIO lines, display
// init) and rolls back whatever was done when a step fails. Unload clears
// the screen and undoes everything in reverse.
//
// Writing to the device clears the screen and shows the first 16 bytes.
// Reading is not supported.
package chardev

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/GermanBionicSystems/lcd16x2/hd44780"
	"github.com/GermanBionicSystems/lcd16x2/lines"
)

// DevNum is a device number.
type DevNum struct {
	Major, Minor uint32
}

func (n DevNum) String() string {
	return fmt.Sprintf("%d:%d", n.Major, n.Minor)
}

// Registrar makes a device visible to callers.
//
// Teardown methods are called at most once per successful setup call, in
// reverse order, and must tolerate entries that already vanished.
type Registrar interface {
	AllocRegion(baseMinor uint32, name string) (DevNum, error)
	FreeRegion(num DevNum)
	CreateClass(name string) error
	DestroyClass(name string)
	CreateDevice(class string, num DevNum, name string) error
	DestroyDevice(class string, num DevNum, name string)
	AddDevice(num DevNum, ops Operations) error
	DelDevice(num DevNum)
}

// Config describes one display device.
type Config struct {
	DeviceName string
	ClassName  string
	BaseMinor  uint32
	Pins       lines.Set
	Display    hd44780.Opts
	// Transfer defaults to CopyTransfer.
	Transfer TransferFunc
}

// DefaultConfig matches the reference board.
var DefaultConfig = Config{
	DeviceName: "device_LCD",
	ClassName:  "class_LCD",
	BaseMinor:  12,
	Pins:       lines.DefaultSet,
	Display:    hd44780.DefaultOpts,
}

// Stats are diagnostic counters.
type Stats struct {
	Opens uint64
}

// Driver is the context of one display device. Its lifecycle is
// New → Load → Unload; the caller must not call Unload while the device is
// still being served.
type Driver struct {
	cfg    Config
	reg    Registrar
	log    logrus.FieldLogger
	pins   *lines.Manager
	engine *hd44780.Engine
	file   *File
	num    DevNum
	undo   rollback
	loaded bool
}

// New returns an unloaded driver. claimer hands out the GPIO lines named in
// cfg.Pins.
func New(cfg *Config, reg Registrar, claimer lines.Claimer, log logrus.FieldLogger) (*Driver, error) {
	pins, err := lines.New(cfg.Pins, claimer)
	if err != nil {
		return nil, err
	}
	log = log.WithField("device", cfg.DeviceName)
	engine := hd44780.New(pins, &cfg.Display)
	return &Driver{
		cfg:    *cfg,
		reg:    reg,
		log:    log,
		pins:   pins,
		engine: engine,
		file:   NewFile(engine, cfg.Transfer, log),
	}, nil
}

// Load registers the device, acquires the lines and initializes the
// display. On error nothing stays registered or acquired.
func (d *Driver) Load() error {
	if d.loaded {
		return ErrLoaded
	}
	d.log.Info("loading display driver")
	var undo rollback

	num, err := d.reg.AllocRegion(d.cfg.BaseMinor, d.cfg.DeviceName)
	if err != nil {
		return d.fail(&undo, &RegistrationError{Step: "device number allocation", Err: err})
	}
	undo.push("free device number", func() error { d.reg.FreeRegion(num); return nil })
	d.log.WithField("devnum", num).Info("device number allocated")

	if err := d.reg.CreateClass(d.cfg.ClassName); err != nil {
		return d.fail(&undo, &RegistrationError{Step: "class creation", Err: err})
	}
	undo.push("destroy class", func() error { d.reg.DestroyClass(d.cfg.ClassName); return nil })

	if err := d.reg.CreateDevice(d.cfg.ClassName, num, d.cfg.DeviceName); err != nil {
		return d.fail(&undo, &RegistrationError{Step: "device creation", Err: err})
	}
	undo.push("destroy device", func() error { d.reg.DestroyDevice(d.cfg.ClassName, num, d.cfg.DeviceName); return nil })

	if err := d.reg.AddDevice(num, d.file); err != nil {
		return d.fail(&undo, &RegistrationError{Step: "device registration", Err: err})
	}
	undo.push("unregister device", func() error { d.reg.DelDevice(num); return nil })
	d.log.Info("device registered")

	if err := d.pins.AcquireAll(); err != nil {
		return d.fail(&undo, err)
	}
	undo.push("release lines", d.pins.ReleaseAll)

	if err := d.engine.Init(); err != nil {
		return d.fail(&undo, fmt.Errorf("chardev: initializing display: %w", err))
	}

	d.num = num
	d.undo = undo
	d.loaded = true
	d.log.WithField("devnum", num).Info("display driver loaded")
	return nil
}

func (d *Driver) fail(undo *rollback, err error) error {
	d.log.WithError(err).Error("loading display driver failed")
	if rerr := undo.run(); rerr != nil {
		d.log.WithError(rerr).Warn("rollback incomplete")
	}
	return err
}

// Unload clears the screen, releases every line and unregisters the
// device. Unloading an unloaded driver does nothing.
func (d *Driver) Unload() error {
	if !d.loaded {
		return nil
	}
	var errs []error
	if err := d.engine.Clear(); err != nil {
		errs = append(errs, fmt.Errorf("chardev: clearing display: %w", err))
	}
	if err := d.undo.run(); err != nil {
		errs = append(errs, err)
	}
	d.undo = nil
	d.loaded = false
	d.log.Info("display driver unloaded")
	return errors.Join(errs...)
}

// File returns the file operations of the device.
func (d *Driver) File() *File {
	return d.file
}

// Engine returns the protocol engine. It must only be used while loaded.
func (d *Driver) Engine() *hd44780.Engine {
	return d.engine
}

// DevNum returns the device number assigned by Load.
func (d *Driver) DevNum() DevNum {
	return d.num
}

// Stats returns the diagnostic counters.
func (d *Driver) Stats() Stats {
	return Stats{Opens: d.file.Opens()}
}

func (d *Driver) String() string {
	return fmt.Sprintf("chardev.Driver{%s %s}", d.cfg.DeviceName, d.engine)
}

// rollback is a stack of undo steps run most recent first.
type rollback []undoStep

type undoStep struct {
	name string
	fn   func() error
}

func (r *rollback) push(name string, fn func() error) {
	*r = append(*r, undoStep{name, fn})
}

func (r *rollback) run() error {
	var errs []error
	for i := len(*r) - 1; i >= 0; i-- {
		s := (*r)[i]
		if err := s.fn(); err != nil {
			errs = append(errs, fmt.Errorf("chardev: %s: %w", s.name, err))
		}
	}
	*r = nil
	return errors.Join(errs...)
}
