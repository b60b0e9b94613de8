// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads the YAML configuration of the display daemon.
//
// A missing key keeps its default, so an empty file describes the
// reference board:
//
//	pins:
//	  enable: GPIO3
//	  register_select: GPIO2
//	  data: [GPIO4, GPIO17, GPIO27, GPIO22, GPIO10, GPIO9, GPIO11, GPIO5]
//	display:
//	  rows: 2
//	  cols: 16
//	  settle: 5us
//	  command_delay: 2ms
//	  character_delay: 50us
//	device:
//	  name: device_LCD
//	  class: class_LCD
//	  base_minor: 12
//	  dev_dir: /dev
//	  class_root: /run/lcd16x2/class
//	preview:
//	  terminal: false
//	  http: ""
//	simulate: false
//	log_level: info
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/GermanBionicSystems/lcd16x2/chardev"
	"github.com/GermanBionicSystems/lcd16x2/devnode"
	"github.com/GermanBionicSystems/lcd16x2/hd44780"
	"github.com/GermanBionicSystems/lcd16x2/lines"
)

// Config is the daemon configuration.
type Config struct {
	Pins     PinsConfig    `yaml:"pins"`
	Display  DisplayConfig `yaml:"display"`
	Device   DeviceConfig  `yaml:"device"`
	Preview  PreviewConfig `yaml:"preview"`
	Simulate bool          `yaml:"simulate"`
	LogLevel string        `yaml:"log_level"`
}

// PinsConfig names the GPIO line behind every signal.
type PinsConfig struct {
	Enable         string    `yaml:"enable"`
	RegisterSelect string    `yaml:"register_select"`
	Data           [8]string `yaml:"data"`
}

// DisplayConfig is the geometry and bus timing.
type DisplayConfig struct {
	Rows           int           `yaml:"rows"`
	Cols           int           `yaml:"cols"`
	Settle         time.Duration `yaml:"settle"`
	CommandDelay   time.Duration `yaml:"command_delay"`
	CharacterDelay time.Duration `yaml:"character_delay"`
}

// DeviceConfig is the device registration.
type DeviceConfig struct {
	Name      string `yaml:"name"`
	Class     string `yaml:"class"`
	BaseMinor uint32 `yaml:"base_minor"`
	Major     uint32 `yaml:"major"`
	DevDir    string `yaml:"dev_dir"`
	ClassRoot string `yaml:"class_root"`
}

// PreviewConfig enables the screen mirrors.
type PreviewConfig struct {
	// Terminal draws the screen on stdout after every change.
	Terminal bool `yaml:"terminal"`
	// HTTP is the listen address of the image stream. Empty disables it.
	HTTP string `yaml:"http"`
}

// Default returns the configuration of the reference board.
func Default() *Config {
	set := lines.DefaultSet
	opts := hd44780.DefaultOpts
	dev := chardev.DefaultConfig
	return &Config{
		Pins: PinsConfig{
			Enable:         set.Enable,
			RegisterSelect: set.RegisterSelect,
			Data:           set.Data,
		},
		Display: DisplayConfig{
			Rows:           opts.Rows,
			Cols:           opts.Cols,
			Settle:         opts.Settle,
			CommandDelay:   opts.CommandDelay,
			CharacterDelay: opts.CharacterDelay,
		},
		Device: DeviceConfig{
			Name:      dev.DeviceName,
			Class:     dev.ClassName,
			BaseMinor: dev.BaseMinor,
			DevDir:    "/dev",
			ClassRoot: "/run/lcd16x2/class",
		},
		LogLevel: "info",
	}
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result.
func Parse(b []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg. It does not modify it.
func Validate(cfg *Config) error {
	var errs []error
	if err := cfg.LineSet().Validate(); err != nil {
		errs = append(errs, err)
	}
	if d := cfg.Display; d.Rows < 1 || d.Rows > 4 {
		errs = append(errs, fmt.Errorf("display: rows must be 1 to 4, got %d", d.Rows))
	}
	if cfg.Display.Cols < 1 {
		errs = append(errs, fmt.Errorf("display: cols must be positive, got %d", cfg.Display.Cols))
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"settle", cfg.Display.Settle},
		{"command_delay", cfg.Display.CommandDelay},
		{"character_delay", cfg.Display.CharacterDelay},
	} {
		if d.v < 0 {
			errs = append(errs, fmt.Errorf("display: %s must not be negative, got %s", d.name, d.v))
		}
	}
	if cfg.Device.Name == "" {
		errs = append(errs, errors.New("device: name is required"))
	}
	if cfg.Device.Class == "" {
		errs = append(errs, errors.New("device: class is required"))
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	return errors.Join(errs...)
}

// LineSet returns the pin assignment.
func (c *Config) LineSet() lines.Set {
	return lines.Set{
		Enable:         c.Pins.Enable,
		RegisterSelect: c.Pins.RegisterSelect,
		Data:           c.Pins.Data,
	}
}

// DisplayOpts returns the engine options.
func (c *Config) DisplayOpts() hd44780.Opts {
	return hd44780.Opts{
		Rows:           c.Display.Rows,
		Cols:           c.Display.Cols,
		Settle:         c.Display.Settle,
		CommandDelay:   c.Display.CommandDelay,
		CharacterDelay: c.Display.CharacterDelay,
	}
}

// Driver returns the driver configuration.
func (c *Config) Driver() chardev.Config {
	return chardev.Config{
		DeviceName: c.Device.Name,
		ClassName:  c.Device.Class,
		BaseMinor:  c.Device.BaseMinor,
		Pins:       c.LineSet(),
		Display:    c.DisplayOpts(),
	}
}

// Node returns the device node options.
func (c *Config) Node() devnode.Opts {
	return devnode.Opts{
		DevDir:    c.Device.DevDir,
		ClassRoot: c.Device.ClassRoot,
		Major:     c.Device.Major,
	}
}

// Level returns the parsed log level. Validate guarantees it parses.
func (c *Config) Level() logrus.Level {
	l, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return l
}
