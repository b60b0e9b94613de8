// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package lines manages the fixed set of GPIO lines wired to a parallel
// HD44780 bus: one enable line, one register-select line and eight data
// lines.
//
// A Manager claims every line exclusively, configures it as an output driven
// low, and gives all of them back on shutdown. When a claim fails part way,
// the lines already held are released in reverse order before the error is
// returned, so a failed AcquireAll never leaves a line behind.
package lines

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
)

// Line is the logical index of a signal line in the line set.
//
// The order is significant: data bit n is carried by line Data0+n.
type Line int

const (
	Enable Line = iota
	RegisterSelect
	Data0
	Data1
	Data2
	Data3
	Data4
	Data5
	Data6
	Data7

	// Count is the number of lines in a Set.
	Count = int(Data7) + 1
)

// DataLine returns the line carrying the given data bit (0-7).
func DataLine(bit int) Line {
	return Data0 + Line(bit)
}

func (l Line) String() string {
	switch {
	case l == Enable:
		return "enable"
	case l == RegisterSelect:
		return "register-select"
	case l >= Data0 && l <= Data7:
		return fmt.Sprintf("data%d", int(l-Data0))
	}
	return fmt.Sprintf("Line(%d)", int(l))
}

// Set names the physical line behind every logical line.
type Set struct {
	Enable         string
	RegisterSelect string
	Data           [8]string
}

// DefaultSet is the wiring of the reference board: enable on GPIO3,
// register-select on GPIO2 and D0-D7 on GPIO4, 17, 27, 22, 10, 9, 11, 5.
var DefaultSet = Set{
	Enable:         "GPIO3",
	RegisterSelect: "GPIO2",
	Data:           [8]string{"GPIO4", "GPIO17", "GPIO27", "GPIO22", "GPIO10", "GPIO9", "GPIO11", "GPIO5"},
}

// Names returns the line names in acquisition order.
func (s Set) Names() [Count]string {
	var names [Count]string
	names[Enable] = s.Enable
	names[RegisterSelect] = s.RegisterSelect
	for bit, name := range s.Data {
		names[DataLine(bit)] = name
	}
	return names
}

// Validate returns an error when a name is empty or used twice.
func (s Set) Validate() error {
	seen := make(map[string]Line, Count)
	for i, name := range s.Names() {
		l := Line(i)
		if name == "" {
			return fmt.Errorf("lines: %s has no name", l)
		}
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("lines: %q assigned to both %s and %s", name, prev, l)
		}
		seen[name] = l
	}
	return nil
}

// State is the acquisition state of a line.
type State int

const (
	Free State = iota
	Output
	Failed
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Output:
		return "output"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Claimer grants exclusive use of a named line.
//
// Claim must fail when the line is unknown or already claimed. Unclaim gives
// the line back.
type Claimer interface {
	Claim(name string) (gpio.PinOut, error)
	Unclaim(name string, p gpio.PinOut) error
}

// Manager owns the lines of a Set.
//
// A Manager is not safe for concurrent AcquireAll/ReleaseAll. SetLevel only
// touches the pin it addresses.
type Manager struct {
	names   [Count]string
	claimer Claimer
	pins    [Count]gpio.PinOut
	state   [Count]State
}

// New returns a Manager for set. No line is claimed until AcquireAll.
func New(set Set, c Claimer) (*Manager, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &Manager{names: set.Names(), claimer: c}, nil
}

// AcquireAll claims every line in order and drives it low.
//
// It stops at the first failure and returns an *AcquisitionError or a
// *DirectionError. Lines after the failing one are not attempted.
//
// It returns ErrHeld, touching nothing, while any line is still held.
func (m *Manager) AcquireAll() error {
	if n := m.Held(); n != 0 {
		return fmt.Errorf("lines: %d of %d: %w", n, Count, ErrHeld)
	}
	for i, name := range m.names {
		l := Line(i)
		p, err := m.claimer.Claim(name)
		if err != nil {
			m.state[l] = Failed
			m.rollback(l - 1)
			return &AcquisitionError{Line: l, Name: name, Err: err}
		}
		m.pins[l] = p
		if err := p.Out(gpio.Low); err != nil {
			m.rollback(l)
			m.state[l] = Failed
			return &DirectionError{Line: l, Name: name, Err: err}
		}
		m.state[l] = Output
	}
	return nil
}

// rollback releases lines last..0, most recent first.
func (m *Manager) rollback(last Line) {
	for l := last; l >= Enable; l-- {
		_ = m.release(l)
	}
}

// ReleaseAll drives every held line low and releases it. Lines that are not
// held are skipped, so calling it twice is harmless.
//
// It must not run concurrently with SetLevel.
func (m *Manager) ReleaseAll() error {
	var first error
	for l := Line(Count - 1); l >= Enable; l-- {
		if err := m.release(l); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *Manager) release(l Line) error {
	p := m.pins[l]
	if p == nil {
		return nil
	}
	m.pins[l] = nil
	m.state[l] = Free
	outErr := p.Out(gpio.Low)
	if err := m.claimer.Unclaim(m.names[l], p); err != nil {
		return fmt.Errorf("lines: releasing %s (%s): %w", l, m.names[l], err)
	}
	if outErr != nil {
		return fmt.Errorf("lines: zeroing %s (%s): %w", l, m.names[l], outErr)
	}
	return nil
}

// SetLevel drives line l to v.
func (m *Manager) SetLevel(l Line, v gpio.Level) error {
	if l < Enable || int(l) >= Count {
		return fmt.Errorf("lines: %s out of range", l)
	}
	p := m.pins[l]
	if p == nil {
		return fmt.Errorf("lines: %s: %w", l, ErrNotAcquired)
	}
	return p.Out(v)
}

// State returns the acquisition state of l.
func (m *Manager) State(l Line) State {
	return m.state[l]
}

// Held returns the number of lines currently held.
func (m *Manager) Held() int {
	n := 0
	for _, p := range m.pins {
		if p != nil {
			n++
		}
	}
	return n
}

func (m *Manager) String() string {
	return fmt.Sprintf("lines.Manager{%d/%d held}", m.Held(), Count)
}
