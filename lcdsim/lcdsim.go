// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package lcdsim emulates an HD44780 controller wired to ten GPIO lines.
//
// The Controller exposes one gpio.PinOut per line. Driving them the way the
// real bus is driven (register-select, data lines, enable pulse) latches a
// transaction on the falling edge of enable, which updates the emulated
// display RAM. It is useful to run the driver without hardware and as a test
// double that checks what actually reached the controller.
package lcdsim

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/lcd16x2/lines"
)

const (
	ddramSize = 80
	lineWidth = 40 // DDRAM per line in two line mode
)

// Latch is one transaction as sampled on the enable falling edge.
type Latch struct {
	Command bool // register-select was low
	Data    [8]gpio.Level
	Value   byte
}

func (l Latch) String() string {
	if l.Command {
		return fmt.Sprintf("cmd:%#02x", l.Value)
	}
	return fmt.Sprintf("data:%q", l.Value)
}

// Snapshot is the visible state of the display.
type Snapshot struct {
	Rows      []string
	DisplayOn bool
	Cursor    bool
	Blink     bool
	// Cursor position, 0 based. Row is -1 when the address is off screen.
	Row, Col int
}

// Controller is an emulated HD44780. The zero value is not usable, call New.
type Controller struct {
	rows, cols int

	mu        sync.Mutex
	levels    [lines.Count]gpio.Level
	ddram     [ddramSize]byte
	addr      byte
	increment bool
	displayOn bool
	cursor    bool
	blink     bool
	twoLine   bool
	eightBit  bool
	latches   []Latch
	hooks     []func(Snapshot)
}

// New returns a controller in its power-on state: blank, display off,
// one line, increment mode. At most 4 rows are emulated.
func New(rows, cols int) *Controller {
	rows = min(max(rows, 1), 4)
	c := &Controller{rows: rows, cols: cols, increment: true, eightBit: true}
	c.clearLocked()
	return c
}

// OnChange registers f to be called with a snapshot after every latched
// transaction. f runs on the goroutine that drove the enable line.
func (c *Controller) OnChange(f func(Snapshot)) {
	c.mu.Lock()
	c.hooks = append(c.hooks, f)
	c.mu.Unlock()
}

// Latches returns a copy of every transaction latched so far.
func (c *Controller) Latches() []Latch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Latch(nil), c.latches...)
}

// ResetLatches forgets the recorded transactions. Display state is kept.
func (c *Controller) ResetLatches() {
	c.mu.Lock()
	c.latches = nil
	c.mu.Unlock()
}

// Level returns the level the driver last put on l.
func (c *Controller) Level(l lines.Line) gpio.Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.levels[l]
}

// Text returns the visible rows.
func (c *Controller) Text() []string {
	return c.Snapshot().Rows
}

// Snapshot returns the visible state of the display.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) String() string {
	return fmt.Sprintf("lcdsim{%dx%d}", c.cols, c.rows)
}

func (c *Controller) drive(l lines.Line, v gpio.Level) {
	c.mu.Lock()
	prev := c.levels[l]
	c.levels[l] = v
	if l != lines.Enable || prev != gpio.High || v != gpio.Low {
		c.mu.Unlock()
		return
	}
	latch := Latch{Command: c.levels[lines.RegisterSelect] == gpio.Low}
	for bit := range latch.Data {
		latch.Data[bit] = c.levels[lines.DataLine(bit)]
		if latch.Data[bit] {
			latch.Value |= 1 << bit
		}
	}
	c.latches = append(c.latches, latch)
	if latch.Command {
		c.instructionLocked(latch.Value)
	} else {
		c.ddram[c.index(c.addr)] = latch.Value
		c.advanceLocked(c.increment)
	}
	snap := c.snapshotLocked()
	hooks := c.hooks
	c.mu.Unlock()

	for _, f := range hooks {
		f(snap)
	}
}

func (c *Controller) instructionLocked(b byte) {
	switch {
	case b&0x80 != 0:
		c.addr = b & 0x7f
	case b&0x40 != 0:
		// CGRAM address; custom glyphs are not emulated.
	case b&0x20 != 0:
		c.eightBit = b&0x10 != 0
		c.twoLine = b&0x08 != 0
	case b&0x10 != 0:
		if b&0x08 == 0 {
			c.advanceLocked(b&0x04 != 0)
		}
	case b&0x08 != 0:
		c.displayOn = b&0x04 != 0
		c.cursor = b&0x02 != 0
		c.blink = b&0x01 != 0
	case b&0x04 != 0:
		c.increment = b&0x02 != 0
	case b&0x02 != 0:
		c.addr = 0
	case b == 0x01:
		c.clearLocked()
	}
}

func (c *Controller) clearLocked() {
	for i := range c.ddram {
		c.ddram[i] = ' '
	}
	c.addr = 0
	c.increment = true
}

// index maps a DDRAM address to a slot in c.ddram.
func (c *Controller) index(addr byte) int {
	if !c.twoLine {
		return int(addr) % ddramSize
	}
	if addr >= 0x40 {
		return lineWidth + int(addr-0x40)%lineWidth
	}
	return int(addr) % lineWidth
}

func (c *Controller) advanceLocked(forward bool) {
	if !c.twoLine {
		if forward {
			c.addr = (c.addr + 1) % ddramSize
		} else {
			c.addr = (c.addr + ddramSize - 1) % ddramSize
		}
		return
	}
	switch {
	case forward && c.addr == 0x27:
		c.addr = 0x40
	case forward && c.addr >= 0x67:
		c.addr = 0
	case forward:
		c.addr++
	case c.addr == 0x40:
		c.addr = 0x27
	case c.addr == 0:
		c.addr = 0x67
	default:
		c.addr--
	}
}

// rowBase returns the DDRAM address of the first column of row (0 based).
func (c *Controller) rowBase(row int) byte {
	return [...]byte{0x00, 0x40, byte(c.cols), 0x40 + byte(c.cols)}[row]
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Rows:      make([]string, c.rows),
		DisplayOn: c.displayOn,
		Cursor:    c.cursor,
		Blink:     c.blink,
		Row:       -1,
	}
	var b strings.Builder
	for row := range s.Rows {
		b.Reset()
		base := c.rowBase(row)
		for col := 0; col < c.cols; col++ {
			if !c.twoLine && row%2 == 1 {
				b.WriteByte(' ')
				continue
			}
			addr := base + byte(col)
			if addr == c.addr {
				s.Row, s.Col = row, col
			}
			b.WriteByte(c.ddram[c.index(addr)])
		}
		s.Rows[row] = b.String()
	}
	return s
}

// Pin is one emulated line. It implements gpio.PinOut.
type Pin struct {
	c    *Controller
	line lines.Line
	name string
	fail error
}

func (p *Pin) String() string {
	return fmt.Sprintf("%s(%s)", p.name, p.line)
}

// Halt implements conn.Resource.
func (p *Pin) Halt() error {
	return nil
}

func (p *Pin) Name() string {
	return p.name
}

func (p *Pin) Number() int {
	return int(p.line)
}

// Deprecated: returns "Out"
func (p *Pin) Function() string {
	return "Out"
}

// Out implements gpio.PinOut.
func (p *Pin) Out(l gpio.Level) error {
	if p.fail != nil {
		return p.fail
	}
	p.c.drive(p.line, l)
	return nil
}

// Not implemented.
func (p *Pin) PWM(duty gpio.Duty, f physic.Frequency) error {
	return errors.New("lcdsim: PWM not supported")
}

var _ gpio.PinOut = &Pin{}
