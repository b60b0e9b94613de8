// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package hd44780 bit-bangs the Hitachi HD44780 parallel interface over the
// ten lines managed by package lines.
//
// Every transaction sets the register-select line (command or data), drives
// the eight data lines with the byte, least significant bit on Data0, and
// pulses the enable line. The controller latches on the falling edge.
//
// The R/W line is expected to be tied to ground, so the busy flag cannot be
// polled. Fixed delays after each command and character stand in for it.
//
// # Datasheet
//
// https://www.sparkfun.com/datasheets/LCD/HD44780.pdf
package hd44780

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/gpio"

	"github.com/GermanBionicSystems/lcd16x2/lines"
)

type writeMode bool

const (
	modeCommand writeMode = false
	modeData    writeMode = true
)

// Instructions. The low bits of each are flags described next to it.
const (
	// ClearDisplay blanks DDRAM and moves the cursor to the first position.
	ClearDisplay byte = 0x01
	ReturnHome   byte = 0x02
	EntryMode    byte = 0x04 // 0x02 increment, 0x01 shift display
	Control      byte = 0x08 // 0x04 display on, 0x02 cursor, 0x01 blink
	Shift        byte = 0x10 // 0x08 display (else cursor), 0x04 right
	FunctionSet  byte = 0x20 // 0x10 8-bit bus, 0x08 two lines, 0x04 5x10 font
	SetCGRAM     byte = 0x40
	SetDDRAM     byte = 0x80

	controlDisplayOn byte = 0x04
	controlCursorOn  byte = 0x02
	controlBlinkOn   byte = 0x01

	function8Bit     byte = 0x10
	functionTwoLines byte = 0x08
)

// Opts holds the geometry and timing of a display.
type Opts struct {
	Rows, Cols int
	// Settle is how long enable is held high. 5µs is plenty for the
	// controller; slow GPIO paths may want more.
	Settle time.Duration
	// CommandDelay is waited after each instruction. Clear and home take
	// 1.52ms on a 270kHz controller.
	CommandDelay time.Duration
	// CharacterDelay is waited after each character (37µs nominal).
	CharacterDelay time.Duration
}

// DefaultOpts is a 16x2 display on a fast GPIO path.
var DefaultOpts = Opts{
	Rows:           2,
	Cols:           16,
	Settle:         5 * time.Microsecond,
	CommandDelay:   2 * time.Millisecond,
	CharacterDelay: 50 * time.Microsecond,
}

// Bus drives one line of the parallel interface.
//
// *lines.Manager implements it.
type Bus interface {
	SetLevel(l lines.Line, v gpio.Level) error
}

// Engine speaks the HD44780 instruction set over a Bus.
//
// Engine holds no lock. Transactions from concurrent callers interleave at
// the line level and garble the display.
type Engine struct {
	bus     Bus
	opts    Opts
	control byte
}

// New returns an Engine over bus. A nil opts means DefaultOpts.
//
// The display is not touched until Init.
func New(bus Bus, opts *Opts) *Engine {
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	return &Engine{bus: bus, opts: o, control: Control | controlDisplayOn | controlCursorOn}
}

// Init configures the controller: 8-bit bus with the line count matching
// Rows, display on with an underline cursor, then clear.
//
// It must run once after the lines are acquired and before any SendData.
func (e *Engine) Init() error {
	fn := FunctionSet | function8Bit
	if e.opts.Rows > 1 {
		fn |= functionTwoLines
	}
	for _, cmd := range []byte{fn, e.control, ClearDisplay} {
		if err := e.SendCommand(cmd); err != nil {
			return fmt.Errorf("hd44780: init: %w", err)
		}
	}
	return nil
}

// PulseEnable raises enable, holds it for the settle interval, and lowers
// it. The falling edge latches the byte on the data lines.
func (e *Engine) PulseEnable() error {
	if err := e.bus.SetLevel(lines.Enable, gpio.High); err != nil {
		return err
	}
	wait(e.opts.Settle)
	return e.bus.SetLevel(lines.Enable, gpio.Low)
}

// SendCommand latches b as an instruction.
func (e *Engine) SendCommand(b byte) error {
	if err := e.transact(modeCommand, b); err != nil {
		return err
	}
	wait(e.opts.CommandDelay)
	return nil
}

// SendData latches b as a character code at the cursor.
func (e *Engine) SendData(b byte) error {
	if err := e.transact(modeData, b); err != nil {
		return err
	}
	wait(e.opts.CharacterDelay)
	return nil
}

func (e *Engine) transact(mode writeMode, b byte) error {
	if err := e.bus.SetLevel(lines.RegisterSelect, gpio.Level(mode)); err != nil {
		return err
	}
	for bit := 0; bit < 8; bit++ {
		if err := e.bus.SetLevel(lines.DataLine(bit), gpio.Level(b&(1<<bit) != 0)); err != nil {
			return err
		}
	}
	return e.PulseEnable()
}

// Clears the screen and moves the cursor to the first position.
func (e *Engine) Clear() error {
	return e.SendCommand(ClearDisplay)
}

// Move the cursor home without clearing.
func (e *Engine) Home() error {
	return e.SendCommand(ReturnHome)
}

// Return the number of rows the display supports.
func (e *Engine) Rows() int {
	return e.opts.Rows
}

// Return the number of columns the display supports.
func (e *Engine) Cols() int {
	return e.opts.Cols
}

// MoveTo moves the cursor to row, col. Both start at 1.
func (e *Engine) MoveTo(row, col int) error {
	if row < 1 || row > e.opts.Rows || col < 1 || col > e.opts.Cols {
		return fmt.Errorf("hd44780: MoveTo(%d,%d) value out of range", row, col)
	}
	return e.SendCommand(SetDDRAM | (getRowConstant(row, e.opts.Cols) + byte(col-1)))
}

// Display turns the display on or off, keeping the cursor settings.
func (e *Engine) Display(on bool) error {
	if on {
		e.control |= controlDisplayOn
	} else {
		e.control &^= controlDisplayOn
	}
	return e.SendCommand(e.control)
}

// Cursor sets the cursor mode. Modes combine: Cursor(CursorUnderline,
// CursorBlink).
func (e *Engine) Cursor(modes ...display.CursorMode) error {
	val := e.control & controlDisplayOn
	for _, mode := range modes {
		switch mode {
		case display.CursorOff:
			val &^= controlCursorOn | controlBlinkOn
		case display.CursorUnderline:
			val |= controlCursorOn
		case display.CursorBlock, display.CursorBlink:
			val |= controlBlinkOn
		default:
			return fmt.Errorf("hd44780: unexpected cursor: %d", mode)
		}
	}
	e.control = Control | val
	return e.SendCommand(e.control)
}

// WriteString sends every byte of text as character data at the cursor.
func (e *Engine) WriteString(text string) (int, error) {
	for i := 0; i < len(text); i++ {
		if err := e.SendData(text[i]); err != nil {
			return i, err
		}
	}
	return len(text), nil
}

func (e *Engine) String() string {
	return fmt.Sprintf("HD44780 - Rows: %d, Cols: %d", e.opts.Rows, e.opts.Cols)
}

var rowConstants = [][]byte{{0, 0, 64, 16, 80}, {0, 0, 64, 20, 84}}

// Return the DDRAM offset of the first column of row.
func getRowConstant(row, maxcols int) byte {
	var offset int
	if maxcols != 16 {
		offset = 1
	}
	return rowConstants[offset][row]
}

func wait(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
