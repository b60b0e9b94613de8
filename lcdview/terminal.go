// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package lcdview mirrors the content of an emulated character display.
//
// Terminal draws it on the console with ANSI color codes, Panel renders it
// into an image, and Stream serves those images to HTTP clients as an
// "MJPEG" stream that updates on every change. All of them consume
// lcdsim.Snapshot values, typically from lcdsim.Controller.OnChange.
package lcdview

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"slices"
	"sync"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"

	"github.com/GermanBionicSystems/lcd16x2/lcdsim"
)

// TerminalOpts represents the options of a Terminal.
type TerminalOpts struct {
	// W defaults to a color capable stdout.
	W       io.Writer
	Palette *ansi256.Palette
	// Bezel is the frame color. Defaults to the usual green backlight.
	Bezel color.Color

	_ struct{}
}

// Terminal draws the display in place on the console.
type Terminal struct {
	w       io.Writer
	palette ansi256.Palette
	bezel   color.NRGBA

	mu    sync.Mutex
	buf   bytes.Buffer
	last  lcdsim.Snapshot
	drawn int
}

// NewTerminal returns a Terminal. Nothing is drawn until Update.
func NewTerminal(opts *TerminalOpts) *Terminal {
	t := &Terminal{w: opts.W, bezel: color.NRGBA{0x30, 0x80, 0x30, 255}}
	if t.w == nil {
		t.w = colorable.NewColorableStdout()
	}
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	t.palette = *p
	if opts.Bezel != nil {
		t.bezel = color.NRGBAModel.Convert(opts.Bezel).(color.NRGBA)
	}
	return t
}

func (t *Terminal) String() string {
	return "Terminal"
}

// Update redraws the display when s differs from the last drawing. The
// previous drawing is overwritten.
func (t *Terminal) Update(s lcdsim.Snapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.drawn != 0 && sameScreen(t.last, s) {
		return nil
	}
	t.buf.Reset()
	if t.drawn != 0 {
		fmt.Fprintf(&t.buf, "\033[%dA\r", t.drawn)
	}
	cols := 0
	for _, r := range s.Rows {
		cols = max(cols, len(r))
	}
	edge := t.palette.Block(t.bezel)
	border := func() {
		for i := 0; i < cols+2; i++ {
			t.buf.WriteString(edge)
		}
		t.buf.WriteString("\033[0m\n")
	}
	border()
	for row, r := range s.Rows {
		t.buf.WriteString(edge)
		t.buf.WriteString("\033[0m")
		for col := 0; col < len(r); col++ {
			c := byte(' ')
			if s.DisplayOn {
				c = printable(r[col])
			}
			if s.DisplayOn && s.Cursor && s.Row == row && s.Col == col {
				// Underline.
				fmt.Fprintf(&t.buf, "\033[4m%c\033[24m", c)
				continue
			}
			t.buf.WriteByte(c)
		}
		t.buf.WriteString(edge)
		t.buf.WriteString("\033[0m\n")
	}
	border()
	t.drawn = len(s.Rows) + 2
	t.last = s
	t.last.Rows = slices.Clone(s.Rows)
	_, err := t.buf.WriteTo(t.w)
	return err
}

// Halt resets the console colors.
func (t *Terminal) Halt() error {
	_, err := io.WriteString(t.w, "\033[0m")
	return err
}

// printable maps the character ROM codes without an ASCII twin to '.'.
func printable(c byte) byte {
	switch {
	case c < 0x20, c > 0x7d, c == 0x5c:
		// 0x5c is a yen sign on the A00 ROM.
		return '.'
	}
	return c
}

func sameScreen(a, b lcdsim.Snapshot) bool {
	return slices.Equal(a.Rows, b.Rows) && a.DisplayOn == b.DisplayOn &&
		a.Cursor == b.Cursor && a.Blink == b.Blink && a.Row == b.Row && a.Col == b.Col
}
