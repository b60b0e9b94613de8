// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hd44780

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/gpio"

	"github.com/GermanBionicSystems/lcd16x2/lcdsim"
	"github.com/GermanBionicSystems/lcd16x2/lines"
)

var testOpts = Opts{Rows: 2, Cols: 16, Settle: time.Microsecond}

func getLCD(t *testing.T) (*Engine, *lcdsim.Controller) {
	t.Helper()
	ctl := lcdsim.New(testOpts.Rows, testOpts.Cols)
	m, err := lines.New(lines.DefaultSet, ctl.Claimer(lines.DefaultSet))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.AcquireAll(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := m.ReleaseAll(); err != nil {
			t.Error(err)
		}
	})
	return New(m, &testOpts), ctl
}

type step struct {
	line  lines.Line
	level gpio.Level
	at    time.Time
}

// recordingBus remembers every SetLevel call.
type recordingBus struct {
	steps []step
	fail  lines.Line
	err   error
}

func (b *recordingBus) SetLevel(l lines.Line, v gpio.Level) error {
	if b.err != nil && l == b.fail {
		return b.err
	}
	b.steps = append(b.steps, step{line: l, level: v, at: time.Now()})
	return nil
}

func latchValues(ls []lcdsim.Latch) string {
	s := make([]string, len(ls))
	for i, l := range ls {
		s[i] = l.String()
	}
	return strings.Join(s, " ")
}

func TestInit(t *testing.T) {
	e, ctl := getLCD(t)
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}
	got := ctl.Latches()
	want := []byte{0x38, 0x0e, 0x01}
	if len(got) != len(want) {
		t.Fatalf("latched %s", latchValues(got))
	}
	for i, l := range got {
		if !l.Command || l.Value != want[i] {
			t.Errorf("latch #%d = %s, want cmd:%#02x", i, l, want[i])
		}
	}
	snap := ctl.Snapshot()
	if !snap.DisplayOn || !snap.Cursor || snap.Blink {
		t.Errorf("display state %+v", snap)
	}
	if snap.Row != 0 || snap.Col != 0 {
		t.Errorf("cursor at %d,%d", snap.Row, snap.Col)
	}
}

func TestInitSingleLine(t *testing.T) {
	bus := &recordingBus{}
	e := New(bus, &Opts{Rows: 1, Cols: 16})
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}
	// The first transaction's data lines carry the function set.
	var fn byte
	for _, s := range bus.steps[1:9] {
		if s.level {
			fn |= 1 << int(s.line-lines.Data0)
		}
	}
	if fn != 0x30 {
		t.Errorf("function set = %#02x, want 0x30", fn)
	}
}

func TestSendDataBitOrder(t *testing.T) {
	e, ctl := getLCD(t)
	if err := e.SendData('A'); err != nil {
		t.Fatal(err)
	}
	// 0x41: bit 0 on line 2 and bit 6 on line 8 are set.
	want := map[lines.Line]gpio.Level{2: gpio.High, 3: gpio.Low, 4: gpio.Low, 5: gpio.Low, 6: gpio.Low, 7: gpio.Low, 8: gpio.High, 9: gpio.Low}
	for l, v := range want {
		if got := ctl.Level(l); got != v {
			t.Errorf("line %d = %s, want %s", int(l), got, v)
		}
	}
	latches := ctl.Latches()
	if len(latches) != 1 {
		t.Fatalf("latched %s", latchValues(latches))
	}
	l := latches[0]
	if l.Command || l.Value != 0x41 {
		t.Errorf("latch = %s", l)
	}
	for bit, v := range l.Data {
		if v != want[lines.DataLine(bit)] {
			t.Errorf("latched bit %d = %s", bit, v)
		}
	}
	if ctl.Level(lines.RegisterSelect) != gpio.High {
		t.Error("register-select not in data mode")
	}
}

func TestTransactionSequence(t *testing.T) {
	bus := &recordingBus{}
	e := New(bus, &Opts{Rows: 2, Cols: 16, Settle: 2 * time.Millisecond})
	if err := e.SendCommand(0x81); err != nil {
		t.Fatal(err)
	}
	if len(bus.steps) != 11 {
		t.Fatalf("%d steps", len(bus.steps))
	}
	if s := bus.steps[0]; s.line != lines.RegisterSelect || s.level != gpio.Low {
		t.Errorf("first step %+v", s)
	}
	for bit := 0; bit < 8; bit++ {
		s := bus.steps[1+bit]
		want := gpio.Level(0x81&(1<<bit) != 0)
		if s.line != lines.DataLine(bit) || s.level != want {
			t.Errorf("step %d = %s:%s, want %s:%s", 1+bit, s.line, s.level, lines.DataLine(bit), want)
		}
	}
	hi, lo := bus.steps[9], bus.steps[10]
	if hi.line != lines.Enable || hi.level != gpio.High || lo.line != lines.Enable || lo.level != gpio.Low {
		t.Errorf("enable pulse %+v %+v", hi, lo)
	}
	if d := lo.at.Sub(hi.at); d < 2*time.Millisecond {
		t.Errorf("enable held %s", d)
	}
}

func TestBusError(t *testing.T) {
	bus := &recordingBus{fail: lines.Enable, err: errors.New("gone")}
	e := New(bus, &testOpts)
	if err := e.SendData('x'); err == nil {
		t.Error("expected error")
	}
	if err := e.Init(); err == nil || !strings.HasPrefix(err.Error(), "hd44780: init") {
		t.Errorf("Init() = %v", err)
	}
}

func TestBasic(t *testing.T) {
	e, ctl := getLCD(t)
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}
	if s := e.String(); s != "HD44780 - Rows: 2, Cols: 16" {
		t.Errorf("String() = %q", s)
	}
	if e.Rows() != 2 || e.Cols() != 16 {
		t.Errorf("geometry %dx%d", e.Cols(), e.Rows())
	}
	if _, err := e.WriteString("1234567890"); err != nil {
		t.Fatal(err)
	}
	if err := e.MoveTo(2, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := e.WriteString("2345678901"); err != nil {
		t.Fatal(err)
	}
	want := []string{"1234567890      ", " 2345678901     "}
	if got := ctl.Text(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("text = %q, want %q", got, want)
	}
	if err := e.Home(); err != nil {
		t.Fatal(err)
	}
	if snap := ctl.Snapshot(); snap.Row != 0 || snap.Col != 0 {
		t.Errorf("Home() left the cursor at %d,%d", snap.Row, snap.Col)
	}
	if err := e.Clear(); err != nil {
		t.Fatal(err)
	}
	if got := ctl.Text(); strings.TrimSpace(strings.Join(got, "")) != "" {
		t.Errorf("Clear() left %q", got)
	}
}

func TestMoveToRange(t *testing.T) {
	e := New(&recordingBus{}, &testOpts)
	for _, rc := range [][2]int{{0, 1}, {3, 1}, {1, 0}, {1, 17}} {
		if err := e.MoveTo(rc[0], rc[1]); err == nil {
			t.Errorf("MoveTo(%d,%d) accepted", rc[0], rc[1])
		}
	}
}

func TestCursorAndDisplay(t *testing.T) {
	e, ctl := getLCD(t)
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}
	if err := e.Cursor(display.CursorUnderline, display.CursorBlink); err != nil {
		t.Fatal(err)
	}
	if snap := ctl.Snapshot(); !snap.Cursor || !snap.Blink || !snap.DisplayOn {
		t.Errorf("after Cursor(underline, blink) %+v", snap)
	}
	if err := e.Cursor(display.CursorOff); err != nil {
		t.Fatal(err)
	}
	if snap := ctl.Snapshot(); snap.Cursor || snap.Blink {
		t.Errorf("after Cursor(off) %+v", snap)
	}
	if err := e.Display(false); err != nil {
		t.Fatal(err)
	}
	if ctl.Snapshot().DisplayOn {
		t.Error("Display(false) left the display on")
	}
	if err := e.Cursor(display.CursorMode(42)); err == nil {
		t.Error("unexpected cursor accepted")
	}
}
