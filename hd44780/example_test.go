// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hd44780_test

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/display"

	"github.com/GermanBionicSystems/lcd16x2/hd44780"
	"github.com/GermanBionicSystems/lcd16x2/lcdsim"
	"github.com/GermanBionicSystems/lcd16x2/lines"
)

// This example drives an emulated controller. On a board, pass
// lines.NewRegistry() as the claimer after host.Init().
func Example() {
	sim := lcdsim.New(2, 16)
	pins, err := lines.New(lines.DefaultSet, sim.Claimer(lines.DefaultSet))
	if err != nil {
		log.Fatal(err)
	}
	if err := pins.AcquireAll(); err != nil {
		log.Fatal(err)
	}
	defer pins.ReleaseAll()

	lcd := hd44780.New(pins, &hd44780.Opts{Rows: 2, Cols: 16})
	if err := lcd.Init(); err != nil {
		log.Fatal(err)
	}
	_, _ = lcd.WriteString("Hello")
	_ = lcd.MoveTo(2, 1)
	_, _ = lcd.WriteString("from periph!")
	_ = lcd.Cursor(display.CursorOff)

	fmt.Println(lcd)
	for _, row := range sim.Text() {
		fmt.Printf("%q\n", row)
	}
	// Output:
	// HD44780 - Rows: 2, Cols: 16
	// "Hello           "
	// "from periph!    "
}
