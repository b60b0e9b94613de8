// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// lcd16x2d drives a 16x2 HD44780 display wired to ten GPIO lines and
// exposes it as a device node. Whatever is written to the node is shown:
//
//	lcd16x2d serve &
//	echo -n HELLO > /dev/device_LCD
//	lcd16x2d write "Café"
//
// Wiring (defaults, see package config):
//
//	LCD        Raspberry Pi
//	E          GPIO3
//	RS         GPIO2
//	D0-D7      GPIO4, 17, 27, 22, 10, 9, 11, 5
//	R/W        GND
//
// With serve --simulate the display is emulated; --terminal and --http
// mirror it.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
