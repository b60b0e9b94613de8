// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package lcd16x2 drives a 16x2 HD44780 character display wired to ten GPIO
// lines and exposes it as a writable device node.
//
// The packages stack up as follows:
//
//	lines     exclusive ownership of the enable, register-select and data lines
//	hd44780   the 8-bit parallel protocol on top of them
//	chardev   file operations and the driver lifecycle
//	devnode   the device node, served as a FIFO
//	lcdsim    an emulated controller for tests and -simulate
//	lcdview   terminal and HTTP mirrors of the emulated screen
//	config    YAML configuration
//
// cmd/lcd16x2d puts them together.
package lcd16x2
