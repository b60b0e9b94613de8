// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lines_test

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/gpio"

	"github.com/GermanBionicSystems/lcd16x2/lcdsim"
	"github.com/GermanBionicSystems/lcd16x2/lines"
)

func Example() {
	set := lines.DefaultSet
	set.Enable = "GPIO21"

	// lines.NewRegistry() hands out the host's pins once periph is
	// initialized.
	sim := lcdsim.New(2, 16)
	m, err := lines.New(set, sim.Claimer(set))
	if err != nil {
		log.Fatal(err)
	}
	if err := m.AcquireAll(); err != nil {
		log.Fatal(err)
	}
	if err := m.SetLevel(lines.DataLine(3), gpio.High); err != nil {
		log.Fatal(err)
	}
	fmt.Println(m.Held(), sim.Level(lines.Data3))
	if err := m.ReleaseAll(); err != nil {
		log.Fatal(err)
	}
	fmt.Println(m.Held(), m.State(lines.Enable))
	// Output:
	// 10 High
	// 0 free
}
