// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lines

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Registry is a Claimer over the periph.io GPIO registry.
//
// gpioreg has no notion of ownership, so Registry keeps its own. Two names
// resolving to the same pin (an alias and its target) are one line.
// host.Init must have been called for real pins to be found.
type Registry struct {
	mu    sync.Mutex
	owned map[string]string // real pin name -> claimed name

	// byName defaults to gpioreg.ByName.
	byName func(string) gpio.PinIO
}

// NewRegistry returns a Registry with no line claimed.
func NewRegistry() *Registry {
	return &Registry{owned: map[string]string{}, byName: gpioreg.ByName}
}

// Claim implements Claimer.
func (r *Registry) Claim(name string) (gpio.PinOut, error) {
	p := r.byName(name)
	if p == nil {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	key := realName(p)
	r.mu.Lock()
	defer r.mu.Unlock()
	if by, ok := r.owned[key]; ok {
		return nil, fmt.Errorf("%q held as %q: %w", key, by, ErrBusy)
	}
	r.owned[key] = name
	return p, nil
}

// Unclaim implements Claimer. It halts the pin.
func (r *Registry) Unclaim(name string, p gpio.PinOut) error {
	key := realName(p)
	r.mu.Lock()
	if _, ok := r.owned[key]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%q: %w", name, ErrNotClaimed)
	}
	delete(r.owned, key)
	r.mu.Unlock()
	return p.Halt()
}

// realName returns the name of the pin behind an alias.
func realName(p gpio.PinOut) string {
	if r, ok := p.(gpio.RealPin); ok {
		return r.Real().Name()
	}
	return p.Name()
}

var _ Claimer = (*Registry)(nil)
