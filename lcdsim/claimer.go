// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lcdsim

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"

	"github.com/GermanBionicSystems/lcd16x2/lines"
)

// Claimer hands out the controller's lines by the names of a lines.Set.
//
// Failures can be injected per name to exercise rollback paths.
type Claimer struct {
	c     *Controller
	names map[string]lines.Line

	mu       sync.Mutex
	held     map[string]*Pin
	failAcq  map[string]error
	failDir  map[string]error
	claims   []string
	releases []string
}

// Claimer returns a lines.Claimer wiring set to the controller.
func (c *Controller) Claimer(set lines.Set) *Claimer {
	k := &Claimer{
		c:       c,
		names:   make(map[string]lines.Line, lines.Count),
		held:    map[string]*Pin{},
		failAcq: map[string]error{},
		failDir: map[string]error{},
	}
	for i, name := range set.Names() {
		k.names[name] = lines.Line(i)
	}
	return k
}

// FailClaim makes claiming name fail with err.
func (k *Claimer) FailClaim(name string, err error) {
	k.mu.Lock()
	k.failAcq[name] = err
	k.mu.Unlock()
}

// FailDirection makes every Out on name fail with err once claimed.
func (k *Claimer) FailDirection(name string, err error) {
	k.mu.Lock()
	k.failDir[name] = err
	k.mu.Unlock()
}

// Claim implements lines.Claimer.
func (k *Claimer) Claim(name string) (gpio.PinOut, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.claims = append(k.claims, name)
	if err := k.failAcq[name]; err != nil {
		return nil, err
	}
	l, ok := k.names[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, lines.ErrNotFound)
	}
	if _, ok := k.held[name]; ok {
		return nil, fmt.Errorf("%q: %w", name, lines.ErrBusy)
	}
	p := &Pin{c: k.c, line: l, name: name, fail: k.failDir[name]}
	k.held[name] = p
	return p, nil
}

// Unclaim implements lines.Claimer.
func (k *Claimer) Unclaim(name string, p gpio.PinOut) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.held[name]; !ok {
		return fmt.Errorf("%q: %w", name, lines.ErrNotClaimed)
	}
	delete(k.held, name)
	k.releases = append(k.releases, name)
	return nil
}

// Claims returns every name passed to Claim, in order.
func (k *Claimer) Claims() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.claims...)
}

// Releases returns every name successfully unclaimed, in order.
func (k *Claimer) Releases() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.releases...)
}

// Held returns the number of lines currently claimed.
func (k *Claimer) Held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.held)
}

var _ lines.Claimer = &Claimer{}
