// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"context"
	"sync"
)

// Locator composes WifiSource, CellSource and ModemGpsSource children
// into a single best estimate, capped by a requested accuracy and
// gated by the §4.8 merge rule. It is itself a LocationSource so a
// ClientService can subscribe to it uniformly.
type Locator struct {
	baseSource

	children []LocationSource

	mu             sync.Mutex
	cap            AccuracyLevel
	activeChildren map[string]func()
	childCancel    map[string]context.CancelFunc
}

// NewLocator constructs a Locator over children, capped at requestedCap
// (already coerced by CoerceRequestedLevel by the caller).
func NewLocator(name string, requestedCap AccuracyLevel, children ...LocationSource) *Locator {
	l := &Locator{
		children:       children,
		cap:            requestedCap,
		activeChildren: make(map[string]func()),
		childCancel:    make(map[string]context.CancelFunc),
	}
	l.baseSource = newBaseSource(name, mergeRule)
	return l
}

// mergeRule implements §4.8: reject a candidate iff it falls inside the
// current fix's confidence circle and is itself less accurate.
func mergeRule(current, candidate *Location) bool {
	curAcc, curOK := current.AccuracyMeters()
	candAcc, candOK := candidate.AccuracyMeters()
	if !curOK || !candOK {
		return true
	}
	distance := current.DistanceMeters(candidate)
	if distance < candAcc && candAcc > curAcc {
		return false
	}
	return true
}

// Cap returns the locator's current accuracy budget.
func (l *Locator) Cap() AccuracyLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cap
}

// SetCap reconfigures the accuracy budget — e.g. in response to the
// peer writing RequestedAccuracyLevel, or a config max-accuracy-level
// clamp — and re-evaluates which children fall within the new range.
// A no-op deactivation/activation pass runs even while stopped; it
// only has an observable effect once Start is called.
func (l *Locator) SetCap(cap AccuracyLevel) {
	l.mu.Lock()
	l.cap = cap
	l.mu.Unlock()
	l.reevaluateChildren()
}

// AvailableAccuracyLevel is the max over children of their own
// AvailableAccuracyLevel.
func (l *Locator) AvailableAccuracyLevel() AccuracyLevel {
	best := AccuracyNone
	for _, c := range l.children {
		if lvl := c.AvailableAccuracyLevel(); lvl > best {
			best = lvl
		}
	}
	return best
}

// Start activates every child whose available accuracy is within
// (NONE, cap], and watches for further availability changes by
// re-evaluating on every location update from every child (cheap,
// since children only publish on real change).
func (l *Locator) Start() bool {
	if !l.start() {
		return false
	}
	for _, child := range l.children {
		l.maybeActivate(child)
	}
	return true
}

// Stop unsubscribes from and stops every active child without
// destroying them; they are singletons that may still serve other
// Locators.
func (l *Locator) Stop() bool {
	if !l.stop() {
		return false
	}
	l.mu.Lock()
	unsubs := l.activeChildren
	cancels := l.childCancel
	l.activeChildren = make(map[string]func())
	l.childCancel = make(map[string]context.CancelFunc)
	l.mu.Unlock()

	for name, unsub := range unsubs {
		unsub()
		if cancel, ok := cancels[name]; ok {
			cancel()
		}
	}
	for _, child := range l.children {
		if _, ok := unsubs[child.Name()]; ok {
			child.Stop()
		}
	}
	return true
}

// maybeActivate subscribes to and starts child if its available
// accuracy falls within (NONE, cap] and it is not already active under
// this Locator; it unsubscribes from and stops the child if its
// accuracy has fallen out of range.
func (l *Locator) maybeActivate(child LocationSource) {
	lvl := child.AvailableAccuracyLevel()

	l.mu.Lock()
	cap := l.cap
	_, active := l.activeChildren[child.Name()]
	l.mu.Unlock()
	inRange := lvl > AccuracyNone && lvl <= cap

	switch {
	case inRange && !active:
		ch, unsub := child.Subscribe()
		ctx, cancel := context.WithCancel(context.Background())
		l.mu.Lock()
		l.activeChildren[child.Name()] = unsub
		l.childCancel[child.Name()] = cancel
		l.mu.Unlock()
		child.Start()
		go l.watchChild(ctx, ch)
	case !inRange && active:
		l.mu.Lock()
		unsub := l.activeChildren[child.Name()]
		cancel := l.childCancel[child.Name()]
		delete(l.activeChildren, child.Name())
		delete(l.childCancel, child.Name())
		l.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if unsub != nil {
			unsub()
		}
		child.Stop()
	}
}

func (l *Locator) watchChild(ctx context.Context, ch <-chan *Location) {
	for {
		select {
		case <-ctx.Done():
			return
		case loc, ok := <-ch:
			if !ok {
				return
			}
			l.setLocation(loc)
			l.reevaluateChildren()
		}
	}
}

func (l *Locator) reevaluateChildren() {
	if !l.Active() {
		return
	}
	for _, child := range l.children {
		l.maybeActivate(child)
	}
}
