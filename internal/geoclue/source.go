// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import "sync"

// LocationSource is the abstract contract every concrete source (and
// the Locator itself, which composes them) satisfies. Start/Stop are
// idempotent and report whether a state transition actually happened;
// Location and AvailableAccuracyLevel are observable properties.
type LocationSource interface {
	Name() string
	Start() bool
	Stop() bool
	Active() bool
	Location() *Location
	AvailableAccuracyLevel() AccuracyLevel
	// Subscribe registers for location notifications, delivered in
	// publication order. The returned func unsubscribes; failing to
	// call it leaks the subscription and keeps a singleton source live.
	Subscribe() (<-chan *Location, func())
}

// AccuracyCapper is implemented by a LocationSource whose accuracy
// budget can be reconfigured after construction. Only Locator
// implements it: a ClientService type-asserts its LocationSource
// against this interface to apply a peer's RequestedAccuracyLevel
// write or a config max-accuracy-level clamp.
type AccuracyCapper interface {
	SetCap(AccuracyLevel)
	Cap() AccuracyLevel
}

// mergeChecker decides whether a candidate location supersedes the
// current one. Leaf sources (WifiSource, CellSource, ModemGpsSource)
// have a nil mergeChecker: a source always accepts its own readings.
// Only the Locator installs one, implementing the §4.8 merge rule over
// locations pushed by its children.
type mergeChecker func(current, candidate *Location) bool

// baseSource implements the bookkeeping shared by every LocationSource:
// idempotent start/stop, the observable location and accuracy
// properties, and a non-blocking publish/subscribe fan-out. Concrete
// sources embed it and call setLocation/setAvailableAccuracyLevel from
// their own event handlers.
type baseSource struct {
	name string

	mu                sync.RWMutex
	active            bool
	location          *Location
	availableAccuracy AccuracyLevel
	subscribers       map[chan *Location]struct{}
	merge             mergeChecker
}

func newBaseSource(name string, merge mergeChecker) baseSource {
	return baseSource{
		name:        name,
		subscribers: make(map[chan *Location]struct{}),
		merge:       merge,
	}
}

func (b *baseSource) Name() string { return b.name }

// start is a helper for embedders: it performs the idempotent
// active=true transition and returns whether it happened, so the
// embedder can run its own start-up logic only on a real transition.
func (b *baseSource) start() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active {
		return false
	}
	b.active = true
	return true
}

func (b *baseSource) stop() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return false
	}
	b.active = false
	return true
}

func (b *baseSource) Active() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

func (b *baseSource) Location() *Location {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.location
}

func (b *baseSource) AvailableAccuracyLevel() AccuracyLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.availableAccuracy
}

// setAvailableAccuracyLevel updates the degraded/available accuracy,
// e.g. to NONE when a device or network goes absent.
func (b *baseSource) setAvailableAccuracyLevel(level AccuracyLevel) {
	b.mu.Lock()
	b.availableAccuracy = level
	b.mu.Unlock()
}

// setLocation is the protected publish gate described in §4.3: it is
// always honoured for a source's own readings (merge is nil) and
// subject to the Locator merge rule otherwise. It returns whether the
// candidate was published. Notification happens after the field is
// updated, so a reentrant subscriber reading Location() never sees a
// stale value.
func (b *baseSource) setLocation(candidate *Location) bool {
	b.mu.Lock()
	current := b.location
	if b.merge != nil && current != nil {
		if !b.merge(current, candidate) {
			b.mu.Unlock()
			return false
		}
		// Accepted: derive speed/heading from the location being
		// superseded before it is overwritten, per §4.8. The candidate
		// was already published by the child, so derive on a copy.
		c := *candidate
		candidate = &c
		candidate.SetSpeedFromPrev(current)
		candidate.SetHeadingFromPrev(current)
	}
	b.location = candidate

	subs := make([]chan *Location, 0, len(b.subscribers))
	for ch := range b.subscribers {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- candidate:
		default:
		}
	}
	return true
}

func (b *baseSource) Subscribe() (<-chan *Location, func()) {
	ch := make(chan *Location, 4)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	current := b.location
	b.mu.Unlock()

	if current != nil {
		ch <- current
	}

	unsub := func() {
		b.mu.Lock()
		delete(b.subscribers, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsub
}
