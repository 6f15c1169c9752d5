// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package client

import (
	"sync"

	"github.com/geoclued/geoclued/internal/busserver"
	"github.com/geoclued/geoclued/internal/geoclue"
)

// locationObject is the per-fix RPC object materialised at
// <ClientPath>/Location/<n>. Its fields are refreshed in place for an
// in-place refinement (§4.9), so a peer holding this object path
// always observes the latest refined reading without a new signal.
type locationObject struct {
	path  busserver.ObjectPath
	props *accessControlledProps

	mu  sync.RWMutex
	loc *geoclue.Location
}

func newLocationObject(path busserver.ObjectPath, owner busserver.Sender, loc *geoclue.Location) *locationObject {
	lo := &locationObject{path: path, loc: loc}
	lo.props = newAccessControlledProps(owner, clientInterface+".Location")
	lo.props.define("Latitude", func() any { return lo.snapshot().Latitude }, nil)
	lo.props.define("Longitude", func() any { return lo.snapshot().Longitude }, nil)
	lo.props.define("Accuracy", func() any { v, _ := lo.snapshot().AccuracyMeters(); return v }, nil)
	lo.props.define("Altitude", func() any { return lo.snapshot().Altitude.Value() }, nil)
	lo.props.define("Speed", func() any { return lo.snapshot().Speed.Value() }, nil)
	lo.props.define("Heading", func() any { return lo.snapshot().Heading.Value() }, nil)
	lo.props.define("Description", func() any { return lo.snapshot().Description }, nil)
	lo.props.define("Timestamp", func() any {
		ts := lo.snapshot().Timestamp
		return [2]uint64{uint64(ts.Unix()), uint64(ts.Nanosecond() / 1000)}
	}, nil)
	return lo
}

func (lo *locationObject) snapshot() *geoclue.Location {
	lo.mu.RLock()
	defer lo.mu.RUnlock()
	return lo.loc
}

// refine replaces the published fix in place, without changing object
// identity: the in-place-refinement branch of §4.9 mutates this
// instead of allocating a new locationObject.
func (lo *locationObject) refine(loc *geoclue.Location) {
	lo.mu.Lock()
	lo.loc = loc
	lo.mu.Unlock()
}

// Get/GetAll/Set satisfy org.freedesktop.DBus.Properties, delegated to
// the shared access-controlled property table.
func (lo *locationObject) Get(iface, name string, sender busserver.Sender) (busserver.Variant, *busserver.Error) {
	return lo.props.Get(iface, name, sender)
}

func (lo *locationObject) GetAll(iface string, sender busserver.Sender) (map[string]busserver.Variant, *busserver.Error) {
	return lo.props.GetAll(iface, sender)
}

func (lo *locationObject) Set(iface, name string, value busserver.Variant, sender busserver.Sender) *busserver.Error {
	return lo.props.Set(iface, name, value, sender)
}
