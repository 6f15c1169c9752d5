// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package busserver

import "testing"

func TestFakeBusRequestNameRejectsSecondCaller(t *testing.T) {
	bus := NewFakeBus()
	if err := bus.RequestName("org.freedesktop.GeoClue2"); err != nil {
		t.Fatalf("RequestName() error = %v", err)
	}
	if err := bus.RequestName("org.freedesktop.GeoClue2"); err == nil {
		t.Fatal("expected a second RequestName to fail")
	}
	if got := bus.Name(); got != "org.freedesktop.GeoClue2" {
		t.Errorf("Name() = %q", got)
	}
}

func TestFakeBusExportUnexport(t *testing.T) {
	bus := NewFakeBus()
	type dummy struct{}
	obj := &dummy{}

	if err := bus.Export(obj, "/a/b", "some.Interface"); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	got, ok := bus.Object("/a/b", "some.Interface")
	if !ok || got != obj {
		t.Fatalf("Object() = (%v, %v), want the exported object", got, ok)
	}

	if err := bus.Unexport("/a/b", "some.Interface"); err != nil {
		t.Fatalf("Unexport() error = %v", err)
	}
	if _, ok := bus.Object("/a/b", "some.Interface"); ok {
		t.Error("expected object gone after Unexport")
	}
}

func TestFakeBusProperties(t *testing.T) {
	bus := NewFakeBus()
	value := "initial"
	props := PropMap{
		"Name": {
			Get: func() (any, error) { return value, nil },
			Set: func(sender Sender, v any) *Error {
				s, ok := v.(string)
				if !ok {
					return NewError(ErrNameNotSupported)
				}
				value = s
				return nil
			},
		},
		"ReadOnly": {Get: func() (any, error) { return 42, nil }},
	}
	if err := bus.ExportProperties("/a", "some.Interface", props); err != nil {
		t.Fatalf("ExportProperties() error = %v", err)
	}

	got, err := bus.GetProperty("/a", "Name")
	if err != nil || got != "initial" {
		t.Fatalf("GetProperty(Name) = (%v, %v)", got, err)
	}

	if err := bus.SetProperty("/a", "Name", ":1.1", "updated"); err != nil {
		t.Fatalf("SetProperty(Name) error = %v", err)
	}
	got, _ = bus.GetProperty("/a", "Name")
	if got != "updated" {
		t.Errorf("GetProperty(Name) after Set = %v, want %q", got, "updated")
	}

	if err := bus.SetProperty("/a", "ReadOnly", ":1.1", 1); err == nil {
		t.Error("expected SetProperty on a read-only property to fail")
	}

	bus.UnexportProperties("/a")
	if _, err := bus.GetProperty("/a", "Name"); err == nil {
		t.Error("expected GetProperty to fail after UnexportProperties")
	}
}

func TestFakeBusEmitSignalRecordsDestination(t *testing.T) {
	bus := NewFakeBus()
	if err := bus.EmitSignal("/a", "some.Interface", "Changed", ":1.1", 1, 2); err != nil {
		t.Fatalf("EmitSignal() error = %v", err)
	}
	signals := bus.Signals()
	if len(signals) != 1 {
		t.Fatalf("len(Signals()) = %d, want 1", len(signals))
	}
	sig := signals[0]
	if sig.Name != "Changed" || sig.Destination != ":1.1" || len(sig.Args) != 2 {
		t.Errorf("unexpected recorded signal: %+v", sig)
	}
}

func TestFakeBusPeerUIDDeterministic(t *testing.T) {
	bus := NewFakeBus()
	a, err := bus.PeerUID(":1.1")
	if err != nil {
		t.Fatalf("PeerUID() error = %v", err)
	}
	b, _ := bus.PeerUID(":1.1")
	if a != b {
		t.Errorf("PeerUID not deterministic: %v != %v", a, b)
	}
	c, _ := bus.PeerUID(":1.2")
	if a == c {
		t.Error("expected distinct peers to resolve to distinct UIDs")
	}
}
