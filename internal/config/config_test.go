// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	const (
		expectBusName     = DefaultBusName
		expectLogLevel    = slog.LevelInfo
		expectIdleTimeout = 5 * time.Second
	)
	t.Run("new config with all defaults set", func(t *testing.T) {
		conf, err := New()
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if conf.BusName != expectBusName {
			t.Errorf("expected bus name to be: %s, got %s", expectBusName, conf.BusName)
		}
		if conf.LogLevel != expectLogLevel {
			t.Errorf("expected log level to be: %s, got %s", expectLogLevel, conf.LogLevel)
		}
		if conf.IdleTimeout != expectIdleTimeout {
			t.Errorf("expected idle timeout to be: %s, got %s", expectIdleTimeout, conf.IdleTimeout)
		}
	})
	t.Run("env override changes bus name", func(t *testing.T) {
		t.Setenv("GEOCLUED_BUS_NAME", "org.example.GeoClue2")
		conf, err := New()
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if conf.BusName != "org.example.GeoClue2" {
			t.Errorf("expected overridden bus name, got %s", conf.BusName)
		}
	})
	t.Run("new config with invalid values from env", func(t *testing.T) {
		t.Setenv("GEOCLUED_LOGLEVEL", "invalid")
		_, err := New()
		if err == nil {
			t.Error("expected config to fail, but didn't")
		}
	})
	t.Run("config validate idle timeout", func(t *testing.T) {
		t.Setenv("GEOCLUED_IDLE_TIMEOUT", "0s")
		_, err := New()
		if err == nil {
			t.Error("expected config to fail, but didn't")
		}
	})
	t.Run("config validate bus name", func(t *testing.T) {
		t.Setenv("GEOCLUED_BUS_NAME", "")
		_, err := New()
		if err == nil {
			t.Error("expected config to fail, but didn't")
		}
	})
}

func TestNewFromFile(t *testing.T) {
	t.Run("reading config from non-existent file fails", func(t *testing.T) {
		_, err := NewFromFile("../../etc", "non-existent.toml")
		if err == nil {
			t.Error("expected config to fail, but didn't")
		}
	})
}
