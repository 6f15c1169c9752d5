// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kkyr/fig"
)

const configEnv = "GEOCLUED"

// DefaultBusName is the well-known name geoclued acquires, matching
// the upstream GeoClue2 name so existing clients need no changes.
const DefaultBusName = "org.freedesktop.GeoClue2"

// Config is geoclued's full runtime configuration.
type Config struct {
	BusName     string        `fig:"bus_name" default:"org.freedesktop.GeoClue2"`
	LogLevel    slog.Level    `fig:"loglevel" default:"0"`
	IdleTimeout time.Duration `fig:"idle_timeout" default:"5s"`

	Wifi struct {
		URL        string `fig:"url" default:"https://location.services.mozilla.com/v1/geolocate?key=geoclued"`
		SubmitURL  string `fig:"submit_url"`
		SubmitNick string `fig:"submit_nick"`
	} `fig:"wifi"`

	Cell struct {
		OpenCellIDURL string `fig:"opencellid_url" default:"https://opencellid.org/cell/get"`
		APIKey        string `fig:"apikey"`
	} `fig:"cell"`

	// IP configures the last-resort freegeoip-compatible geoip source
	// (gclue-ipclient.c's auto-detect mode), distinct from Wifi's
	// Mozilla-shaped CITY-bucket fallback.
	IP struct {
		URL string `fig:"url" default:"https://api.freegeoip.app/json/"`
	} `fig:"ip"`

	// MaxAccuracy caps RequestedAccuracyLevel per desktop-id, keyed by
	// the desktop id string, value is an AccuracyLevel name (§4.2).
	MaxAccuracy map[string]string `fig:"max_accuracy"`

	// Disabled denies a desktop-id outright, regardless of requested
	// accuracy: the peer's DesktopId write is rejected and its client
	// disposed; GetClient itself does not consult it
	// (gclue-user-config.c's allow/deny shape).
	Disabled map[string]bool `fig:"disabled"`
}

// NewFromFile loads configuration from path/file, falling back to
// defaults plus GEOCLUED_* environment overrides for anything unset.
func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	if _, err := os.Stat(filepath.Join(path, file)); err != nil {
		return conf, fmt.Errorf("failed to read config: %w", err)
	}
	if err := fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load config: %w", err)
	}
	return conf, conf.Validate()
}

// New loads configuration purely from defaults plus GEOCLUED_* environment overrides.
func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load config: %w", err)
	}
	return conf, conf.Validate()
}

// Validate rejects configuration that would make the service
// unable to start or behave unpredictably.
func (c *Config) Validate() error {
	if c.BusName == "" {
		return fmt.Errorf("bus name must not be empty")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive, got %s", c.IdleTimeout)
	}
	return nil
}
