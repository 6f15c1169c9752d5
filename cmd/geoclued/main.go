// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build linux

// Package main implements the geoclued daemon: a privileged GeoClue2
// arbitration service that owns org.freedesktop.GeoClue2 on the system
// bus and brokers access to WiFi, cellular and GPS location sources.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/geoclued/geoclued/internal/busserver"
	"github.com/geoclued/geoclued/internal/collaborators"
	"github.com/geoclued/geoclued/internal/config"
	"github.com/geoclued/geoclued/internal/geoclue"
	"github.com/geoclued/geoclued/internal/httpclient"
	"github.com/geoclued/geoclued/internal/logger"
	"github.com/geoclued/geoclued/internal/manager"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, os.Interrupt)
	defer cancel()

	log := logger.New(slog.LevelError)

	confRead := false
	confPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	conf, err := config.New()
	if err != nil {
		log.Error("failed to load config", logger.Err(err))
		os.Exit(1)
	}

	if *confPath != "" {
		file := filepath.Base(*confPath)
		path := filepath.Dir(*confPath)
		conf, err = config.NewFromFile(path, file)
		if err != nil {
			log.Error("failed to load config from file", logger.Err(err))
			os.Exit(1)
		}
		confRead = true
	}

	if path, file := findConfigFile(); !confRead && (path != "" && file != "") {
		conf, err = config.NewFromFile(path, file)
		if err != nil {
			log.Error("failed to load config from file", logger.Err(err))
			os.Exit(1)
		}
	}

	log = logger.New(conf.LogLevel)
	log.Info("starting geoclued", slog.String("version", version),
		slog.String("commit", commit), slog.String("date", date))

	httpClient := httpclient.New(log)
	network := collaborators.NewNetworkPoller()
	gpsdModem := collaborators.NewGPSDModem(log)
	modemSrc := geoclue.NewModemGpsSource("modem", gpsdModem)

	var wifiEvents geoclue.WifiEventSource
	if poller, perr := collaborators.NewWifiPoller(log); perr != nil {
		log.Info("no usable wifi device, wifi source degrades to geoip-only", logger.Err(perr))
	} else {
		wifiEvents = poller
	}

	wifiLow := geoclue.NewWifiSource("wifi-low", httpClient, log, network, nil,
		geoclue.AccuracyCity, conf.Wifi.URL, conf.Wifi.SubmitURL, conf.Wifi.SubmitNick)
	wifiHigh := geoclue.NewWifiSource("wifi-high", httpClient, log, network, wifiEvents,
		geoclue.AccuracyExact, conf.Wifi.URL, conf.Wifi.SubmitURL, conf.Wifi.SubmitNick)
	cellSrc := geoclue.NewCellSource("cell", httpClient, log, network, gpsdModem,
		conf.Cell.OpenCellIDURL, conf.Cell.APIKey)
	ipSrc := geoclue.NewIpSource("ip", httpClient, log, network, conf.IP.URL)

	registry := geoclue.NewRegistry(wifiLow, wifiHigh, cellSrc, modemSrc, ipSrc)

	bus, err := busserver.Connect()
	if err != nil {
		log.Error("failed to connect to system bus", logger.Err(err))
		os.Exit(1)
	}
	defer func() {
		if cerr := bus.Close(); cerr != nil {
			log.Error("failed to close bus connection", logger.Err(cerr))
		}
	}()

	if err = bus.RequestName(conf.BusName); err != nil {
		log.Error("failed to acquire bus name", logger.Err(err), slog.String("name", conf.BusName))
		os.Exit(1)
	}

	newLocator := func(peer busserver.Sender, requestedAccuracy geoclue.AccuracyLevel) geoclue.LocationSource {
		return registry.NewLocator(string(peer), requestedAccuracy)
	}

	mgr, err := manager.New(bus, log, conf, newLocator, cancel)
	if err != nil {
		log.Error("failed to initialize manager", logger.Err(err))
		os.Exit(1)
	}
	defer func() {
		if serr := mgr.Shutdown(); serr != nil {
			log.Error("failed to shut down manager scheduler", logger.Err(serr))
		}
	}()

	if err = mgr.Export(); err != nil {
		log.Error("failed to export manager", logger.Err(err))
		os.Exit(1)
	}

	log.Info("geoclued ready", slog.String("bus_name", conf.BusName))
	<-ctx.Done()
	log.Info("shutting down geoclued")
}

func findConfigFile() (string, string) {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", ""
	}
	exts := []string{"toml", "yaml", "yml", "json"}
	for _, ext := range exts {
		path := filepath.Join(homedir, ".config", "geoclued", "config."+ext)
		if _, err = os.Stat(path); err == nil {
			return filepath.Dir(path), filepath.Base(path)
		}
	}
	return "", ""
}
