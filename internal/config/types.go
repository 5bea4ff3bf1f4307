package config

import "time"

// Config is the on-disk configuration. Durations are Go duration strings
// ("500ms", "24h").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Alerts    AlertsConfig    `json:"alerts"`
	Storage   StorageConfig   `json:"storage"`
	Transport TransportConfig `json:"transport"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	// StatsSchedule is a cron spec for the periodic stats line. "off"
	// disables it.
	StatsSchedule string `json:"stats_schedule,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// AlertsConfig bounds scheduling.
//
// Defaults:
//   - max_scheduled: 5
//   - max_lead: "24h"
//   - strict_persistence: false
//   - restore_on_startup: true
type AlertsConfig struct {
	MaxScheduled      int    `json:"max_scheduled,omitempty"`
	MaxLead           string `json:"max_lead,omitempty"`
	StrictPersistence bool   `json:"strict_persistence,omitempty"`
	// pointer so an explicit false is distinguishable from omitted
	RestoreOnStartup *bool `json:"restore_on_startup,omitempty"`
}

// StorageConfig selects the alert store.
//
// Driver values: "dir" (default, one file per alert under path) or "sqlite"
// (database file at path).
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// TransportConfig configures the websocket listener.
type TransportConfig struct {
	Enabled    bool   `json:"enabled"`
	Addr       string `json:"addr,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	restore := true
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true, File: LoggingFile{Path: "./alertd.log"}, StatsSchedule: "@every 10m"},
		Alerts: AlertsConfig{
			MaxScheduled:     5,
			MaxLead:          "24h",
			RestoreOnStartup: &restore,
		},
		Storage:   StorageConfig{Driver: "dir", Path: "./Alerts", BusyTimeout: "1s"},
		Transport: TransportConfig{Enabled: true, Addr: "127.0.0.1:8010", RatePerSec: 5},
	}
}

// Runtime is the validated, typed form of Config.
type Runtime struct {
	MaxScheduled      int
	MaxLead           time.Duration
	StrictPersistence bool
	RestoreOnStartup  bool

	StorageDriver      string
	StoragePath        string
	StorageBusyTimeout time.Duration

	TransportEnabled bool
	TransportAddr    string
	RatePerSec       int

	// empty when disabled
	StatsSchedule string
}
