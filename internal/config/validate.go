package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	logx "alertd/pkg/logx"

	"github.com/robfig/cron/v3"
)

// Resolve validates cfg and fills defaults.
func Resolve(cfg *Config) (Runtime, error) {
	if cfg == nil {
		cfg = Default()
	}
	def := Default()
	var errs []error

	if lv := strings.TrimSpace(cfg.Logging.Level); lv != "" {
		if _, ok := logx.ParseLevel(lv); !ok {
			errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lv))
		}
	}

	rt := Runtime{
		MaxScheduled:      cfg.Alerts.MaxScheduled,
		StrictPersistence: cfg.Alerts.StrictPersistence,
		RestoreOnStartup:  true,
		StorageDriver:     strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		StoragePath:       strings.TrimSpace(cfg.Storage.Path),
		TransportEnabled:  cfg.Transport.Enabled,
		TransportAddr:     strings.TrimSpace(cfg.Transport.Addr),
		RatePerSec:        cfg.Transport.RatePerSec,
	}
	if cfg.Alerts.RestoreOnStartup != nil {
		rt.RestoreOnStartup = *cfg.Alerts.RestoreOnStartup
	}

	switch {
	case rt.MaxScheduled == 0:
		rt.MaxScheduled = def.Alerts.MaxScheduled
	case rt.MaxScheduled < 0:
		errs = append(errs, errors.New("alerts.max_scheduled must be > 0"))
	}

	var err error
	if rt.MaxLead, err = ParseDurationOrDefault("alerts.max_lead", cfg.Alerts.MaxLead, 24*time.Hour); err != nil {
		errs = append(errs, err)
	} else if rt.MaxLead < time.Second {
		errs = append(errs, errors.New("alerts.max_lead must be at least 1s"))
	}

	switch rt.StorageDriver {
	case "":
		rt.StorageDriver = def.Storage.Driver
	case "dir", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unsupported %q (want dir or sqlite)", rt.StorageDriver))
	}
	if rt.StoragePath == "" {
		rt.StoragePath = def.Storage.Path
		if rt.StorageDriver == "sqlite" {
			rt.StoragePath = "./alertd.db"
		}
	}
	if rt.StorageBusyTimeout, err = ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second); err != nil {
		errs = append(errs, err)
	}

	if rt.TransportEnabled {
		if rt.TransportAddr == "" {
			rt.TransportAddr = def.Transport.Addr
		}
		if _, _, err := net.SplitHostPort(rt.TransportAddr); err != nil {
			errs = append(errs, fmt.Errorf("transport.addr: %w", err))
		}
	}
	switch {
	case rt.RatePerSec == 0:
		rt.RatePerSec = def.Transport.RatePerSec
	case rt.RatePerSec < 0:
		errs = append(errs, errors.New("transport.rate_per_sec must be > 0"))
	}

	switch spec := strings.TrimSpace(cfg.Logging.StatsSchedule); strings.ToLower(spec) {
	case "off":
	case "":
		rt.StatsSchedule = def.Logging.StatsSchedule
	default:
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("logging.stats_schedule: %w", err))
		}
		rt.StatsSchedule = spec
	}

	if len(errs) > 0 {
		return Runtime{}, errors.Join(errs...)
	}
	return rt, nil
}

// LogConfig maps the logging section onto logx.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
	}
}

// RestartRequired lists the sections that differ between old and next and
// only take effect after a restart. Logging is applied live.
func RestartRequired(old, next *Config) []string {
	if old == nil || next == nil {
		return nil
	}
	var out []string
	a, errA := Resolve(old)
	b, errB := Resolve(next)
	if errA != nil || errB != nil {
		return nil
	}
	if a.MaxScheduled != b.MaxScheduled || a.MaxLead != b.MaxLead ||
		a.StrictPersistence != b.StrictPersistence || a.RestoreOnStartup != b.RestoreOnStartup {
		out = append(out, "alerts")
	}
	if a.StorageDriver != b.StorageDriver || a.StoragePath != b.StoragePath || a.StorageBusyTimeout != b.StorageBusyTimeout {
		out = append(out, "storage")
	}
	if a.TransportEnabled != b.TransportEnabled || a.TransportAddr != b.TransportAddr || a.RatePerSec != b.RatePerSec {
		out = append(out, "transport")
	}
	if a.StatsSchedule != b.StatsSchedule {
		out = append(out, "logging.stats_schedule")
	}
	return out
}
