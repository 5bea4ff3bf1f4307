package app

import (
	"alertd/internal/alert/client"
	"alertd/internal/alert/coordinator"
	"alertd/internal/alert/store"
	"alertd/internal/config"
	"alertd/internal/transport/ws"
)

func mapStorageConfig(rt config.Runtime) store.Config {
	return store.Config{Driver: rt.StorageDriver, Path: rt.StoragePath, BusyTimeout: rt.StorageBusyTimeout}
}

func mapCoordinatorConfig(rt config.Runtime) coordinator.Config {
	return coordinator.Config{MaxScheduled: rt.MaxScheduled, MaxLead: rt.MaxLead}
}

func mapClientConfig(rt config.Runtime) client.Config {
	return client.Config{StrictPersistence: rt.StrictPersistence}
}

func mapTransportConfig(rt config.Runtime) ws.Config {
	return ws.Config{Addr: rt.TransportAddr, RatePerSec: rt.RatePerSec}
}
