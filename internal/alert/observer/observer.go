// Package observer holds ready-made alert observers.
package observer

import (
	"alertd/internal/eventbus"
	logx "alertd/pkg/logx"
)

// Log records lifecycle events. It stands in for the chime on hosts without
// audio.
type Log struct {
	log logx.Logger
}

func NewLog(log logx.Logger) *Log {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Log{log: log.With(logx.String("comp", "observer"))}
}

func (o *Log) OnActive(id string) {
	o.log.Info("alert ringing", logx.String("id", id))
}

func (o *Log) OnAcknowledged(id string) {
	o.log.Info("alert acknowledged", logx.String("id", id))
}

// Bus republishes lifecycle events on an event bus.
type Bus struct {
	bus eventbus.Bus
}

func NewBus(b eventbus.Bus) *Bus { return &Bus{bus: b} }

func (o *Bus) OnActive(id string) {
	o.bus.Publish(eventbus.Event{Type: eventbus.TypeAlertActive, Data: eventbus.AlertData{ID: id}})
}

func (o *Bus) OnAcknowledged(id string) {
	o.bus.Publish(eventbus.Event{Type: eventbus.TypeAlertAcknowledged, Data: eventbus.AlertData{ID: id}})
}

// Funcs adapts two functions. Either may be nil. Register it by pointer so it
// can be removed again.
type Funcs struct {
	Active       func(id string)
	Acknowledged func(id string)
}

func (f *Funcs) OnActive(id string) {
	if f.Active != nil {
		f.Active(id)
	}
}

func (f *Funcs) OnAcknowledged(id string) {
	if f.Acknowledged != nil {
		f.Acknowledged(id)
	}
}
