// Package transport holds the wire shapes shared by alertd's front ends.
package transport

import "alertd/internal/alert"

// Request types accepted from clients.
const (
	RequestTimer  = "TIMER"
	RequestAlarm  = "ALARM"
	RequestDelete = "DELETE"
	RequestList   = "LIST"
)

// Response frame types.
const (
	FrameScheduled    = "scheduled"
	FrameDeleted      = "deleted"
	FrameActive       = "active"
	FrameAcknowledged = "acknowledged"
	FrameAlerts       = "alerts"
	FrameError        = "error"
)

// Request is one inbound command.
type Request struct {
	AlertType    string `json:"alert_type"`
	ScheduleTime string `json:"schedule_time,omitempty"`
	AlertID      string `json:"alert_id,omitempty"`
}

// Frame is one outbound message.
type Frame struct {
	Type    string      `json:"type"`
	AlertID string      `json:"alert_id,omitempty"`
	OK      *bool       `json:"ok,omitempty"`
	Alerts  []AlertView `json:"alerts,omitempty"`
	Error   string      `json:"error,omitempty"`
	// echoes the request type on replies
	Request string `json:"request,omitempty"`
}

type AlertView struct {
	ID           string `json:"alert_id"`
	Kind         string `json:"alert_type"`
	ScheduleTime string `json:"schedule_time"`
	Source       string `json:"source"`
	State        string `json:"state"`
}

func ViewOf(r alert.Record) AlertView {
	return AlertView{
		ID:           r.ID,
		Kind:         r.Kind.String(),
		ScheduleTime: alert.FormatWireTime(r.ScheduledAt),
		Source:       r.Source,
		State:        r.State.String(),
	}
}

func ErrorFrame(request string, err error) Frame {
	return Frame{Type: FrameError, Request: request, Error: err.Error()}
}

func Bool(v bool) *bool { return &v }
