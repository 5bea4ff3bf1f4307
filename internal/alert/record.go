package alert

import (
	"fmt"
	"strings"
	"time"
)

// Kind is what the requester asked for. It is only carried through for the
// store and observers; scheduling treats both kinds the same.
type Kind int

const (
	KindTimer Kind = iota
	KindAlarm
)

func (k Kind) String() string {
	switch k {
	case KindTimer:
		return "TIMER"
	case KindAlarm:
		return "ALARM"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Valid reports whether k is TIMER or ALARM.
func (k Kind) Valid() bool { return k == KindTimer || k == KindAlarm }

// ParseKind accepts the wire names TIMER and ALARM (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TIMER":
		return KindTimer, nil
	case "ALARM":
		return KindAlarm, nil
	default:
		return 0, fmt.Errorf("unknown alert kind %q", s)
	}
}

type State int

const (
	StateDraft State = iota
	StateScheduled
	StateActive
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateDraft:
		return "draft"
	case StateScheduled:
		return "scheduled"
	case StateActive:
		return "active"
	case StateTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Reason qualifies StateTerminal.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonAcknowledged: explicitly deleted or dismissed.
	ReasonAcknowledged
	// ReasonDisabled: the requesting source unregistered.
	ReasonDisabled
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonAcknowledged:
		return "acknowledged"
	case ReasonDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Draft is an unscheduled request as received from a transport.
// ScheduledAt is still in wire form ("YYYY-MM-DDTHH:MM:SS", UTC).
type Draft struct {
	Kind        Kind
	ScheduledAt string
	Source      string
}

// Validate checks that d survives a round trip through the persisted line:
// a known kind and a non-empty source without padding or line breaks.
func (d Draft) Validate() error {
	if !d.Kind.Valid() {
		return fmt.Errorf("%w: kind %s", ErrInvalidDraft, d.Kind)
	}
	switch {
	case d.Source == "":
		return fmt.Errorf("%w: empty source", ErrInvalidDraft)
	case strings.TrimSpace(d.Source) != d.Source:
		return fmt.Errorf("%w: source %q has surrounding spaces", ErrInvalidDraft, d.Source)
	case strings.ContainsAny(d.Source, "\r\n"):
		return fmt.Errorf("%w: source %q has a line break", ErrInvalidDraft, d.Source)
	}
	return nil
}

// Record is a scheduled alert. ID is empty only while State is StateDraft.
type Record struct {
	ID          string
	ScheduledAt time.Time
	Kind        Kind
	Source      string
	State       State
	Reason      Reason
}

// Tracked reports whether the record counts against capacity and must have a
// persisted entry.
func (r Record) Tracked() bool {
	return r.State == StateScheduled || r.State == StateActive
}

// Activate moves a scheduled record to active. It reports false for any other
// starting state.
func (r *Record) Activate() bool {
	if r.State != StateScheduled {
		return false
	}
	r.State = StateActive
	return true
}

// Terminate moves a tracked record to the terminal state with the given reason.
func (r *Record) Terminate(reason Reason) bool {
	if !r.Tracked() {
		return false
	}
	r.State = StateTerminal
	r.Reason = reason
	return true
}
