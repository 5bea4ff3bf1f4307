package alert

import (
	"errors"

	"alertd/internal/task"
)

// Every failure is local: it reaches the requester through the same callback
// that would have carried the success value.
var (
	// ErrInvalidWindow: the schedule time is not within (now, now+max lead].
	ErrInvalidWindow = errors.New("schedule time outside allowed window")
	// ErrInvalidTimeFormat: the schedule time string does not parse.
	ErrInvalidTimeFormat = errors.New("invalid schedule time format")
	// ErrDuplicateTime: another tracked alert already occupies that second.
	ErrDuplicateTime = errors.New("an alert is already scheduled at that time")
	// ErrCapacityExceeded: the maximum number of tracked alerts is reached.
	ErrCapacityExceeded = errors.New("maximum scheduled alerts reached")
	// ErrUnknownSource: registering an existing source or unregistering a missing one.
	ErrUnknownSource = errors.New("unknown source")
	// ErrUnknownID: the id is not tracked.
	ErrUnknownID = errors.New("unknown alert id")
	// ErrPersistence: store I/O failed on save or erase.
	ErrPersistence = errors.New("alert persistence failed")
	// ErrMalformedRecovery: a persisted entry could not be parsed at startup.
	ErrMalformedRecovery = errors.New("malformed persisted alert")
	// ErrInvalidDraft: the kind is not TIMER or ALARM, or the source is unusable.
	ErrInvalidDraft = errors.New("invalid alert draft")
	// ErrStopped: the owning task loop has exited. It is the task package's
	// sentinel, so errors.Is matches no matter which layer reported it.
	ErrStopped = task.ErrStopped
)
