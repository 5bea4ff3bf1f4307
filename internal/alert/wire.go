package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WireTimeLayout is the only accepted schedule-time representation. It is
// always interpreted as UTC.
const WireTimeLayout = "2006-01-02T15:04:05"

// ParseWireTime parses "YYYY-MM-DDTHH:MM:SS" as a UTC instant. Any other shape,
// including a trailing zone designator, is rejected.
func ParseWireTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) != len(WireTimeLayout) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	t, err := time.ParseInLocation(WireTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	return t, nil
}

// FormatWireTime renders t in UTC with second resolution.
func FormatWireTime(t time.Time) string {
	return t.UTC().Format(WireTimeLayout)
}

// NewID returns a fresh random alert id (upper-case UUID).
func NewID() string {
	return strings.ToUpper(uuid.NewString())
}
