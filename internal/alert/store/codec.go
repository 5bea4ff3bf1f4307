package store

import (
	"errors"
	"fmt"
	"strings"

	"alertd/internal/alert"
)

// EncodeLine renders the persisted form of rec:
//
//	<YYYY-MM-DDTHH:MM:SS>,<TIMER|ALARM>,<source>
func EncodeLine(rec alert.Record) string {
	return alert.FormatWireTime(rec.ScheduledAt) + "," + rec.Kind.String() + "," + rec.Source
}

// DecodeLine parses a line produced by EncodeLine. The source is everything
// after the second comma and must not be empty.
func DecodeLine(id, line string) (Persisted, error) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.SplitN(line, ",", 3)
	if len(parts) != 3 {
		return Persisted{}, fmt.Errorf("%w: %s: want 3 fields, got %d", alert.ErrMalformedRecovery, id, len(parts))
	}
	at, err := alert.ParseWireTime(parts[0])
	if err != nil {
		return Persisted{}, fmt.Errorf("%w: %s: %w", alert.ErrMalformedRecovery, id, err)
	}
	kind, err := alert.ParseKind(parts[1])
	if err != nil {
		return Persisted{}, fmt.Errorf("%w: %s: %w", alert.ErrMalformedRecovery, id, err)
	}
	src := strings.TrimSpace(parts[2])
	if src == "" {
		return Persisted{}, fmt.Errorf("%w: %s: %w", alert.ErrMalformedRecovery, id, errors.New("empty source"))
	}
	return Persisted{ID: id, ScheduledAt: at, Kind: kind, Source: src}, nil
}
