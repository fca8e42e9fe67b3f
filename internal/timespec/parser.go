// Package timespec parses the --since and --until flags of the CLI.
package timespec

import (
	"fmt"
	"time"
)

// Parse parses a time specification into a Unix timestamp in milliseconds.
// Accepts a Go duration ("1h30m"), meaning that long ago, or an RFC3339
// timestamp ("2025-10-29T13:00:00Z").
func Parse(spec string) (int64, error) {
	return ParseAt(spec, time.Now())
}

// ParseAt is Parse with durations measured back from now.
func ParseAt(spec string, now time.Time) (int64, error) {
	if spec == "" {
		return 0, fmt.Errorf("empty time specification")
	}

	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t.UnixMilli(), nil
	}

	if d, err := time.ParseDuration(spec); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("negative duration: %s", spec)
		}
		return now.Add(-d).UnixMilli(), nil
	}

	return 0, fmt.Errorf("invalid time specification: %s (use duration like '1h30m' or RFC3339 like '2025-10-29T13:00:00Z')", spec)
}

// Window is a range of creation times. A zero bound is open.
type Window struct {
	SinceMs int64
	UntilMs int64
}

// ParseRange parses --since and --until into a Window. Empty flags leave
// that end open.
func ParseRange(since, until string) (Window, error) {
	return ParseRangeAt(since, until, time.Now())
}

// ParseRangeAt is ParseRange with durations measured back from now.
func ParseRangeAt(since, until string, now time.Time) (Window, error) {
	var w Window
	var err error

	if since != "" {
		if w.SinceMs, err = ParseAt(since, now); err != nil {
			return Window{}, fmt.Errorf("invalid --since: %w", err)
		}
	}

	if until != "" {
		if w.UntilMs, err = ParseAt(until, now); err != nil {
			return Window{}, fmt.Errorf("invalid --until: %w", err)
		}
	}

	if w.SinceMs > 0 && w.UntilMs > 0 && w.SinceMs >= w.UntilMs {
		return Window{}, fmt.Errorf("--since must be before --until")
	}

	return w, nil
}

// Contains reports whether tsMs falls inside the window. Since is
// inclusive, until exclusive.
func (w Window) Contains(tsMs int64) bool {
	if w.SinceMs > 0 && tsMs < w.SinceMs {
		return false
	}
	if w.UntilMs > 0 && tsMs >= w.UntilMs {
		return false
	}
	return true
}

// Open reports whether the window has no bounds.
func (w Window) Open() bool {
	return w.SinceMs == 0 && w.UntilMs == 0
}
