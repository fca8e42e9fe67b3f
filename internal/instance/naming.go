// Package instance names the namespace a deck server keeps its Redis keys
// and channels under.
package instance

import (
	"fmt"
	"regexp"
)

const (
	// DefaultName is the instance used when none is configured
	DefaultName = "default"

	// MaxNameLength is the maximum length for an instance name (DNS-compatible)
	MaxNameLength = 63
)

var (
	// NamePattern is the regex pattern for valid instance names
	// Must be DNS-compatible: lowercase alphanumeric, hyphens allowed (but not at start/end)
	NamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)
)

// ValidateName checks if an instance name is valid according to DNS naming rules.
// Names end up inside Redis keys, so the same rules keep keys readable.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("instance name cannot be empty")
	}

	if len(name) > MaxNameLength {
		return fmt.Errorf("instance name too long: %d characters (max: %d)", len(name), MaxNameLength)
	}

	if !NamePattern.MatchString(name) {
		return fmt.Errorf("invalid instance name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}

	return nil
}
