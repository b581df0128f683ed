package config

import (
	"errors"
	"fmt"
)

// CurrentVersion is the config file format this build reads. A missing
// version field is treated as CurrentVersion by the defaults.
const CurrentVersion = 1

// Version mismatch causes, matched with errors.Is.
var (
	ErrVersionUnsupported = errors.New("config version is no longer supported")
	ErrVersionTooNew      = errors.New("config version is newer than this build")
)

// VersionError reports a version field this build cannot read.
type VersionError struct {
	Version int
	Err     error
}

func (e *VersionError) Error() string {
	hint := "set version to a supported value"
	if errors.Is(e.Err, ErrVersionTooNew) {
		hint = "upgrade agentcore"
	}
	return fmt.Sprintf("%v (got %d, supported %d): %s", e.Err, e.Version, CurrentVersion, hint)
}

func (e *VersionError) Unwrap() error { return e.Err }

// ValidateVersion returns a *VersionError unless version is CurrentVersion.
func ValidateVersion(version int) error {
	switch {
	case version > CurrentVersion:
		return &VersionError{Version: version, Err: ErrVersionTooNew}
	case version < CurrentVersion:
		return &VersionError{Version: version, Err: ErrVersionUnsupported}
	}
	return nil
}
