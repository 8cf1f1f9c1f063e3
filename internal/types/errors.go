package types

import "fmt"

// The error taxonomy of spec §7. Each is a distinct type so callers can use
// errors.As to pattern-match rather than compare sentinel strings.

// SchemaError is raised when an Event or record header violates I1.
type SchemaError struct {
	Detail string
}

func (e *SchemaError) Error() string { return fmt.Sprintf("schema error: %s", e.Detail) }

// PermissionError is raised when a trust-boundary or role check fails.
type PermissionError struct {
	Reason string
}

func (e *PermissionError) Error() string { return fmt.Sprintf("permission error: %s", e.Reason) }

// ConflictError is raised when the metadata index's unique constraint (I4)
// is violated at insert time.
type ConflictError struct {
	Target string
	ExistingID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict error: target %q already has an active decision %q", e.Target, e.ExistingID)
}

// IntegrityViolation is raised when the whole-corpus checker fails after a
// write. Detail carries a machine-inspectable payload for callers that need
// more than the message (e.g. the cycle's member ids).
type IntegrityViolation struct {
	RecordID string
	Reason   string
	Detail   map[string]any
}

func (e *IntegrityViolation) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("integrity violation: %s (record %s)", e.Reason, e.RecordID)
	}
	return fmt.Sprintf("integrity violation: %s", e.Reason)
}

// TransitionError is raised on an illegal field or status change on update.
type TransitionError struct {
	RecordID string
	Reason   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition error: %s (record %s)", e.Reason, e.RecordID)
}

// LockTimeout is raised when lock acquisition exceeds the configured
// timeout.
type LockTimeout struct {
	Path    string
	Timeout string
}

func (e *LockTimeout) Error() string {
	return fmt.Sprintf("lock timeout: could not acquire lock on %s within %s", e.Path, e.Timeout)
}

// VersionLogError is raised when the underlying version-log backend fails
// after bounded retries.
type VersionLogError struct {
	Op     string
	Reason string
}

func (e *VersionLogError) Error() string {
	return fmt.Sprintf("version log error: %s: %s", e.Op, e.Reason)
}

// NotFoundError is raised when an operation references a non-existent
// record.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.ID)
}
