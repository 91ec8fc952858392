// Package valgarkiv defines the shared error taxonomy for the election
// snapshot archive. The concrete components live in the subpackages:
// entity (registry), snapshot (change detection), store (persistence),
// retention (pruning) and archive (the facade).
package valgarkiv

import (
	"errors"
	"fmt"
)

// ConfigError reports an invalid static definition: a malformed entity
// registry or an incomplete retention policy table. It is only returned
// during startup validation and is always fatal.
type ConfigError struct {
	// Source names the definition that failed, e.g. "entity registry"
	// or "retention policy".
	Source string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Source, e.Reason)
}

// NewConfigError builds a ConfigError with a formatted reason.
func NewConfigError(source, format string, args ...any) error {
	return &ConfigError{Source: source, Reason: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

var (
	// ErrOutOfOrderTimestamp rejects an ingest whose timestamp is not
	// strictly greater than the entity's current latest snapshot. The
	// entity's state is unchanged; the caller decides whether to care.
	ErrOutOfOrderTimestamp = errors.New("timestamp not after latest snapshot")

	// ErrStorageWrite marks a transient failure persisting a snapshot
	// body or advancing the latest pointer. The pointer is never left
	// dangling; retrying the same ingest is safe.
	ErrStorageWrite = errors.New("snapshot write failed")

	// ErrStorageDelete marks a transient failure removing a snapshot
	// during a retention sweep. The sweep records it and continues; the
	// next scheduled sweep retries naturally.
	ErrStorageDelete = errors.New("snapshot delete failed")

	// ErrLatestProtected rejects an attempt to delete the snapshot the
	// latest pointer references.
	ErrLatestProtected = errors.New("snapshot is referenced by the latest pointer")
)
