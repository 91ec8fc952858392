// Package snapshot defines the archived record model and the change
// detection rule that decides whether a freshly fetched result document
// is worth a new snapshot.
package snapshot

import (
	"fmt"
	"time"
)

// Document is an upstream result document as decoded from JSON. The
// archive treats it as opaque apart from change detection.
type Document = map[string]any

// stampLayout is the canonical minute-granularity timestamp encoding.
// It sorts lexicographically in chronological order and doubles as the
// snapshot's storage identity.
const stampLayout = "2006-01-02__1504"

// Stamp identifies one snapshot of one entity in time.
type Stamp string

// At builds the stamp for a wall-clock instant, truncated to the minute.
func At(t time.Time) Stamp {
	return Stamp(t.UTC().Truncate(time.Minute).Format(stampLayout))
}

// ParseStamp validates a stamp's encoding.
func ParseStamp(s string) (Stamp, error) {
	if _, err := time.Parse(stampLayout, s); err != nil {
		return "", fmt.Errorf("parse snapshot stamp %q: %w", s, err)
	}
	return Stamp(s), nil
}

// Time decodes the stamp back to its UTC instant. Stamps produced by At
// or ParseStamp always decode.
func (s Stamp) Time() (time.Time, error) {
	t, err := time.Parse(stampLayout, string(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("decode snapshot stamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// After reports whether s is strictly later than o. String comparison is
// sufficient because the encoding is lexicographically ordered.
func (s Stamp) After(o Stamp) bool { return s > o }

func (s Stamp) IsZero() bool { return s == "" }

// Snapshot is one immutable historical record for one entity. Snapshots
// are created only by a store's write-if-changed operation and removed
// only by the retention enforcer.
type Snapshot struct {
	EntityKey string
	Stamp     Stamp
	Doc       Document
}
