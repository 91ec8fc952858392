package snapshot

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// SortRule pins the order of a repeated sub-structure before comparison,
// so upstream reordering never reads as a change. Path locates the list
// (dot-separated, descending through nested lists element-wise) and By
// locates the ordering key inside each element.
type SortRule struct {
	Path string `yaml:"path"`
	By   string `yaml:"by"`
}

// DetectorConfig makes the set of fields participating in change
// detection explicit. The upstream field list is not fully documented,
// so it is configuration rather than hard-code.
type DetectorConfig struct {
	// IgnorePaths are pruned before comparison: volatile metadata that
	// changes on every fetch without carrying new information.
	IgnorePaths []string `yaml:"ignorePaths"`
	// SortRules stabilize the order of repeated sub-structures such as
	// per-party result entries.
	SortRules []SortRule `yaml:"sortRules"`
}

// DefaultDetectorConfig matches the upstream election API: the report
// timestamp and per-link generation times are noise, and party result
// lists are keyed by party code.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		IgnorePaths: []string{
			"tidspunkt",
			"_links.related.rapportGenerert",
		},
		SortRules: []SortRule{
			{Path: "partier", By: "id.partikode"},
		},
	}
}

// Detector decides whether a candidate document differs meaningfully
// from the previous snapshot.
type Detector struct {
	cfg DetectorConfig
}

func NewDetector(cfg DetectorConfig) Detector {
	return Detector{cfg: cfg}
}

// HasChanged reports whether candidate carries new information relative
// to previous. A nil previous always changes: the first observation of
// an entity is always material.
func (d Detector) HasChanged(previous *Snapshot, candidate Document) bool {
	if previous == nil {
		return true
	}
	return !bytes.Equal(d.Canonical(previous.Doc), d.Canonical(candidate))
}

// Canonical renders a document in its comparison form: ignored paths
// pruned, numbers normalized, object keys sorted (encoding/json sorts
// map keys), and configured lists stably ordered. Two documents are
// considered equal iff their canonical encodings are byte-equal.
func (d Detector) Canonical(doc Document) []byte {
	v := normalize(doc)
	for _, p := range d.cfg.IgnorePaths {
		prune(v, strings.Split(p, "."))
	}
	for _, r := range d.cfg.SortRules {
		sortLists(v, strings.Split(r.Path, "."), strings.Split(r.By, "."))
	}
	b, err := json.Marshal(v)
	if err != nil {
		// Documents come from json.Unmarshal, so this cannot fire for
		// real input; treat a non-encodable value as always-changed.
		return nil
	}
	return b
}

// normalize deep-copies the value so pruning and sorting never mutate the
// caller's document, and coerces numeric representations so that 42,
// 42.0 and 4.2e1 compare equal after re-encoding.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = normalize(el)
		}
		return out
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}

func prune(v any, path []string) {
	if len(path) == 0 {
		return
	}
	switch t := v.(type) {
	case map[string]any:
		if len(path) == 1 {
			delete(t, path[0])
			return
		}
		if child, ok := t[path[0]]; ok {
			prune(child, path[1:])
		}
	case []any:
		// A list segment applies the remaining path to every element.
		for _, el := range t {
			prune(el, path)
		}
	}
}

func sortLists(v any, path, by []string) {
	switch t := v.(type) {
	case map[string]any:
		if len(path) == 0 {
			return
		}
		child, ok := t[path[0]]
		if !ok {
			return
		}
		if len(path) == 1 {
			if list, ok := child.([]any); ok {
				sortListBy(list, by)
			}
			return
		}
		sortLists(child, path[1:], by)
	case []any:
		for _, el := range t {
			sortLists(el, path, by)
		}
	}
}

func sortListBy(list []any, by []string) {
	sort.SliceStable(list, func(i, j int) bool {
		return elementKey(list[i], by) < elementKey(list[j], by)
	})
}

// elementKey extracts the ordering key from a list element, falling back
// to the element's full encoding so ordering stays deterministic when
// the key path is missing.
func elementKey(el any, by []string) string {
	v := el
	for _, seg := range by {
		m, ok := v.(map[string]any)
		if !ok {
			v = nil
			break
		}
		v = m[seg]
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}
