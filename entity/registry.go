package entity

import (
	"errors"
	"fmt"

	valgarkiv "github.com/eklundh/valgarkiv"
)

// ErrNotFound is returned by Resolve for an unregistered entity.
var ErrNotFound = errors.New("entity not found")

// Registry is the read-only master list of monitored entities. It is
// built once at startup and safe for unguarded concurrent reads.
type Registry struct {
	byLevelID map[Level]map[string]Entity
	children  map[string][]Entity
	all       []Entity
}

// NewRegistry validates and indexes the given entities. The nation entity
// is added implicitly if absent. It fails with a ConfigError on a
// duplicate ID within a level or a parent reference that does not resolve
// to an entity one level up.
func NewRegistry(entities []Entity) (*Registry, error) {
	r := &Registry{
		byLevelID: make(map[Level]map[string]Entity, len(Levels)),
		children:  make(map[string][]Entity),
	}
	for _, l := range Levels {
		r.byLevelID[l] = make(map[string]Entity)
	}

	hasNation := false
	for _, e := range entities {
		if e.Level == LevelNation {
			hasNation = true
		}
	}
	if !hasNation {
		entities = append([]Entity{Nation()}, entities...)
	}

	for _, e := range entities {
		if _, err := ParseLevel(string(e.Level)); err != nil {
			return nil, valgarkiv.NewConfigError("entity registry", "entity %q: %v", e.ID, err)
		}
		byID := r.byLevelID[e.Level]
		if _, dup := byID[e.ID]; dup {
			return nil, valgarkiv.NewConfigError("entity registry", "duplicate %s id %q", e.Level, e.ID)
		}
		byID[e.ID] = e
		r.all = append(r.all, e)
	}

	// Parent references must resolve one level up.
	for _, e := range r.all {
		if e.Level == LevelNation {
			continue
		}
		parent, ok := r.byLevelID[parentLevel(e.Level)][e.ParentID]
		if !ok {
			return nil, valgarkiv.NewConfigError("entity registry", "%s %q references unknown parent %q", e.Level, e.ID, e.ParentID)
		}
		r.children[parent.Key()] = append(r.children[parent.Key()], e)
	}

	return r, nil
}

func parentLevel(l Level) Level {
	switch l {
	case LevelCounty:
		return LevelNation
	case LevelMunicipality:
		return LevelCounty
	case LevelDistrict:
		return LevelMunicipality
	}
	return ""
}

// Resolve looks up one entity by level and ID.
func (r *Registry) Resolve(level Level, id string) (Entity, error) {
	byID, ok := r.byLevelID[level]
	if !ok {
		return Entity{}, fmt.Errorf("unknown entity level %q", level)
	}
	e, ok := byID[id]
	if !ok {
		return Entity{}, fmt.Errorf("%s %q: %w", level, id, ErrNotFound)
	}
	return e, nil
}

// Children returns the direct children of an entity, in registration order.
func (r *Registry) Children(e Entity) []Entity {
	return r.children[e.Key()]
}

// All returns every registered entity, coarsest levels first within
// registration order.
func (r *Registry) All() []Entity {
	return r.all
}

// AtLevel returns every entity at one level.
func (r *Registry) AtLevel(level Level) []Entity {
	out := make([]Entity, 0, len(r.byLevelID[level]))
	for _, e := range r.all {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}
