// Package entity models the static hierarchy of monitored election
// entities: the nation, its counties (fylke), their municipalities
// (kommune) and the municipalities' voting districts (krets).
package entity

import (
	"fmt"
	"strings"
)

// Level is one tier of the reporting hierarchy. The values are the
// upstream API's Norwegian names, which also appear in storage keys and
// retention policy definitions.
type Level string

const (
	LevelNation       Level = "nasjonalt"
	LevelCounty       Level = "fylke"
	LevelMunicipality Level = "kommune"
	LevelDistrict     Level = "krets"
)

// Levels lists all levels, coarsest first.
var Levels = []Level{LevelNation, LevelCounty, LevelMunicipality, LevelDistrict}

// ParseLevel validates a level name.
func ParseLevel(s string) (Level, error) {
	for _, l := range Levels {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown entity level %q", s)
}

// Entity is one monitored node. Entities are immutable once registered.
type Entity struct {
	Level Level
	// ID is the full identifier in the archive's grammar:
	// "norge", "fylke-03-oslo", "kommune-03-0301-oslo",
	// "krets-03-0301-0101-sentrum".
	ID string
	// Numeric codes per level; higher levels leave the finer codes empty.
	CountyNr       string
	MunicipalityNr string
	DistrictNr     string
	// Name is the slugified display name.
	Name string
	// ParentID is the ID of the entity one level up; empty for the nation.
	ParentID string
}

// Key is the stable per-entity storage key, used as the partition key by
// every store backend.
func (e Entity) Key() string {
	return string(e.Level) + "/" + e.ID
}

// Nation returns the single national entity.
func Nation() Entity {
	return Entity{Level: LevelNation, ID: "norge", Name: "norge"}
}

// NewCounty builds a county entity from its two-digit code and raw name.
func NewCounty(nr, name string) Entity {
	slug := Slugify(name)
	return Entity{
		Level:    LevelCounty,
		ID:       fmt.Sprintf("fylke-%s-%s", nr, slug),
		CountyNr: nr,
		Name:     slug,
		ParentID: Nation().ID,
	}
}

// NewMunicipality builds a municipality entity under the given county.
func NewMunicipality(county Entity, nr, name string) Entity {
	slug := Slugify(name)
	return Entity{
		Level:          LevelMunicipality,
		ID:             fmt.Sprintf("kommune-%s-%s-%s", county.CountyNr, nr, slug),
		CountyNr:       county.CountyNr,
		MunicipalityNr: nr,
		Name:           slug,
		ParentID:       county.ID,
	}
}

// NewDistrict builds a voting-district entity under the given municipality.
func NewDistrict(municipality Entity, nr, name string) Entity {
	slug := Slugify(name)
	return Entity{
		Level:          LevelDistrict,
		ID:             fmt.Sprintf("krets-%s-%s-%s-%s", municipality.CountyNr, municipality.MunicipalityNr, nr, slug),
		CountyNr:       municipality.CountyNr,
		MunicipalityNr: municipality.MunicipalityNr,
		DistrictNr:     nr,
		Name:           slug,
		ParentID:       municipality.ID,
	}
}

// Slugify converts a Norwegian place name to its URL-safe identifier form:
// lowercase, æ/ø/å transliterated, spaces hyphenated, punctuation dropped.
func Slugify(name string) string {
	name = strings.ToLower(name)

	replacer := strings.NewReplacer(
		"æ", "ae",
		"ø", "o",
		"å", "a",
		" ", "-",
		".", "",
		",", "",
		"+", "-og-",
	)
	name = replacer.Replace(name)

	var b strings.Builder
	for _, r := range name {
		if r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	name = b.String()

	for strings.Contains(name, "--") {
		name = strings.ReplaceAll(name, "--", "-")
	}
	return strings.Trim(name, "-")
}
