package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	valgarkiv "github.com/eklundh/valgarkiv"
)

func testEntities() []Entity {
	oslo := NewCounty("03", "Oslo")
	osloKommune := NewMunicipality(oslo, "0301", "Oslo")
	sentrum := NewDistrict(osloKommune, "0101", "Sentrum")
	return []Entity{oslo, osloKommune, sentrum}
}

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(testEntities())
	require.NoError(t, err)

	// Nation is implicit.
	nation, err := reg.Resolve(LevelNation, "norge")
	require.NoError(t, err)
	assert.Equal(t, "nasjonalt/norge", nation.Key())

	county, err := reg.Resolve(LevelCounty, "fylke-03-oslo")
	require.NoError(t, err)
	assert.Equal(t, "03", county.CountyNr)

	district, err := reg.Resolve(LevelDistrict, "krets-03-0301-0101-sentrum")
	require.NoError(t, err)
	assert.Equal(t, "kommune-03-0301-oslo", district.ParentID)

	assert.Len(t, reg.All(), 4)
	assert.Len(t, reg.Children(nation), 1)
	assert.Len(t, reg.AtLevel(LevelDistrict), 1)
}

func TestNewRegistryDuplicateID(t *testing.T) {
	es := testEntities()
	es = append(es, NewCounty("03", "Oslo"))

	_, err := NewRegistry(es)
	require.Error(t, err)
	assert.True(t, valgarkiv.IsConfigError(err))
	assert.Contains(t, err.Error(), "duplicate")
}

func TestNewRegistryOrphanParent(t *testing.T) {
	orphan := Entity{
		Level:          LevelMunicipality,
		ID:             "kommune-42-4201-utopia",
		CountyNr:       "42",
		MunicipalityNr: "4201",
		ParentID:       "fylke-42-nowhere",
	}

	_, err := NewRegistry([]Entity{orphan})
	require.Error(t, err)
	assert.True(t, valgarkiv.IsConfigError(err))
	assert.Contains(t, err.Error(), "unknown parent")
}

func TestResolveNotFound(t *testing.T) {
	reg, err := NewRegistry(testEntities())
	require.NoError(t, err)

	_, err = reg.Resolve(LevelCounty, "fylke-99-atlantis")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoad(t *testing.T) {
	def := []byte(`
counties:
  - nr: "03"
    name: Oslo
    municipalities:
      - nr: "0301"
        name: Oslo
        districts:
          - nr: "0101"
            name: Sentrum
          - nr: "0102"
            name: Grünerløkka
  - nr: "11"
    name: Rogaland
`)
	reg, err := Load(def)
	require.NoError(t, err)

	assert.Len(t, reg.AtLevel(LevelCounty), 2)
	assert.Len(t, reg.AtLevel(LevelDistrict), 2)

	// Norwegian characters are transliterated in generated IDs.
	_, err = reg.Resolve(LevelDistrict, "krets-03-0301-0102-grnerlokka")
	require.NoError(t, err)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Oslo", "oslo"},
		{"Møre og Romsdal", "more-og-romsdal"},
		{"Vestfold + Telemark", "vestfold-og-telemark"},
		{"Nordre Follo", "nordre-follo"},
		{"Å", "a"},
		{"St. Hanshaugen", "st-hanshaugen"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), "slugify %q", tt.in)
	}
}
