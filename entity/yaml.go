package entity

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is the on-disk registry format.
//
//	counties:
//	  - nr: "03"
//	    name: Oslo
//	    municipalities:
//	      - nr: "0301"
//	        name: Oslo
//	        districts:
//	          - nr: "0101"
//	            name: Sentrum
type Definition struct {
	Counties []CountyDef `yaml:"counties"`
}

type CountyDef struct {
	Nr             string            `yaml:"nr"`
	Name           string            `yaml:"name"`
	Municipalities []MunicipalityDef `yaml:"municipalities"`
}

type MunicipalityDef struct {
	Nr        string        `yaml:"nr"`
	Name      string        `yaml:"name"`
	Districts []DistrictDef `yaml:"districts"`
}

type DistrictDef struct {
	Nr   string `yaml:"nr"`
	Name string `yaml:"name"`
}

// Build expands the definition into the full entity list, nation included.
func (d Definition) Build() []Entity {
	entities := []Entity{Nation()}
	for _, c := range d.Counties {
		county := NewCounty(c.Nr, c.Name)
		entities = append(entities, county)
		for _, m := range c.Municipalities {
			municipality := NewMunicipality(county, m.Nr, m.Name)
			entities = append(entities, municipality)
			for _, k := range m.Districts {
				entities = append(entities, NewDistrict(municipality, k.Nr, k.Name))
			}
		}
	}
	return entities
}

// LoadFile reads a registry definition from a YAML file and builds the
// validated registry.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry definition: %w", err)
	}
	return Load(data)
}

// Load parses a YAML registry definition and builds the validated registry.
func Load(data []byte) (*Registry, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse registry definition: %w", err)
	}
	return NewRegistry(def.Build())
}
