package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/eklundh/valgarkiv/entity"
	"github.com/eklundh/valgarkiv/valgapi"
)

func runDiscover() error {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)

	var (
		year = fs.String("year", "", "election year to discover (default: first configured year)")
		out  = fs.String("out", "entities.yaml", "output file for the entity definition")
	)

	fs.Usage = func() {
		fmt.Println(`valgarkiv discover - walk the result API and write the entity definition

Usage:
  valgarkiv discover [flags]

Flags:`)
		fs.PrintDefaults()
		fmt.Println(`
Walks the API's link hierarchy (counties, municipalities, districts) and
writes the definition file that monitor and serve load through
entitiesFile. Without a definition file those commands rediscover on
every start.`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if *year == "" {
		if len(cfg.Years) == 0 {
			return fmt.Errorf("no years configured")
		}
		*year = cfg.Years[0]
	}

	client := valgapi.NewClient(cfg.APIBaseURL, valgapi.WithLogger(logger))
	reg, err := client.Discover(context.Background(), *year)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(definitionOf(reg))
	if err != nil {
		return fmt.Errorf("encode definition: %w", err)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}

	fmt.Printf("wrote %d entities to %s\n", len(reg.All()), *out)
	return nil
}

// definitionOf flattens a registry back into the on-disk format.
func definitionOf(reg *entity.Registry) entity.Definition {
	var def entity.Definition
	for _, county := range reg.AtLevel(entity.LevelCounty) {
		c := entity.CountyDef{Nr: county.CountyNr, Name: county.Name}
		for _, municipality := range reg.Children(county) {
			m := entity.MunicipalityDef{Nr: municipality.MunicipalityNr, Name: municipality.Name}
			for _, district := range reg.Children(municipality) {
				m.Districts = append(m.Districts, entity.DistrictDef{
					Nr:   district.DistrictNr,
					Name: district.Name,
				})
			}
			c.Municipalities = append(c.Municipalities, m)
		}
		def.Counties = append(def.Counties, c)
	}
	return def
}
