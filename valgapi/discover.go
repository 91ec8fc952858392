package valgapi

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/eklundh/valgarkiv/entity"
)

// relatedLink is one child reference in a result document's _links block.
type relatedLink struct {
	Nr             string `json:"nr"`
	Href           string `json:"href"`
	HrefNavn       string `json:"hrefNavn"`
	HarUnderordnet bool   `json:"harUnderordnet"`
}

type linksEnvelope struct {
	Links struct {
		Related []relatedLink `json:"related"`
	} `json:"_links"`
}

// displayName extracts the human-readable name from a hrefNavn path
// segment, e.g. "/2025/st/03/Oslo" -> "Oslo".
func (l relatedLink) displayName() string {
	seg := l.HrefNavn
	if i := strings.LastIndexByte(seg, '/'); i >= 0 {
		seg = seg[i+1:]
	}
	if unescaped, err := url.PathUnescape(seg); err == nil {
		return unescaped
	}
	return seg
}

// Discover walks the API's _links hierarchy for one election year and
// builds the validated entity registry: nation, every county, every
// municipality, and the voting districts of municipalities that report
// them.
func (c *Client) Discover(ctx context.Context, year string) (*entity.Registry, error) {
	var national linksEnvelope
	if err := c.getJSON(ctx, fmt.Sprintf("/%s/st", year), &national); err != nil {
		return nil, fmt.Errorf("discover year %s: %w", year, err)
	}

	var entities []entity.Entity
	for _, countyLink := range national.Links.Related {
		county := entity.NewCounty(countyLink.Nr, countyLink.displayName())
		entities = append(entities, county)

		var countyDoc linksEnvelope
		if err := c.getJSON(ctx, countyLink.Href, &countyDoc); err != nil {
			return nil, fmt.Errorf("discover county %s: %w", county.ID, err)
		}

		for _, muniLink := range countyDoc.Links.Related {
			municipality := entity.NewMunicipality(county, muniLink.Nr, muniLink.displayName())
			entities = append(entities, municipality)

			if !muniLink.HarUnderordnet {
				continue
			}

			var muniDoc linksEnvelope
			if err := c.getJSON(ctx, muniLink.Href, &muniDoc); err != nil {
				return nil, fmt.Errorf("discover municipality %s: %w", municipality.ID, err)
			}

			for _, kretsLink := range muniDoc.Links.Related {
				entities = append(entities, entity.NewDistrict(municipality, kretsLink.Nr, kretsLink.displayName()))
			}
		}
	}

	reg, err := entity.NewRegistry(entities)
	if err != nil {
		return nil, fmt.Errorf("discover year %s: %w", year, err)
	}

	c.logger.Info("entity discovery finished", "year", year, "entities", len(reg.All()))
	return reg, nil
}
