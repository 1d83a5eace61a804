// Package ingest implements Shadow Atlas's upstream contract (spec §6):
// the structural shape a fetcher must deliver, and the validation that
// runs ahead of tessellation so malformed payloads fail fast as
// IngestionErrors rather than reaching the geometric validator.
package ingest

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/shadowatlas/core/geometry"
	"github.com/shadowatlas/core/model"
)

var structValidate = validator.New()

// candidateSetDoc mirrors model.CandidateDistrictSet with validator tags;
// it exists separately so the domain type stays free of transport/format
// concerns, following the teacher's dto/domain split.
type candidateSetDoc struct {
	JurisdictionID      string            `validate:"required"`
	SourceURL           string            `validate:"required,url"`
	ResponseContentHash string            `validate:"required,len=64,hexadecimal"`
	AuthorityLevel      string            `validate:"required,oneof=federal state municipal regional community"`
	Districts           []rawDistrictDoc  `validate:"required,min=1,dive"`
}

type rawDistrictDoc struct {
	LocalNumber string            `validate:"required"`
	DisplayName string            `validate:"required"`
	Coordinates [][][2]float64    `validate:"required,min=1,dive,min=3,dive,dive"`
}

// ValidateStructure checks a CandidateDistrictSet's shape: required
// fields present, the content hash well-formed, every declared ring with
// at least three vertices, and every coordinate within WGS84 bounds. It
// does not run any of the tessellation axioms; those require a
// jurisdiction and registry lookup and live in package tessellation.
func ValidateStructure(set model.CandidateDistrictSet) error {
	if set.JurisdictionID == "" {
		return fmt.Errorf("%w: missing jurisdiction_id", model.ErrMissingJurisdiction)
	}

	doc := candidateSetDoc{
		JurisdictionID:      set.JurisdictionID,
		SourceURL:           set.SourceURL,
		ResponseContentHash: set.ResponseContentHash,
		AuthorityLevel:      string(set.AuthorityLevel),
	}
	for _, d := range set.Districts {
		coords := make([][][2]float64, 0, 1+len(d.RawPolygon))
		for _, p := range d.RawPolygon {
			coords = append(coords, ringToFloatPairs(p.Exterior))
		}
		doc.Districts = append(doc.Districts, rawDistrictDoc{
			LocalNumber: d.LocalNumber,
			DisplayName: d.DisplayName,
			Coordinates: coords,
		})
	}

	if err := structValidate.Struct(doc); err != nil {
		return fmt.Errorf("%w: %v", model.ErrMalformedPolygon, err)
	}

	for _, d := range set.Districts {
		if err := validatePolygonCoordinates(d.RawPolygon); err != nil {
			return fmt.Errorf("district %s: %w", d.LocalNumber, err)
		}
	}

	return nil
}

func ringToFloatPairs(r geometry.Ring) [][2]float64 {
	out := make([][2]float64, len(r))
	for i, c := range r {
		out[i] = [2]float64{c.Lng, c.Lat}
	}
	return out
}

func validatePolygonCoordinates(mp geometry.MultiPolygon) error {
	if len(mp) == 0 {
		return fmt.Errorf("%w: no polygons", model.ErrMalformedPolygon)
	}
	for _, p := range mp {
		if len(p.Exterior) < 3 {
			return fmt.Errorf("%w: exterior ring has fewer than 3 vertices", model.ErrMalformedPolygon)
		}
		for _, c := range p.Exterior {
			if !c.IsValid() {
				return fmt.Errorf("%w: (%f, %f)", model.ErrNonWGS84Coordinate, c.Lat, c.Lng)
			}
		}
		for _, hole := range p.Holes {
			for _, c := range hole {
				if !c.IsValid() {
					return fmt.Errorf("%w: (%f, %f)", model.ErrNonWGS84Coordinate, c.Lat, c.Lng)
				}
			}
		}
	}
	return nil
}

// ToRawCandidates normalizes a CandidateDistrictSet's polygons by running
// geometry.Repair over each raw district before it is handed to the
// tessellation validator, so a repair-refusal is visible in the proof's
// notes rather than silently producing a distorted admitted geometry.
func ToRawCandidates(set model.CandidateDistrictSet) (model.CandidateDistrictSet, []string) {
	var notes []string
	out := set
	out.Districts = make([]model.RawDistrict, len(set.Districts))

	for i, d := range set.Districts {
		repairedPolys := make(geometry.MultiPolygon, len(d.RawPolygon))
		for j, p := range d.RawPolygon {
			result := geometry.Repair(p)
			repairedPolys[j] = result.Polygon
			if result.RepairRefused {
				notes = append(notes, fmt.Sprintf(
					"district %s polygon %d: repair refused, area delta %.3f%%",
					d.LocalNumber, j, result.AreaDeltaPct))
			}
		}
		out.Districts[i] = model.RawDistrict{
			LocalNumber:   d.LocalNumber,
			DisplayName:   d.DisplayName,
			RawPolygon:    repairedPolys,
			RawAttributes: d.RawAttributes,
		}
	}

	return out, notes
}
