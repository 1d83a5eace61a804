package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowatlas/core/geometry"
	"github.com/shadowatlas/core/model"
)

func validSet() model.CandidateDistrictSet {
	square := geometry.Polygon{Exterior: geometry.Ring{
		{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1}, {Lat: 1, Lng: 0},
	}}
	return model.CandidateDistrictSet{
		JurisdictionID:      "0667000",
		SourceURL:           "https://example.gov/districts.geojson",
		AcquiredAt:          time.Now(),
		ResponseContentHash: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		AuthorityLevel:      model.AuthorityMunicipal,
		Districts: []model.RawDistrict{
			{LocalNumber: "1", DisplayName: "District 1", RawPolygon: geometry.MultiPolygon{square}},
		},
	}
}

func TestValidateStructureAccepts(t *testing.T) {
	assert.NoError(t, ValidateStructure(validSet()))
}

func TestValidateStructureRejectsMissingJurisdiction(t *testing.T) {
	set := validSet()
	set.JurisdictionID = ""
	err := ValidateStructure(set)
	assert.ErrorIs(t, err, model.ErrMissingJurisdiction)
}

func TestValidateStructureRejectsBadHash(t *testing.T) {
	set := validSet()
	set.ResponseContentHash = "not-a-hash"
	err := ValidateStructure(set)
	assert.ErrorIs(t, err, model.ErrMalformedPolygon)
}

func TestValidateStructureRejectsDegenerateRing(t *testing.T) {
	set := validSet()
	set.Districts[0].RawPolygon = geometry.MultiPolygon{{Exterior: geometry.Ring{
		{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1},
	}}}
	err := ValidateStructure(set)
	assert.Error(t, err)
}

func TestValidateStructureRejectsOutOfBoundsCoordinate(t *testing.T) {
	set := validSet()
	set.Districts[0].RawPolygon = geometry.MultiPolygon{{Exterior: geometry.Ring{
		{Lat: 999, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1},
	}}}
	err := ValidateStructure(set)
	assert.Error(t, err)
}

func TestToRawCandidatesPassesThroughCleanPolygons(t *testing.T) {
	set := validSet()
	out, notes := ToRawCandidates(set)
	require.Empty(t, notes)
	assert.Equal(t, set.Districts[0].LocalNumber, out.Districts[0].LocalNumber)
}

func TestToRawCandidatesNotesRepairRefusal(t *testing.T) {
	set := validSet()
	set.Districts[0].RawPolygon = geometry.MultiPolygon{{Exterior: geometry.Ring{
		{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 50, Lng: 0.5}, {Lat: 1, Lng: 1}, {Lat: 1, Lng: 0},
	}}}
	_, notes := ToRawCandidates(set)
	assert.NotEmpty(t, notes)
}
