package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shadowatlas/core/geometry"
	"github.com/shadowatlas/core/model"
	"github.com/shadowatlas/core/quarantine"
	"github.com/shadowatlas/core/registry"
	"github.com/shadowatlas/core/tessellation"
)

func square(minLat, minLng, maxLat, maxLng float64) geometry.Polygon {
	return geometry.Polygon{Exterior: geometry.Ring{
		{Lat: minLat, Lng: minLng},
		{Lat: minLat, Lng: maxLng},
		{Lat: maxLat, Lng: maxLng},
		{Lat: maxLat, Lng: minLng},
	}}
}

func districtSet(jurisdictionID string, n int, boundary geometry.Polygon) model.CandidateDistrictSet {
	minLat, minLng, maxLat, maxLng := boundary.Exterior[0].Lat, boundary.Exterior[0].Lng, boundary.Exterior[2].Lat, boundary.Exterior[2].Lng
	width := (maxLng - minLng) / float64(n)

	set := model.CandidateDistrictSet{
		JurisdictionID:      jurisdictionID,
		SourceURL:           "https://example.test/districts",
		ResponseContentHash: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		AuthorityLevel:      model.AuthorityMunicipal,
		AcquiredAt:          time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	for i := 0; i < n; i++ {
		lo := minLng + float64(i)*width
		hi := lo + width
		set.Districts = append(set.Districts, model.RawDistrict{
			LocalNumber:   string(rune('1' + i)),
			DisplayName:   "District",
			RawPolygon:    geometry.MultiPolygon{square(minLat, lo, maxLat, hi)},
			RawAttributes: map[string]string{"council_district": string(rune('1' + i))},
		})
	}
	return set
}

func newTestPipeline(t *testing.T) (*Pipeline, *registry.Registry) {
	t.Helper()

	boundaryDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(boundaryDir, "0667000.json"), []byte(`[[[0,0],[4,0],[4,1],[0,1]]]`), 0o644))

	reg := registry.New(t.TempDir(), boundaryDir)
	expected := 4
	reg.Put(model.Jurisdiction{
		ID: "0667000", GovernanceKind: model.GovernanceDistrictBased, Level: model.LevelCouncil,
		ExpectedDistrictCount: &expected,
	})

	ledger, err := quarantine.Open(filepath.Join(t.TempDir(), "quarantine.ndjson"))
	require.NoError(t, err)

	validator := tessellation.New(reg)
	return New(validator, ledger, reg, zap.NewNop(), 4), reg
}

func TestRunAdmitsCleanTessellation(t *testing.T) {
	p, _ := newTestPipeline(t)
	boundary := square(0, 0, 1, 4)

	candidates := make(chan model.CandidateDistrictSet, 1)
	candidates <- districtSet("0667000", 4, boundary)
	close(candidates)

	result, err := p.Run(context.Background(), candidates)
	require.NoError(t, err)
	assert.Len(t, result.Admitted, 4)
	assert.Empty(t, result.Quarantined)
	require.Len(t, result.Coverage, 1)
	assert.False(t, result.Coverage[0].IsAtLarge)
	assert.Equal(t, "0667000", result.Coverage[0].JurisdictionID)

	for _, d := range result.Admitted {
		assert.Equal(t, model.LevelCouncil, d.Level)
		assert.Contains(t, string(d.ID), "0667000:council:")
	}
}

func TestRunQuarantinesRejectedSet(t *testing.T) {
	p, _ := newTestPipeline(t)
	boundary := square(0, 0, 1, 4)
	bad := districtSet("0667000", 20, boundary)

	candidates := make(chan model.CandidateDistrictSet, 1)
	candidates <- bad
	close(candidates)

	result, err := p.Run(context.Background(), candidates)
	require.NoError(t, err)
	assert.Empty(t, result.Admitted)
	require.Len(t, result.Quarantined, 1)
}

func TestRunSkipsGeometryForAtLargeJurisdiction(t *testing.T) {
	p, reg := newTestPipeline(t)
	reg.MarkAtLarge("2511000")
	seats := 9
	reg.Put(model.Jurisdiction{ID: "2511000", GovernanceKind: model.GovernanceAtLarge, ExpectedDistrictCount: &seats})

	candidates := make(chan model.CandidateDistrictSet, 1)
	candidates <- model.CandidateDistrictSet{
		JurisdictionID:      "2511000",
		SourceURL:           "https://example.test/districts",
		ResponseContentHash: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		AuthorityLevel:      model.AuthorityMunicipal,
		AcquiredAt:          time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Districts: []model.RawDistrict{
			{LocalNumber: "1", DisplayName: "At-large", RawPolygon: geometry.MultiPolygon{square(0, 0, 1, 1)}},
		},
	}
	close(candidates)

	result, err := p.Run(context.Background(), candidates)
	require.NoError(t, err)
	assert.Empty(t, result.Admitted)
	require.Len(t, result.Coverage, 1)
	assert.True(t, result.Coverage[0].IsAtLarge)
	assert.Equal(t, 9, result.Coverage[0].DistrictCount)
}

func TestRunQuarantinesMalformedIngestion(t *testing.T) {
	p, _ := newTestPipeline(t)

	candidates := make(chan model.CandidateDistrictSet, 1)
	candidates <- model.CandidateDistrictSet{
		JurisdictionID: "0667000",
		SourceURL:      "https://example.test/districts",
		AuthorityLevel: model.AuthorityMunicipal,
		AcquiredAt:     time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Districts: []model.RawDistrict{
			{LocalNumber: "1", DisplayName: "District", RawPolygon: geometry.MultiPolygon{}},
		},
	}
	close(candidates)

	result, err := p.Run(context.Background(), candidates)
	require.NoError(t, err)
	assert.Empty(t, result.Admitted)
	require.Len(t, result.Quarantined, 1)
}

func TestAssembleSnapshotWritesAdmittedDistricts(t *testing.T) {
	p, _ := newTestPipeline(t)
	boundary := square(0, 0, 1, 4)

	candidates := make(chan model.CandidateDistrictSet, 1)
	candidates <- districtSet("0667000", 4, boundary)
	close(candidates)

	result, err := p.Run(context.Background(), candidates)
	require.NoError(t, err)

	rootDir := t.TempDir()
	built, err := AssembleSnapshot("US", result, model.HashSHA256Truncated31, "2026q3", time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), rootDir)
	require.NoError(t, err)
	assert.Equal(t, 4, built.Header.DistrictCount)
}
