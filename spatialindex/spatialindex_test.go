package spatialindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowatlas/core/geometry"
	"github.com/shadowatlas/core/model"
)

func square(minLat, minLng, maxLat, maxLng float64) geometry.Polygon {
	return geometry.Polygon{Exterior: geometry.Ring{
		{Lat: minLat, Lng: minLng},
		{Lat: minLat, Lng: maxLng},
		{Lat: maxLat, Lng: maxLng},
		{Lat: maxLat, Lng: minLng},
	}}
}

func district(id, local string, level model.Level, poly geometry.Polygon) model.District {
	return model.District{
		ID: model.DistrictId(id), JurisdictionID: "0667000", Level: level, LocalNumber: local,
		Polygon: geometry.MultiPolygon{poly},
	}
}

func TestBuildAndLocate(t *testing.T) {
	districts := []model.District{
		district("a", "1", model.LevelCouncil, square(37.70, -122.50, 37.75, -122.45)),
		district("b", "2", model.LevelCouncil, square(37.75, -122.45, 37.80, -122.40)),
	}
	idx, err := Build("2026q3", districts)
	require.NoError(t, err)

	d, ok, err := idx.Locate(geometry.Coordinate{Lat: 37.72, Lng: -122.47}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.DistrictId("a"), d.ID)
}

func TestLocateReturnsFalseOutsideAnyDistrict(t *testing.T) {
	districts := []model.District{district("a", "1", model.LevelCouncil, square(0, 0, 1, 1))}
	idx, err := Build("2026q3", districts)
	require.NoError(t, err)

	_, ok, err := idx.Locate(geometry.Coordinate{Lat: 50, Lng: 50}, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocateFiltersByLevel(t *testing.T) {
	districts := []model.District{
		district("a", "1", model.LevelCouncil, square(37.70, -122.50, 37.75, -122.45)),
		district("b", "1", model.LevelCounty, square(37.70, -122.50, 37.75, -122.45)),
	}
	idx, err := Build("2026q3", districts)
	require.NoError(t, err)

	d, ok, err := idx.Locate(geometry.Coordinate{Lat: 37.72, Lng: -122.47}, []model.Level{model.LevelCounty})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.DistrictId("b"), d.ID)
}

func TestLocateBreaksTieByLowestCanonicalID(t *testing.T) {
	poly := square(37.70, -122.50, 37.75, -122.45)
	districts := []model.District{
		district("zzz", "2", model.LevelCouncil, poly),
		district("aaa", "1", model.LevelCouncil, poly),
	}
	idx, err := Build("2026q3", districts)
	require.NoError(t, err)

	d, ok, err := idx.Locate(geometry.Coordinate{Lat: 37.72, Lng: -122.47}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.DistrictId("aaa"), d.ID)
}

func TestQueryBBox(t *testing.T) {
	districts := []model.District{
		district("a", "1", model.LevelCouncil, square(0, 0, 1, 1)),
		district("b", "2", model.LevelCouncil, square(10, 10, 11, 11)),
	}
	idx, err := Build("2026q3", districts)
	require.NoError(t, err)

	matches := idx.QueryBBox(geometry.BoundingBox{MinLat: -1, MaxLat: 2, MinLng: -1, MaxLng: 2}, nil)
	require.Len(t, matches, 1)
	assert.Equal(t, model.DistrictId("a"), matches[0].ID)
}

func TestNearestOrdersByDistance(t *testing.T) {
	districts := []model.District{
		district("far", "1", model.LevelCouncil, square(10, 10, 11, 11)),
		district("near", "2", model.LevelCouncil, square(0, 0, 1, 1)),
	}
	idx, err := Build("2026q3", districts)
	require.NoError(t, err)

	results := idx.Nearest(geometry.Coordinate{Lat: 0, Lng: 0}, 1, nil)
	require.Len(t, results, 1)
	assert.Equal(t, model.DistrictId("near"), results[0].District.ID)
}

func TestRegistrySwap(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.Current()
	assert.False(t, ok)

	idx, err := Build("2026q3", []model.District{district("a", "1", model.LevelCouncil, square(0, 0, 1, 1))})
	require.NoError(t, err)
	reg.Swap(idx)

	current, ok := reg.Current()
	require.True(t, ok)
	assert.Equal(t, "2026q3", current.SnapshotID())
}
