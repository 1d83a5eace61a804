package h3index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowatlas/core/geometry"
	"github.com/shadowatlas/core/model"
)

func TestCoarseResolutionFor(t *testing.T) {
	assert.Equal(t, 6, CoarseResolutionFor(model.LevelCongressional))
	assert.Equal(t, 7, CoarseResolutionFor(model.LevelCounty))
	assert.Equal(t, PrefilterResolution, CoarseResolutionFor(model.LevelCouncil))
}

func TestCellForPointRoundTrips(t *testing.T) {
	cellID, err := CellForPoint(geometry.Coordinate{Lat: 37.7749, Lng: -122.4194}, 8)
	require.NoError(t, err)
	assert.True(t, IsValidCell(cellID))
}

func TestCellForPointInvalidResolution(t *testing.T) {
	_, err := CellForPoint(geometry.Coordinate{Lat: 0, Lng: 0}, 99)
	assert.ErrorIs(t, err, ErrInvalidResolution)
}

func TestNeighborsOfIncludesSelf(t *testing.T) {
	cellID, err := CellForPoint(geometry.Coordinate{Lat: 37.7749, Lng: -122.4194}, 8)
	require.NoError(t, err)

	neighbors, err := NeighborsOf(cellID)
	require.NoError(t, err)
	assert.Contains(t, neighbors, cellID)
	assert.GreaterOrEqual(t, len(neighbors), 6)
}

func TestCoverPolygonNonEmpty(t *testing.T) {
	square := geometry.Polygon{Exterior: geometry.Ring{
		{Lat: 37.70, Lng: -122.50},
		{Lat: 37.70, Lng: -122.40},
		{Lat: 37.80, Lng: -122.40},
		{Lat: 37.80, Lng: -122.50},
	}}

	cells, err := CoverPolygon(square, 8)
	require.NoError(t, err)
	assert.NotEmpty(t, cells)
}

func TestCoverPolygonEmptyExterior(t *testing.T) {
	_, err := CoverPolygon(geometry.Polygon{}, 8)
	assert.ErrorIs(t, err, ErrEmptyPolygon)
}
