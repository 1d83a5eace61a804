// Package h3index wraps uber/h3-go with Shadow Atlas's coarse spatial
// prefilter: converting district/jurisdiction polygons to H3 cell covers,
// and converting a lookup point to a candidate cell and its neighbors so
// spatialindex can prune the R-tree query set before any ray casting runs.
package h3index

import (
	"errors"
	"fmt"
	"sort"

	"github.com/uber/h3-go/v4"

	"github.com/shadowatlas/core/geometry"
	"github.com/shadowatlas/core/model"
)

var (
	ErrInvalidCellID     = errors.New("h3index: invalid cell id")
	ErrInvalidResolution = errors.New("h3index: invalid resolution")
	ErrEmptyPolygon      = errors.New("h3index: empty polygon")
)

const (
	MinResolution = 0
	MaxResolution = 15

	// PrefilterResolution is the resolution spatialindex uses to bucket
	// district covers and lookup points before the R-tree narrows further
	// (spec §5: "H3 as a coarse prefilter", chosen so a cell's area is
	// comfortably smaller than the smallest admitted district but large
	// enough that a cover set stays small for city-scale jurisdictions).
	PrefilterResolution = 8
)

// CoarseResolutionFor returns the H3 resolution used to bucket districts
// at a given level. Coarser levels (congressional, state) get a coarser
// cell so their covers don't explode in size; finer levels (council,
// school) use PrefilterResolution.
func CoarseResolutionFor(level model.Level) int {
	switch level {
	case model.LevelCongressional, model.LevelStateUpper, model.LevelStateLower:
		return 6
	case model.LevelCounty:
		return 7
	default:
		return PrefilterResolution
	}
}

func cellFromString(cellID string) (h3.Cell, error) {
	var cell h3.Cell
	if err := cell.UnmarshalText([]byte(cellID)); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidCellID, cellID)
	}
	if !cell.IsValid() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidCellID, cellID)
	}
	return cell, nil
}

// CellForPoint returns the H3 cell id covering a coordinate at the given
// resolution.
func CellForPoint(c geometry.Coordinate, resolution int) (string, error) {
	if resolution < MinResolution || resolution > MaxResolution {
		return "", ErrInvalidResolution
	}
	cell := h3.LatLngToCell(h3.NewLatLng(c.Lat, c.Lng), resolution)
	return cell.String(), nil
}

// NeighborsOf returns the cell id plus its immediate ring-1 neighbors, the
// padding spatialindex applies around a lookup point's cell so candidates
// whose cover just misses the exact cell (because the district boundary
// crosses a cell edge near the point) still surface.
func NeighborsOf(cellID string) ([]string, error) {
	cell, err := cellFromString(cellID)
	if err != nil {
		return nil, err
	}
	disk := cell.GridDisk(1)
	out := make([]string, len(disk))
	for i, c := range disk {
		out[i] = c.String()
	}
	return out, nil
}

func ringToGeoLoop(r geometry.Ring) []h3.LatLng {
	loop := make([]h3.LatLng, len(r))
	for i, c := range r {
		loop[i] = h3.NewLatLng(c.Lat, c.Lng)
	}
	return loop
}

// CoverPolygon returns the set of H3 cell ids whose centers fall inside a
// polygon (including holes), the cover spatialindex stores alongside a
// district's R-tree entry.
func CoverPolygon(p geometry.Polygon, resolution int) ([]string, error) {
	if len(p.Exterior) < 3 {
		return nil, ErrEmptyPolygon
	}
	if resolution < MinResolution || resolution > MaxResolution {
		return nil, ErrInvalidResolution
	}

	geoPoly := h3.GeoPolygon{GeoLoop: ringToGeoLoop(p.Exterior)}
	for _, hole := range p.Holes {
		geoPoly.Holes = append(geoPoly.Holes, ringToGeoLoop(hole))
	}

	cells := h3.PolygonToCells(geoPoly, resolution)
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.String()
	}
	sort.Strings(out)
	return out, nil
}

// CoverMultiPolygon unions the covers of every member polygon.
func CoverMultiPolygon(mp geometry.MultiPolygon, resolution int) ([]string, error) {
	seen := make(map[string]struct{})
	for _, p := range mp {
		cells, err := CoverPolygon(p, resolution)
		if err != nil {
			return nil, err
		}
		for _, c := range cells {
			seen[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

// Parent returns the ancestor cell id at a coarser resolution.
func Parent(cellID string, parentResolution int) (string, error) {
	cell, err := cellFromString(cellID)
	if err != nil {
		return "", err
	}
	if parentResolution < MinResolution || parentResolution >= cell.Resolution() {
		return "", ErrInvalidResolution
	}
	return cell.Parent(parentResolution).String(), nil
}

// CellAreaM2 returns a cell's area, used to sanity-check prefilter
// resolution choices against a jurisdiction's municipal area.
func CellAreaM2(cellID string) (float64, error) {
	cell, err := cellFromString(cellID)
	if err != nil {
		return 0, err
	}
	return h3.CellAreaM2(cell), nil
}

// IsValidCell reports whether a string round-trips through H3's codec.
func IsValidCell(cellID string) bool {
	_, err := cellFromString(cellID)
	return err == nil
}
