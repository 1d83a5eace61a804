// Package geometry provides the closed set of geometric primitives Shadow
// Atlas's validator, snapshot builder, and spatial index depend on: point
// containment, spherical area, pairwise overlap/union/difference, bounding
// boxes, and polygon repair. All areas are computed on the WGS84 sphere in
// square meters, never planar.
package geometry

import (
	"errors"
	"math"
)

// Error definitions
var (
	ErrEmptyPolygon     = errors.New("polygon has no exterior ring")
	ErrDegenerateRing   = errors.New("ring has fewer than 3 points")
	ErrInvalidLatitude  = errors.New("latitude out of range")
	ErrInvalidLongitude = errors.New("longitude out of range")
)

// earthRadiusM is the mean radius of the WGS84 reference sphere, in meters.
// Areas computed with it are accurate to within the ellipsoid's ~0.3%
// flattening, well inside the tolerances in Tolerances.
const earthRadiusM = 6371008.8

// CoordinatePrecision is the number of fractional digits inputs are rounded
// to before any lookup or cache-key formation (spec §3: ~11cm precision).
const CoordinatePrecision = 6

// Coordinate is a WGS84 decimal-degree point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Round returns the coordinate with both components rounded to
// CoordinatePrecision fractional digits.
func (c Coordinate) Round() Coordinate {
	return Coordinate{Lat: roundTo(c.Lat, CoordinatePrecision), Lng: roundTo(c.Lng, CoordinatePrecision)}
}

// IsValid reports whether the coordinate lies within WGS84 bounds.
func (c Coordinate) IsValid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

func roundTo(v float64, digits int) float64 {
	scale := math.Pow(10, float64(digits))
	return math.Round(v*scale) / scale
}

// Ring is an ordered, closed-or-open sequence of coordinates. Callers are
// not required to repeat the first point as the last; Contains and AreaM2
// treat the ring as implicitly closed.
type Ring []Coordinate

// Polygon is a single exterior ring plus zero or more holes, in the
// exterior-first convention. Ring orientation is normalized on admission:
// exterior counter-clockwise, holes clockwise (see NormalizeOrientation).
type Polygon struct {
	Exterior Ring
	Holes    []Ring
}

// MultiPolygon is an ordered sequence of Polygons (e.g. a jurisdiction with
// offshore islands).
type MultiPolygon []Polygon

// IsValid reports whether the polygon's exterior ring has at least 3 points.
func (p Polygon) IsValid() bool {
	return len(p.Exterior) >= 3
}

// BoundingBox is a WGS84-aligned bounding rectangle.
type BoundingBox struct {
	MinLat, MinLng, MaxLat, MaxLng float64
}

// Contains reports whether the box contains the point (inclusive edges).
func (b BoundingBox) Contains(c Coordinate) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lng >= b.MinLng && c.Lng <= b.MaxLng
}

// Union returns the smallest bounding box containing both boxes.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return BoundingBox{
		MinLat: math.Min(b.MinLat, o.MinLat),
		MinLng: math.Min(b.MinLng, o.MinLng),
		MaxLat: math.Max(b.MaxLat, o.MaxLat),
		MaxLng: math.Max(b.MaxLng, o.MaxLng),
	}
}

// Intersects reports whether two bounding boxes overlap or touch.
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.MinLat <= o.MaxLat && b.MaxLat >= o.MinLat &&
		b.MinLng <= o.MaxLng && b.MaxLng >= o.MinLng
}

// BoundingBoxOf returns the tightest bounding box enclosing a ring.
func BoundingBoxOf(r Ring) BoundingBox {
	if len(r) == 0 {
		return BoundingBox{}
	}
	bb := BoundingBox{MinLat: r[0].Lat, MaxLat: r[0].Lat, MinLng: r[0].Lng, MaxLng: r[0].Lng}
	for _, pt := range r[1:] {
		bb.MinLat = math.Min(bb.MinLat, pt.Lat)
		bb.MaxLat = math.Max(bb.MaxLat, pt.Lat)
		bb.MinLng = math.Min(bb.MinLng, pt.Lng)
		bb.MaxLng = math.Max(bb.MaxLng, pt.Lng)
	}
	return bb
}

// PolygonBoundingBox returns the bounding box of a polygon's exterior ring.
// Holes never extend a polygon's bounding box so they are ignored.
func PolygonBoundingBox(p Polygon) BoundingBox {
	return BoundingBoxOf(p.Exterior)
}

// MultiPolygonBoundingBox returns the union of each member polygon's box.
func MultiPolygonBoundingBox(mp MultiPolygon) BoundingBox {
	var bb BoundingBox
	for i, p := range mp {
		pb := PolygonBoundingBox(p)
		if i == 0 {
			bb = pb
			continue
		}
		bb = bb.Union(pb)
	}
	return bb
}

// Contains reports whether point is inside polygon p, using ray casting
// with a horizontal ray cast toward +∞ longitude. Edges are treated as
// half-open: a point exactly on a west- or south-facing edge counts as
// inside, and one on an east- or north-facing edge does not. This keeps the
// predicate deterministic across platforms; callers that still get several
// matching districts resolve the tie by comparing district ids, not
// geometry.
func Contains(p Polygon, c Coordinate) bool {
	if !p.IsValid() {
		return false
	}
	bb := PolygonBoundingBox(p)
	if !bb.Contains(c) {
		return false
	}

	inside := pointInRing(p.Exterior, c)
	for _, hole := range p.Holes {
		if pointInRing(hole, c) {
			inside = !inside
		}
	}
	return inside
}

// MultiPolygonContains reports whether point is inside any member polygon.
func MultiPolygonContains(mp MultiPolygon, c Coordinate) bool {
	for _, p := range mp {
		if Contains(p, c) {
			return true
		}
	}
	return false
}

// pointInRing implements ray casting with the half-open-above convention:
// a horizontal ray from the point toward +∞ longitude is cast, and edges
// are treated as belonging to their lower endpoint's half-open interval so
// that vertex hits don't double-count. This mirrors the teacher's
// pointInRing in data/types.go, generalized to an explicit Ring type.
func pointInRing(ring Ring, c Coordinate) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		yi, xi := ring[i].Lat, ring[i].Lng
		yj, xj := ring[j].Lat, ring[j].Lng

		if (yi > c.Lat) != (yj > c.Lat) {
			xIntersect := (xj-xi)*(c.Lat-yi)/(yj-yi) + xi
			if c.Lng < xIntersect {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// signedRingArea returns the spherical excess area of ring in square
// meters, signed by winding direction (positive for CCW as seen from
// outside the sphere, using the standard longitude/latitude convention).
// This is an L'Huilier-free approximation suitable for the small-to-
// moderate polygons (city wards up to large counties) this system handles;
// it sums the contribution of each edge using the spherical trapezoid
// formula, which reduces to the planar shoelace formula in the small-angle
// limit and stays accurate at district scale.
func signedRingArea(ring Ring) float64 {
	n := len(ring)
	if n < 3 {
		return 0
	}
	const toRad = math.Pi / 180
	var sum float64
	for i := 0; i < n; i++ {
		a := ring[i]
		b := ring[(i+1)%n]
		lng1, lat1 := a.Lng*toRad, a.Lat*toRad
		lng2, lat2 := b.Lng*toRad, b.Lat*toRad
		sum += (lng2 - lng1) * (2 + math.Sin(lat1) + math.Sin(lat2))
	}
	return -sum * earthRadiusM * earthRadiusM / 2
}

// AreaM2 returns the area of polygon p in square meters on the WGS84
// sphere, exterior area minus the area of each hole.
func AreaM2(p Polygon) float64 {
	if !p.IsValid() {
		return 0
	}
	area := math.Abs(signedRingArea(p.Exterior))
	for _, hole := range p.Holes {
		area -= math.Abs(signedRingArea(hole))
	}
	if area < 0 {
		return 0
	}
	return area
}

// MultiPolygonAreaM2 sums the area of every member polygon.
func MultiPolygonAreaM2(mp MultiPolygon) float64 {
	var total float64
	for _, p := range mp {
		total += AreaM2(p)
	}
	return total
}

// IsCounterClockwise reports whether a ring winds counter-clockwise as
// seen in standard lat/lng orientation.
func IsCounterClockwise(r Ring) bool {
	return signedRingArea(r) > 0
}

// NormalizeOrientation returns a copy of p with its exterior ring wound
// counter-clockwise and every hole wound clockwise, the admission-time
// convention spec §3 requires.
func NormalizeOrientation(p Polygon) Polygon {
	out := Polygon{Exterior: normalizeRing(p.Exterior, true)}
	if len(p.Holes) > 0 {
		out.Holes = make([]Ring, len(p.Holes))
		for i, h := range p.Holes {
			out.Holes[i] = normalizeRing(h, false)
		}
	}
	return out
}

func normalizeRing(r Ring, wantCCW bool) Ring {
	if len(r) == 0 {
		return r
	}
	if IsCounterClockwise(r) == wantCCW {
		return r
	}
	reversed := make(Ring, len(r))
	for i, pt := range r {
		reversed[len(r)-1-i] = pt
	}
	return reversed
}

// MinimumDistanceM returns the minimum great-circle distance in meters
// between any vertex of a and any vertex of b. This is a vertex-sampled
// approximation sufficient for indexing/pruning use; exact edge-to-edge
// distance is not required by any spec operation.
func MinimumDistanceM(a, b Polygon) float64 {
	if len(a.Exterior) == 0 || len(b.Exterior) == 0 {
		return math.Inf(1)
	}
	best := math.Inf(1)
	for _, pa := range a.Exterior {
		for _, pb := range b.Exterior {
			d := HaversineDistanceM(pa, pb)
			if d < best {
				best = d
			}
		}
	}
	return best
}

// HaversineDistanceM returns the great-circle distance between two
// coordinates in meters.
func HaversineDistanceM(a, b Coordinate) float64 {
	const toRad = math.Pi / 180
	lat1, lat2 := a.Lat*toRad, b.Lat*toRad
	dLat := (b.Lat - a.Lat) * toRad
	dLng := (b.Lng - a.Lng) * toRad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}

// Centroid returns the vertex-averaged centroid of a polygon's exterior
// ring. This is an approximation (not the area-weighted centroid) but is
// sufficient for the centroid-displacement sanity gate in spec §4.3, which
// only needs a rough "is this geographically the right place" signal.
func Centroid(p Polygon) Coordinate {
	if len(p.Exterior) == 0 {
		return Coordinate{}
	}
	var sumLat, sumLng float64
	for _, pt := range p.Exterior {
		sumLat += pt.Lat
		sumLng += pt.Lng
	}
	n := float64(len(p.Exterior))
	return Coordinate{Lat: sumLat / n, Lng: sumLng / n}
}

// MultiPolygonCentroid returns the area-weighted centroid across member
// polygons' vertex-averaged centroids.
func MultiPolygonCentroid(mp MultiPolygon) Coordinate {
	var sumLat, sumLng, sumArea float64
	for _, p := range mp {
		a := AreaM2(p)
		if a == 0 {
			continue
		}
		c := Centroid(p)
		sumLat += c.Lat * a
		sumLng += c.Lng * a
		sumArea += a
	}
	if sumArea == 0 {
		return Coordinate{}
	}
	return Coordinate{Lat: sumLat / sumArea, Lng: sumLng / sumArea}
}
