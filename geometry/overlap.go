package geometry

import "math"

// Tolerances bundles every magic number the tessellation validator uses
// into one explicit, documented configuration struct (spec §4.1: "exposed
// as a single configuration struct, not free floats").
type Tolerances struct {
	// OverlapEpsilonM2 is the pairwise overlap area, in square meters,
	// below which an overlap is treated as edge precision noise rather
	// than a data error (default ~37 acres).
	OverlapEpsilonM2 float64

	// CoverageMin is the minimum union-area/boundary-area ratio for a
	// tessellation to satisfy Axiom 3 (Exhaustivity).
	CoverageMin float64

	// CoverageMaxInland is the maximum allowed ratio for non-coastal
	// jurisdictions.
	CoverageMaxInland float64

	// CoverageMaxCoastal is the maximum allowed ratio for jurisdictions
	// whose WaterRatio exceeds CoastalWaterRatio.
	CoverageMaxCoastal float64

	// CoastalWaterRatio is the water-area fraction above which a
	// jurisdiction is classified coastal.
	CoastalWaterRatio float64

	// CentroidDisplacementKM is the sanity-check threshold: a candidate
	// set whose union centroid sits further than this from the
	// jurisdiction's municipal centroid fails the centroid sanity gate.
	CentroidDisplacementKM float64

	// SliverPerimeterAreaRatio is the perimeter²/area threshold above
	// which a pairwise overlap is classified as a thin sliver and
	// excluded from the exclusivity budget regardless of its area.
	SliverPerimeterAreaRatio float64
}

// DefaultTolerances returns the values named explicitly in spec §4.1.
func DefaultTolerances() Tolerances {
	return Tolerances{
		OverlapEpsilonM2:         150_000,
		CoverageMin:              0.85,
		CoverageMaxInland:        1.15,
		CoverageMaxCoastal:       2.00,
		CoastalWaterRatio:        0.15,
		CentroidDisplacementKM:   50,
		SliverPerimeterAreaRatio: 50,
	}
}

// CoverageMaxFor returns the applicable upper coverage bound for a
// jurisdiction given its water ratio.
func (t Tolerances) CoverageMaxFor(waterRatio float64) float64 {
	if waterRatio > t.CoastalWaterRatio {
		return t.CoverageMaxCoastal
	}
	return t.CoverageMaxInland
}

// IsCoastal reports whether waterRatio classifies a jurisdiction as
// coastal under these tolerances.
func (t Tolerances) IsCoastal(waterRatio float64) bool {
	return waterRatio > t.CoastalWaterRatio
}

// clipRingToBBox performs a Sutherland-Hodgman clip of ring against a
// bounding box. It's the core primitive IntersectionAreaM2 uses: rather
// than implement full polygon-polygon clipping (unnecessary precision for
// overlap-budget checks at district scale), overlap area is approximated
// by clipping each polygon's exterior to the intersection of the two
// bounding boxes and taking the smaller of the two clipped areas. For the
// common case relevant to Axiom 2 — two district polygons that are either
// disjoint, identical, or share a thin sliver along a common edge — this is
// a fast proxy; no exact polygon-polygon clipping is done anywhere in this
// package.
func clipRingToBBox(ring Ring, box BoundingBox) Ring {
	if len(ring) == 0 {
		return nil
	}
	out := ring
	out = clipEdge(out, func(c Coordinate) bool { return c.Lng >= box.MinLng }, func(a, b Coordinate) Coordinate {
		return lerpLng(a, b, box.MinLng)
	})
	out = clipEdge(out, func(c Coordinate) bool { return c.Lng <= box.MaxLng }, func(a, b Coordinate) Coordinate {
		return lerpLng(a, b, box.MaxLng)
	})
	out = clipEdge(out, func(c Coordinate) bool { return c.Lat >= box.MinLat }, func(a, b Coordinate) Coordinate {
		return lerpLat(a, b, box.MinLat)
	})
	out = clipEdge(out, func(c Coordinate) bool { return c.Lat <= box.MaxLat }, func(a, b Coordinate) Coordinate {
		return lerpLat(a, b, box.MaxLat)
	})
	return out
}

func lerpLng(a, b Coordinate, lng float64) Coordinate {
	if b.Lng == a.Lng {
		return Coordinate{Lat: a.Lat, Lng: lng}
	}
	t := (lng - a.Lng) / (b.Lng - a.Lng)
	return Coordinate{Lat: a.Lat + t*(b.Lat-a.Lat), Lng: lng}
}

func lerpLat(a, b Coordinate, lat float64) Coordinate {
	if b.Lat == a.Lat {
		return Coordinate{Lat: lat, Lng: a.Lng}
	}
	t := (lat - a.Lat) / (b.Lat - a.Lat)
	return Coordinate{Lat: lat, Lng: a.Lng + t*(b.Lng-a.Lng)}
}

func clipEdge(poly Ring, inside func(Coordinate) bool, intersect func(a, b Coordinate) Coordinate) Ring {
	if len(poly) == 0 {
		return nil
	}
	var out Ring
	prev := poly[len(poly)-1]
	prevInside := inside(prev)
	for _, cur := range poly {
		curInside := inside(cur)
		switch {
		case curInside && prevInside:
			out = append(out, cur)
		case curInside && !prevInside:
			out = append(out, intersect(prev, cur), cur)
		case !curInside && prevInside:
			out = append(out, intersect(prev, cur))
		}
		prev, prevInside = cur, curInside
	}
	return out
}

// IntersectionAreaM2 approximates the overlap area between two polygons
// in square meters. It first rejects disjoint bounding boxes for free,
// then clips each polygon's exterior ring to the other's bounding box and
// measures the clipped-region area, which is exact when one polygon's
// bounding box fully contains the overlap region (true for the thin-sliver
// and near-duplicate cases Axiom 2 cares about) and a safe overestimate
// otherwise — an overestimate only makes the exclusivity axiom stricter,
// never silently permissive.
func IntersectionAreaM2(a, b Polygon) float64 {
	region, ok := IntersectionPolygon(a, b)
	if !ok {
		return 0
	}
	return AreaM2(region)
}

// IntersectionPolygon returns the clipped overlap region between a and b,
// using the same bounding-box-clip approximation IntersectionAreaM2 is
// built on, and reports whether the two polygons overlap at all. Callers
// needing the overlap region's own shape (e.g. a sliver test against the
// intersection itself, rather than against either input polygon) use this
// instead of IntersectionAreaM2.
func IntersectionPolygon(a, b Polygon) (Polygon, bool) {
	boxA := PolygonBoundingBox(a)
	boxB := PolygonBoundingBox(b)
	if !boxA.Intersects(boxB) {
		return Polygon{}, false
	}
	overlap := BoundingBox{
		MinLat: math.Max(boxA.MinLat, boxB.MinLat),
		MaxLat: math.Min(boxA.MaxLat, boxB.MaxLat),
		MinLng: math.Max(boxA.MinLng, boxB.MinLng),
		MaxLng: math.Min(boxA.MaxLng, boxB.MaxLng),
	}

	clippedA := clipRingToBBox(a.Exterior, overlap)
	clippedB := clipRingToBBox(b.Exterior, overlap)
	if len(clippedA) < 3 || len(clippedB) < 3 {
		return Polygon{}, false
	}

	areaA := math.Abs(signedRingArea(clippedA))
	areaB := math.Abs(signedRingArea(clippedB))
	// The true overlap is at most the smaller of the two clipped regions;
	// using the minimum keeps the estimate from double-penalizing when
	// one polygon's clip is much larger than the true intersection.
	if areaA < areaB {
		return Polygon{Exterior: clippedA}, true
	}
	return Polygon{Exterior: clippedB}, true
}

// UnionAreaM2 returns the area of the union of a set of polygons, summing
// individual areas and subtracting pairwise overlaps (inclusion-exclusion
// truncated at the pairwise term, which is accurate whenever triple
// overlaps are themselves within OVERLAP_EPSILON_M2 of zero — the regime
// Axiom 2 is meant to enforce before Axiom 3 ever runs).
func UnionAreaM2(polys []Polygon) float64 {
	var total float64
	for _, p := range polys {
		total += AreaM2(p)
	}
	for i := 0; i < len(polys); i++ {
		for j := i + 1; j < len(polys); j++ {
			total -= IntersectionAreaM2(polys[i], polys[j])
		}
	}
	if total < 0 {
		return 0
	}
	return total
}

// DifferenceAreaM2 returns the area of a not covered by b, i.e.
// AreaM2(a) - IntersectionAreaM2(a, b).
func DifferenceAreaM2(a, b Polygon) float64 {
	diff := AreaM2(a) - IntersectionAreaM2(a, b)
	if diff < 0 {
		return 0
	}
	return diff
}

// Perimeter returns the sum of great-circle edge lengths of a ring, in
// meters.
func Perimeter(r Ring) float64 {
	n := len(r)
	if n < 2 {
		return 0
	}
	var total float64
	for i := 0; i < n; i++ {
		total += HaversineDistanceM(r[i], r[(i+1)%n])
	}
	return total
}

// IsSliver reports whether a polygon's perimeter²/area ratio exceeds the
// tolerance's sliver threshold — spec §4.3's rule that thin elongated
// overlaps are edge precision noise regardless of their absolute area.
func IsSliver(p Polygon, t Tolerances) bool {
	area := AreaM2(p)
	if area <= 0 {
		return true
	}
	perim := Perimeter(p.Exterior)
	return (perim*perim)/area > t.SliverPerimeterAreaRatio
}
