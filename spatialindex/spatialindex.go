// Package spatialindex implements Shadow Atlas's in-memory spatial index
// (spec §4.6): a per-leaf-bounding-box R-tree over admitted district
// polygons, with an H3 coarse prefilter ahead of exact ray-cast
// containment, rebuilt atomically per snapshot and safe for concurrent
// readers. The index is not written to disk.
package spatialindex

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"

	"github.com/shadowatlas/core/geometry"
	"github.com/shadowatlas/core/h3index"
	"github.com/shadowatlas/core/model"
)

var distanceInf = math.Inf(1)

// treeMinChildren/treeMaxChildren mirror the fanout the teacher's own
// R-tree consumer uses for regional-scale geometry; district counts per
// snapshot are of a similar order of magnitude.
const (
	treeMinChildren = 25
	treeMaxChildren = 50
)

// entry is the R-tree payload: a district plus the bounding box rtree
// indexes on. It implements the rtree package's bounding-box interface
// via Bounds().
type entry struct {
	district model.District
	box      geometry.BoundingBox
	cover    map[string]struct{}
}

func (e *entry) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: e.box.MinLng, Y: e.box.MinLat},
		Max: geom.Point{X: e.box.MaxLng, Y: e.box.MaxLat},
	}
}

// Index is a read-only spatial index over one snapshot's admitted
// districts, each held in memory with its full polygon. A new Index is
// built per snapshot and
// swapped in atomically by the caller (spec §4.6: "readers see either the
// previous or the new index, never a partial state").
type Index struct {
	tree       *rtree.Rtree
	byID       map[model.DistrictId]*entry
	byLevel    map[model.Level][]*entry
	byCell     map[string][]*entry
	snapshotID string
}

// Build constructs an Index over a snapshot's admitted districts.
func Build(snapshotID string, districts []model.District) (*Index, error) {
	idx := &Index{
		tree:       rtree.NewTree(treeMinChildren, treeMaxChildren),
		byID:       make(map[model.DistrictId]*entry, len(districts)),
		byLevel:    make(map[model.Level][]*entry),
		byCell:     make(map[string][]*entry),
		snapshotID: snapshotID,
	}

	for _, d := range districts {
		box := geometry.MultiPolygonBoundingBox(d.Polygon)
		e := &entry{district: d, box: box}

		cover, err := h3index.CoverMultiPolygon(d.Polygon, h3index.CoarseResolutionFor(d.Level))
		if err != nil {
			return nil, fmt.Errorf("covering district %s: %w", d.ID, err)
		}
		e.cover = make(map[string]struct{}, len(cover))
		for _, c := range cover {
			e.cover[c] = struct{}{}
			idx.byCell[c] = append(idx.byCell[c], e)
		}

		idx.tree.Insert(e)
		idx.byID[d.ID] = e
		idx.byLevel[d.Level] = append(idx.byLevel[d.Level], e)
	}

	return idx, nil
}

// SnapshotID returns the snapshot this index was built from.
func (idx *Index) SnapshotID() string {
	return idx.snapshotID
}

// HasLevel reports whether any admitted district in this index carries the
// given level, letting callers distinguish "filtered to an empty level" from
// an ordinary no-match lookup.
func (idx *Index) HasLevel(level model.Level) bool {
	return len(idx.byLevel[level]) > 0
}

// Get returns the district with the given id, if admitted into this
// snapshot.
func (idx *Index) Get(id model.DistrictId) (model.District, bool) {
	e, ok := idx.byID[id]
	if !ok {
		return model.District{}, false
	}
	return e.district, true
}

func levelAllowed(levels []model.Level, level model.Level) bool {
	if len(levels) == 0 {
		return true
	}
	for _, l := range levels {
		if l == level {
			return true
		}
	}
	return false
}

// Locate returns the single district whose polygon contains point,
// restricted to levels if non-empty. If multiple districts match
// (pathological overlap within epsilon), the lowest canonical id wins
// (spec §4.6). When no prefilter candidate matches, the containment test
// is repeated over the exact R-tree bounding-box search, so a coarse H3
// cover never causes a false negative.
func (idx *Index) Locate(point geometry.Coordinate, levels []model.Level) (model.District, bool, error) {
	candidates, err := idx.candidatesNear(point)
	if err != nil {
		return model.District{}, false, err
	}

	var matches []model.District
	for _, e := range candidates {
		if !levelAllowed(levels, e.district.Level) {
			continue
		}
		if geometry.MultiPolygonContains(e.district.Polygon, point) {
			matches = append(matches, e.district)
		}
	}
	if len(matches) == 0 {
		bounds := &geom.Bounds{Min: geom.Point{X: point.Lng, Y: point.Lat}, Max: geom.Point{X: point.Lng, Y: point.Lat}}
		for _, c := range idx.tree.SearchIntersect(bounds) {
			e := c.(*entry)
			if levelAllowed(levels, e.district.Level) && geometry.MultiPolygonContains(e.district.Polygon, point) {
				matches = append(matches, e.district)
			}
		}
	}
	if len(matches) == 0 {
		return model.District{}, false, nil
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches[0], true, nil
}

// candidatesNear narrows candidates first by the H3 coarse prefilter
// (the cell containing point plus its ring-1 neighbors, to catch
// boundaries that cross a cell edge near point), falling back to a full
// R-tree bounding-box search when the prefilter yields nothing (a point
// exactly on a cell whose neighbors were computed at a different
// resolution than the district's cover).
func (idx *Index) candidatesNear(point geometry.Coordinate) ([]*entry, error) {
	cellID, err := h3index.CellForPoint(point, h3index.PrefilterResolution)
	if err != nil {
		return nil, fmt.Errorf("computing prefilter cell: %w", err)
	}
	neighbors, err := h3index.NeighborsOf(cellID)
	if err != nil {
		return nil, fmt.Errorf("computing prefilter neighbors: %w", err)
	}

	seen := make(map[model.DistrictId]struct{})
	var out []*entry
	for _, n := range neighbors {
		for _, e := range idx.byCell[n] {
			if _, ok := seen[e.district.ID]; ok {
				continue
			}
			seen[e.district.ID] = struct{}{}
			out = append(out, e)
		}
	}
	if len(out) > 0 {
		return out, nil
	}

	// Prefilter miss: fall back to the exact R-tree bounding-box search
	// around the point.
	bounds := &geom.Bounds{Min: geom.Point{X: point.Lng, Y: point.Lat}, Max: geom.Point{X: point.Lng, Y: point.Lat}}
	for _, c := range idx.tree.SearchIntersect(bounds) {
		e := c.(*entry)
		out = append(out, e)
	}
	return out, nil
}

// QueryBBox returns every district whose bounding box intersects box,
// restricted to levels if non-empty.
func (idx *Index) QueryBBox(box geometry.BoundingBox, levels []model.Level) []model.District {
	bounds := &geom.Bounds{Min: geom.Point{X: box.MinLng, Y: box.MinLat}, Max: geom.Point{X: box.MaxLng, Y: box.MaxLat}}
	var out []model.District
	for _, c := range idx.tree.SearchIntersect(bounds) {
		e := c.(*entry)
		if levelAllowed(levels, e.district.Level) {
			out = append(out, e.district)
		}
	}
	return out
}

// QueryRadius returns every district that contains point or has a vertex
// within radiusM of it (vertex-sampled distance, as in Nearest), restricted
// to levels if non-empty. A district whose edge passes within radiusM with
// no vertex that close is not returned.
func (idx *Index) QueryRadius(point geometry.Coordinate, radiusM float64, levels []model.Level) []model.District {
	latPad := radiusM / 110_000 // a degree of latitude is never shorter than ~110.5 km, so this pad is a safe overestimate
	lngPad := latPad / math.Cos(point.Lat*math.Pi/180)
	box := geometry.BoundingBox{
		MinLat: point.Lat - latPad, MaxLat: point.Lat + latPad,
		MinLng: point.Lng - lngPad, MaxLng: point.Lng + lngPad,
	}

	pointPoly := geometry.Polygon{Exterior: geometry.Ring{point}}

	var out []model.District
	for _, d := range idx.QueryBBox(box, levels) {
		if geometry.MultiPolygonContains(d.Polygon, point) || distanceToMultiPolygon(pointPoly, d.Polygon) <= radiusM {
			out = append(out, d)
		}
	}
	return out
}

func distanceToMultiPolygon(pointPoly geometry.Polygon, mp geometry.MultiPolygon) float64 {
	best := distanceInf
	for _, p := range mp {
		if d := geometry.MinimumDistanceM(pointPoly, p); d < best {
			best = d
		}
	}
	return best
}

// NearestMatch is one result from Nearest: a district and its distance
// from the query point.
type NearestMatch struct {
	District  model.District
	DistanceM float64
}

// Nearest returns the k closest districts to point by vertex-sampled
// minimum distance, restricted to levels if non-empty.
func (idx *Index) Nearest(point geometry.Coordinate, k int, levels []model.Level) []NearestMatch {
	pointPoly := geometry.Polygon{Exterior: geometry.Ring{point}}

	var all []NearestMatch
	for _, e := range idx.byID {
		if !levelAllowed(levels, e.district.Level) {
			continue
		}
		d := distanceToMultiPolygon(pointPoly, e.district.Polygon)
		all = append(all, NearestMatch{District: e.district, DistanceM: d})
	}

	sort.Slice(all, func(i, j int) bool { return all[i].DistanceM < all[j].DistanceM })
	if k < len(all) {
		all = all[:k]
	}
	return all
}

// Registry holds the currently live Index behind an RWMutex-guarded
// pointer, letting a snapshot rebuild swap in a new Index without ever
// mutating data an in-flight reader holds (spec §5 "Serve side").
type Registry struct {
	mu      sync.RWMutex
	current *Index
}

// NewRegistry constructs an empty registry; Swap must be called once a
// first Index is built before any lookups can succeed.
func NewRegistry() *Registry {
	return &Registry{}
}

// Swap atomically replaces the live index. Any handle obtained via
// Current before the swap remains valid and unaffected.
func (r *Registry) Swap(idx *Index) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = idx
}

// Current returns the live index, or false if none has been published
// yet.
func (r *Registry) Current() (*Index, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return nil, false
	}
	return r.current, true
}
