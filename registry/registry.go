// Package registry implements Shadow Atlas's boundary registry (spec §4.2):
// the read-mostly, jurisdiction-indexed store of declared expectations
// (expected district count, governance kind, known overflow exceptions)
// plus the at-large set the tessellation validator consults before any
// geometric work.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shadowatlas/core/geometry"
	"github.com/shadowatlas/core/model"
)

// Registry is a single-writer, many-reader jurisdiction store. Mutations
// replace a jurisdiction's record and bump the registry version under the
// write lock (earlier records are not kept); readers always observe
// a point-in-time consistent map, mirroring the teacher's GeoIndex
// RWMutex-guarded map-of-maps discipline.
type Registry struct {
	mu sync.RWMutex

	registryDir string
	boundaryDir string

	byID map[string]*model.Jurisdiction
	// atLarge holds the jurisdiction ids for which geographic tessellation
	// is nonsensical, a structure distinct from the main index per spec §4.4.
	atLarge map[string]struct{}

	// boundaryPolygons lazily loads jurisdiction municipal boundary
	// geometry, kept out of the hot `byID` map because municipal boundary
	// rings can be large and most registry reads never need them.
	boundaryPolygons map[string]geometry.MultiPolygon
	loadedBoundaries map[string]bool

	version int
}

// New constructs an empty registry rooted at registryDir (for jurisdiction
// JSON documents) and boundaryDir (for the boundary polygon archive).
func New(registryDir, boundaryDir string) *Registry {
	return &Registry{
		registryDir:      registryDir,
		boundaryDir:      boundaryDir,
		byID:             make(map[string]*model.Jurisdiction),
		atLarge:          make(map[string]struct{}),
		boundaryPolygons: make(map[string]geometry.MultiPolygon),
		loadedBoundaries: make(map[string]bool),
	}
}

// jurisdictionDoc is the on-disk JSON shape for one jurisdiction record.
type jurisdictionDoc struct {
	ID                    string   `json:"id"`
	DisplayName           string   `json:"display_name"`
	Country               string   `json:"country"`
	Level                 string   `json:"level"`
	ParentID              string   `json:"parent_id,omitempty"`
	ExpectedDistrictCount *int     `json:"expected_district_count,omitempty"`
	GovernanceKind        string   `json:"governance_kind"`
	KnownOverflowRatio    *float64 `json:"known_overflow_ratio,omitempty"`
	RedistrictingCycle    string   `json:"redistricting_cycle,omitempty"`
	AtLarge               bool     `json:"at_large,omitempty"`
	WaterRatio            float64  `json:"water_ratio,omitempty"`
}

// LoadAll reads every jurisdiction document under registryDir into memory,
// the spec §4.2 startup load of "order 10^4 entries". Registry documents
// are plain files named "<jurisdiction_id>.json"; load order does not
// matter since every id is independent.
func (r *Registry) LoadAll() error {
	entries, err := os.ReadDir(r.registryDir)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrMissingRegistryDir, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(r.registryDir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		var doc jurisdictionDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}

		j := &model.Jurisdiction{
			ID:                    doc.ID,
			DisplayName:           doc.DisplayName,
			Country:               doc.Country,
			Level:                 model.Level(doc.Level),
			ParentID:              doc.ParentID,
			ExpectedDistrictCount: doc.ExpectedDistrictCount,
			GovernanceKind:        model.GovernanceKind(doc.GovernanceKind),
			KnownOverflowRatio:    doc.KnownOverflowRatio,
			RedistrictingCycle:    doc.RedistrictingCycle,
			WaterRatio:            doc.WaterRatio,
		}
		r.byID[j.ID] = j
		if doc.AtLarge {
			r.atLarge[j.ID] = struct{}{}
		}
	}

	r.version++
	return nil
}

// Get returns the jurisdiction for an id, or false if unknown.
func (r *Registry) Get(jurisdictionID string) (model.Jurisdiction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.byID[jurisdictionID]
	if !ok {
		return model.Jurisdiction{}, false
	}
	return *j, true
}

// ExpectedCount returns the jurisdiction's declared expected district
// count, or nil if unknown.
func (r *Registry) ExpectedCount(jurisdictionID string) *int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.byID[jurisdictionID]
	if !ok {
		return nil
	}
	return j.ExpectedDistrictCount
}

// IsAtLarge reports whether tessellation must be bypassed for this
// jurisdiction, consulting the dedicated at-large set before falling back
// to the jurisdiction's recorded governance kind.
func (r *Registry) IsAtLarge(jurisdictionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.atLarge[jurisdictionID]; ok {
		return true
	}
	if j, ok := r.byID[jurisdictionID]; ok {
		return j.IsAtLarge()
	}
	return false
}

// OverflowException returns the known overflow ratio recorded for a
// jurisdiction (e.g. consolidated city-parishes whose containment budget
// is deliberately wider), or nil if none.
func (r *Registry) OverflowException(jurisdictionID string) *float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.byID[jurisdictionID]
	if !ok {
		return nil
	}
	return j.KnownOverflowRatio
}

// Put stores j under its id while holding the write lock, replacing any
// earlier record for that id, and bumps the registry version. The earlier
// record is not kept. It is safe to call concurrently with readers and
// with other Put calls.
func (r *Registry) Put(j model.Jurisdiction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := j
	r.byID[j.ID] = &cp
	r.version++
}

// MarkAtLarge adds a jurisdiction id to the at-large set.
func (r *Registry) MarkAtLarge(jurisdictionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.atLarge[jurisdictionID] = struct{}{}
	r.version++
}

// Version returns the current mutation version, used by callers wanting
// to detect whether a point-in-time view went stale.
func (r *Registry) Version() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Count returns the number of loaded jurisdictions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// LoadBoundary lazily reads a jurisdiction's municipal boundary polygon
// from the boundary polygon archive, caching it so repeated callers (the
// validator re-running centroid sanity checks across a build) don't
// re-parse the file.
func (r *Registry) LoadBoundary(jurisdictionID string) (geometry.MultiPolygon, error) {
	r.mu.RLock()
	if r.loadedBoundaries[jurisdictionID] {
		mp := r.boundaryPolygons[jurisdictionID]
		r.mu.RUnlock()
		return mp, nil
	}
	r.mu.RUnlock()

	path := filepath.Join(r.boundaryDir, jurisdictionID+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrBoundaryNotFound, jurisdictionID, err)
	}

	var coords [][][]float64 // one ring per polygon, exterior only, for archived municipal outlines
	if err := json.Unmarshal(raw, &coords); err != nil {
		return nil, fmt.Errorf("parsing boundary %s: %w", jurisdictionID, err)
	}

	mp := make(geometry.MultiPolygon, 0, len(coords))
	for _, ring := range coords {
		r := make(geometry.Ring, 0, len(ring))
		for _, pt := range ring {
			if len(pt) != 2 {
				continue
			}
			r = append(r, geometry.Coordinate{Lat: pt[1], Lng: pt[0]})
		}
		mp = append(mp, geometry.Polygon{Exterior: r})
	}

	r.mu.Lock()
	r.boundaryPolygons[jurisdictionID] = mp
	r.loadedBoundaries[jurisdictionID] = true
	r.mu.Unlock()

	return mp, nil
}
