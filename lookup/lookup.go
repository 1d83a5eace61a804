// Package lookup implements Shadow Atlas's spatial lookup service (spec
// §4.7): resolving a point to its containing districts against the
// current published snapshot, with the three documented caching tiers
// and the spec §7 lookup failure semantics. Grounded on the teacher's
// `data/h3.go` point-to-district resolution flow (GetH3CellInfo /
// FindACAtPoint), generalized from a single at-a-time cell lookup to the
// filtered, multi-level, proof-bearing contract this spec requires.
package lookup

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shadowatlas/core/geometry"
	"github.com/shadowatlas/core/model"
	"github.com/shadowatlas/core/spatialindex"
)

// Filters narrows a lookup (spec §4.7).
type Filters struct {
	Levels          []model.Level
	AsOf            string
	IncludeGeometry bool
	IncludeProof    bool
}

// DefaultFilters returns the spec's documented defaults: every level, the
// current snapshot, geometry excluded, proof included.
func DefaultFilters() Filters {
	return Filters{IncludeProof: true}
}

// Match is one district a lookup resolved.
type Match struct {
	District          model.District     `json:"district"`
	Proof             *model.MerkleProof `json:"proof,omitempty"`
	ProvenanceSummary string             `json:"provenance_summary"`
}

// CacheInfo reports which tier answered a lookup and how stale it may be.
type CacheInfo struct {
	Hit     bool   `json:"hit"`
	AgeS    uint64 `json:"age_s"`
	MaxAgeS uint64 `json:"max_age_s"`
}

// Response is the logical, transport-agnostic lookup result (spec §4.7).
// A thin serving collaborator outside this package maps it onto HTTP.
type Response struct {
	Matches   []Match        `json:"matches"`
	Snapshot  model.Snapshot `json:"snapshot"`
	Cache     CacheInfo      `json:"cache"`
	LatencyMs uint32         `json:"latency_ms"`
	Warning   string         `json:"warning,omitempty"`
}

// ArtifactCache is the tier-1 immutable artifact cache (spec §4.7):
// serialized responses keyed by (rounded_point, filters, snapshot_id),
// safe to keep until a new snapshot is published because snapshots never
// mutate. Grounded on the redis Get/Set/TTL shape of SoySergo's
// cache_repository.go.
type ArtifactCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Store is the tier-3 cold store: on-disk snapshot directories addressable
// by snapshot id.
type Store interface {
	LoadSnapshot(snapshotID string) (model.Snapshot, []model.District, []model.MerkleProof, error)
}

// snapshotHandle is the tier-2 hot bundle for one published snapshot: its
// spatial index plus the proofs needed to answer a query without a disk
// read on the common path.
type snapshotHandle struct {
	header model.Snapshot
	index  *spatialindex.Index
	proofs map[model.DistrictId]model.MerkleProof
}

func newHandle(header model.Snapshot, idx *spatialindex.Index, districts []model.District, proofs []model.MerkleProof) (*snapshotHandle, error) {
	// The builder stores one proof per padded leaf, so a tree padded to a
	// power of two carries more proofs than districts.
	if len(proofs) < len(districts) {
		return nil, fmt.Errorf("snapshot %s: %d districts but only %d proofs", header.SnapshotID, len(districts), len(proofs))
	}
	byID := make(map[model.DistrictId]model.MerkleProof, len(districts))
	for i, d := range districts {
		byID[d.ID] = proofs[i]
	}
	return &snapshotHandle{header: header, index: idx, proofs: byID}, nil
}

// Service answers lookups against whichever snapshot is current, keeping
// superseded snapshots addressable by as_of until explicitly retired
// (spec §5: "old snapshot files are retained until the last handle is
// dropped").
type Service struct {
	mu       sync.RWMutex
	current  *snapshotHandle
	byID     map[string]*snapshotHandle
	store    Store
	cache    ArtifactCache
	cacheTTL time.Duration
	now      func() time.Time
}

// New constructs a lookup service. cache may be nil to disable the
// tier-1 artifact cache.
func New(store Store, cache ArtifactCache, cacheTTL time.Duration) *Service {
	return &Service{
		byID:     make(map[string]*snapshotHandle),
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Publish loads snapshotID from the store, builds its spatial index, and
// makes it the current snapshot. The previously current snapshot stays
// addressable by as_of.
func (s *Service) Publish(snapshotID string) error {
	header, districts, proofs, err := s.store.LoadSnapshot(snapshotID)
	if err != nil {
		return err
	}
	idx, err := spatialindex.Build(snapshotID, districts)
	if err != nil {
		return fmt.Errorf("building index for %s: %w", snapshotID, err)
	}
	handle, err := newHandle(header, idx, districts, proofs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = handle
	s.byID[snapshotID] = handle
	return nil
}

// Retire drops a superseded snapshot's handle once nothing references it.
func (s *Service) Retire(snapshotID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.header.SnapshotID == snapshotID {
		return
	}
	delete(s.byID, snapshotID)
}

// Lookup resolves point to its containing districts under filters (spec
// §4.7's public contract).
func (s *Service) Lookup(ctx context.Context, point geometry.Coordinate, filters Filters) (Response, error) {
	start := s.now()
	point = point.Round()

	handle, err := s.resolveHandle(filters.AsOf)
	if err != nil {
		return Response{}, err
	}

	key := cacheKeyFor(point, filters, handle.header.SnapshotID)
	if s.cache != nil {
		if resp, ok := s.readCache(ctx, key); ok {
			resp.LatencyMs = uint32(s.now().Sub(start).Milliseconds())
			return resp, nil
		}
	}

	resp, err := s.resolve(handle, point, filters)
	if err != nil {
		return Response{}, err
	}
	resp.Cache = CacheInfo{Hit: false, MaxAgeS: uint64(s.cacheTTL.Seconds())}
	resp.LatencyMs = uint32(s.now().Sub(start).Milliseconds())

	if s.cache != nil {
		s.writeCache(ctx, key, resp)
	}
	return resp, nil
}

func (s *Service) resolveHandle(asOf string) (*snapshotHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if asOf == "" {
		if s.current == nil {
			return nil, model.ErrSnapshotMissing
		}
		return s.current, nil
	}
	handle, ok := s.byID[asOf]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrSnapshotMissing, asOf)
	}
	return handle, nil
}

func (s *Service) resolve(handle *snapshotHandle, point geometry.Coordinate, filters Filters) (Response, error) {
	var warning string
	if len(filters.Levels) > 0 && !anyLevelPresent(handle.index, filters.Levels) {
		warning = "requested level(s) have zero admitted districts in this snapshot"
	}

	d, ok, err := handle.index.Locate(point, filters.Levels)
	if err != nil {
		return Response{}, fmt.Errorf("locating point: %w", err)
	}
	if !ok {
		return Response{Matches: nil, Snapshot: handle.header, Warning: warning}, nil
	}

	match := Match{District: d, ProvenanceSummary: provenanceSummary(d.Provenance)}
	if !filters.IncludeGeometry {
		match.District.Polygon = nil
	}
	if filters.IncludeProof {
		if p, ok := handle.proofs[d.ID]; ok {
			match.Proof = &p
		}
	}

	return Response{Matches: []Match{match}, Snapshot: handle.header, Warning: warning}, nil
}

func anyLevelPresent(idx *spatialindex.Index, levels []model.Level) bool {
	for _, l := range levels {
		if idx.HasLevel(l) {
			return true
		}
	}
	return false
}

func provenanceSummary(p model.Provenance) string {
	return fmt.Sprintf("%s (%s, acquired %s)", p.SourceURL, p.AuthorityLevel, p.AcquiredAt.Format("2006-01-02"))
}

func cacheKeyFor(point geometry.Coordinate, filters Filters, snapshotID string) string {
	return fmt.Sprintf("lookup:%s:%.6f,%.6f:levels=%s:geom=%t:proof=%t",
		snapshotID, point.Lat, point.Lng, levelsKey(filters.Levels), filters.IncludeGeometry, filters.IncludeProof)
}

func levelsKey(levels []model.Level) string {
	if len(levels) == 0 {
		return "all"
	}
	sorted := make([]string, len(levels))
	for i, l := range levels {
		sorted[i] = string(l)
	}
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
