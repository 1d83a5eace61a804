// Package model defines Shadow Atlas's spec §3 data model: the shared
// types every other package builds on (District, Jurisdiction, Provenance,
// TessellationProof, QuarantineEntry, Snapshot, MerkleProof, and the
// upstream CandidateDistrictSet contract), plus the spec §7 error
// taxonomy as typed sentinel values grouped by concern.
package model

import (
	"errors"
	"time"

	"github.com/shadowatlas/core/geometry"
)

// Error definitions, grouped by the taxonomy in spec §7. Each is a
// sentinel compared with errors.Is; the group a sentinel belongs to is
// shown by its message prefix.
var (
	// Config errors: fatal at startup, never at runtime.
	ErrMissingRegistryDir   = errors.New("config: registry directory not set")
	ErrMissingSnapshotDir   = errors.New("config: snapshot directory not set")
	ErrMissingQuarantineDir = errors.New("config: quarantine directory not set")
	ErrUnknownHashAlgorithm = errors.New("config: unknown leaf hash algorithm")

	// Ingestion errors: candidate rejected, not retried.
	ErrMalformedPolygon    = errors.New("ingestion: malformed candidate polygon")
	ErrNonWGS84Coordinate  = errors.New("ingestion: coordinate outside WGS84 bounds")
	ErrMissingJurisdiction = errors.New("ingestion: candidate set has no jurisdiction id")

	// Validation rejection: candidate quarantined.
	ErrValidationRejected = errors.New("validation: candidate set rejected")

	// Snapshot build errors: fatal for the build, prior snapshot stays live.
	ErrEmptyAdmittedSet = errors.New("snapshot: admitted set is empty")
	ErrLeafHashCollision = errors.New("snapshot: hash collision between distinct leaves")

	// Lookup errors.
	ErrNotFound        = errors.New("lookup: no district contains the point")
	ErrSnapshotMissing = errors.New("lookup: requested snapshot does not exist")

	// Integrity errors: loaded snapshot demoted.
	ErrIntegrityMismatch = errors.New("integrity: on-disk structure does not rehash to merkle root")

	// Jurisdiction/registry errors.
	ErrJurisdictionNotFound = errors.New("registry: jurisdiction not found")
	ErrBoundaryNotFound     = errors.New("registry: boundary polygon not found")

	// Quarantine errors.
	ErrQuarantineEntryNotFound = errors.New("quarantine: entry not found")
)

// GovernanceKind enumerates how a jurisdiction selects representatives.
// Only DistrictBased jurisdictions undergo tessellation; every other kind
// bypasses it identically (spec §9 Open Question, resolved in SPEC_FULL.md).
type GovernanceKind string

const (
	GovernanceDistrictBased        GovernanceKind = "district_based"
	GovernanceAtLarge              GovernanceKind = "at_large"
	GovernanceProportional         GovernanceKind = "proportional"
	GovernanceConsolidatedCityParish GovernanceKind = "consolidated_city_parish"
)

// Level enumerates the district levels Shadow Atlas resolves.
type Level string

const (
	LevelCouncil      Level = "council"
	LevelCounty        Level = "county"
	LevelCongressional Level = "congressional"
	LevelStateUpper    Level = "state_upper"
	LevelStateLower    Level = "state_lower"
	LevelSchool        Level = "school"
	LevelWard          Level = "ward"
	LevelOther         Level = "other"
)

// AuthorityLevel enumerates the authority that published a district's
// source record.
type AuthorityLevel string

const (
	AuthorityFederal   AuthorityLevel = "federal"
	AuthorityState     AuthorityLevel = "state"
	AuthorityMunicipal AuthorityLevel = "municipal"
	AuthorityRegional  AuthorityLevel = "regional"
	AuthorityCommunity AuthorityLevel = "community"
)

// DistrictId is a stable, opaque identifier unique within a snapshot,
// constructed from {jurisdiction_fips, level, local_number}.
type DistrictId string

// NewDistrictId builds the canonical id for a district.
func NewDistrictId(jurisdictionFIPS string, level Level, localNumber string) DistrictId {
	return DistrictId(jurisdictionFIPS + ":" + string(level) + ":" + localNumber)
}

// Provenance records where a district's data came from. Append-only: a
// district's provenance record is never edited in place, only superseded
// by a new record with an EffectiveFrom after the prior one's EffectiveTo.
type Provenance struct {
	SourceURL           string            `json:"source_url"`
	AuthorityLevel       AuthorityLevel    `json:"authority_level"`
	AcquiredAt           time.Time         `json:"acquired_at"`
	ResponseContentHash string            `json:"response_content_hash"`
	SourceAttributes    map[string]string `json:"source_attributes,omitempty"`
	EffectiveFrom       time.Time         `json:"effective_from"`
	EffectiveTo         *time.Time        `json:"effective_to,omitempty"`
}

// CanonicalAttributes is the normalized, stable-ordered mapping drawn from
// a source record (spec §3/§9's "fixed small schema").
type CanonicalAttributes struct {
	RepresentativeName string `json:"representative_name,omitempty"`
}

// District is one admitted electoral subdivision within a jurisdiction.
type District struct {
	ID                 DistrictId          `json:"id"`
	JurisdictionID     string              `json:"jurisdiction_id"`
	Level              Level               `json:"level"`
	LocalNumber        string              `json:"local_number"`
	DisplayName        string              `json:"display_name"`
	Polygon            geometry.MultiPolygon `json:"-"`
	CanonicalAttributes CanonicalAttributes `json:"canonical_attributes"`
	Provenance         Provenance          `json:"provenance"`
}

// Jurisdiction is the governing unit whose territory a tessellation
// covers.
type Jurisdiction struct {
	ID                    string              `json:"id"`
	DisplayName           string              `json:"display_name"`
	Country               string              `json:"country"`
	Level                 Level               `json:"level"`
	ParentID              string              `json:"parent_id,omitempty"`
	BoundaryPolygon       geometry.MultiPolygon `json:"-"`
	ExpectedDistrictCount *int                `json:"expected_district_count,omitempty"`
	GovernanceKind        GovernanceKind      `json:"governance_kind"`
	KnownOverflowRatio    *float64            `json:"known_overflow_ratio,omitempty"`
	RedistrictingCycle    string              `json:"redistricting_cycle,omitempty"`

	// WaterRatio is water_area_m2 / (land_area_m2 + water_area_m2), spec
	// §4.3's water-awareness input. Jurisdictions without a recorded ratio
	// default to 0 (inland thresholds apply).
	WaterRatio float64 `json:"water_ratio,omitempty"`
}

// IsAtLarge reports whether this jurisdiction's governance kind bypasses
// tessellation. Every non-district-based kind bypasses identically: there
// is no special casing between at-large, proportional, or any future kind
// (spec §9 Open Question).
func (j Jurisdiction) IsAtLarge() bool {
	return j.GovernanceKind != GovernanceDistrictBased
}

// RawDistrict is one upstream-delivered candidate district, prior to
// admission.
type RawDistrict struct {
	LocalNumber   string              `json:"local_number"`
	DisplayName   string              `json:"display_name"`
	RawPolygon    geometry.MultiPolygon `json:"-"`
	RawAttributes map[string]string   `json:"raw_attributes"`
}

// CandidateDistrictSet is the upstream contract (spec §6): what a fetcher
// delivers to the tessellation validator, independent of transport/format.
type CandidateDistrictSet struct {
	JurisdictionID      string         `json:"jurisdiction_id"`
	SourceURL           string         `json:"source_url"`
	AcquiredAt          time.Time      `json:"acquired_at"`
	ResponseContentHash string         `json:"response_content_hash"`
	AuthorityLevel      AuthorityLevel `json:"authority_level"`
	Districts           []RawDistrict  `json:"districts"`
}

// FailedAxiom enumerates which tessellation axiom, if any, caused a
// rejection.
type FailedAxiom string

const (
	AxiomNone         FailedAxiom = ""
	AxiomCardinality  FailedAxiom = "cardinality"
	AxiomExclusivity  FailedAxiom = "exclusivity"
	AxiomExhaustivity FailedAxiom = "exhaustivity"
	AxiomContainment  FailedAxiom = "containment"
)

// TessellationStatus is the validator's admit/reject verdict.
type TessellationStatus string

const (
	StatusPassed TessellationStatus = "passed"
	StatusFailed TessellationStatus = "failed"
)

// TessellationProof is the structured verdict the validator emits for
// every candidate set, admitted or not (spec §3).
type TessellationProof struct {
	Status                  TessellationStatus `json:"status"`
	FailedAxiom             FailedAxiom        `json:"failed_axiom,omitempty"`
	DistrictCount           int                `json:"district_count"`
	ExpectedCount           int                `json:"expected_count"`
	MunicipalAreaM2         float64            `json:"municipal_area_m2"`
	DistrictUnionAreaM2     float64            `json:"district_union_area_m2"`
	TotalOverlapAreaM2      float64            `json:"total_overlap_area_m2"`
	UncoveredInteriorAreaM2 float64            `json:"uncovered_interior_area_m2"`
	OutsideBoundaryAreaM2   float64            `json:"outside_boundary_area_m2"`
	WaterRatio              float64            `json:"water_ratio"`
	CoverageRatio           float64            `json:"coverage_ratio"`
	ProblematicDistrictIDs  []DistrictId       `json:"problematic_district_ids,omitempty"`
	Notes                   []string           `json:"notes,omitempty"`
}

// ReasonCode enumerates the pre-gate/axiom rejection reasons spec §4.3
// names explicitly.
type ReasonCode string

const (
	ReasonAtLargeSkip        ReasonCode = "skip:at-large"
	ReasonWrongGovernance    ReasonCode = "wrong_governance"
	ReasonCardinalitySanity  ReasonCode = "cardinality_sanity"
	ReasonWrongGeographicArea ReasonCode = "wrong_geographic_area"
	ReasonWrongDataType      ReasonCode = "wrong_data_type"
	ReasonExclusivity        ReasonCode = "exclusivity"
	ReasonExhaustivity       ReasonCode = "exhaustivity"
	ReasonContainment        ReasonCode = "containment"

	// ReasonMalformedIngestion marks a candidate set that failed the
	// ingest package's structural validation (spec §6) before ever
	// reaching the tessellation validator.
	ReasonMalformedIngestion ReasonCode = "malformed_ingestion"
)

// QuarantineSubjectKind enumerates what a QuarantineEntry is about.
type QuarantineSubjectKind string

const (
	SubjectPortal       QuarantineSubjectKind = "portal"
	SubjectDistrict     QuarantineSubjectKind = "district"
	SubjectJurisdiction QuarantineSubjectKind = "jurisdiction"
)

// ReviewStatus enumerates a QuarantineEntry's review lifecycle.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
	ReviewFixed    ReviewStatus = "fixed"
)

// QuarantineId identifies one append-only quarantine record.
type QuarantineId string

// QuarantineEntry is an immutable record of a rejected set (spec §3).
// Review outcomes are additional records referencing SupersedesID, never
// in-place edits to this one.
type QuarantineEntry struct {
	ID               QuarantineId          `json:"id"`
	Subject          QuarantineSubjectKind `json:"subject"`
	SubjectID        string                `json:"subject_id"`
	ReasonCode       ReasonCode            `json:"reason_code"`
	Detail           string                `json:"detail"`
	ValidationProof  *TessellationProof    `json:"validation_proof,omitempty"`
	SnapshotOfSubject CandidateDistrictSet `json:"snapshot_of_subject"`
	ReviewStatus     ReviewStatus          `json:"review_status"`
	SupersedesID     QuarantineId          `json:"supersedes_id,omitempty"`
	Reviewer         string                `json:"reviewer,omitempty"`
	ReviewNotes      string                `json:"review_notes,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
}

// MerkleProof is the sibling path needed to reconstruct a Merkle root from
// a single leaf (spec §3).
type MerkleProof struct {
	LeafHash     []byte   `json:"leaf_hash"`
	LeafIndex    int      `json:"leaf_index"`
	Siblings     [][]byte `json:"siblings"`
	PathIndices  []int    `json:"path_indices"` // 0 = left, 1 = right, per level, root-ward
	Depth        int      `json:"depth"`
	MerkleRoot   []byte   `json:"merkle_root"`
}

// CoverageSummary is a per-jurisdiction rollup of tessellation outcomes,
// included in snapshot metadata.
type CoverageSummary struct {
	JurisdictionID string  `json:"jurisdiction_id"`
	DistrictCount  int     `json:"district_count"`
	CoverageRatio  float64 `json:"coverage_ratio"`
	IsAtLarge      bool    `json:"is_at_large"`
	UsedException  bool    `json:"used_overflow_exception,omitempty"`
	Notes          []string `json:"notes,omitempty"`
}

// LeafHashAlgorithm enumerates the supported leaf hashing schemes (spec §6).
type LeafHashAlgorithm string

const (
	HashPoseidon2BN254 LeafHashAlgorithm = "poseidon2_bn254"
	HashSHA256Truncated31 LeafHashAlgorithm = "sha256_31"
)

// SchemaVersion is the current on-disk schema version for snapshots.
const SchemaVersion = 1

// Snapshot is the immutable, content-addressed publication header (spec §3).
type Snapshot struct {
	SnapshotID      string            `json:"snapshot_id"`
	ContentID       string            `json:"content_id"`
	MerkleRoot      string            `json:"merkle_root"`
	GeneratedAt     time.Time         `json:"generated_at"`
	DistrictCount   int               `json:"district_count"`
	CoverageSummary []CoverageSummary `json:"coverage_summary"`
	SchemaVersion   int               `json:"schema_version"`
	HashAlgorithm   LeafHashAlgorithm `json:"hash_algorithm"`
}
