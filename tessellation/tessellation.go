// Package tessellation implements Shadow Atlas's tessellation validator
// (spec §4.3): the ordered pre-gates, the four tessellation axioms, and
// the water-awareness adjustments that decide whether a candidate
// district set may be admitted into a snapshot.
package tessellation

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/shadowatlas/core/geometry"
	"github.com/shadowatlas/core/model"
)

// wrongDataTypeTokens are attribute-name fragments that indicate a
// candidate set was built from the wrong source granularity (precinct,
// zip code, census block) rather than district-level data.
var wrongDataTypeTokens = []string{"precinct", "zip", "zipcode", "census_block", "block_group", "tract"}

// districtTokens are fragments whose presence overrides a wrongDataType
// match, since a field like "council_district_precinct_merge" legitimately
// mixes both vocabularies.
var districtTokens = []string{"council", "ward", "district", "division", "seat"}

// Registry is the subset of registry.Registry the validator needs,
// kept as an interface so tests can supply a fake without a filesystem.
type Registry interface {
	Get(jurisdictionID string) (model.Jurisdiction, bool)
	IsAtLarge(jurisdictionID string) bool
	ExpectedCount(jurisdictionID string) *int
	OverflowException(jurisdictionID string) *float64
	LoadBoundary(jurisdictionID string) (geometry.MultiPolygon, error)
}

// Validator runs the spec §4.3 pre-gates and axioms over candidate sets.
type Validator struct {
	registry   Registry
	tolerances geometry.Tolerances
}

// New constructs a Validator against a registry, using spec-default
// tolerances.
func New(reg Registry) *Validator {
	return &Validator{registry: reg, tolerances: geometry.DefaultTolerances()}
}

// WithTolerances overrides the validator's tolerance configuration,
// the single configuration struct spec §4.1 calls for instead of free
// floats scattered through the codebase.
func (v *Validator) WithTolerances(t geometry.Tolerances) *Validator {
	v.tolerances = t
	return v
}

// Verdict is the validator's admit/reject outcome for one candidate set.
type Verdict struct {
	Admitted bool
	Proof    model.TessellationProof
	Reason   model.ReasonCode
}

// Validate runs every pre-gate in order, short-circuiting to a rejection
// reason on the first failure, then (if all pre-gates pass) the four
// tessellation axioms.
func (v *Validator) Validate(candidate model.CandidateDistrictSet) Verdict {
	jurisdictionID := candidate.JurisdictionID

	if v.registry.IsAtLarge(jurisdictionID) {
		return Verdict{
			Admitted: true,
			Reason:   model.ReasonAtLargeSkip,
			Proof:    model.TessellationProof{Status: model.StatusPassed, Notes: []string{"skip:at-large"}},
		}
	}

	jurisdiction, ok := v.registry.Get(jurisdictionID)
	if !ok {
		return v.reject(model.ReasonWrongGovernance, "jurisdiction not found in registry")
	}
	if jurisdiction.GovernanceKind != model.GovernanceDistrictBased {
		return v.reject(model.ReasonWrongGovernance, "jurisdiction governance kind is not district-based")
	}

	count := len(candidate.Districts)
	expected := 0
	if jurisdiction.ExpectedDistrictCount != nil {
		expected = *jurisdiction.ExpectedDistrictCount
	}
	if jurisdiction.ExpectedDistrictCount != nil && cardinalityOutOfSanity(count, expected) {
		return v.reject(model.ReasonCardinalitySanity, "district count implausibly far from expected")
	}

	boundary, err := v.registry.LoadBoundary(jurisdictionID)
	if err != nil {
		return v.reject(model.ReasonWrongGeographicArea, "no boundary on file for jurisdiction: "+err.Error())
	}

	polys := candidatePolygons(candidate)
	unionCentroid := unionCentroidOf(polys)
	boundaryCentroid := geometry.MultiPolygonCentroid(boundary)
	if geometry.HaversineDistanceM(unionCentroid, boundaryCentroid)/1000 > v.tolerances.CentroidDisplacementKM {
		return v.reject(model.ReasonWrongGeographicArea, "union centroid too far from municipal centroid")
	}

	if badToken, ok := findWrongDataTypeAttribute(candidate); ok {
		return v.reject(model.ReasonWrongDataType, "attribute field name suggests wrong granularity: "+badToken)
	}

	return v.runAxioms(candidate, jurisdiction, boundary, polys, expected)
}

func (v *Validator) reject(reason model.ReasonCode, detail string) Verdict {
	return Verdict{
		Admitted: false,
		Reason:   reason,
		Proof:    model.TessellationProof{Status: model.StatusFailed, Notes: []string{detail}},
	}
}

// cardinalityOutOfSanity implements the pre-gate sanity bound, distinct
// from (and looser than) Axiom 1's tolerance.
func cardinalityOutOfSanity(count, expected int) bool {
	if expected == 0 {
		return false
	}
	diff := count - expected
	if diff < 0 {
		diff = -diff
	}
	bound := 0.5 * float64(expected)
	if bound < 2 {
		bound = 2
	}
	return float64(diff) > bound || count > 3*expected
}

func candidatePolygons(candidate model.CandidateDistrictSet) []geometry.Polygon {
	var polys []geometry.Polygon
	for _, d := range candidate.Districts {
		polys = append(polys, d.RawPolygon...)
	}
	return polys
}

func unionCentroidOf(polys []geometry.Polygon) geometry.Coordinate {
	return geometry.MultiPolygonCentroid(geometry.MultiPolygon(polys))
}

// findWrongDataTypeAttribute matches attribute field names against known
// wrong-granularity tokens, by substring or by fuzzysearch's subsequence
// match; the match is yes/no, with no confidence score. Field names that
// carry a district token are skipped.
func findWrongDataTypeAttribute(candidate model.CandidateDistrictSet) (string, bool) {
	for _, d := range candidate.Districts {
		for key := range d.RawAttributes {
			normalized := strings.ToLower(strings.ReplaceAll(key, "-", "_"))
			if hasAnyToken(normalized, districtTokens) {
				continue
			}
			for _, bad := range wrongDataTypeTokens {
				if strings.Contains(normalized, bad) || fuzzy.Match(bad, normalized) {
					return key, true
				}
			}
		}
	}
	return "", false
}

func hasAnyToken(s string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

func (v *Validator) runAxioms(
	candidate model.CandidateDistrictSet,
	jurisdiction model.Jurisdiction,
	boundary geometry.MultiPolygon,
	polys []geometry.Polygon,
	expected int,
) Verdict {
	proof := model.TessellationProof{
		DistrictCount: len(candidate.Districts),
		ExpectedCount: expected,
	}

	// Axiom 1: cardinality.
	if expected > 0 && len(candidate.Districts) != expected {
		deviation := len(candidate.Districts) - expected
		if deviation < 0 {
			deviation = -deviation
		}
		if expected >= 10 || deviation > 2 {
			proof.Status = model.StatusFailed
			proof.FailedAxiom = model.AxiomCardinality
			return Verdict{Admitted: false, Reason: model.ReasonCardinalitySanity, Proof: proof}
		}
		proof.Notes = append(proof.Notes, "cardinality deviation tolerated with warning")
	}

	// Axiom 2: exclusivity (non-overlap), with sliver exclusion.
	var totalOverlap float64
	var problematic []model.DistrictId
	marginal := make(map[int]float64, len(candidate.Districts))
	for i := 0; i < len(candidate.Districts); i++ {
		for j := i + 1; j < len(candidate.Districts); j++ {
			pair := overlapBetween(candidate.Districts[i], candidate.Districts[j], v.tolerances)
			if pair <= 0 {
				continue
			}
			totalOverlap += pair
			marginal[i] += pair
			marginal[j] += pair
		}
	}
	proof.TotalOverlapAreaM2 = totalOverlap

	if totalOverlap > v.tolerances.OverlapEpsilonM2 {
		problematic = greedyProblematicDistricts(candidate, marginal, v.tolerances)
		proof.Status = model.StatusFailed
		proof.FailedAxiom = model.AxiomExclusivity
		proof.ProblematicDistrictIDs = problematic
		return Verdict{Admitted: false, Reason: model.ReasonExclusivity, Proof: proof}
	}

	// Water awareness: derive coastal classification from the jurisdiction's
	// declared water ratio; jurisdictions without a recorded ratio default
	// to 0, so inland thresholds apply.
	waterRatio := jurisdiction.WaterRatio
	proof.WaterRatio = waterRatio
	coverageMax := v.tolerances.CoverageMaxFor(waterRatio)

	boundaryArea := geometry.MultiPolygonAreaM2(boundary)
	unionArea := geometry.UnionAreaM2(polys)
	proof.MunicipalAreaM2 = boundaryArea
	proof.DistrictUnionAreaM2 = unionArea

	var coverageRatio float64
	if boundaryArea > 0 {
		coverageRatio = unionArea / boundaryArea
	}
	proof.CoverageRatio = coverageRatio

	// Axiom 3: exhaustivity.
	if coverageRatio < v.tolerances.CoverageMin || coverageRatio > coverageMax {
		proof.Status = model.StatusFailed
		proof.FailedAxiom = model.AxiomExhaustivity
		return Verdict{Admitted: false, Reason: model.ReasonExhaustivity, Proof: proof}
	}

	// Axiom 4: containment.
	var outsideArea float64
	for _, p := range polys {
		outsideArea += outsideBoundaryArea(p, boundary)
	}
	proof.OutsideBoundaryAreaM2 = outsideArea

	// budget is the fraction of union area allowed to fall outside the
	// municipal boundary. known_overflow_ratio is itself already expressed
	// in that unit (an outside-area fraction, e.g. a consolidated
	// city-parish's annexed-but-unincorporated land), so it relaxes the
	// budget directly rather than being compared against coverageMax, a
	// coverage-ratio multiplier in a different unit entirely.
	budget := 1 - 1/coverageMax
	if ratio := jurisdiction.KnownOverflowRatio; ratio != nil && *ratio > budget {
		budget = *ratio
	}
	var outsideRatio float64
	if unionArea > 0 {
		outsideRatio = outsideArea / unionArea
	}
	if outsideRatio > budget {
		proof.Status = model.StatusFailed
		proof.FailedAxiom = model.AxiomContainment
		return Verdict{Admitted: false, Reason: model.ReasonContainment, Proof: proof}
	}

	proof.Status = model.StatusPassed
	return Verdict{Admitted: true, Proof: proof}
}

func overlapBetween(a, b model.RawDistrict, tol geometry.Tolerances) float64 {
	var total float64
	for _, pa := range a.RawPolygon {
		for _, pb := range b.RawPolygon {
			region, ok := geometry.IntersectionPolygon(pa, pb)
			if !ok {
				continue
			}
			// Spec §4.3: a sliver is a thin elongated *overlap*, judged by
			// the intersection region's own perimeter²/area, not by the
			// shape of either source district.
			if geometry.IsSliver(region, tol) {
				continue
			}
			total += geometry.AreaM2(region)
		}
	}
	return total
}

func outsideBoundaryArea(p geometry.Polygon, boundary geometry.MultiPolygon) float64 {
	area := geometry.AreaM2(p)
	var inside float64
	for _, b := range boundary {
		inside += geometry.IntersectionAreaM2(p, b)
	}
	if inside > area {
		inside = area
	}
	return area - inside
}

// greedyProblematicDistricts lists districts in descending order of
// marginal overlap contribution, stopping after the first district whose
// own contribution exceeds the overlap budget. It does not recompute the
// total overlap after each pick, so the list is not checked to be a set
// whose removal brings total pairwise overlap back under the budget.
func greedyProblematicDistricts(candidate model.CandidateDistrictSet, marginal map[int]float64, tol geometry.Tolerances) []model.DistrictId {
	type indexed struct {
		idx   int
		score float64
	}
	ranked := make([]indexed, 0, len(marginal))
	for idx, score := range marginal {
		ranked = append(ranked, indexed{idx, score})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	var ids []model.DistrictId
	for _, r := range ranked {
		if r.score <= 0 {
			continue
		}
		d := candidate.Districts[r.idx]
		ids = append(ids, model.NewDistrictId(candidate.JurisdictionID, "", d.LocalNumber))
		// Greedy stop: once the top contributors plausibly exceed the
		// overlap budget by themselves, including the remainder adds no
		// diagnostic value.
		if r.score > tol.OverlapEpsilonM2 {
			break
		}
	}
	return ids
}
