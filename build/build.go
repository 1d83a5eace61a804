// Package build implements Shadow Atlas's build-side concurrency model
// (spec §5): a bounded pool of validator workers draining a channel of
// fetched candidate district sets, jurisdiction-independent so no shared
// mutable state is needed between them, followed by a single-threaded
// deterministic snapshot assembly step once the workers drain. Grounded
// on the teacher's `worker/manager.go` zap-logged goroutine fan-out,
// generalized from a registered-worker pool to a fixed-size validation
// pipeline with an errgroup-managed fan-in.
package build

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shadowatlas/core/ingest"
	"github.com/shadowatlas/core/model"
	"github.com/shadowatlas/core/quarantine"
	"github.com/shadowatlas/core/registry"
	"github.com/shadowatlas/core/snapshot"
	"github.com/shadowatlas/core/tessellation"
)

// Result is everything one build run produced: the districts admitted
// into the snapshot, the quarantine entries written for rejections, and
// a per-jurisdiction coverage rollup.
type Result struct {
	Admitted    []model.District
	Quarantined []model.QuarantineId
	Coverage    []model.CoverageSummary
}

// Pipeline runs candidate sets through the tessellation validator with a
// bounded worker pool, routing admissions and quarantines as it goes.
type Pipeline struct {
	validator  *tessellation.Validator
	quarantine *quarantine.Ledger
	registry   *registry.Registry
	logger     *zap.Logger
	workers    int
	now        func() time.Time
}

// New constructs a Pipeline. workers is the validator pool size; it
// should scale with available cores since validation is pure CPU work
// over immutable inputs.
func New(validator *tessellation.Validator, ledger *quarantine.Ledger, reg *registry.Registry, logger *zap.Logger, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		validator:  validator,
		quarantine: ledger,
		registry:   reg,
		logger:     logger,
		workers:    workers,
		now:        time.Now,
	}
}

// validated is one worker's outcome for a single candidate set, handed
// off to the single-threaded collector goroutine.
type validated struct {
	candidate model.CandidateDistrictSet
	verdict   tessellation.Verdict
}

// malformedVerdict stands in for a tessellation.Verdict when a candidate
// set never reaches the validator: it failed ingest's structural checks
// first. Quarantining it through the same path as a geometric rejection
// keeps the ledger the single record of every rejected set, regardless of
// which gate rejected it.
func malformedVerdict(err error) tessellation.Verdict {
	return tessellation.Verdict{
		Admitted: false,
		Reason:   model.ReasonMalformedIngestion,
		Proof:    model.TessellationProof{Notes: []string{err.Error()}},
	}
}

// Run drains candidates with a bounded pool of validator workers and
// collects the admitted districts and quarantine entries. Workers share
// no mutable state; the only coordination is the results channel, which
// the single collector goroutine below drains in the order verdicts
// arrive, not the order candidates were submitted — ordering within a
// build only matters at snapshot assembly time, downstream of Run.
func (p *Pipeline) Run(ctx context.Context, candidates <-chan model.CandidateDistrictSet) (Result, error) {
	results := make(chan validated, p.workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case candidate, ok := <-candidates:
					if !ok {
						return nil
					}

					var verdict tessellation.Verdict
					if err := ingest.ValidateStructure(candidate); err != nil {
						verdict = malformedVerdict(err)
					} else {
						repaired, notes := ingest.ToRawCandidates(candidate)
						verdict = p.validator.Validate(repaired)
						verdict.Proof.Notes = append(notes, verdict.Proof.Notes...)
						candidate = repaired
					}

					select {
					case results <- validated{candidate: candidate, verdict: verdict}:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
			}
		})
	}

	go func() {
		_ = g.Wait()
		close(results)
	}()

	var out Result
	for v := range results {
		if err := p.collect(&out, v); err != nil {
			return Result{}, err
		}
	}

	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("validator pool: %w", err)
	}
	return out, nil
}

func (p *Pipeline) collect(out *Result, v validated) error {
	jurisdictionID := v.candidate.JurisdictionID

	if !v.verdict.Admitted {
		id, err := p.quarantine.Quarantine(
			model.SubjectJurisdiction, jurisdictionID, v.verdict.Reason,
			quarantineDetail(v.verdict), &v.verdict.Proof, v.candidate, p.now(),
		)
		if err != nil {
			return fmt.Errorf("quarantining %s: %w", jurisdictionID, err)
		}
		out.Quarantined = append(out.Quarantined, id)
		p.logger.Warn("candidate set quarantined",
			zap.String("jurisdiction_id", jurisdictionID),
			zap.String("reason_code", string(v.verdict.Reason)))
		return nil
	}

	districts := p.toDistricts(v.candidate, v.verdict)
	out.Admitted = append(out.Admitted, districts...)
	out.Coverage = append(out.Coverage, p.coverageFor(v.candidate, v.verdict, districts))

	p.logger.Info("candidate set admitted",
		zap.String("jurisdiction_id", jurisdictionID),
		zap.Int("district_count", len(districts)))
	return nil
}

func quarantineDetail(v tessellation.Verdict) string {
	if len(v.Proof.Notes) > 0 {
		return v.Proof.Notes[0]
	}
	return string(v.Reason)
}

// toDistricts converts an admitted candidate set's raw districts into
// the snapshot's District shape. At-large admissions carry no geometry
// at all (spec §4.4: "zero polygons are added to the snapshot").
func (p *Pipeline) toDistricts(candidate model.CandidateDistrictSet, verdict tessellation.Verdict) []model.District {
	if verdict.Reason == model.ReasonAtLargeSkip {
		return nil
	}

	jurisdiction, _ := p.registry.Get(candidate.JurisdictionID)
	out := make([]model.District, 0, len(candidate.Districts))
	for _, raw := range candidate.Districts {
		out = append(out, model.District{
			ID:             model.NewDistrictId(candidate.JurisdictionID, jurisdiction.Level, raw.LocalNumber),
			JurisdictionID: candidate.JurisdictionID,
			Level:          jurisdiction.Level,
			LocalNumber:    raw.LocalNumber,
			DisplayName:    raw.DisplayName,
			Polygon:        raw.RawPolygon,
			CanonicalAttributes: model.CanonicalAttributes{
				RepresentativeName: raw.RawAttributes["representative_name"],
			},
			Provenance: model.Provenance{
				SourceURL:           candidate.SourceURL,
				AuthorityLevel:      candidate.AuthorityLevel,
				AcquiredAt:          candidate.AcquiredAt,
				ResponseContentHash: candidate.ResponseContentHash,
				EffectiveFrom:       candidate.AcquiredAt,
			},
		})
	}
	return out
}

func (p *Pipeline) coverageFor(candidate model.CandidateDistrictSet, verdict tessellation.Verdict, districts []model.District) model.CoverageSummary {
	isAtLarge := verdict.Reason == model.ReasonAtLargeSkip
	count := len(districts)

	jurisdiction, ok := p.registry.Get(candidate.JurisdictionID)
	usedException := false
	if isAtLarge && ok && jurisdiction.ExpectedDistrictCount != nil {
		count = *jurisdiction.ExpectedDistrictCount
	}
	if ok && jurisdiction.KnownOverflowRatio != nil && verdict.Proof.OutsideBoundaryAreaM2 > 0 {
		usedException = true
	}

	return model.CoverageSummary{
		JurisdictionID: candidate.JurisdictionID,
		DistrictCount:  count,
		CoverageRatio:  verdict.Proof.CoverageRatio,
		IsAtLarge:      isAtLarge,
		UsedException:  usedException,
		Notes:          verdict.Proof.Notes,
	}
}

// AssembleSnapshot performs the single-threaded builder step (spec §5):
// canonical ordering, Merkle construction, and publication. It runs once
// a Run call has fully drained its validator pool, consuming the
// complete admitted set at once so ordering and hashing stay
// deterministic.
func AssembleSnapshot(
	country string,
	result Result,
	algo model.LeafHashAlgorithm,
	snapshotID string,
	generatedAt time.Time,
	rootDir string,
) (*snapshot.Built, error) {
	built, err := snapshot.Build(country, result.Admitted, result.Coverage, algo, snapshotID, generatedAt)
	if err != nil {
		return nil, fmt.Errorf("assembling snapshot %s: %w", snapshotID, err)
	}
	if err := snapshot.Write(rootDir, built); err != nil {
		return nil, fmt.Errorf("writing snapshot %s: %w", snapshotID, err)
	}
	return built, nil
}
