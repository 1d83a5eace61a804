package quarantine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowatlas/core/model"
)

func TestQuarantineAndRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarantine.ndjson")
	ledger, err := Open(path)
	require.NoError(t, err)

	set := model.CandidateDistrictSet{JurisdictionID: "0667000"}
	id, err := ledger.Quarantine(
		model.SubjectJurisdiction, "0667000", model.ReasonExclusivity,
		"overlap exceeded budget", &model.TessellationProof{Status: model.StatusFailed}, set, time.Now())
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	assert.True(t, ledger.IsQuarantined("0667000"))

	restored, err := ledger.Restore(id)
	require.NoError(t, err)
	assert.Equal(t, "0667000", restored.JurisdictionID)
}

func TestMarkReviewDoesNotMutateOriginal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarantine.ndjson")
	ledger, err := Open(path)
	require.NoError(t, err)

	id, err := ledger.Quarantine(model.SubjectJurisdiction, "x", model.ReasonExhaustivity, "low coverage", nil, model.CandidateDistrictSet{}, time.Now())
	require.NoError(t, err)

	reviewID, err := ledger.MarkReview(id, model.ReviewApproved, "reviewer1", "looks fine", time.Now())
	require.NoError(t, err)
	assert.NotEqual(t, id, reviewID)

	original, ok := ledger.Entry(id)
	require.True(t, ok)
	assert.Equal(t, model.ReviewPending, original.ReviewStatus)

	review, ok := ledger.Entry(reviewID)
	require.True(t, ok)
	assert.Equal(t, model.ReviewApproved, review.ReviewStatus)
	assert.Equal(t, id, review.SupersedesID)

	assert.False(t, ledger.IsQuarantined("x"))
}

func TestIsQuarantinedFalseForUnknownSubject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarantine.ndjson")
	ledger, err := Open(path)
	require.NoError(t, err)
	assert.False(t, ledger.IsQuarantined("unknown"))
}

func TestHistoryForOrdersAppendOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarantine.ndjson")
	ledger, err := Open(path)
	require.NoError(t, err)

	id1, err := ledger.Quarantine(model.SubjectDistrict, "d1", model.ReasonContainment, "first", nil, model.CandidateDistrictSet{}, time.Now())
	require.NoError(t, err)
	id2, err := ledger.MarkReview(id1, model.ReviewRejected, "reviewer", "still bad", time.Now().Add(time.Minute))
	require.NoError(t, err)

	history := ledger.HistoryFor("d1")
	require.Len(t, history, 2)
	assert.Equal(t, id1, history[0].ID)
	assert.Equal(t, id2, history[1].ID)
}

func TestOpenReloadsExistingLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarantine.ndjson")
	ledger, err := Open(path)
	require.NoError(t, err)

	_, err = ledger.Quarantine(model.SubjectJurisdiction, "persisted", model.ReasonCardinalitySanity, "x", nil, model.CandidateDistrictSet{}, time.Now())
	require.NoError(t, err)

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.True(t, reopened.IsQuarantined("persisted"))
}

func TestSimilarRejectionsRanksByTextConfidence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarantine.ndjson")
	ledger, err := Open(path)
	require.NoError(t, err)

	_, err = ledger.Quarantine(model.SubjectDistrict, "d1", model.ReasonContainment, "overlap exceeds epsilon near north boundary", nil, model.CandidateDistrictSet{}, time.Now())
	require.NoError(t, err)
	_, err = ledger.Quarantine(model.SubjectDistrict, "d2", model.ReasonContainment, "overlap exceeds epsilon near south boundary", nil, model.CandidateDistrictSet{}, time.Now())
	require.NoError(t, err)
	_, err = ledger.Quarantine(model.SubjectDistrict, "d3", model.ReasonCardinalitySanity, "expected 9 districts, found 4", nil, model.CandidateDistrictSet{}, time.Now())
	require.NoError(t, err)

	similar := ledger.SimilarRejections("overlap exceeds epsilon near east boundary", 5)
	require.NotEmpty(t, similar)
	for _, entry := range similar {
		assert.Contains(t, entry.Detail, "overlap exceeds epsilon")
	}
}
