package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowatlas/core/model"
)

func writeJurisdictionDoc(t *testing.T, dir string, doc jurisdictionDoc) {
	t.Helper()
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, doc.ID+".json"), raw, 0o644))
}

func TestLoadAllAndGet(t *testing.T) {
	dir := t.TempDir()
	expected := 9
	writeJurisdictionDoc(t, dir, jurisdictionDoc{
		ID:                    "2511000",
		DisplayName:           "Cambridge",
		Country:               "US",
		Level:                 string(model.LevelCouncil),
		GovernanceKind:        string(model.GovernanceAtLarge),
		ExpectedDistrictCount: &expected,
		AtLarge:               true,
	})

	reg := New(dir, t.TempDir())
	require.NoError(t, reg.LoadAll())

	j, ok := reg.Get("2511000")
	require.True(t, ok)
	assert.Equal(t, "Cambridge", j.DisplayName)
	assert.Equal(t, 9, *reg.ExpectedCount("2511000"))
	assert.True(t, reg.IsAtLarge("2511000"))
}

func TestGetUnknownJurisdiction(t *testing.T) {
	reg := New(t.TempDir(), t.TempDir())
	_, ok := reg.Get("nope")
	assert.False(t, ok)
	assert.Nil(t, reg.ExpectedCount("nope"))
	assert.False(t, reg.IsAtLarge("nope"))
}

func TestIsAtLargeFromGovernanceKindWithoutExplicitSet(t *testing.T) {
	dir := t.TempDir()
	writeJurisdictionDoc(t, dir, jurisdictionDoc{
		ID:             "0667000",
		GovernanceKind: string(model.GovernanceDistrictBased),
	})
	writeJurisdictionDoc(t, dir, jurisdictionDoc{
		ID:             "2622000",
		GovernanceKind: string(model.GovernanceConsolidatedCityParish),
	})

	reg := New(dir, t.TempDir())
	require.NoError(t, reg.LoadAll())

	assert.False(t, reg.IsAtLarge("0667000"))
	assert.True(t, reg.IsAtLarge("2622000"))
}

func TestPutAppendsVersionedRecord(t *testing.T) {
	reg := New(t.TempDir(), t.TempDir())
	startVersion := reg.Version()

	reg.Put(model.Jurisdiction{ID: "x", DisplayName: "X"})
	assert.Greater(t, reg.Version(), startVersion)

	j, ok := reg.Get("x")
	require.True(t, ok)
	assert.Equal(t, "X", j.DisplayName)
}

func TestOverflowException(t *testing.T) {
	dir := t.TempDir()
	ratio := 1.4
	writeJurisdictionDoc(t, dir, jurisdictionDoc{ID: "y", KnownOverflowRatio: &ratio})

	reg := New(dir, t.TempDir())
	require.NoError(t, reg.LoadAll())

	got := reg.OverflowException("y")
	require.NotNil(t, got)
	assert.Equal(t, 1.4, *got)
	assert.Nil(t, reg.OverflowException("missing"))
}

func TestLoadBoundaryCaches(t *testing.T) {
	boundaryDir := t.TempDir()
	raw := `[[[-122.5,37.7],[-122.4,37.7],[-122.4,37.8],[-122.5,37.8]]]`
	require.NoError(t, os.WriteFile(filepath.Join(boundaryDir, "0667000.json"), []byte(raw), 0o644))

	reg := New(t.TempDir(), boundaryDir)

	mp, err := reg.LoadBoundary("0667000")
	require.NoError(t, err)
	require.Len(t, mp, 1)
	assert.Len(t, mp[0].Exterior, 4)

	mp2, err := reg.LoadBoundary("0667000")
	require.NoError(t, err)
	assert.Equal(t, mp, mp2)
}

func TestLoadBoundaryMissing(t *testing.T) {
	reg := New(t.TempDir(), t.TempDir())
	_, err := reg.LoadBoundary("nope")
	assert.ErrorIs(t, err, model.ErrBoundaryNotFound)
}
