package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowatlas/core/model"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"TOLERANCE_OVERLAP_EPSILON_M2", "TOLERANCE_COVERAGE_MIN", "TOLERANCE_COVERAGE_MAX_INLAND",
		"TOLERANCE_COVERAGE_MAX_COASTAL", "TOLERANCE_COASTAL_WATER_RATIO", "TOLERANCE_CENTROID_DISPLACEMENT_KM",
		"TOLERANCE_SLIVER_PERIMETER_AREA_RATIO", "REGISTRY_DIR", "SNAPSHOT_DIR", "QUARANTINE_DIR",
		"BOUNDARY_DIR", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "ARTIFACT_CACHE_TTL_SECONDS",
		"LOG_LEVEL", "LEAF_HASH_ALGORITHM",
	}
	for _, k := range keys {
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadAppliesDefaultTolerances(t *testing.T) {
	clearEnv(t)
	t.Setenv("REGISTRY_DIR", "/data/registry")
	t.Setenv("SNAPSHOT_DIR", "/data/snapshots")
	t.Setenv("QUARANTINE_DIR", "/data/quarantine")

	cfg, err := Load()
	require.NoError(t, err)

	defaults := cfg.Tolerance.ToGeometryTolerances()
	assert.Equal(t, 150_000.0, defaults.OverlapEpsilonM2)
	assert.Equal(t, 0.85, defaults.CoverageMin)
	assert.Equal(t, 1.15, defaults.CoverageMaxInland)
	assert.Equal(t, 2.00, defaults.CoverageMaxCoastal)
	assert.Equal(t, 0.15, defaults.CoastalWaterRatio)
	assert.Equal(t, 50.0, defaults.CentroidDisplacementKM)
	assert.Equal(t, model.HashSHA256Truncated31, cfg.HashAlgorithm)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
}

func TestLoadHonorsEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("REGISTRY_DIR", "/data/registry")
	t.Setenv("SNAPSHOT_DIR", "/data/snapshots")
	t.Setenv("QUARANTINE_DIR", "/data/quarantine")
	t.Setenv("TOLERANCE_COVERAGE_MIN", "0.90")
	t.Setenv("LEAF_HASH_ALGORITHM", "poseidon2_bn254")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.90, cfg.Tolerance.CoverageMin)
	assert.Equal(t, model.HashPoseidon2BN254, cfg.HashAlgorithm)
}

func TestLoadFailsWithoutRegistryDir(t *testing.T) {
	clearEnv(t)
	t.Setenv("SNAPSHOT_DIR", "/data/snapshots")
	t.Setenv("QUARANTINE_DIR", "/data/quarantine")

	_, err := Load()
	assert.ErrorIs(t, err, model.ErrMissingRegistryDir)
}

func TestLoadFailsWithoutSnapshotDir(t *testing.T) {
	clearEnv(t)
	t.Setenv("REGISTRY_DIR", "/data/registry")
	t.Setenv("QUARANTINE_DIR", "/data/quarantine")

	_, err := Load()
	assert.ErrorIs(t, err, model.ErrMissingSnapshotDir)
}

func TestLoadFailsWithoutQuarantineDir(t *testing.T) {
	clearEnv(t)
	t.Setenv("REGISTRY_DIR", "/data/registry")
	t.Setenv("SNAPSHOT_DIR", "/data/snapshots")

	_, err := Load()
	assert.ErrorIs(t, err, model.ErrMissingQuarantineDir)
}

func TestLoadRejectsUnknownHashAlgorithm(t *testing.T) {
	clearEnv(t)
	t.Setenv("REGISTRY_DIR", "/data/registry")
	t.Setenv("SNAPSHOT_DIR", "/data/snapshots")
	t.Setenv("QUARANTINE_DIR", "/data/quarantine")
	t.Setenv("LEAF_HASH_ALGORITHM", "md5")

	_, err := Load()
	assert.ErrorIs(t, err, model.ErrUnknownHashAlgorithm)
}
