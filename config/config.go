// Package config loads Shadow Atlas's runtime configuration surface (spec
// §6): the tolerance knobs the tessellation validator runs with, the leaf
// hash algorithm new snapshots are built with, and the filesystem roots
// for the registry, snapshot store, and quarantine ledger, plus the
// ambient cache and logging settings SPEC_FULL.md's ambient stack adds.
// Grounded on the teacher's internal/config/config.go: viper.AutomaticEnv
// plus an optional .env file, a typed struct, and a defaulting pass run
// after the raw read.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/shadowatlas/core/geometry"
	"github.com/shadowatlas/core/model"
)

// ToleranceConfig mirrors geometry.Tolerances field-for-field so it can
// be populated directly off viper keys before conversion.
type ToleranceConfig struct {
	OverlapEpsilonM2         float64
	CoverageMin              float64
	CoverageMaxInland        float64
	CoverageMaxCoastal       float64
	CoastalWaterRatio        float64
	CentroidDisplacementKM   float64
	SliverPerimeterAreaRatio float64
}

// ToGeometryTolerances converts the flat config view into the struct the
// tessellation validator actually consumes.
func (t ToleranceConfig) ToGeometryTolerances() geometry.Tolerances {
	return geometry.Tolerances{
		OverlapEpsilonM2:         t.OverlapEpsilonM2,
		CoverageMin:              t.CoverageMin,
		CoverageMaxInland:        t.CoverageMaxInland,
		CoverageMaxCoastal:       t.CoverageMaxCoastal,
		CoastalWaterRatio:        t.CoastalWaterRatio,
		CentroidDisplacementKM:   t.CentroidDisplacementKM,
		SliverPerimeterAreaRatio: t.SliverPerimeterAreaRatio,
	}
}

// StorageConfig names the filesystem roots spec §6 enumerates.
type StorageConfig struct {
	RegistryDir   string
	SnapshotDir   string
	QuarantineDir string
	BoundaryDir   string
}

// CacheConfig configures the tier-1 artifact cache (spec §4.7).
type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ArtifactTTL   time.Duration
}

// LogConfig controls the zap logger's verbosity.
type LogConfig struct {
	Level string
}

// Config is the fully resolved configuration surface.
type Config struct {
	Tolerance     ToleranceConfig
	Storage       StorageConfig
	Cache         CacheConfig
	Log           LogConfig
	HashAlgorithm model.LeafHashAlgorithm
}

// Load reads configuration from environment variables, optionally
// layered over a ".env" file in the working directory, applies spec §6's
// documented defaults for anything left unset, and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	// A missing .env is expected in production, where configuration
	// arrives purely through the environment; only a malformed file is
	// an error.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading .env: %w", err)
		}
	}

	cfg := &Config{
		Tolerance: ToleranceConfig{
			OverlapEpsilonM2:         v.GetFloat64("TOLERANCE_OVERLAP_EPSILON_M2"),
			CoverageMin:              v.GetFloat64("TOLERANCE_COVERAGE_MIN"),
			CoverageMaxInland:        v.GetFloat64("TOLERANCE_COVERAGE_MAX_INLAND"),
			CoverageMaxCoastal:       v.GetFloat64("TOLERANCE_COVERAGE_MAX_COASTAL"),
			CoastalWaterRatio:        v.GetFloat64("TOLERANCE_COASTAL_WATER_RATIO"),
			CentroidDisplacementKM:   v.GetFloat64("TOLERANCE_CENTROID_DISPLACEMENT_KM"),
			SliverPerimeterAreaRatio: v.GetFloat64("TOLERANCE_SLIVER_PERIMETER_AREA_RATIO"),
		},
		Storage: StorageConfig{
			RegistryDir:   v.GetString("REGISTRY_DIR"),
			SnapshotDir:   v.GetString("SNAPSHOT_DIR"),
			QuarantineDir: v.GetString("QUARANTINE_DIR"),
			BoundaryDir:   v.GetString("BOUNDARY_DIR"),
		},
		Cache: CacheConfig{
			RedisAddr:     v.GetString("REDIS_ADDR"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
			ArtifactTTL:   time.Duration(v.GetInt("ARTIFACT_CACHE_TTL_SECONDS")) * time.Second,
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		HashAlgorithm: model.LeafHashAlgorithm(v.GetString("LEAF_HASH_ALGORITHM")),
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in every tolerance and ambient value spec §4.1 and
// §6 document a default for, leaving explicit environment overrides
// untouched.
func applyDefaults(cfg *Config) {
	defaults := geometry.DefaultTolerances()
	if cfg.Tolerance.OverlapEpsilonM2 == 0 {
		cfg.Tolerance.OverlapEpsilonM2 = defaults.OverlapEpsilonM2
	}
	if cfg.Tolerance.CoverageMin == 0 {
		cfg.Tolerance.CoverageMin = defaults.CoverageMin
	}
	if cfg.Tolerance.CoverageMaxInland == 0 {
		cfg.Tolerance.CoverageMaxInland = defaults.CoverageMaxInland
	}
	if cfg.Tolerance.CoverageMaxCoastal == 0 {
		cfg.Tolerance.CoverageMaxCoastal = defaults.CoverageMaxCoastal
	}
	if cfg.Tolerance.CoastalWaterRatio == 0 {
		cfg.Tolerance.CoastalWaterRatio = defaults.CoastalWaterRatio
	}
	if cfg.Tolerance.CentroidDisplacementKM == 0 {
		cfg.Tolerance.CentroidDisplacementKM = defaults.CentroidDisplacementKM
	}
	if cfg.Tolerance.SliverPerimeterAreaRatio == 0 {
		cfg.Tolerance.SliverPerimeterAreaRatio = defaults.SliverPerimeterAreaRatio
	}

	if cfg.HashAlgorithm == "" {
		cfg.HashAlgorithm = model.HashSHA256Truncated31
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Cache.ArtifactTTL == 0 {
		cfg.Cache.ArtifactTTL = time.Hour
	}
	if cfg.Cache.RedisAddr == "" {
		cfg.Cache.RedisAddr = "localhost:6379"
	}
}

// Validate rejects a config missing any of the three required directory
// roots or carrying an unrecognized hash algorithm, per spec §6's
// fail-fast-on-startup contract.
func (c *Config) Validate() error {
	if c.Storage.RegistryDir == "" {
		return model.ErrMissingRegistryDir
	}
	if c.Storage.SnapshotDir == "" {
		return model.ErrMissingSnapshotDir
	}
	if c.Storage.QuarantineDir == "" {
		return model.ErrMissingQuarantineDir
	}
	switch c.HashAlgorithm {
	case model.HashPoseidon2BN254, model.HashSHA256Truncated31:
	default:
		return fmt.Errorf("%w: %q", model.ErrUnknownHashAlgorithm, c.HashAlgorithm)
	}
	return nil
}
