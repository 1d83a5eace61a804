package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDistrictId(t *testing.T) {
	id := NewDistrictId("0667000", LevelCouncil, "4")
	assert.Equal(t, DistrictId("0667000:council:4"), id)
}

func TestJurisdictionIsAtLarge(t *testing.T) {
	tests := []struct {
		name string
		kind GovernanceKind
		want bool
	}{
		{"district based", GovernanceDistrictBased, false},
		{"at large", GovernanceAtLarge, true},
		{"proportional", GovernanceProportional, true},
		{"consolidated", GovernanceConsolidatedCityParish, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := Jurisdiction{GovernanceKind: tt.kind}
			assert.Equal(t, tt.want, j.IsAtLarge())
		})
	}
}

func TestErrorTaxonomyWrapping(t *testing.T) {
	wrapped := fmt.Errorf("fetch jurisdiction 0667000: %w", ErrJurisdictionNotFound)
	assert.True(t, errors.Is(wrapped, ErrJurisdictionNotFound))
	assert.False(t, errors.Is(wrapped, ErrBoundaryNotFound))
}

func TestSnapshotSchemaVersionIsStable(t *testing.T) {
	// SchemaVersion is read by integrity checks against on-disk snapshots;
	// bumping it is a breaking change and must be deliberate.
	assert.Equal(t, 1, SchemaVersion)
}
