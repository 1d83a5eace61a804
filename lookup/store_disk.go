package lookup

import (
	"fmt"
	"path/filepath"

	"github.com/shadowatlas/core/model"
	"github.com/shadowatlas/core/snapshot"
)

// DiskStore implements Store against the on-disk layout snapshot.Write
// produces: <RootDir>/<snapshot_id>/{manifest.json,districts.ndjson,proofs.bin}.
type DiskStore struct {
	RootDir string
}

// LoadSnapshot reads a published snapshot's manifest, districts, and
// proofs back into memory.
func (s DiskStore) LoadSnapshot(snapshotID string) (model.Snapshot, []model.District, []model.MerkleProof, error) {
	dir := filepath.Join(s.RootDir, snapshotID)

	header, err := snapshot.ReadManifest(dir)
	if err != nil {
		return model.Snapshot{}, nil, nil, fmt.Errorf("%w: %v", model.ErrSnapshotMissing, err)
	}
	districts, err := snapshot.ReadDistricts(dir)
	if err != nil {
		return model.Snapshot{}, nil, nil, fmt.Errorf("loading districts for %s: %w", snapshotID, err)
	}
	proofs, err := snapshot.ReadProofs(dir)
	if err != nil {
		return model.Snapshot{}, nil, nil, fmt.Errorf("loading proofs for %s: %w", snapshotID, err)
	}

	return header, districts, proofs, nil
}

// CurrentSnapshotID resolves which snapshot id the store's current
// symlink points at, for callers deciding whether to Publish a new one.
func (s DiskStore) CurrentSnapshotID() (string, error) {
	return snapshot.CurrentSnapshotID(s.RootDir)
}
