package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shadowatlas/core/geometry"
	"github.com/shadowatlas/core/model"
)

// districtDoc mirrors the canonical GeoJSON shape CanonicalBytes emits, for
// decoding districts.ndjson back into model.District on cold-store load.
type districtDoc struct {
	ID             string          `json:"id"`
	JurisdictionID string          `json:"jurisdiction_id"`
	Level          string          `json:"level"`
	LocalNumber    string          `json:"local_number"`
	DisplayName    string          `json:"display_name"`
	Geometry       json.RawMessage `json:"geometry"`
	CanonicalAttrs struct {
		RepresentativeName string `json:"representative_name"`
	} `json:"canonical_attributes"`
	Provenance struct {
		SourceURL           string `json:"source_url"`
		AuthorityLevel      string `json:"authority_level"`
		ResponseContentHash string `json:"response_content_hash"`
	} `json:"provenance"`
}

type geoJSONDoc struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// ReadDistricts decodes districts.ndjson back into model.District, in the
// same canonical order they were written (spec §6's on-disk layout read
// path, the cold-store tier behind lookup's caches).
func ReadDistricts(snapshotDir string) ([]model.District, error) {
	f, err := os.Open(filepath.Join(snapshotDir, "districts.ndjson"))
	if err != nil {
		return nil, fmt.Errorf("opening districts.ndjson: %w", err)
	}
	defer f.Close()

	var out []model.District
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var doc districtDoc
		if err := json.Unmarshal(line, &doc); err != nil {
			return nil, fmt.Errorf("parsing district record: %w", err)
		}
		d, err := districtFromDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning districts.ndjson: %w", err)
	}
	return out, nil
}

func districtFromDoc(doc districtDoc) (model.District, error) {
	mp, err := multiPolygonFromGeoJSON(doc.Geometry)
	if err != nil {
		return model.District{}, fmt.Errorf("district %s: %w", doc.ID, err)
	}
	return model.District{
		ID:             model.DistrictId(doc.ID),
		JurisdictionID: doc.JurisdictionID,
		Level:          model.Level(doc.Level),
		LocalNumber:    doc.LocalNumber,
		DisplayName:    doc.DisplayName,
		Polygon:        mp,
		CanonicalAttributes: model.CanonicalAttributes{
			RepresentativeName: doc.CanonicalAttrs.RepresentativeName,
		},
		Provenance: model.Provenance{
			SourceURL:           doc.Provenance.SourceURL,
			AuthorityLevel:      model.AuthorityLevel(doc.Provenance.AuthorityLevel),
			ResponseContentHash: doc.Provenance.ResponseContentHash,
		},
	}, nil
}

func multiPolygonFromGeoJSON(raw json.RawMessage) (geometry.MultiPolygon, error) {
	var g geoJSONDoc
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("parsing geometry: %w", err)
	}

	switch g.Type {
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return nil, fmt.Errorf("parsing polygon coordinates: %w", err)
		}
		return geometry.MultiPolygon{polygonFromRings(rings)}, nil
	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return nil, fmt.Errorf("parsing multipolygon coordinates: %w", err)
		}
		mp := make(geometry.MultiPolygon, len(polys))
		for i, rings := range polys {
			mp[i] = polygonFromRings(rings)
		}
		return mp, nil
	default:
		return nil, fmt.Errorf("unrecognized geometry type %q", g.Type)
	}
}

func polygonFromRings(rings [][][]float64) geometry.Polygon {
	p := geometry.Polygon{Exterior: ringFromPairs(rings[0])}
	for _, hole := range rings[1:] {
		p.Holes = append(p.Holes, ringFromPairs(hole))
	}
	return p
}

func ringFromPairs(pairs [][]float64) geometry.Ring {
	r := make(geometry.Ring, len(pairs))
	for i, pair := range pairs {
		r[i] = geometry.Coordinate{Lng: pair[0], Lat: pair[1]}
	}
	return r
}

// ReadProofs decodes proofs.bin, one JSON record per line, in leaf-index
// order.
func ReadProofs(snapshotDir string) ([]model.MerkleProof, error) {
	f, err := os.Open(filepath.Join(snapshotDir, "proofs.bin"))
	if err != nil {
		return nil, fmt.Errorf("opening proofs.bin: %w", err)
	}
	defer f.Close()

	var out []model.MerkleProof
	dec := json.NewDecoder(f)
	for dec.More() {
		var p model.MerkleProof
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("parsing proof record: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}
