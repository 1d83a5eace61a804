// Package snapshot implements Shadow Atlas's immutable, content-addressed
// snapshot builder (spec §4.5): canonical district ordering, canonical
// GeoJSON serialization, leaf hashing, Merkle tree construction with
// precomputed proofs, and the on-disk manifest/ndjson/tree/proofs layout
// published via an atomic symlink swap.
package snapshot

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/shadowatlas/core/geometry"
	"github.com/shadowatlas/core/model"
)

// CanonicalOrder sorts districts by the total deterministic order spec
// §4.5 specifies: (country, state, jurisdiction_id, level, local_number, id).
// "state" is read from the jurisdiction id's FIPS state prefix, the first
// two characters, so this function does not need a registry lookup.
func CanonicalOrder(districts []model.District, country string) []model.District {
	out := make([]model.District, len(districts))
	copy(out, districts)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if country != "" {
			// country is constant across one build; included for parity
			// with the spec's tuple even though it never breaks a tie here.
			_ = country
		}
		if a.JurisdictionID != b.JurisdictionID {
			stateA, stateB := stateFIPSPrefix(a.JurisdictionID), stateFIPSPrefix(b.JurisdictionID)
			if stateA != stateB {
				return stateA < stateB
			}
			return a.JurisdictionID < b.JurisdictionID
		}
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.LocalNumber != b.LocalNumber {
			return a.LocalNumber < b.LocalNumber
		}
		return a.ID < b.ID
	})

	return out
}

func stateFIPSPrefix(jurisdictionID string) string {
	if len(jurisdictionID) < 2 {
		return jurisdictionID
	}
	return jurisdictionID[:2]
}

// CanonicalBytes serializes a district as canonical GeoJSON: fixed key
// order, six-fractional-digit coordinates, exterior-CCW/hole-CW ring
// orientation, and no extraneous whitespace (spec §4.5).
func CanonicalBytes(d model.District) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')

	writeKeyString(&buf, "id", string(d.ID), true)
	writeKeyString(&buf, "jurisdiction_id", d.JurisdictionID, false)
	writeKeyString(&buf, "level", string(d.Level), false)
	writeKeyString(&buf, "local_number", d.LocalNumber, false)
	writeKeyString(&buf, "display_name", d.DisplayName, false)

	buf.WriteString(`,"geometry":`)
	writeCanonicalMultiPolygon(&buf, d.Polygon)

	buf.WriteString(`,"canonical_attributes":{`)
	writeKeyString(&buf, "representative_name", d.CanonicalAttributes.RepresentativeName, true)
	buf.WriteByte('}')

	buf.WriteString(`,"provenance":{`)
	writeKeyString(&buf, "source_url", d.Provenance.SourceURL, true)
	writeKeyString(&buf, "authority_level", string(d.Provenance.AuthorityLevel), false)
	writeKeyString(&buf, "response_content_hash", d.Provenance.ResponseContentHash, false)
	buf.WriteByte('}')

	buf.WriteByte('}')
	return buf.Bytes()
}

func writeKeyString(buf *bytes.Buffer, key, value string, first bool) {
	if !first {
		buf.WriteByte(',')
	}
	buf.WriteByte('"')
	buf.WriteString(key)
	buf.WriteString(`":"`)
	buf.WriteString(jsonEscape(value))
	buf.WriteByte('"')
}

func jsonEscape(s string) string {
	var buf bytes.Buffer
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		default:
			buf.WriteRune(r)
		}
	}
	return buf.String()
}

func writeCanonicalMultiPolygon(buf *bytes.Buffer, mp geometry.MultiPolygon) {
	if len(mp) == 1 {
		buf.WriteString(`{"type":"Polygon","coordinates":`)
		writePolygonCoordinates(buf, mp[0])
		buf.WriteByte('}')
		return
	}

	buf.WriteString(`{"type":"MultiPolygon","coordinates":[`)
	for i, p := range mp {
		if i > 0 {
			buf.WriteByte(',')
		}
		writePolygonCoordinates(buf, p)
	}
	buf.WriteString(`]}`)
}

func writePolygonCoordinates(buf *bytes.Buffer, p geometry.Polygon) {
	normalized := geometry.NormalizeOrientation(p)
	buf.WriteByte('[')
	writeRingCoordinates(buf, normalized.Exterior)
	for _, hole := range normalized.Holes {
		buf.WriteByte(',')
		writeRingCoordinates(buf, hole)
	}
	buf.WriteByte(']')
}

func writeRingCoordinates(buf *bytes.Buffer, r geometry.Ring) {
	buf.WriteByte('[')
	for i, c := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		rounded := c.Round()
		buf.WriteByte('[')
		buf.WriteString(formatFixed6(rounded.Lng))
		buf.WriteByte(',')
		buf.WriteString(formatFixed6(rounded.Lat))
		buf.WriteByte(']')
	}
	// GeoJSON rings must close: repeat the first vertex if not already closed.
	if len(r) > 0 && (r[0].Lat != r[len(r)-1].Lat || r[0].Lng != r[len(r)-1].Lng) {
		first := r[0].Round()
		buf.WriteByte(',')
		buf.WriteByte('[')
		buf.WriteString(formatFixed6(first.Lng))
		buf.WriteByte(',')
		buf.WriteString(formatFixed6(first.Lat))
		buf.WriteByte(']')
	}
	buf.WriteByte(']')
}

func formatFixed6(v float64) string {
	return strconv.FormatFloat(v, 'f', geometry.CoordinatePrecision, 64)
}

// CanonicalGeoJSONString is a debugging/test helper returning CanonicalBytes
// as a string.
func CanonicalGeoJSONString(d model.District) string {
	return fmt.Sprintf("%s", CanonicalBytes(d))
}
