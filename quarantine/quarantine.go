// Package quarantine implements Shadow Atlas's append-only quarantine
// ledger (spec §4.4): rejected candidate sets and districts are recorded
// permanently, review outcomes are written as new subordinate records
// that never mutate the original, and restore yields the original
// subject snapshot for re-insertion into a future build.
package quarantine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/shadowatlas/core/model"
)

// quarantineNamespace is the fixed UUIDv5 namespace quarantine entry ids
// are derived from. An id is derived from the subject id, the reason code
// and CreatedAt in nanoseconds, so it is deterministic rather than random;
// the detail text is not part of it.
var quarantineNamespace = uuid.MustParse("6fa817a1-38df-4f0e-9f92-9f1f6f7a2b10")

func newEntryID(subjectID string, reasonCode model.ReasonCode, createdAt time.Time) model.QuarantineId {
	name := fmt.Sprintf("%s:%s:%d", subjectID, reasonCode, createdAt.UnixNano())
	return model.QuarantineId(uuid.NewSHA1(quarantineNamespace, []byte(name)).String())
}

// Ledger is a single-writer, append-only quarantine store backed by an
// NDJSON file (spec §6: "append-only record... for review"), mirroring
// the teacher's override-as-new-record workflow in election-blackout.
type Ledger struct {
	mu       sync.Mutex
	path     string
	entries  map[model.QuarantineId]model.QuarantineEntry
	bySubject map[string][]model.QuarantineId
}

// Open loads an existing NDJSON ledger file, creating it if absent.
func Open(path string) (*Ledger, error) {
	l := &Ledger{
		path:      path,
		entries:   make(map[model.QuarantineId]model.QuarantineEntry),
		bySubject: make(map[string][]model.QuarantineId),
	}

	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMissingQuarantineDir, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry model.QuarantineEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("parsing quarantine ledger %s: %w", path, err)
		}
		l.index(entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading quarantine ledger %s: %w", path, err)
	}

	return l, nil
}

func (l *Ledger) index(entry model.QuarantineEntry) {
	l.entries[entry.ID] = entry
	l.bySubject[entry.SubjectID] = append(l.bySubject[entry.SubjectID], entry.ID)
}

func (l *Ledger) append(entry model.QuarantineEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling quarantine entry: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("opening quarantine ledger %s: %w", l.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("appending quarantine entry: %w", err)
	}

	l.index(entry)
	return nil
}

// Quarantine records a rejected subject permanently and returns the new
// entry's id.
func (l *Ledger) Quarantine(
	subject model.QuarantineSubjectKind,
	subjectID string,
	reasonCode model.ReasonCode,
	detail string,
	proof *model.TessellationProof,
	snapshotOfSubject model.CandidateDistrictSet,
	createdAt time.Time,
) (model.QuarantineId, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := model.QuarantineEntry{
		ID:                newEntryID(subjectID, reasonCode, createdAt),
		Subject:           subject,
		SubjectID:         subjectID,
		ReasonCode:        reasonCode,
		Detail:            detail,
		ValidationProof:   proof,
		SnapshotOfSubject: snapshotOfSubject,
		ReviewStatus:      model.ReviewPending,
		CreatedAt:         createdAt,
	}
	if err := l.append(entry); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// MarkReview writes a new subordinate record carrying the review outcome,
// referencing the original via SupersedesID. The original record is never
// mutated in place.
func (l *Ledger) MarkReview(id model.QuarantineId, outcome model.ReviewStatus, reviewer, notes string, at time.Time) (model.QuarantineId, error) {
	l.mu.Lock()
	original, ok := l.entries[id]
	l.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", model.ErrQuarantineEntryNotFound, id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	review := original
	review.ID = newEntryID(string(original.SubjectID), original.ReasonCode, at)
	review.ReviewStatus = outcome
	review.SupersedesID = id
	review.Reviewer = reviewer
	review.ReviewNotes = notes
	review.CreatedAt = at

	if err := l.append(review); err != nil {
		return "", err
	}
	return review.ID, nil
}

// Restore returns the original candidate set snapshot for an entry, for
// re-insertion into a future build after a fix.
func (l *Ledger) Restore(id model.QuarantineId) (model.CandidateDistrictSet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[id]
	if !ok {
		return model.CandidateDistrictSet{}, fmt.Errorf("%w: %s", model.ErrQuarantineEntryNotFound, id)
	}
	return entry.SnapshotOfSubject, nil
}

// IsQuarantined reports whether a subject id has any entry whose most
// recent review status is still pending or rejected (an approved or fixed
// entry means the subject has since cleared quarantine).
func (l *Ledger) IsQuarantined(subjectID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids, ok := l.bySubject[subjectID]
	if !ok || len(ids) == 0 {
		return false
	}

	latest := l.entries[ids[len(ids)-1]]
	for _, id := range ids {
		entry := l.entries[id]
		if entry.CreatedAt.After(latest.CreatedAt) {
			latest = entry
		}
	}
	return latest.ReviewStatus == model.ReviewPending || latest.ReviewStatus == model.ReviewRejected
}

// Entry returns a single entry by id.
func (l *Ledger) Entry(id model.QuarantineId) (model.QuarantineEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[id]
	return entry, ok
}

// HistoryFor returns every entry recorded for a subject, in append order.
func (l *Ledger) HistoryFor(subjectID string) []model.QuarantineEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := l.bySubject[subjectID]
	out := make([]model.QuarantineEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.entries[id])
	}
	return out
}

// similarityMinConfidence is the minimum normalized-Levenshtein confidence
// for a past rejection's detail text to count as a precedent for a new one.
const similarityMinConfidence = 0.7

// SimilarRejections scans every quarantined entry across all subjects for
// detail text resembling detail, so a reviewer fixing one rejection can
// see whether the same root cause has already been diagnosed elsewhere.
// Ranked by confidence, highest first.
func (l *Ledger) SimilarRejections(detail string, limit int) []model.QuarantineEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if detail == "" || limit <= 0 {
		return nil
	}

	type scored struct {
		entry      model.QuarantineEntry
		confidence float64
	}
	var candidates []scored
	for _, entry := range l.entries {
		if entry.Detail == "" || entry.Detail == detail {
			continue
		}
		distance := fuzzy.LevenshteinDistance(detail, entry.Detail)
		maxLen := len(detail)
		if len(entry.Detail) > maxLen {
			maxLen = len(entry.Detail)
		}
		if maxLen == 0 {
			continue
		}
		confidence := 1.0 - float64(distance)/float64(maxLen)
		if confidence < similarityMinConfidence {
			continue
		}
		candidates = append(candidates, scored{entry: entry, confidence: confidence})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].confidence > candidates[j].confidence
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]model.QuarantineEntry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}
	return out
}
