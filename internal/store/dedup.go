package store

import (
	"fmt"
	"time"

	"github.com/timshannon/badgerhold/v4"
)

// Outcome records how an identity was finally handled.
type Outcome string

const (
	OutcomePublished Outcome = "published"
	OutcomeRejected  Outcome = "rejected"
)

// DedupRecord marks one (fingerprint or URL) identity as fully handled.
//
// Invariant: a record exists only for identities whose admit/reject
// decision is final. It is never written before that decision, or a
// genuinely new item could be silently dropped by a premature write.
// Keyword-rejected items are filtered before fingerprinting and never
// consume a record.
type DedupRecord struct {
	Key       string  `badgerhold:"key"`
	SourceURL string  `badgerholdIndex:"SourceURL"`
	Outcome   Outcome ``
	FirstSeen time.Time
}

// Seen reports whether key was handled within the retention window.
// Records older than the window no longer block reprocessing even if the
// sweep has not removed them yet.
func (s *Store) Seen(key string, retention time.Duration) (bool, error) {
	var rec DedupRecord
	err := s.db.Get(key, &rec)
	if err == badgerhold.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup lookup %s: %w", key, err)
	}
	if time.Since(rec.FirstSeen) > retention {
		return false, nil
	}
	return true, nil
}

// Record writes a dedup record for a finalized decision.
func (s *Store) Record(key, sourceURL string, outcome Outcome) error {
	rec := DedupRecord{
		Key:       key,
		SourceURL: sourceURL,
		Outcome:   outcome,
		FirstSeen: time.Now().UTC(),
	}
	if err := s.db.Upsert(key, &rec); err != nil {
		return fmt.Errorf("dedup record %s: %w", key, err)
	}
	return nil
}

// Sweep deletes all dedup records older than the retention window and
// returns how many were removed.
func (s *Store) Sweep(retention time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-retention)

	var expired []DedupRecord
	if err := s.db.Find(&expired, badgerhold.Where("FirstSeen").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("dedup sweep query: %w", err)
	}
	if err := s.db.DeleteMatching(&DedupRecord{}, badgerhold.Where("FirstSeen").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("dedup sweep delete: %w", err)
	}
	return len(expired), nil
}
