package store

import (
	"fmt"
	"time"

	"github.com/timshannon/badgerhold/v4"
)

// FeedState is the per-feed change token: the last entry handed off plus
// the conditional-fetch validators from the previous poll. Updated after
// every poll, never deleted. Tokens are feed-scoped, so no cross-feed
// locking is needed.
type FeedState struct {
	Name         string `badgerhold:"key"`
	URL          string
	LastEntryID  string
	ETag         string
	LastModified string
	UpdatedAt    time.Time
}

// FeedState returns the stored token for a feed, or nil on first-ever poll.
func (s *Store) FeedState(name string) (*FeedState, error) {
	var st FeedState
	err := s.db.Get(name, &st)
	if err == badgerhold.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("feed state %s: %w", name, err)
	}
	return &st, nil
}

// SaveFeedState persists the token. Callers must only do this after the
// batch it describes has been successfully handed off.
func (s *Store) SaveFeedState(st *FeedState) error {
	st.UpdatedAt = time.Now().UTC()
	if err := s.db.Upsert(st.Name, st); err != nil {
		return fmt.Errorf("save feed state %s: %w", st.Name, err)
	}
	return nil
}
