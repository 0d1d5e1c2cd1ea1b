package store

import (
	"fmt"
	"time"

	"github.com/timshannon/badgerhold/v4"
)

const coreThesisKey = "dynamic_core_thesis"

// ThesisDoc is the mutable investment-focus statement. An external strategy
// process rewrites it periodically; the pipeline re-reads it on every
// invocation so a refresh takes effect next run. Last write wins.
type ThesisDoc struct {
	Key       string `badgerhold:"key"`
	Text      string
	UpdatedAt time.Time
}

// CoreThesis returns the current thesis text, falling back to fallback when
// the document is absent. Read failures also fall back; the thesis is not
// critical-path enough to abort an invocation.
func (s *Store) CoreThesis(fallback string) (string, error) {
	var doc ThesisDoc
	err := s.db.Get(coreThesisKey, &doc)
	if err == badgerhold.ErrNotFound {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("read core thesis: %w", err)
	}
	if doc.Text == "" {
		return fallback, nil
	}
	return doc.Text, nil
}

// SetCoreThesis replaces the thesis text.
func (s *Store) SetCoreThesis(text string) error {
	doc := ThesisDoc{Key: coreThesisKey, Text: text, UpdatedAt: time.Now().UTC()}
	if err := s.db.Upsert(coreThesisKey, &doc); err != nil {
		return fmt.Errorf("set core thesis: %w", err)
	}
	return nil
}
