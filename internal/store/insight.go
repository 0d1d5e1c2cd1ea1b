package store

import (
	"fmt"

	"github.com/timshannon/badgerhold/v4"

	"github.com/project-orion/orion/internal/model"
)

// SaveInsight persists an insight keyed by its URL-derived id. Upsert keeps
// at-least-once redelivery idempotent at the storage layer.
func (s *Store) SaveInsight(in *model.Insight) error {
	if in.ID == "" {
		return fmt.Errorf("insight id is required")
	}
	if err := s.db.Upsert(in.ID, in); err != nil {
		return fmt.Errorf("save insight %s: %w", in.ID, err)
	}
	return nil
}

// GetInsight loads an insight by id.
func (s *Store) GetInsight(id string) (*model.Insight, error) {
	var in model.Insight
	if err := s.db.Get(id, &in); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("insight not found: %s", id)
		}
		return nil, fmt.Errorf("get insight %s: %w", id, err)
	}
	return &in, nil
}

// CountInsights returns the number of stored insights.
func (s *Store) CountInsights() (int, error) {
	n, err := s.db.Count(&model.Insight{}, &badgerhold.Query{})
	if err != nil {
		return 0, fmt.Errorf("count insights: %w", err)
	}
	return int(n), nil
}
