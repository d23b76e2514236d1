package dataset

import (
	"log/slog"
	"sort"
	"sync"

	apperrors "scadalab/internal/errors"
)

// Store keeps every dataset version by id. Parents are referenced by id
// only, so removing a version never invalidates a pointer.
type Store struct {
	mu       sync.RWMutex
	datasets map[string]*Dataset
	logger   *slog.Logger
}

// NewStore creates an empty store
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		datasets: make(map[string]*Dataset),
		logger:   logger.With(slog.String("component", "dataset_store")),
	}
}

// Put adds a dataset. Ids are unique.
func (s *Store) Put(d *Dataset) error {
	if d == nil || d.ID == "" {
		return apperrors.NewAppValidationError("invalid_dataset", "dataset has no id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.datasets[d.ID]; exists {
		return apperrors.NewAppValidationError("duplicate_dataset", "dataset already stored").
			WithContext("dataset_id", d.ID)
	}
	s.datasets[d.ID] = d
	s.logger.Debug("dataset stored",
		slog.String("dataset_id", d.ID),
		slog.Int("version", d.Version),
		slog.String("parent_id", d.ParentID))
	return nil
}

// Get returns the dataset with id
func (s *Store) Get(id string) (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.datasets[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("dataset", id)
	}
	return d, nil
}

// Delete removes one dataset. Children keep their ParentID.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.datasets[id]; !ok {
		return apperrors.NewNotFoundError("dataset", id)
	}
	delete(s.datasets, id)
	return nil
}

// List returns every dataset ordered by creation time, then id
func (s *Store) List() []*Dataset {
	s.mu.RLock()
	out := make([]*Dataset, 0, len(s.datasets))
	for _, d := range s.datasets {
		out = append(out, d)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len is the number of stored datasets
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.datasets)
}

// Lineage returns id followed by its stored ancestors, nearest first. The
// walk stops at the first parent that is no longer stored.
func (s *Store) Lineage(id string) ([]*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.datasets[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("dataset", id)
	}
	chain := []*Dataset{d}
	seen := map[string]bool{id: true}
	for d.ParentID != "" && !seen[d.ParentID] {
		parent, ok := s.datasets[d.ParentID]
		if !ok {
			break
		}
		seen[parent.ID] = true
		chain = append(chain, parent)
		d = parent
	}
	return chain, nil
}

// Prune removes every stored ancestor of id and returns how many were
// removed. id itself stays.
func (s *Store) Prune(id string) (int, error) {
	chain, err := s.Lineage(id)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, ancestor := range chain[1:] {
		if _, ok := s.datasets[ancestor.ID]; ok {
			delete(s.datasets, ancestor.ID)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("pruned superseded versions",
			slog.String("dataset_id", id),
			slog.Int("removed", removed))
	}
	return removed, nil
}

// Children returns the stored datasets derived directly from id
func (s *Store) Children(id string) []*Dataset {
	var out []*Dataset
	for _, d := range s.List() {
		if d.ParentID == id {
			out = append(out, d)
		}
	}
	return out
}
