// Package memory provides the in-memory record store. Records are sharded
// by subject: each subject owns its own log and lock, so concurrent fusions
// for different subjects never contend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"fusionledger/internal/fusion/models"
	id "fusionledger/pkg/domain"
	"fusionledger/pkg/platform/sentinel"
)

// subjectLog is one subject's records in insertion order, guarded by its
// own lock.
type subjectLog struct {
	mu      sync.Mutex
	records []*models.Record
	seen    map[id.RecordID]*models.Record
}

type InMemoryStore struct {
	mu       sync.RWMutex
	subjects map[id.SubjectID]*subjectLog
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{subjects: make(map[id.SubjectID]*subjectLog)}
}

func (s *InMemoryStore) log(subjectID id.SubjectID) *subjectLog {
	s.mu.RLock()
	l, ok := s.subjects[subjectID]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok = s.subjects[subjectID]; ok {
		return l
	}
	l = &subjectLog{seen: make(map[id.RecordID]*models.Record)}
	s.subjects[subjectID] = l
	return l
}

func (s *InMemoryStore) Append(_ context.Context, record *models.Record) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	if err := record.Validate(); err != nil {
		return err
	}

	l := s.log(record.SubjectID)
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, dup := l.seen[record.ID]; dup {
		// Re-fusion of identical inputs is a no-op; the same identity with
		// different content is a conflict, never a silent drop.
		if existing.ContentMatches(record) {
			return nil
		}
		return fmt.Errorf("record %s: %w", record.ID, sentinel.ErrConflict)
	}
	stored := record.Clone()
	l.seen[record.ID] = stored
	l.records = append(l.records, stored)
	return nil
}

func (s *InMemoryStore) Timeline(_ context.Context, subjectID id.SubjectID) ([]*models.Record, error) {
	s.mu.RLock()
	l, ok := s.subjects[subjectID]
	s.mu.RUnlock()
	if !ok {
		return []*models.Record{}, nil
	}

	l.mu.Lock()
	out := make([]*models.Record, 0, len(l.records))
	for _, r := range l.records {
		out = append(out, r.Clone())
	}
	l.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *InMemoryStore) Get(_ context.Context, subjectID id.SubjectID, recordID id.RecordID) (*models.Record, error) {
	s.mu.RLock()
	l, ok := s.subjects[subjectID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("subject %s: %w", subjectID, sentinel.ErrNotFound)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records {
		if r.ID == recordID {
			return r.Clone(), nil
		}
	}
	return nil, fmt.Errorf("record %s: %w", recordID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) ListAll(_ context.Context) ([]*models.Record, error) {
	s.mu.RLock()
	logs := make([]*subjectLog, 0, len(s.subjects))
	for _, l := range s.subjects {
		logs = append(logs, l)
	}
	s.mu.RUnlock()

	var out []*models.Record
	for _, l := range logs {
		l.mu.Lock()
		for _, r := range l.records {
			out = append(out, r.Clone())
		}
		l.mu.Unlock()
	}
	return out, nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	logs := make([]*subjectLog, 0, len(s.subjects))
	for _, l := range s.subjects {
		logs = append(logs, l)
	}
	s.mu.RUnlock()

	total := 0
	for _, l := range logs {
		l.mu.Lock()
		total += len(l.records)
		l.mu.Unlock()
	}
	return total, nil
}
