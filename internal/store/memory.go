package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sentraops/sentra/pkg/schema"
)

// MemoryStore is an in-memory Store implementation. It backs unit tests and
// ephemeral runs where durability is not needed.
type MemoryStore struct {
	mu          sync.RWMutex
	playbooks   map[string]map[int]*Playbook
	executions  map[string]*Execution
	stepRecords map[string][]*StepRecord
	history     map[string][]*HistoryEvent
	nextStepID  int64
	nextEventID int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		playbooks:   make(map[string]map[int]*Playbook),
		executions:  make(map[string]*Execution),
		stepRecords: make(map[string][]*StepRecord),
		history:     make(map[string][]*HistoryEvent),
	}
}

func (s *MemoryStore) CreatePlaybook(_ context.Context, pb *Playbook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pb.Version <= 0 {
		pb.Version = 1
	}
	if pb.Status == "" {
		pb.Status = schema.PlaybookDraft
	}
	versions, ok := s.playbooks[pb.ID]
	if !ok {
		versions = make(map[int]*Playbook)
		s.playbooks[pb.ID] = versions
	}
	if _, exists := versions[pb.Version]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "playbook %s@v%d already exists", pb.ID, pb.Version)
	}
	cp := *pb
	cp.CreatedAt = timeOrNow(pb.CreatedAt)
	cp.UpdatedAt = timeOrNow(pb.UpdatedAt)
	versions[pb.Version] = &cp
	return nil
}

func (s *MemoryStore) GetPlaybook(_ context.Context, id string, version int) (*Playbook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pb, ok := s.playbooks[id][version]
	if !ok {
		return nil, storeNotFound("playbook", fmt.Sprintf("%s@v%d", id, version))
	}
	cp := *pb
	return &cp, nil
}

func (s *MemoryStore) GetLatestPlaybook(_ context.Context, id string) (*Playbook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, ok := s.playbooks[id]
	if !ok || len(versions) == 0 {
		return nil, storeNotFound("playbook", id)
	}
	latest := 0
	for v := range versions {
		if v > latest {
			latest = v
		}
	}
	cp := *versions[latest]
	return &cp, nil
}

func (s *MemoryStore) UpdatePlaybookStatus(_ context.Context, id string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, ok := s.playbooks[id]
	if !ok || len(versions) == 0 {
		return storeNotFound("playbook", id)
	}
	for _, pb := range versions {
		pb.Status = schema.PlaybookStatus(status)
		pb.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *MemoryStore) ListActivePlaybooks(_ context.Context) ([]*Playbook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Playbook
	for _, versions := range s.playbooks {
		latest := 0
		for v := range versions {
			if v > latest {
				latest = v
			}
		}
		pb := versions[latest]
		if pb.Status != schema.PlaybookActive {
			continue
		}
		cp := *pb
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateExecution(_ context.Context, ex *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.executions[ex.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "execution %q already exists", ex.ID)
	}
	if ex.Status == "" {
		ex.Status = schema.ExecutionPending
	}
	cp := *ex
	cp.Context = copyMap(ex.Context)
	cp.CreatedAt = timeOrNow(ex.CreatedAt)
	cp.UpdatedAt = timeOrNow(ex.UpdatedAt)
	s.executions[ex.ID] = &cp
	return nil
}

func (s *MemoryStore) GetExecution(_ context.Context, id string) (*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ex, ok := s.executions[id]
	if !ok {
		return nil, storeNotFound("execution", id)
	}
	cp := *ex
	cp.Context = copyMap(ex.Context)
	return &cp, nil
}

func (s *MemoryStore) UpdateExecution(_ context.Context, id string, update ExecutionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ex, ok := s.executions[id]
	if !ok {
		return storeNotFound("execution", id)
	}
	if update.Status != nil {
		ex.Status = *update.Status
	}
	if update.Context != nil {
		ex.Context = copyMap(update.Context)
	}
	if update.CurrentStepID != nil {
		ex.CurrentStepID = *update.CurrentStepID
	}
	if update.ErrorMessage != nil {
		ex.ErrorMessage = *update.ErrorMessage
	}
	if update.StartedAt != nil {
		t := *update.StartedAt
		ex.StartedAt = &t
	}
	if update.CompletedAt != nil {
		t := *update.CompletedAt
		ex.CompletedAt = &t
	}
	ex.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListExecutions(_ context.Context, filter ExecutionFilter) ([]*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Execution
	for _, ex := range s.executions {
		if filter.PlaybookID != "" && ex.PlaybookID != filter.PlaybookID {
			continue
		}
		if filter.Status != nil && ex.Status != *filter.Status {
			continue
		}
		if filter.Since != nil && ex.CreatedAt.Before(*filter.Since) {
			continue
		}
		cp := *ex
		cp.Context = copyMap(ex.Context)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) AppendStepRecord(_ context.Context, rec *StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextStepID++
	cp := *rec
	cp.ID = s.nextStepID
	cp.StartedAt = timeOrNow(rec.StartedAt)
	s.stepRecords[rec.ExecutionID] = append(s.stepRecords[rec.ExecutionID], &cp)
	return nil
}

func (s *MemoryStore) ListStepRecords(_ context.Context, executionID string) ([]*StepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.stepRecords[executionID]
	out := make([]*StepRecord, len(records))
	for i, rec := range records {
		cp := *rec
		out[i] = &cp
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *MemoryStore) AppendHistory(_ context.Context, event *HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextEventID++
	cp := *event
	cp.ID = s.nextEventID
	cp.Sequence = int64(len(s.history[event.ExecutionID]) + 1)
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now().UTC()
	}
	event.Sequence = cp.Sequence
	s.history[event.ExecutionID] = append(s.history[event.ExecutionID], &cp)
	return nil
}

func (s *MemoryStore) ListHistory(_ context.Context, executionID string, since int64) ([]*HistoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*HistoryEvent
	for _, e := range s.history[executionID] {
		if e.Sequence <= since {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
