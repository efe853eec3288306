package records

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository is an in-memory Repository. It backs the standalone daemon
// and the test suites; production deployments adapt the host application's
// data store instead.
type MemoryRepository struct {
	mutex  sync.RWMutex
	models map[string][]Record
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		models: make(map[string][]Record),
	}
}

// Seed replaces the contents of a model. Intended for test setup and initial
// population.
func (m *MemoryRepository) Seed(model string, recs []Record) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	copied := make([]Record, 0, len(recs))
	for _, rec := range recs {
		copied = append(copied, rec.Clone())
	}
	m.models[model] = copied
}

// Models lists the logical model names the repository holds.
func (m *MemoryRepository) Models(ctx context.Context) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	names := make([]string, 0, len(m.models))
	for name := range m.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// FetchAll returns every record of a model.
func (m *MemoryRepository) FetchAll(ctx context.Context, model string) ([]Record, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	recs := m.models[model]
	result := make([]Record, 0, len(recs))
	for _, rec := range recs {
		result = append(result, rec.Clone())
	}
	return result, nil
}

// FindByNaturalKey returns the record whose keyField equals keyValue.
func (m *MemoryRepository) FindByNaturalKey(ctx context.Context, model, keyField string, keyValue interface{}) (Record, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, rec := range m.models[model] {
		if v, ok := rec[keyField]; ok && ValuesEqual(v, keyValue) {
			return rec.Clone(), true, nil
		}
	}
	return nil, false, nil
}

// Upsert inserts the record or replaces the one sharing its natural key.
func (m *MemoryRepository) Upsert(ctx context.Context, model, keyField string, rec Record) error {
	keyValue, err := KeyValue(rec, keyField)
	if err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	recs := m.models[model]
	for i, existing := range recs {
		if v, ok := existing[keyField]; ok && ValuesEqual(v, keyValue) {
			recs[i] = rec.Clone()
			return nil
		}
	}
	m.models[model] = append(recs, rec.Clone())
	return nil
}

// Delete removes the record with the given natural key.
func (m *MemoryRepository) Delete(ctx context.Context, model, keyField string, keyValue interface{}) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	recs := m.models[model]
	for i, existing := range recs {
		if v, ok := existing[keyField]; ok && ValuesEqual(v, keyValue) {
			m.models[model] = append(recs[:i], recs[i+1:]...)
			return nil
		}
	}
	return nil
}

// RunInTransaction snapshots one model's records, runs fn against the
// repository, and restores the snapshot if fn fails.
func (m *MemoryRepository) RunInTransaction(ctx context.Context, model string, fn func(tx Repository) error) error {
	m.mutex.Lock()
	before := make([]Record, 0, len(m.models[model]))
	for _, rec := range m.models[model] {
		before = append(before, rec.Clone())
	}
	m.mutex.Unlock()

	if err := fn(m); err != nil {
		m.mutex.Lock()
		m.models[model] = before
		m.mutex.Unlock()
		return err
	}
	return nil
}
