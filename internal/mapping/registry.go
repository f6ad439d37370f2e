package mapping

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry errors. All are configuration errors: fatal to the call, surfaced
// immediately, never retried.
var (
	// ErrNoMappings indicates no active mappings exist for a mapping key.
	ErrNoMappings = errors.New("no active mappings for key")

	// ErrDuplicateMapping indicates an active mapping already claims the
	// (mapping key, destination column) pair.
	ErrDuplicateMapping = errors.New("duplicate destination column")

	// ErrMappingNotFound indicates the mapping id does not exist.
	ErrMappingNotFound = errors.New("mapping not found")

	// ErrTableMappingNotFound indicates the mapping key has no table mapping.
	ErrTableMappingNotFound = errors.New("table mapping not found")
)

// Registry stores field and table mappings. Implementations must return
// active mappings sorted by destination column name so that downstream SQL
// generation is deterministic.
type Registry interface {
	// GetActiveMappings returns the active field mappings for a mapping key,
	// sorted by destination column name. An empty result is not an error here;
	// the orchestrator turns it into ErrNoMappings.
	GetActiveMappings(ctx context.Context, mappingKey string) ([]FieldMapping, error)

	// AddMapping stores a new field mapping and returns it with its assigned id.
	// Returns ErrDuplicateMapping if an active mapping already uses the same
	// destination column under the same key.
	AddMapping(ctx context.Context, fm FieldMapping) (FieldMapping, error)

	// UpdateMapping applies the allowed partial update to an existing mapping.
	UpdateMapping(ctx context.Context, id int64, upd MappingUpdate) (FieldMapping, error)

	// GetTableMapping returns the table mapping for a key.
	GetTableMapping(ctx context.Context, mappingKey string) (TableMapping, error)

	// PutTableMapping creates or replaces the table mapping for a key.
	PutTableMapping(ctx context.Context, tm TableMapping) error
}

// MemoryRegistry is an in-memory Registry. It backs unit tests and runs that
// load declarative mapping files instead of the persistent store.
type MemoryRegistry struct {
	mu     sync.RWMutex
	nextID int64
	fields []FieldMapping
	tables map[string]TableMapping
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{nextID: 1, tables: make(map[string]TableMapping)}
}

// GetActiveMappings implements Registry.
func (r *MemoryRegistry) GetActiveMappings(_ context.Context, mappingKey string) ([]FieldMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []FieldMapping
	for _, fm := range r.fields {
		if fm.MappingKey == mappingKey && fm.IsActive {
			out = append(out, fm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DestColumn < out[j].DestColumn })
	return out, nil
}

// AddMapping implements Registry.
func (r *MemoryRegistry) AddMapping(_ context.Context, fm FieldMapping) (FieldMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fm.IsActive {
		for _, existing := range r.fields {
			if existing.IsActive && existing.MappingKey == fm.MappingKey && existing.DestColumn == fm.DestColumn {
				return FieldMapping{}, fmt.Errorf("%w: %s.%s", ErrDuplicateMapping, fm.MappingKey, fm.DestColumn)
			}
		}
	}
	if fm.Rule == nil {
		fm.Rule = DirectRule{}
	}
	fm.ID = r.nextID
	r.nextID++
	r.fields = append(r.fields, fm)
	return fm, nil
}

// UpdateMapping implements Registry.
func (r *MemoryRegistry) UpdateMapping(_ context.Context, id int64, upd MappingUpdate) (FieldMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.fields {
		if r.fields[i].ID != id {
			continue
		}
		fm := r.fields[i]
		if upd.DestColumn != nil {
			fm.DestColumn = *upd.DestColumn
		}
		if upd.Type != nil {
			fm.Type = *upd.Type
		}
		if upd.Rule != nil {
			fm.Rule = upd.Rule
		}
		if upd.IsActive != nil {
			fm.IsActive = *upd.IsActive
		}
		if upd.IsRequired != nil {
			fm.IsRequired = *upd.IsRequired
		}
		if fm.IsActive {
			for j, other := range r.fields {
				if j != i && other.IsActive && other.MappingKey == fm.MappingKey && other.DestColumn == fm.DestColumn {
					return FieldMapping{}, fmt.Errorf("%w: %s.%s", ErrDuplicateMapping, fm.MappingKey, fm.DestColumn)
				}
			}
		}
		r.fields[i] = fm
		return fm, nil
	}
	return FieldMapping{}, fmt.Errorf("%w: id %d", ErrMappingNotFound, id)
}

// GetTableMapping implements Registry.
func (r *MemoryRegistry) GetTableMapping(_ context.Context, mappingKey string) (TableMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tm, ok := r.tables[mappingKey]
	if !ok {
		return TableMapping{}, fmt.Errorf("%w: %s", ErrTableMappingNotFound, mappingKey)
	}
	return tm, nil
}

// PutTableMapping implements Registry.
func (r *MemoryRegistry) PutTableMapping(_ context.Context, tm TableMapping) error {
	if tm.MappingKey == "" || tm.TableName == "" {
		return fmt.Errorf("table mapping requires key and table name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[tm.MappingKey] = tm
	return nil
}
