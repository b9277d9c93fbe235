package schema

import (
	"fmt"
	"sync"
)

// Registry maps entity names and table names to their declarations.
// It is safe for concurrent lookups once populated.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Entity
	byTable map[string]*Entity
}

// NewRegistry creates a registry, optionally pre-populated. It panics on an
// invalid declaration since those are programming errors.
func NewRegistry(entities ...Entity) *Registry {
	r := &Registry{
		byName:  make(map[string]*Entity),
		byTable: make(map[string]*Entity),
	}
	if err := r.Register(entities...); err != nil {
		panic(err)
	}
	return r
}

// Register validates and adds declarations. Either every entity is added or,
// on error, none is.
func (r *Registry) Register(entities ...Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch := make([]*Entity, 0, len(entities))
	names := make(map[string]struct{}, len(entities))
	tables := make(map[string]struct{}, len(entities))
	for i := range entities {
		e := entities[i]
		e.Columns = append([]Column(nil), e.Columns...)
		if err := e.validate(); err != nil {
			return err
		}
		if _, dup := r.byName[e.Name]; dup {
			return fmt.Errorf("%w: entity %s registered twice", ErrInvalidEntity, e.Name)
		}
		if _, dup := names[e.Name]; dup {
			return fmt.Errorf("%w: entity %s registered twice", ErrInvalidEntity, e.Name)
		}
		if _, dup := r.byTable[e.Table]; dup {
			return fmt.Errorf("%w: table %s registered twice", ErrInvalidEntity, e.Table)
		}
		if _, dup := tables[e.Table]; dup {
			return fmt.Errorf("%w: table %s registered twice", ErrInvalidEntity, e.Table)
		}
		names[e.Name] = struct{}{}
		tables[e.Table] = struct{}{}
		batch = append(batch, &e)
	}

	for _, e := range batch {
		r.byName[e.Name] = e
		r.byTable[e.Table] = e
	}
	return nil
}

// Resolve returns the declaration of an entity type.
func (r *Registry) Resolve(name string) (*Entity, error) {
	r.mu.RLock()
	e, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}
	return e, nil
}

// ByTable returns the declaration that owns table.
func (r *Registry) ByTable(table string) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byTable[table]
	return e, ok
}

// Entities returns every registered declaration.
func (r *Registry) Entities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entity, 0, len(r.byName))
	for _, e := range r.byName {
		out = append(out, e)
	}
	return out
}
