package recordStore

import (
	"fmt"
	"sync"

	"github.com/i5heu/ouroboros-sprite/pkg/interfaces"
)

type schemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]interfaces.Schema
}

func newSchemaRegistry() *schemaRegistry {
	return &schemaRegistry{schemas: make(map[string]interfaces.Schema)}
}

func (r *schemaRegistry) register(schema interfaces.Schema) error {
	if schema.Kind == "" {
		return fmt.Errorf("record store: schema kind is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.schemas[schema.Kind]; ok && existing != schema {
		return fmt.Errorf("record store: schema %q already registered with different options", schema.Kind)
	}
	r.schemas[schema.Kind] = schema
	return nil
}

func (r *schemaRegistry) check(kind string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.schemas[kind]; !ok {
		return fmt.Errorf("%w: %q", interfaces.ErrUnknownSchema, kind)
	}
	return nil
}
