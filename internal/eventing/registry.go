package eventing

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// Registry maps event type names to payload prototypes so raw outbox
// envelopes can be decoded back into typed events.
type Registry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]reflect.Type)}
}

// Register records the concrete type of an event prototype.
func (r *Registry) Register(prototype any) error {
	if r == nil {
		return errors.New("eventing: nil registry")
	}
	if prototype == nil {
		return errors.New("eventing: nil prototype")
	}
	t := reflect.TypeOf(prototype)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("eventing: prototype must be a struct, got %s", t.Kind())
	}
	r.mu.Lock()
	r.types[t.String()] = t
	r.mu.Unlock()
	return nil
}

// DecodePayload decodes the envelope payload into its registered type.
func (r *Registry) DecodePayload(env Envelope) (any, error) {
	if r == nil {
		return nil, errors.New("eventing: nil registry")
	}
	r.mu.RLock()
	t, ok := r.types[env.EventType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("eventing: unknown event type %q", env.EventType)
	}
	value := reflect.New(t)
	if err := json.Unmarshal(env.Payload, value.Interface()); err != nil {
		return nil, err
	}
	return value.Elem().Interface(), nil
}
