// Package registry maps wire class names to Go struct types and describes
// those types as ordered property lists.
package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/mtrqq/amf/pkg/value"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidClass = errors.New("class must be a struct type")
)

// Registry is safe for concurrent use. Registering while a codec session
// is running changes how the rest of that session resolves classes.
type Registry struct {
	lock    sync.RWMutex
	byName  map[string]reflect.Type
	byType  map[reflect.Type]string
	classes map[reflect.Type]*Class
}

// New returns a registry that already knows ArrayCollection.
func New() *Registry {
	r := &Registry{
		byName:  make(map[string]reflect.Type),
		byType:  make(map[reflect.Type]string),
		classes: make(map[reflect.Type]*Class),
	}

	if err := r.Register(value.ArrayCollectionClass, value.ArrayCollection{}); err != nil {
		log.Error().Err(err).Msg("failed to register built-in classes")
	}
	return r
}

// structType accepts a reflect.Type, a struct or a pointer to a struct.
func structType(sample any) (reflect.Type, error) {
	t, ok := sample.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(sample)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: got nil", ErrInvalidClass)
	}

	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidClass, t)
	}
	return t, nil
}

// Register maps name to the struct type of sample in both directions,
// replacing earlier mappings of either.
func (r *Registry) Register(name string, sample any) error {
	t, err := structType(sample)
	if err != nil {
		return fmt.Errorf("unable to register class %q: %w", name, err)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if previous, ok := r.byName[name]; ok {
		delete(r.byType, previous)
	}
	if previous, ok := r.byType[t]; ok {
		delete(r.byName, previous)
	}

	r.byName[name] = t
	r.byType[t] = name
	log.Debug().Str("class", name).Str("type", t.String()).Msg("registered class alias")
	return nil
}

// ClassNameOf returns the registered name of v's type, the class carried
// by a generic object, or the Go type name when nothing is registered.
func (r *Registry) ClassNameOf(v any) string {
	if object, ok := v.(*value.Object); ok {
		return object.ClassName
	}

	t, ok := v.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(v)
	}
	if t == nil {
		return ""
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	r.lock.RLock()
	name, ok := r.byType[t]
	r.lock.RUnlock()
	if ok {
		return name
	}
	return t.Name()
}

// TypeFor returns the struct type registered under name.
func (r *Registry) TypeFor(name string) (reflect.Type, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	t, ok := r.byName[name]
	return t, ok
}

// Describe returns the cached descriptor of a struct type or pointer to one.
func (r *Registry) Describe(sample any) (*Class, error) {
	t, err := structType(sample)
	if err != nil {
		return nil, err
	}

	r.lock.RLock()
	class, ok := r.classes[t]
	r.lock.RUnlock()
	if ok {
		return class, nil
	}

	class, err = describe(t)
	if err != nil {
		return nil, err
	}

	r.lock.Lock()
	r.classes[t] = class
	r.lock.Unlock()
	return class, nil
}
