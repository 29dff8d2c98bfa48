package timelock

import (
	"fmt"
)

// Store is the slice of state the timelock needs.
type Store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Field is a governed value persisted in state under module/name.
type Field[T comparable] struct {
	Name   string
	key    []byte
	store  Store
	format func(T) string
}

// NewField binds a governed value to store. format renders values in events;
// nil falls back to fmt.Sprint.
func NewField[T comparable](store Store, module, name string, format func(T) string) *Field[T] {
	if format == nil {
		format = func(v T) string { return fmt.Sprint(v) }
	}
	return &Field[T]{
		Name:   name,
		key:    []byte("gov/" + module + "/field/" + name),
		store:  store,
		format: format,
	}
}

// Load returns the persisted timer. An uninitialised field yields the zero
// timer.
func (f *Field[T]) Load() (Timer[T], error) {
	var timer Timer[T]
	if f == nil || f.store == nil {
		return timer, fmt.Errorf("governance: field not configured")
	}
	if _, err := f.store.KVGet(f.key, &timer); err != nil {
		return timer, fmt.Errorf("governance: load %s: %w", f.Name, err)
	}
	return timer, nil
}

// Save persists timer.
func (f *Field[T]) Save(timer Timer[T]) error {
	if f == nil || f.store == nil {
		return fmt.Errorf("governance: field not configured")
	}
	return f.store.KVPut(f.key, &timer)
}

// Current returns the value in effect.
func (f *Field[T]) Current() (T, error) {
	timer, err := f.Load()
	return timer.Current, err
}

// Init seeds the field with value unless it was already initialised.
func (f *Field[T]) Init(value T) error {
	ok, err := f.store.KVGet(f.key, nil)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return f.Save(Timer[T]{Current: value, Next: value})
}

func (f *Field[T]) render(v T) string { return f.format(v) }
