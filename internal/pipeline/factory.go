package pipeline

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds an action from the dependency bundle
type Constructor[D, X any] func(deps X) Action[D, X]

// Factory maps action names to constructors so pipelines can be assembled
// by name. Registration happens once, when a worker is constructed; Create
// is called for every job and is safe for concurrent use.
//
// Registering a name twice is rejected with ErrDuplicateAction.
type Factory[D, X any] struct {
	mu           sync.RWMutex
	constructors map[string]Constructor[D, X]
}

// NewFactory returns an empty factory
func NewFactory[D, X any]() *Factory[D, X] {
	return &Factory[D, X]{constructors: make(map[string]Constructor[D, X])}
}

// Register associates name with constructor
func (f *Factory[D, X]) Register(name string, constructor Constructor[D, X]) error {
	if name == "" {
		return fmt.Errorf("action name is required")
	}
	if constructor == nil {
		return fmt.Errorf("constructor for action %q is nil", name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.constructors[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAction, name)
	}
	f.constructors[name] = constructor
	return nil
}

// MustRegister is Register for static wiring; it panics on error
func (f *Factory[D, X]) MustRegister(name string, constructor Constructor[D, X]) {
	if err := f.Register(name, constructor); err != nil {
		panic(err)
	}
}

// Create builds the named action, or fails with *UnknownActionError
func (f *Factory[D, X]) Create(name string, deps X) (Action[D, X], error) {
	f.mu.RLock()
	constructor, ok := f.constructors[name]
	f.mu.RUnlock()

	if !ok {
		return nil, &UnknownActionError{Name: name}
	}
	return constructor(deps), nil
}

// IsRegistered reports whether name has a constructor
func (f *Factory[D, X]) IsRegistered(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.constructors[name]
	return ok
}

// List returns the registered names in sorted order
func (f *Factory[D, X]) List() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.constructors))
	for name := range f.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
