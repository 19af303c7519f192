package action

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ConfigurationError reports a function reference that cannot be resolved to a complete Pair.
type ConfigurationError struct {
	Ref    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("action %q: %s", e.Ref, e.Reason)
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Registry holds the actions known to the process.
// Lookups are pure; the set is fixed once the process has started serving.
type Registry struct {
	actions map[string]Pair
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]Pair),
	}
}

// Register adds an action under namespace.name.
// Both halves of the pair are required even if compensation is never used.
func (r *Registry) Register(namespace, name string, execute, compensate Func) error {
	ref := namespace + "." + name
	if err := checkRef(ref); err != nil {
		return err
	}
	if execute == nil {
		return &ConfigurationError{Ref: ref, Reason: "execute function is nil"}
	}
	if compensate == nil {
		return &ConfigurationError{Ref: ref, Reason: "compensate function is nil"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[ref]; exists {
		return &ConfigurationError{Ref: ref, Reason: "already registered"}
	}
	r.actions[ref] = Pair{Execute: execute, Compensate: compensate}
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry) MustRegister(namespace, name string, execute, compensate Func) {
	if err := r.Register(namespace, name, execute, compensate); err != nil {
		panic(err)
	}
}

// Resolve returns the pair registered under ref.
func (r *Registry) Resolve(ref string) (Pair, error) {
	if err := checkRef(ref); err != nil {
		return Pair{}, err
	}

	r.mu.RLock()
	p, ok := r.actions[ref]
	r.mu.RUnlock()
	if !ok {
		return Pair{}, &ConfigurationError{Ref: ref, Reason: "no such action"}
	}
	return p, nil
}

// ValidateRefs resolves every reference and joins the failures.
func (r *Registry) ValidateRefs(refs []string) error {
	var errs []error
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		if _, err := r.Resolve(ref); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Refs returns all registered references, sorted.
func (r *Registry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make([]string, 0, len(r.actions))
	for ref := range r.actions {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// Count returns the number of registered actions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}

func checkRef(ref string) error {
	namespace, name, ok := strings.Cut(ref, ".")
	if !ok || namespace == "" || name == "" || strings.Contains(name, ".") {
		return &ConfigurationError{Ref: ref, Reason: "expected <namespace>.<name>"}
	}
	if namespace != NamespaceBuiltins && namespace != NamespaceMods {
		return &ConfigurationError{Ref: ref, Reason: fmt.Sprintf("unknown namespace %q", namespace)}
	}
	return nil
}
