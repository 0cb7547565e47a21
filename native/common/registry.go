package common

import "sync"

// HaltRegistry is a concurrency-safe HaltView operators toggle at runtime.
// The zero value is ready to use and halts nothing.
type HaltRegistry struct {
	mu     sync.RWMutex
	halted map[string]bool
}

// NewHaltRegistry returns an empty registry.
func NewHaltRegistry() *HaltRegistry {
	return &HaltRegistry{halted: make(map[string]bool)}
}

// SetHalted suspends or resumes the named module.
func (r *HaltRegistry) SetHalted(module string, halted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.halted == nil {
		r.halted = make(map[string]bool)
	}
	r.halted[module] = halted
}

// IsHalted reports whether the named module is suspended.
func (r *HaltRegistry) IsHalted(module string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.halted[module]
}
