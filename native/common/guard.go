package common

import "errors"

// ErrModuleHalted is returned when an operator has suspended a module.
var ErrModuleHalted = errors.New("module halted")

// HaltView reports whether a named module is currently suspended.
type HaltView interface {
	IsHalted(module string) bool
}

// Guard rejects the call when the module is suspended. A nil view or empty
// module name never halts.
func Guard(v HaltView, module string) error {
	if v == nil || module == "" {
		return nil
	}
	if v.IsHalted(module) {
		return ErrModuleHalted
	}
	return nil
}
