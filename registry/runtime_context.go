package registry

import (
	"github.com/runelang/rune/hash"
	"github.com/runelang/rune/values"
)

// RuntimeContext is the frozen subset of a Context that the VM needs
// while executing: native handlers and constants. It is safe to share
// between VMs on different goroutines.
type RuntimeContext struct {
	functions map[hash.Hash]values.Handler
	constants map[hash.Hash]values.ConstValue
}

// Function resolves a native handler by hash.
func (r *RuntimeContext) Function(h hash.Hash) (values.Handler, bool) {
	fn, ok := r.functions[h]
	return fn, ok
}

// Constant resolves a constant by hash.
func (r *RuntimeContext) Constant(h hash.Hash) (values.ConstValue, bool) {
	constant, ok := r.constants[h]
	return constant, ok
}

// FunctionCount reports how many handlers the snapshot carries.
func (r *RuntimeContext) FunctionCount() int {
	return len(r.functions)
}
