// Package registry holds the device-side table of modules and
// functions an invocation can target. Standard (built-in) modules
// self-register via init(); user modules register dynamically by
// name, correlated to a wire identifier by CRC-16.
package registry

import (
	"sync"

	glog "github.com/lfproto/lf/internal/log"
	"github.com/lfproto/lf/internal/wire"
)

// Function is a single callable entry point within a module.
type Function struct {
	Name string
	Fn   interface{} // a Go func value, later wrapped by reflect in internal/trampoline
	Ret  wire.Tag
}

// Module is a fixed-index table of functions (a standard module), or
// a name-addressed table loaded dynamically (a user module).
type Module struct {
	Name      string
	Index     uint8
	Functions []Function
}

// Function looks up fn by index. ok is false for an out-of-range
// index; the caller maps that to lferr.ErrNull.
func (m *Module) Function(index uint8) (Function, bool) {
	if int(index) >= len(m.Functions) {
		return Function{}, false
	}
	return m.Functions[index], true
}

// Registry is the device-side module table: a fixed slot per standard
// module index, plus a name->index map covering every registered
// module.
type Registry struct {
	mu      sync.RWMutex
	modules map[uint8]*Module
	byName  map[string]uint8
}

// DefaultRegistry is the process-wide registry populated by standard
// modules' init() functions.
var DefaultRegistry = New()

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		modules: make(map[uint8]*Module),
		byName:  make(map[string]uint8),
	}
}

// RegisterModule installs a statically-indexed standard module. Called
// from init() by each built-in module package.
func (r *Registry) RegisterModule(m *Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.Index] = m
	r.byName[m.Name] = m.Index

	if glog.L != nil {
		glog.L.StubInstall(m.Name, m.Index)
	}
}

// RegisterUserModule installs a dynamically loaded module, assigning
// it an index derived from its CRC-16 identifier's low byte combined
// with the wire.UserModuleBit marker.
func (r *Registry) RegisterUserModule(m *Module) uint8 {
	id := Identifier(m.Name)
	index := wire.UserModuleBit | uint8(id)

	r.mu.Lock()
	defer r.mu.Unlock()
	m.Index = index
	r.modules[index] = m
	r.byName[m.Name] = index

	if glog.L != nil {
		glog.L.StubInstall(m.Name, index)
	}
	return index
}

// Module looks up a module by index. ok is false for an unregistered
// index; the caller maps that to lferr.ErrNull.
func (r *Registry) Module(index uint8) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[index]
	return m, ok
}

// Count reports the number of registered modules, for configuration
// query replies.
func (r *Registry) Count() uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint8(len(r.modules))
}

// IndexByName resolves a module name to its registered index, used at
// bind time to correlate a user module name to the index the device
// assigned it.
func (r *Registry) IndexByName(name string) (uint8, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byName[name]
	return idx, ok
}

// Identifier computes the CRC-16 wire identifier for a module name,
// used to correlate a dynamically loaded user module between host and
// device. The CRC covers the name including its NUL terminator.
func Identifier(name string) uint16 {
	return wire.CRC16(append([]byte(name), 0))
}
