// Package manifest loads a host-side description of a device module
// from YAML, giving bind-time dynamic loader correlation something
// concrete to load without a shared compiled header.
package manifest

import (
	"fmt"
	"os"

	"github.com/lfproto/lf/internal/registry"
	"github.com/lfproto/lf/internal/wire"
	"gopkg.in/yaml.v3"
)

// Function describes one callable entry point as declared by a
// manifest, mirroring a device module's function table.
// RetTag and ParamTags are filled in by Resolve and are what
// Client.Invoke actually dispatches against.
type Function struct {
	Name   string   `yaml:"name"`
	Ret    string   `yaml:"ret"`
	Params []string `yaml:"params"`

	RetTag    wire.Tag
	ParamTags []wire.Tag
}

// Module is the YAML-deserialized form of a device module
// description, used by the host to bind against a running device
// without sharing a compiled header.
type Module struct {
	Name      string     `yaml:"name"`
	User      bool       `yaml:"user"`
	Functions []Function `yaml:"functions"`

	id uint16 // identifier, computed by Resolve; 0 until resolved
}

// Load reads, parses, and resolves a module manifest from path.
func Load(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	var m Module
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parse %s: %w", path, err)
	}
	if err := m.Resolve(); err != nil {
		return nil, fmt.Errorf("manifest: %s: %w", path, err)
	}
	return &m, nil
}

// Resolve computes the module's wire identifier and resolves every
// declared function's ret/params type names to wire.Tag values,
// rejecting an arity beyond MaxArgc. Load and Client.Bind call this
// automatically, so a Module built by hand (rather than loaded from
// YAML) is resolved when it is bound.
func (m *Module) Resolve() error {
	if len(m.Functions) > 255 {
		return fmt.Errorf("declares %d functions, exceeds 255-entry index", len(m.Functions))
	}
	for i := range m.Functions {
		f := &m.Functions[i]
		if len(f.Params) > wire.MaxArgc {
			return fmt.Errorf("function %s declares %d params, exceeds MaxArgc=%d", f.Name, len(f.Params), wire.MaxArgc)
		}
		retTag, err := ResolveTag(f.Ret)
		if err != nil {
			return fmt.Errorf("function %s: %w", f.Name, err)
		}
		f.RetTag = retTag
		f.ParamTags = make([]wire.Tag, len(f.Params))
		for j, p := range f.Params {
			tag, err := ResolveTag(p)
			if err != nil {
				return fmt.Errorf("function %s param %d: %w", f.Name, j, err)
			}
			f.ParamTags[j] = tag
		}
	}
	m.id = registry.Identifier(m.Name)
	return nil
}

// Identifier returns the module's wire identifier, computing it on
// first access if Resolve has not already run.
func (m *Module) Identifier() uint16 {
	if m.id == 0 {
		m.id = registry.Identifier(m.Name)
	}
	return m.id
}

// FunctionByName returns the declared function matching name and its
// positional index within Functions (the index Client.Invoke dispatches
// against), or false if the manifest declares no such function.
func (m *Module) FunctionByName(name string) (Function, uint8, bool) {
	for i, f := range m.Functions {
		if f.Name == name {
			return f, uint8(i), true
		}
	}
	return Function{}, 0, false
}

// tagByName maps a manifest's string type names onto wire.Tag values.
var tagByName = map[string]wire.Tag{
	"u8": wire.TagU8, "u16": wire.TagU16, "void": wire.TagVoid,
	"u32": wire.TagU32, "uint": wire.TagUint, "ptr": wire.TagPtr,
	"u64": wire.TagU64, "i8": wire.TagI8, "i16": wire.TagI16,
	"i32": wire.TagI32, "i64": wire.TagI64,
}

// ResolveTag converts a manifest type name to a wire.Tag.
func ResolveTag(name string) (wire.Tag, error) {
	tag, ok := tagByName[name]
	if !ok {
		return 0, fmt.Errorf("manifest: unrecognized type %q", name)
	}
	return tag, nil
}
