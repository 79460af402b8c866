// Package led is a standard device module exposing an RGB LED driver
// entry point. It self-registers into registry.DefaultRegistry via
// init().
package led

import (
	"github.com/lfproto/lf/internal/registry"
	"github.com/lfproto/lf/internal/wire"
)

// Index is this module's statically assigned index, stable across a
// device lifetime.
const Index uint8 = 1

var state struct {
	r, g, b uint8
}

func setRGB(r, g, b uint8) {
	state.r, state.g, state.b = r, g, b
}

func brightness() uint8 {
	return (state.r + state.g + state.b) / 3
}

func init() {
	registry.DefaultRegistry.RegisterModule(&registry.Module{
		Name:  "led",
		Index: Index,
		Functions: []registry.Function{
			{Name: "setRGB", Ret: wire.TagVoid, Fn: setRGB},
			{Name: "brightness", Ret: wire.TagU8, Fn: brightness},
		},
	})
}
