// Package gpio is a standard device module exposing digital pin
// read/write entry points. It self-registers into
// registry.DefaultRegistry via init().
package gpio

import (
	"github.com/lfproto/lf/internal/registry"
	"github.com/lfproto/lf/internal/wire"
)

// Index is this module's statically assigned index.
const Index uint8 = 2

const pinCount = 32

var pins [pinCount]uint8

func write(pin uint8, value uint8) {
	if int(pin) < pinCount {
		pins[pin] = value
	}
}

func read(pin uint8) uint8 {
	if int(pin) >= pinCount {
		return 0
	}
	return pins[pin]
}

func init() {
	registry.DefaultRegistry.RegisterModule(&registry.Module{
		Name:  "gpio",
		Index: Index,
		Functions: []registry.Function{
			{Name: "write", Ret: wire.TagVoid, Fn: write},
			{Name: "read", Ret: wire.TagU8, Fn: read},
		},
	})
}
