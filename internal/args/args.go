// Package args builds the ordered (tag, value) argument lists carried
// by invocation packets.
package args

import (
	"github.com/lfproto/lf/internal/lferr"
	"github.com/lfproto/lf/internal/wire"
)

// List is an ordered, bounded argument list. The zero value is an
// empty list ready to use.
type List struct {
	items []wire.Arg
}

// New returns an empty List with capacity for up to wire.MaxArgc
// arguments pre-reserved.
func New() *List {
	return &List{items: make([]wire.Arg, 0, wire.MaxArgc)}
}

// Append adds a (tag, value) pair. It fails without mutating the list
// if tag is not a recognized wire type (lferr.ErrIllegalType) or if
// the list is already at wire.MaxArgc (lferr.ErrOverflow).
func (l *List) Append(tag wire.Tag, value uint64) error {
	if !tag.Valid() {
		return lferr.ErrIllegalType
	}
	if len(l.items) >= wire.MaxArgc {
		return lferr.ErrOverflow
	}
	l.items = append(l.items, wire.Arg{Tag: tag, Value: value})
	return nil
}

// Len reports the current argument count.
func (l *List) Len() int {
	return len(l.items)
}

// At returns the i'th argument. It panics if i is out of range, as
// callers are expected to bound their loops with Len.
func (l *List) At(i int) wire.Arg {
	return l.items[i]
}

// Iter yields each (tag, value) pair in order.
func (l *List) Iter(yield func(tag wire.Tag, value uint64) bool) {
	for _, a := range l.items {
		if !yield(a.Tag, a.Value) {
			return
		}
	}
}

// Args returns the accumulated arguments as a wire.Arg slice, ready to
// be attached to a wire.Invocation. The returned slice is owned by the
// caller; List retains its own backing array.
func (l *List) Args() []wire.Arg {
	out := make([]wire.Arg, len(l.items))
	copy(out, l.items)
	return out
}
