package args

import (
	"testing"

	"github.com/lfproto/lf/internal/lferr"
	"github.com/lfproto/lf/internal/wire"
)

func TestAppendAndIterPreserveOrder(t *testing.T) {
	l := New()
	var i32 int32 = -3
	want := []struct {
		tag wire.Tag
		v   uint64
	}{
		{wire.TagU8, 1},
		{wire.TagU16, 2},
		{wire.TagI32, uint64(i32)},
	}
	for _, w := range want {
		if err := l.Append(w.tag, w.v); err != nil {
			t.Fatalf("Append(%v, %d): %v", w.tag, w.v, err)
		}
	}
	if l.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", l.Len(), len(want))
	}

	i := 0
	l.Iter(func(tag wire.Tag, v uint64) bool {
		if tag != want[i].tag || v != want[i].v {
			t.Errorf("arg[%d] = (%v, %d), want (%v, %d)", i, tag, v, want[i].tag, want[i].v)
		}
		i++
		return true
	})
	if i != len(want) {
		t.Fatalf("Iter visited %d args, want %d", i, len(want))
	}
}

func TestAppendRejectsIllegalTag(t *testing.T) {
	l := New()
	if err := l.Append(wire.Tag(5), 0); err != lferr.ErrIllegalType {
		t.Fatalf("Append(illegal tag) = %v, want ErrIllegalType", err)
	}
	if l.Len() != 0 {
		t.Fatalf("Len() = %d after failed Append, want 0", l.Len())
	}
}

func TestAppendEnforcesMaxArgc(t *testing.T) {
	l := New()
	for i := 0; i < wire.MaxArgc; i++ {
		if err := l.Append(wire.TagU8, uint64(i)); err != nil {
			t.Fatalf("Append #%d: %v", i, err)
		}
	}
	if err := l.Append(wire.TagU8, 99); err != lferr.ErrOverflow {
		t.Fatalf("Append past MaxArgc = %v, want ErrOverflow", err)
	}
	if l.Len() != wire.MaxArgc {
		t.Fatalf("Len() = %d, want %d", l.Len(), wire.MaxArgc)
	}
}

func TestIterStopsEarly(t *testing.T) {
	l := New()
	for i := 0; i < 5; i++ {
		_ = l.Append(wire.TagU8, uint64(i))
	}
	count := 0
	l.Iter(func(tag wire.Tag, v uint64) bool {
		count++
		return count < 2
	})
	if count != 2 {
		t.Fatalf("Iter visited %d args after early stop, want 2", count)
	}
}
