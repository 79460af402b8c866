// Package trampoline implements the device-side call trampoline. On a
// real device this would be an architecture-specific assembly sequence
// marshaling argument words into registers or stack slots per the
// target ABI; here the "device" is a Go process, so reflect.Value.Call
// stands in as the ABI and this package does the
// unpack/invoke/normalize steps in terms of it.
package trampoline

import (
	"math"
	"reflect"

	"github.com/lfproto/lf/internal/lferr"
	"github.com/lfproto/lf/internal/wire"
)

// IllegalSentinel is returned alongside an error from Call; it mirrors
// the device's "unrepresentable result" return value.
const IllegalSentinel = math.MaxUint64

// Call unpacks argc arguments out of argv according to types (the
// packed 4-bits-per-argument tag word from an InvocationBody),
// invokes fn via reflection, and normalizes its single return value
// to a uint64 per retTag: unpack, call, normalize, in that order.
func Call(fn reflect.Value, retTag wire.Tag, argc int, types uint64, argv []byte, profile wire.Profile) (uint64, error) {
	if fn.Kind() != reflect.Func {
		return IllegalSentinel, lferr.ErrModule
	}
	ft := fn.Type()
	if ft.NumIn() != argc {
		return IllegalSentinel, lferr.ErrType
	}

	values := make([]reflect.Value, argc)
	off := 0
	for i := 0; i < argc; i++ {
		tag := wire.Tag((types >> (4 * uint(i))) & 0xF)
		if !tag.Valid() {
			return IllegalSentinel, lferr.ErrIllegalType
		}
		n, err := wire.Sizeof(tag, profile)
		if err != nil {
			return IllegalSentinel, lferr.ErrIllegalType
		}
		if off+n > len(argv) {
			return IllegalSentinel, lferr.ErrOverflow
		}
		raw, err := wire.Unpack(argv[off:off+n], tag, profile)
		if err != nil {
			return IllegalSentinel, lferr.ErrIllegalType
		}
		off += n

		v, err := coerce(raw, n, ft.In(i))
		if err != nil {
			return IllegalSentinel, lferr.ErrType
		}
		values[i] = v
	}

	results := fn.Call(values)

	return normalize(results, retTag, profile)
}

// CallValues is a convenience wrapper around Call for callers that
// already hold a decoded []wire.Arg (e.g. the perform engine, after
// wire.Parse), avoiding a pack/unpack round trip through raw bytes.
func CallValues(fn reflect.Value, retTag wire.Tag, args []wire.Arg, profile wire.Profile) (uint64, error) {
	var types uint64
	var argv []byte
	for i, a := range args {
		types |= uint64(a.Tag) << (4 * uint(i))
		n, err := wire.Sizeof(a.Tag, profile)
		if err != nil {
			return IllegalSentinel, lferr.ErrIllegalType
		}
		b := make([]byte, n)
		if err := wire.Pack(a.Value, a.Tag, profile, b); err != nil {
			return IllegalSentinel, lferr.ErrType
		}
		argv = append(argv, b...)
	}
	return Call(fn, retTag, len(args), types, argv, profile)
}

// coerce converts a 64-bit holding-cell value into a reflect.Value of
// the function's declared parameter type, failing if the declared Go
// type cannot represent the wire width of n bytes (e.g. a manifest arg
// tagged u64 feeding a parameter typed uint32).
func coerce(raw uint64, n int, pt reflect.Type) (reflect.Value, error) {
	if uintptr(n) > pt.Size() {
		return reflect.Value{}, lferr.ErrType
	}
	switch pt.Kind() {
	case reflect.Uint8:
		if raw > math.MaxUint8 {
			return reflect.Value{}, lferr.ErrType
		}
		return reflect.ValueOf(uint8(raw)), nil
	case reflect.Uint16:
		if raw > math.MaxUint16 {
			return reflect.Value{}, lferr.ErrType
		}
		return reflect.ValueOf(uint16(raw)), nil
	case reflect.Uint32:
		if raw > math.MaxUint32 {
			return reflect.Value{}, lferr.ErrType
		}
		return reflect.ValueOf(uint32(raw)), nil
	case reflect.Uint64, reflect.Uintptr:
		return reflect.ValueOf(raw).Convert(pt), nil
	case reflect.Int8:
		return reflect.ValueOf(int8(raw)), nil
	case reflect.Int16:
		return reflect.ValueOf(int16(raw)), nil
	case reflect.Int32:
		return reflect.ValueOf(int32(raw)), nil
	case reflect.Int64:
		return reflect.ValueOf(int64(raw)), nil
	default:
		return reflect.Value{}, lferr.ErrType
	}
}

// normalize folds fn's single result (if any) into the 64-bit return
// convention: zero- or sign-extended per retTag, void -> 0.
func normalize(results []reflect.Value, retTag wire.Tag, profile wire.Profile) (uint64, error) {
	if retTag == wire.TagVoid {
		return 0, nil
	}
	if len(results) != 1 {
		return IllegalSentinel, lferr.ErrType
	}
	rv := results[0]

	var raw uint64
	switch rv.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		raw = rv.Uint()
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		raw = uint64(rv.Int())
	default:
		return IllegalSentinel, lferr.ErrType
	}

	n, err := wire.Sizeof(retTag, profile)
	if err != nil {
		return IllegalSentinel, lferr.ErrIllegalType
	}
	buf := make([]byte, 8)
	if n > 0 {
		if err := wire.Pack(raw, retTag, profile, buf[:n]); err != nil {
			return IllegalSentinel, lferr.ErrType
		}
	}
	out, err := wire.Unpack(buf[:n], retTag, profile)
	if err != nil {
		return IllegalSentinel, lferr.ErrIllegalType
	}
	return out, nil
}
