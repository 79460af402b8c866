// Package wire implements the wire type model and packet codec of
// the message runtime: tag widths, little-endian pack/unpack, the
// fixed-size packet header and class bodies, and the CRC-16 used to
// protect a packet.
package wire

import (
	"encoding/binary"

	"github.com/lfproto/lf/internal/lferr"
)

// Tag is a 4-bit wire type tag. The low 3 bits select a width class;
// bit 3 marks the type signed.
type Tag uint8

const (
	TagU8   Tag = 0
	TagU16  Tag = 1
	TagVoid Tag = 2
	TagU32  Tag = 3
	TagUint Tag = 4 // native unsigned, sized by Profile.PointerWidth
	TagPtr  Tag = 6 // opaque device address, sized by Profile.PointerWidth
	TagU64  Tag = 7
	TagI8   Tag = 8
	TagI16  Tag = 9
	TagI32  Tag = 11
	TagI64  Tag = 15
)

const signedBit = Tag(0x8)

// Signed reports whether a tag's high bit marks it signed.
func (t Tag) Signed() bool {
	return t&signedBit != 0
}

// Valid reports whether t is one of the tags enumerated in the wire
// type table. Bit patterns outside that set are illegal.
func (t Tag) Valid() bool {
	switch t {
	case TagU8, TagU16, TagVoid, TagU32, TagUint, TagPtr, TagU64,
		TagI8, TagI16, TagI32, TagI64:
		return true
	default:
		return false
	}
}

func (t Tag) String() string {
	switch t {
	case TagU8:
		return "u8"
	case TagU16:
		return "u16"
	case TagVoid:
		return "void"
	case TagU32:
		return "u32"
	case TagUint:
		return "uint"
	case TagPtr:
		return "ptr"
	case TagU64:
		return "u64"
	case TagI8:
		return "i8"
	case TagI16:
		return "i16"
	case TagI32:
		return "i32"
	case TagI64:
		return "i64"
	default:
		return "illegal"
	}
}

// Profile carries the device attributes that size-polymorphic tags
// (uint, ptr) depend on. One concrete device profile is targeted per
// build, threaded explicitly rather than read from global state.
type Profile struct {
	// PointerWidth is 2 on 16-bit devices, 4 on 32-bit devices.
	PointerWidth int
}

// Profile32 is the reference 32-bit device profile used by the
// built-in module set and the demo CLI.
var Profile32 = Profile{PointerWidth: 4}

// Sizeof returns the wire width of tag under profile, in bytes.
func Sizeof(tag Tag, profile Profile) (int, error) {
	switch tag {
	case TagVoid:
		return 0, nil
	case TagU8, TagI8:
		return 1, nil
	case TagU16, TagI16:
		return 2, nil
	case TagU32, TagI32:
		return 4, nil
	case TagU64, TagI64:
		return 8, nil
	case TagUint, TagPtr:
		return profile.PointerWidth, nil
	default:
		return 0, lferr.ErrIllegalType
	}
}

// Pack writes value's low Sizeof(tag) bytes into dst, little-endian.
// dst must be at least Sizeof(tag, profile) bytes.
func Pack(value uint64, tag Tag, profile Profile, dst []byte) error {
	n, err := Sizeof(tag, profile)
	if err != nil {
		return err
	}
	if len(dst) < n {
		return lferr.ErrOverflow
	}
	switch n {
	case 0:
	case 1:
		dst[0] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(value))
	case 8:
		binary.LittleEndian.PutUint64(dst, value)
	}
	return nil
}

// Unpack reads Sizeof(tag, profile) little-endian bytes from src and
// returns them as a 64-bit holding cell, sign-extended to 64 bits if
// tag is signed.
func Unpack(src []byte, tag Tag, profile Profile) (uint64, error) {
	n, err := Sizeof(tag, profile)
	if err != nil {
		return 0, err
	}
	if len(src) < n {
		return 0, lferr.ErrOverflow
	}

	var raw uint64
	switch n {
	case 0:
		return 0, nil
	case 1:
		raw = uint64(src[0])
	case 2:
		raw = uint64(binary.LittleEndian.Uint16(src))
	case 4:
		raw = uint64(binary.LittleEndian.Uint32(src))
	case 8:
		raw = binary.LittleEndian.Uint64(src)
	}

	if !tag.Signed() {
		return raw, nil
	}
	return signExtend(raw, n), nil
}

// signExtend sign-extends the low n*8 bits of raw to a full 64-bit
// value, per the high bit of the n-byte representation.
func signExtend(raw uint64, n int) uint64 {
	bits := uint(n * 8)
	if bits == 64 {
		return raw
	}
	signBit := uint64(1) << (bits - 1)
	if raw&signBit == 0 {
		return raw
	}
	return raw | (^uint64(0) << bits)
}
