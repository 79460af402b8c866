package wire

import (
	"encoding/binary"

	"github.com/lfproto/lf/internal/lferr"
)

// Magic identifies a valid packet header.
const Magic uint16 = 0xFE1A

// MaxArgc bounds argument-list length so a full type word (4 bits per
// argument) fits in the 64-bit Types field.
const MaxArgc = 16

// MaxPacketSize is the capacity of a fixed-size packet buffer.
const MaxPacketSize = 64

// HeaderSize is sizeof(Header): magic(2) + checksum(2) + length(2) +
// class(1), padded to 8 bytes for alignment. A void no-arg invocation
// therefore frames at 20 bytes: this header plus the fixed 12-byte
// invocation prefix.
const HeaderSize = 8

// Class identifies a packet's body shape.
type Class uint8

const (
	ClassConfiguration Class = 0
	ClassStandard      Class = 1
	ClassUser          Class = 2
	ClassRAMLoad       Class = 3
	ClassSend          Class = 4
	ClassPush          Class = 5
	ClassReceive       Class = 6
	ClassPull          Class = 7
	ClassEvent         Class = 8
)

func (c Class) Valid() bool {
	return c <= ClassEvent
}

func (c Class) String() string {
	switch c {
	case ClassConfiguration:
		return "configuration"
	case ClassStandard:
		return "standard"
	case ClassUser:
		return "user"
	case ClassRAMLoad:
		return "ram-load"
	case ClassSend:
		return "send"
	case ClassPush:
		return "push"
	case ClassReceive:
		return "receive"
	case ClassPull:
		return "pull"
	case ClassEvent:
		return "event"
	default:
		return "illegal"
	}
}

// UserModuleBit marks a module index as belonging to a dynamically
// loaded user module rather than a statically-linked standard one
// (Glossary: "User invocation").
const UserModuleBit uint8 = 0x80

// Header is the fixed packet prefix.
type Header struct {
	Magic    uint16
	Checksum uint16
	Length   uint16
	Class    Class
}

func encodeHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint16(buf[0:2], h.Magic)
	binary.LittleEndian.PutUint16(buf[2:4], h.Checksum)
	binary.LittleEndian.PutUint16(buf[4:6], h.Length)
	buf[6] = byte(h.Class)
	buf[7] = 0 // padding
}

func decodeHeader(buf []byte) Header {
	return Header{
		Magic:    binary.LittleEndian.Uint16(buf[0:2]),
		Checksum: binary.LittleEndian.Uint16(buf[2:4]),
		Length:   binary.LittleEndian.Uint16(buf[4:6]),
		Class:    Class(buf[6]),
	}
}

// Arg is a single (tag, value) pair, the packed unit of the argument
// list. Value holds up to 64 bits; narrower tags are
// narrowed/widened at the wire boundary.
type Arg struct {
	Tag   Tag
	Value uint64
}

// Invocation is the parsed form of an InvocationBody.
type Invocation struct {
	Index    uint8
	Function uint8
	Ret      Tag
	Args     []Arg
	Profile  Profile
}

// invocationBodySize returns the encoded byte length of inv's body
// (everything after the fixed InvocationBody prefix is the packed
// parameter region).
func invocationBodySize(inv Invocation) (int, error) {
	size := 1 + 1 + 1 + 1 + 8 // index, function, ret, argc, types
	for _, a := range inv.Args {
		n, err := Sizeof(a.Tag, inv.Profile)
		if err != nil {
			return 0, err
		}
		size += n
	}
	return size, nil
}

func encodeInvocationBody(buf []byte, inv Invocation) (int, error) {
	if len(inv.Args) > MaxArgc {
		return 0, lferr.ErrOverflow
	}

	buf[0] = inv.Index
	buf[1] = inv.Function
	buf[2] = byte(inv.Ret)
	buf[3] = uint8(len(inv.Args))

	var types uint64
	for i, a := range inv.Args {
		if !a.Tag.Valid() {
			return 0, lferr.ErrIllegalType
		}
		types |= uint64(a.Tag) << (4 * uint(i))
	}
	binary.LittleEndian.PutUint64(buf[4:12], types)

	off := 12
	for _, a := range inv.Args {
		n, err := Sizeof(a.Tag, inv.Profile)
		if err != nil {
			return 0, err
		}
		if err := Pack(a.Value, a.Tag, inv.Profile, buf[off:off+n]); err != nil {
			return 0, err
		}
		off += n
	}
	return off, nil
}

func decodeInvocationBody(buf []byte, profile Profile) (Invocation, int, error) {
	if len(buf) < 12 {
		return Invocation{}, 0, lferr.ErrOverflow
	}
	inv := Invocation{
		Index:    buf[0],
		Function: buf[1],
		Ret:      Tag(buf[2]),
		Profile:  profile,
	}
	argc := int(buf[3])
	if argc > MaxArgc {
		return Invocation{}, 0, lferr.ErrOverflow
	}
	types := binary.LittleEndian.Uint64(buf[4:12])

	off := 12
	inv.Args = make([]Arg, argc)
	for i := 0; i < argc; i++ {
		tag := Tag((types >> (4 * uint(i))) & 0xF)
		if !tag.Valid() {
			return Invocation{}, 0, lferr.ErrIllegalType
		}
		n, err := Sizeof(tag, profile)
		if err != nil {
			return Invocation{}, 0, err
		}
		if len(buf) < off+n {
			return Invocation{}, 0, lferr.ErrOverflow
		}
		v, err := Unpack(buf[off:off+n], tag, profile)
		if err != nil {
			return Invocation{}, 0, err
		}
		inv.Args[i] = Arg{Tag: tag, Value: v}
		off += n
	}
	return inv, off, nil
}

// PushPull is the parsed form of a PushPullBody: a byte length
// for the raw transfer, followed by a sub-invocation whose first two
// (implicit) arguments are (device-pointer, length).
type PushPull struct {
	Length     uint32
	Invocation Invocation
}

func encodePushPullBody(buf []byte, pp PushPull) (int, error) {
	binary.LittleEndian.PutUint32(buf[0:4], pp.Length)
	n, err := encodeInvocationBody(buf[4:], pp.Invocation)
	if err != nil {
		return 0, err
	}
	return 4 + n, nil
}

func decodePushPullBody(buf []byte, profile Profile) (PushPull, int, error) {
	if len(buf) < 4 {
		return PushPull{}, 0, lferr.ErrOverflow
	}
	length := binary.LittleEndian.Uint32(buf[0:4])
	inv, n, err := decodeInvocationBody(buf[4:], profile)
	if err != nil {
		return PushPull{}, 0, err
	}
	return PushPull{Length: length, Invocation: inv}, 4 + n, nil
}

// Packet is a fully decoded (or about-to-be-encoded) frame.
type Packet struct {
	Class      Class
	Invocation *Invocation // set for Standard/User
	PushPull   *PushPull   // set for RAMLoad/Send/Push/Pull/Receive
}

// BuildInvocation encodes a standard or user invocation packet into
// buf (which must be at least MaxPacketSize), returning the used
// length. The checksum is computed last, over the whole buffer with
// the checksum field zeroed.
func BuildInvocation(buf []byte, class Class, inv Invocation) (int, error) {
	if class != ClassStandard && class != ClassUser {
		return 0, lferr.ErrSubclass
	}
	bodyLen, err := invocationBodySize(inv)
	if err != nil {
		return 0, err
	}
	total := HeaderSize + bodyLen
	if total > len(buf) {
		return 0, lferr.ErrOverflow
	}

	if _, err := encodeInvocationBody(buf[HeaderSize:], inv); err != nil {
		return 0, err
	}
	finalizeHeader(buf, total, class)
	return total, nil
}

// BuildPushPull encodes a RAMLoad/Send/Push/Pull/Receive class packet.
// The raw byte payload itself travels separately on the channel.
func BuildPushPull(buf []byte, class Class, pp PushPull) (int, error) {
	switch class {
	case ClassRAMLoad, ClassSend, ClassPush, ClassReceive, ClassPull:
	default:
		return 0, lferr.ErrSubclass
	}
	bodyLen, err := invocationBodySize(pp.Invocation)
	if err != nil {
		return 0, err
	}
	total := HeaderSize + 4 + bodyLen
	if total > len(buf) {
		return 0, lferr.ErrOverflow
	}
	if _, err := encodePushPullBody(buf[HeaderSize:], pp); err != nil {
		return 0, err
	}
	finalizeHeader(buf, total, class)
	return total, nil
}

// BuildConfiguration/BuildEvent encode header-only packets.
func BuildConfiguration(buf []byte) (int, error) { return buildHeaderOnly(buf, ClassConfiguration) }
func BuildEvent(buf []byte) (int, error)         { return buildHeaderOnly(buf, ClassEvent) }

func buildHeaderOnly(buf []byte, class Class) (int, error) {
	if HeaderSize > len(buf) {
		return 0, lferr.ErrOverflow
	}
	finalizeHeader(buf, HeaderSize, class)
	return HeaderSize, nil
}

func finalizeHeader(buf []byte, total int, class Class) {
	encodeHeader(buf[:HeaderSize], Header{Magic: Magic, Length: uint16(total), Class: class})
	crc := CRC16(buf[:total])
	binary.LittleEndian.PutUint16(buf[2:4], crc)
}

// Parse validates and decodes a packet from buf: magic, length
// bounds, checksum, and class are checked in that order.
func Parse(buf []byte, profile Profile) (Packet, error) {
	if len(buf) < HeaderSize {
		return Packet{}, lferr.ErrOverflow
	}
	h := decodeHeader(buf)
	if h.Magic != Magic {
		return Packet{}, lferr.ErrChecksum
	}
	if int(h.Length) > len(buf) || int(h.Length) < HeaderSize {
		return Packet{}, lferr.ErrOverflow
	}

	check := make([]byte, h.Length)
	copy(check, buf[:h.Length])
	binary.LittleEndian.PutUint16(check[2:4], 0)
	if CRC16(check) != h.Checksum {
		return Packet{}, lferr.ErrChecksum
	}

	if !h.Class.Valid() {
		return Packet{}, lferr.ErrSubclass
	}

	body := buf[HeaderSize:h.Length]
	pkt := Packet{Class: h.Class}

	switch h.Class {
	case ClassConfiguration, ClassEvent:
		// header only
	case ClassStandard, ClassUser:
		inv, _, err := decodeInvocationBody(body, profile)
		if err != nil {
			return Packet{}, err
		}
		pkt.Invocation = &inv
	case ClassRAMLoad, ClassSend, ClassPush, ClassReceive, ClassPull:
		pp, _, err := decodePushPullBody(body, profile)
		if err != nil {
			return Packet{}, err
		}
		pkt.PushPull = &pp
	default:
		return Packet{}, lferr.ErrSubclass
	}

	return pkt, nil
}
