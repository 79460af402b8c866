// Package image defines the handoff contract for loadable device
// images: the fixed header a staged module or application begins
// with. The loader and linker script live outside the runtime; only
// this header is shared between the host that stages an image and the
// device that takes it over.
package image

import (
	"encoding/binary"

	"github.com/lfproto/lf/internal/lferr"
)

// HeaderSize is the encoded size of Header: nine u32 fields.
const HeaderSize = 36

// Header is the fixed prefix of a loaded module or application image.
// An application has Entry != 0; a module has Entry == 0.
type Header struct {
	Entry      uint32
	ModuleOff  uint32
	ModuleSize uint32
	DataOff    uint32
	DataSize   uint32
	BSSOff     uint32
	BSSSize    uint32
	GOTOff     uint32
	GOTSize    uint32
}

// IsApplication reports whether the image carries an executable entry
// point, as opposed to a module table only.
func (h Header) IsApplication() bool {
	return h.Entry != 0
}

// Encode writes h into buf, which must be at least HeaderSize bytes,
// little-endian like everything else on the wire.
func (h Header) Encode(buf []byte) error {
	if len(buf) < HeaderSize {
		return lferr.ErrOverflow
	}
	fields := [...]uint32{
		h.Entry,
		h.ModuleOff, h.ModuleSize,
		h.DataOff, h.DataSize,
		h.BSSOff, h.BSSSize,
		h.GOTOff, h.GOTSize,
	}
	for i, f := range fields {
		binary.LittleEndian.PutUint32(buf[4*i:], f)
	}
	return nil
}

// ParseHeader decodes the fixed image header from the front of data.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, lferr.ErrOverflow
	}
	at := func(i int) uint32 { return binary.LittleEndian.Uint32(data[4*i:]) }
	return Header{
		Entry:      at(0),
		ModuleOff:  at(1),
		ModuleSize: at(2),
		DataOff:    at(3),
		DataSize:   at(4),
		BSSOff:     at(5),
		BSSSize:    at(6),
		GOTOff:     at(7),
		GOTSize:    at(8),
	}, nil
}

// Validate checks that every file-backed section the header names lies
// within an image of the given total size. Offsets are relative to the
// start of the image, so a section must begin at or after the header
// and end at or before length. BSS is exempt: it occupies RAM only and
// carries no bytes in the image.
func (h Header) Validate(length int) error {
	sections := [...][2]uint32{
		{h.ModuleOff, h.ModuleSize},
		{h.DataOff, h.DataSize},
		{h.GOTOff, h.GOTSize},
	}
	for _, s := range sections {
		off, size := uint64(s[0]), uint64(s[1])
		if size == 0 {
			continue
		}
		if off < HeaderSize || off+size > uint64(length) {
			return lferr.ErrOverflow
		}
	}
	return nil
}
