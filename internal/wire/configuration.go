package wire

import "github.com/lfproto/lf/internal/lferr"

// ConfigurationSize is sizeof(Configuration): name[16] + pointerWidth(1)
// + moduleCount(1). The name slot matches a module record's bound of
// 15 bytes plus a NUL.
const ConfigurationSize = 18

// Configuration is the record a device replies with for a
// class=configuration query.
type Configuration struct {
	Name         string
	PointerWidth uint8
	ModuleCount  uint8
}

// Encode writes c into buf, which must be at least ConfigurationSize
// bytes. Name is truncated/NUL-padded to 16 bytes.
func (c Configuration) Encode(buf []byte) {
	var name [16]byte
	copy(name[:15], c.Name)
	copy(buf[0:16], name[:])
	buf[16] = c.PointerWidth
	buf[17] = c.ModuleCount
}

// DecodeConfiguration reads a Configuration from buf.
func DecodeConfiguration(buf []byte) (Configuration, error) {
	if len(buf) < ConfigurationSize {
		return Configuration{}, lferr.ErrOverflow
	}
	end := 0
	for end < 16 && buf[end] != 0 {
		end++
	}
	return Configuration{
		Name:         string(buf[0:end]),
		PointerWidth: buf[16],
		ModuleCount:  buf[17],
	}, nil
}
