package wire

import (
	"encoding/binary"

	"github.com/lfproto/lf/internal/lferr"
)

// ResultSize is sizeof(Result): value(8) + error(4).
const ResultSize = 12

// Result is the fixed-size reply transmitted after every invocation.
// Error == 0 iff the call completed without a runtime error; Value is
// meaningful only then, but is always sent.
type Result struct {
	Value uint64
	Error lferr.Code
}

// Encode writes r into buf, which must be at least ResultSize bytes.
func (r Result) Encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], r.Value)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(r.Error))
}

// DecodeResult reads a Result from buf.
func DecodeResult(buf []byte) (Result, error) {
	if len(buf) < ResultSize {
		return Result{}, lferr.ErrOverflow
	}
	return Result{
		Value: binary.LittleEndian.Uint64(buf[0:8]),
		Error: lferr.Code(binary.LittleEndian.Uint32(buf[8:12])),
	}, nil
}
