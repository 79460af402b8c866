package wire

import (
	"testing"

	"github.com/lfproto/lf/internal/lferr"
)

func TestBuildParseInvocationRoundTrip(t *testing.T) {
	inv := Invocation{
		Index:    3,
		Function: 0,
		Ret:      TagVoid,
		Profile:  Profile32,
		Args: []Arg{
			{Tag: TagU8, Value: 10},
			{Tag: TagU8, Value: 20},
			{Tag: TagU8, Value: 30},
		},
	}

	buf := make([]byte, MaxPacketSize)
	n, err := BuildInvocation(buf, ClassStandard, inv)
	if err != nil {
		t.Fatalf("BuildInvocation: %v", err)
	}

	pkt, err := Parse(buf[:n], Profile32)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pkt.Class != ClassStandard {
		t.Fatalf("class = %v, want standard", pkt.Class)
	}
	if pkt.Invocation == nil {
		t.Fatalf("invocation body missing")
	}
	got := *pkt.Invocation
	if got.Index != inv.Index || got.Function != inv.Function || got.Ret != inv.Ret {
		t.Fatalf("header mismatch: got %+v want %+v", got, inv)
	}
	if len(got.Args) != len(inv.Args) {
		t.Fatalf("argc = %d, want %d", len(got.Args), len(inv.Args))
	}
	for i, a := range got.Args {
		if a != inv.Args[i] {
			t.Errorf("arg[%d] = %+v, want %+v", i, a, inv.Args[i])
		}
	}
}

func TestCRCSensitivity(t *testing.T) {
	inv := Invocation{Index: 1, Function: 2, Ret: TagVoid, Profile: Profile32}
	buf := make([]byte, MaxPacketSize)
	n, err := BuildInvocation(buf, ClassStandard, inv)
	if err != nil {
		t.Fatalf("BuildInvocation: %v", err)
	}

	for byteIdx := 0; byteIdx < n; byteIdx++ {
		if byteIdx == 2 || byteIdx == 3 {
			continue // checksum field itself
		}
		for bit := 0; bit < 8; bit++ {
			corrupt := make([]byte, n)
			copy(corrupt, buf[:n])
			corrupt[byteIdx] ^= 1 << uint(bit)
			if _, err := Parse(corrupt, Profile32); err == nil {
				t.Fatalf("bit flip at byte %d bit %d was not detected", byteIdx, bit)
			}
		}
	}
}

func TestMagicMismatchIsChecksumError(t *testing.T) {
	inv := Invocation{Index: 1, Function: 0, Ret: TagVoid, Profile: Profile32}
	buf := make([]byte, MaxPacketSize)
	n, err := BuildInvocation(buf, ClassStandard, inv)
	if err != nil {
		t.Fatalf("BuildInvocation: %v", err)
	}
	buf[0], buf[1] = 0, 0 // zero the magic

	if _, err := Parse(buf[:n], Profile32); err != lferr.ErrChecksum {
		t.Fatalf("Parse() err = %v, want ErrChecksum", err)
	}
}

func TestIllegalClassRejected(t *testing.T) {
	buf := make([]byte, MaxPacketSize)
	n, err := BuildConfiguration(buf)
	if err != nil {
		t.Fatalf("BuildConfiguration: %v", err)
	}
	buf[6] = 9 // class byte outside 0-8

	crc := CRC16(withZeroChecksum(buf[:n]))
	buf[2], buf[3] = byte(crc), byte(crc>>8)

	if _, err := Parse(buf[:n], Profile32); err != lferr.ErrSubclass {
		t.Fatalf("Parse() err = %v, want ErrSubclass", err)
	}
}

func withZeroChecksum(buf []byte) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)
	out[2], out[3] = 0, 0
	return out
}

func TestArityBoundRejectsOverflow(t *testing.T) {
	args := make([]Arg, MaxArgc+1)
	for i := range args {
		args[i] = Arg{Tag: TagU8, Value: 1}
	}
	inv := Invocation{Index: 0, Function: 0, Ret: TagVoid, Profile: Profile32, Args: args}

	buf := make([]byte, MaxPacketSize*2)
	if _, err := BuildInvocation(buf, ClassStandard, inv); err != lferr.ErrOverflow {
		t.Fatalf("BuildInvocation err = %v, want ErrOverflow", err)
	}
}
