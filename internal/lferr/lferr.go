// Package lferr defines the error taxonomy shared by the host and
// device sides of the runtime, and the latching "last error" slot
// that mirrors the wire-level Result.error field.
package lferr

import "sync"

// Code is the shared device/host error taxonomy. Numeric values are
// part of the wire contract (transmitted as Result.error) and must
// not be renumbered.
type Code uint32

const (
	OK Code = iota
	Malloc
	Null
	Overflow
	NoDevice
	Endpoint
	Checksum
	Subclass
	Type
	Module
	Name
	Fmr
	Test
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case Malloc:
		return "malloc"
	case Null:
		return "null"
	case Overflow:
		return "overflow"
	case NoDevice:
		return "no_device"
	case Endpoint:
		return "endpoint"
	case Checksum:
		return "checksum"
	case Subclass:
		return "subclass"
	case Type:
		return "type"
	case Module:
		return "module"
	case Name:
		return "name"
	case Fmr:
		return "fmr"
	case Test:
		return "test"
	default:
		return "unknown"
	}
}

// Error wraps a Code as a standard error, for Go call sites that want
// to `return err` instead of threading a Code explicitly.
type Error struct {
	Code Code
	Op   string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Code.String()
	}
	return e.Op + ": " + e.Code.String()
}

// New builds an *Error for the given operation and code.
func New(op string, code Code) *Error {
	return &Error{Code: code, Op: op}
}

// Sentinel errors for cases that don't carry a device-reported Code
// of their own (they are host-local conditions).
var (
	ErrIllegalType       = New("lf", Type)
	ErrType              = New("lf", Type)
	ErrOverflow          = New("lf", Overflow)
	ErrChecksum          = New("lf", Checksum)
	ErrSubclass          = New("lf", Subclass)
	ErrNull              = New("lf", Null)
	ErrNoDevice          = New("lf", NoDevice)
	ErrModule            = New("lf", Module)
	ErrInvocationFailure = New("lf", Fmr)
)

// Slot is a latching "last error" accessor: Set latches a value, Get
// reads and clears it, Peek reads without clearing. One Slot is owned
// per host Client and per device Engine rather than per OS thread,
// since both sides already serialize their entry points.
type Slot struct {
	mu  sync.Mutex
	set bool
	val Code
}

// Set latches a code into the slot. It does not clear on success;
// callers that want "no error" to clear the slot must call Clear.
func (s *Slot) Set(c Code) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = true
	s.val = c
}

// Get reads and clears the slot. The boolean reports whether a value
// had been latched.
func (s *Slot) Get() (Code, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.val, s.set
	s.val = OK
	s.set = false
	return v, ok
}

// Peek reads the slot without clearing it.
func (s *Slot) Peek() Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.val
}

// Clear empties the slot without reading it.
func (s *Slot) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = false
	s.val = OK
}
