// Package lf is the stable host-side API surface of the message
// runtime, one exported function per C ABI entry point. Language
// bindings and host applications program against this package; the
// engine internals live under internal/ and may change freely behind
// it.
//
// The transport stand-in is TCP (USB and UART DMA endpoints are out of
// scope), so lf_attach_usb appears here as AttachTCP with the same
// out-parameter shape: a device list plus a count implied by its
// length.
package lf

import (
	"context"

	"github.com/lfproto/lf/internal/args"
	"github.com/lfproto/lf/internal/invoke"
	"github.com/lfproto/lf/internal/lferr"
	"github.com/lfproto/lf/internal/manifest"
	"github.com/lfproto/lf/internal/transport/tcp"
	"github.com/lfproto/lf/internal/wire"
)

// Result is the stable status enumeration of the host ABI (LfResult
// at the C boundary). Values are part of the boundary contract and
// must not be renumbered.
type Result uint8

const (
	Success Result = iota
	NullPointer
	InvalidString
	PackageNotLoaded
	NoDevicesFound
	IndexOutOfBounds
	IllegalType
	InvocationError
	IllegalHandle
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case NullPointer:
		return "null_pointer"
	case InvalidString:
		return "invalid_string"
	case PackageNotLoaded:
		return "package_not_loaded"
	case NoDevicesFound:
		return "no_devices_found"
	case IndexOutOfBounds:
		return "index_out_of_bounds"
	case IllegalType:
		return "illegal_type"
	case InvocationError:
		return "invocation_error"
	case IllegalHandle:
		return "illegal_handle"
	default:
		return "unknown"
	}
}

// maxModuleName bounds a module name: a module record carries at most
// 15 name bytes plus a NUL on the wire.
const maxModuleName = 15

// Device is an attached device handle.
type Device struct {
	dev *invoke.Device
}

// client carries the process-wide selected device and the latching
// last-error slot the ABI exposes.
var client = invoke.NewClient()

// AttachTCP dials each address and returns a handle per device that
// answered, mirroring lf_attach_usb's "out devices, out count" shape.
// NoDevicesFound is returned when none could be attached.
func AttachTCP(ctx context.Context, addrs ...string) ([]*Device, Result) {
	var devices []*Device
	for _, addr := range addrs {
		dev, err := invoke.Attach(ctx, addr, tcp.Dial(addr), wire.Profile32)
		if err != nil {
			continue
		}
		devices = append(devices, &Device{dev: dev})
	}
	if len(devices) == 0 {
		return nil, NoDevicesFound
	}
	return devices, Success
}

// Attach wraps an already-configured endpoint-backed device as an ABI
// handle, for hosts that construct their own transport (e.g. the
// in-process loopback used in tests).
func Attach(dev *invoke.Device) (*Device, Result) {
	if dev == nil {
		return nil, NullPointer
	}
	return &Device{dev: dev}, Success
}

// Select marks devices[idx] as the process-wide selected device and
// returns its handle; at most one device is selected at a time.
func Select(devices []*Device, idx int) (*Device, Result) {
	if devices == nil {
		return nil, NullPointer
	}
	if idx < 0 || idx >= len(devices) {
		return nil, IndexOutOfBounds
	}
	client.Select(devices[idx].dev)
	return devices[idx], Success
}

// Selected returns the currently selected device handle, or nil.
func Selected() *Device {
	dev := client.Selected()
	if dev == nil {
		return nil
	}
	return &Device{dev: dev}
}

// CreateArgs returns an empty argument list (lf_create_args).
func CreateArgs() (*args.List, Result) {
	return args.New(), Success
}

// AppendArg adds a (value, tag) pair to argv (lf_append_arg).
func AppendArg(argv *args.List, value uint64, tag uint8) Result {
	if argv == nil {
		return NullPointer
	}
	if err := argv.Append(wire.Tag(tag), value); err != nil {
		return resultFromErr(err)
	}
	return Success
}

// Bind resolves module's function table against dev ahead of Invoke.
// Standard modules carry a compiled-in index; user modules derive
// theirs from the name's CRC identifier with the user-invocation bit
// set.
func Bind(dev *Device, m *manifest.Module, standardIndex uint8) Result {
	if dev == nil || m == nil {
		return NullPointer
	}
	if !validName(m.Name) {
		return InvalidString
	}
	if err := client.Bind(dev.dev, m, standardIndex); err != nil {
		return IllegalType
	}
	return Success
}

// Invoke executes function in the named module on dev with the
// arguments accumulated in argv, returning the normalized 64-bit value
// (lf_invoke). A module that has not been bound is bound on the fly as
// a dynamically loaded user module, deriving its index from the name's
// CRC identifier; a name the device has no table for surfaces as
// InvocationError, with the device's null lookup code readable via
// LastError.
func Invoke(ctx context.Context, dev *Device, module string, function uint8, argv *args.List, ret uint8) (uint64, Result) {
	if dev == nil {
		return 0, NullPointer
	}
	if !validName(module) {
		return 0, InvalidString
	}
	retTag := wire.Tag(ret)
	if !retTag.Valid() {
		return 0, IllegalType
	}
	if r := bindIfNeeded(dev, module); r != Success {
		return 0, r
	}

	var list []wire.Arg
	if argv != nil {
		list = argv.Args()
	}
	val, err := client.Invoke(ctx, dev.dev, module, "", function, list, retTag)
	if err != nil {
		return 0, resultFromErr(err)
	}
	return val, Success
}

// Push transmits src into a device-side buffer and invokes function in
// the named module on it (lf_push). The destination pointer sent is
// always 0: the device stores src at address 0, and the function
// receives that pointer and the length as its two implicit leading
// arguments. Pull reads back from the same address 0.
func Push(ctx context.Context, dev *Device, module string, function uint8, src []byte) Result {
	if dev == nil {
		return NullPointer
	}
	if !validName(module) {
		return InvalidString
	}
	if r := bindIfNeeded(dev, module); r != Success {
		return r
	}
	if err := client.Push(ctx, dev.dev, module, "", function, 0, src); err != nil {
		return resultFromErr(err)
	}
	return Success
}

// Pull invokes function in the named module and reads len(dst) bytes
// back from the device (lf_pull).
func Pull(ctx context.Context, dev *Device, module string, function uint8, dst []byte) Result {
	if dev == nil {
		return NullPointer
	}
	if !validName(module) {
		return InvalidString
	}
	if r := bindIfNeeded(dev, module); r != Success {
		return r
	}
	if err := client.Pull(ctx, dev.dev, module, "", function, 0, dst); err != nil {
		return resultFromErr(err)
	}
	return Success
}

// Release frees an ABI handle (lf_release): a *Device detaches its
// endpoint, a *args.List has no resources beyond its storage. Anything
// else is not a handle this ABI issued.
func Release(handle interface{}) Result {
	switch h := handle.(type) {
	case *Device:
		if h == nil {
			return NullPointer
		}
		_ = h.dev.Detach()
		return Success
	case *args.List:
		if h == nil {
			return NullPointer
		}
		return Success
	default:
		return IllegalHandle
	}
}

// LastError reads and clears the latching last-error slot
// (lf_error_get at the C boundary): the device-reported code behind
// the most recent InvocationError.
func LastError() (lferr.Code, bool) {
	return client.LastError()
}

// bindIfNeeded binds module as a user module when no binding exists
// yet, so name-addressed ABI calls work without an explicit Bind step,
// the way lf_invoke resolves a loaded package by name.
func bindIfNeeded(dev *Device, module string) Result {
	if _, ok := dev.dev.Bound(module); ok {
		return Success
	}
	m := &manifest.Module{Name: module, User: true}
	if err := client.Bind(dev.dev, m, 0); err != nil {
		return PackageNotLoaded
	}
	return Success
}

func validName(name string) bool {
	return name != "" && len(name) <= maxModuleName
}

// resultFromErr maps the internal error taxonomy onto the ABI's
// Result enumeration.
func resultFromErr(err error) Result {
	le, ok := err.(*lferr.Error)
	if !ok {
		return InvocationError
	}
	switch le.Code {
	case lferr.OK:
		return Success
	case lferr.Type:
		return IllegalType
	case lferr.Module:
		return PackageNotLoaded
	case lferr.NoDevice, lferr.Endpoint:
		return NoDevicesFound
	case lferr.Overflow:
		return IndexOutOfBounds
	default:
		return InvocationError
	}
}
