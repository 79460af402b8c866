// Package invoke implements the host-side invocation engine: resolve
// module, build packet, transfer, await result, surface value and
// error.
package invoke

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/lfproto/lf/internal/image"
	"github.com/lfproto/lf/internal/lferr"
	glog "github.com/lfproto/lf/internal/log"
	"github.com/lfproto/lf/internal/manifest"
	"github.com/lfproto/lf/internal/trace"
	"github.com/lfproto/lf/internal/transport"
	"github.com/lfproto/lf/internal/wire"
)

// boundModule records what Bind resolved for one module name: the
// index to address it by, and (when the caller supplied one) the
// manifest describing its function table, consulted by Invoke to
// validate arity and resolve the authoritative return type.
type boundModule struct {
	index    uint8
	manifest *manifest.Module
}

// Device is the host-side record for an attached device. Lifecycle:
// created by Attach, destroyed by Detach; at most one device is
// "selected" at a time within a Client.
type Device struct {
	Name     string
	Profile  wire.Profile
	Endpoint transport.Endpoint

	mu      sync.Mutex
	modules map[string]boundModule // bound module name -> resolution
}

// Attach configures ep and returns a Device ready for binding and
// invocation.
func Attach(ctx context.Context, name string, ep transport.Endpoint, profile wire.Profile) (*Device, error) {
	if err := ep.Configure(ctx); err != nil {
		return nil, lferr.ErrNoDevice
	}
	return &Device{
		Name:     name,
		Profile:  profile,
		Endpoint: ep,
		modules:  make(map[string]boundModule),
	}, nil
}

// Detach releases the device's endpoint. Detach is idempotent.
func (d *Device) Detach() error {
	return d.Endpoint.Destroy()
}

func (d *Device) lookup(name string) (boundModule, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	bm, ok := d.modules[name]
	return bm, ok
}

func (d *Device) boundIndex(name string) (uint8, bool) {
	bm, ok := d.lookup(name)
	return bm.index, ok
}

// Bound reports the index a prior Bind resolved for the named module,
// or ok=false if the module has not been bound on this device.
func (d *Device) Bound(name string) (uint8, bool) {
	return d.boundIndex(name)
}

func (d *Device) bind(name string, index uint8, m *manifest.Module) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modules[name] = boundModule{index: index, manifest: m}
}

// Client is the host-side invocation engine. The "currently selected
// device" is guarded by a sync.RWMutex: Select takes the write lock and
// Selected the read lock. Invoke/Push/Pull act on the device passed to
// them and do not consult the selection.
type Client struct {
	mu        sync.RWMutex
	selected  *Device
	errSlot   lferr.Slot
	collector *trace.Collector
}

// NewClient creates a Client with no selected device.
func NewClient() *Client {
	return &Client{}
}

// SetCollector attaches a trace.Collector that records every
// invocation's enriched event (see Invoke), for callers that want to
// inspect what was called rather than only the logged record.
func (c *Client) SetCollector(col *trace.Collector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collector = col
}

// Collector returns the attached trace.Collector, or nil.
func (c *Client) Collector() *trace.Collector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collector
}

// Select marks dev as the currently selected device for ambient
// (non-device-qualified) calls.
func (c *Client) Select(dev *Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = dev
}

// Selected returns the currently selected device, or nil.
func (c *Client) Selected() *Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selected
}

// LastError reads and clears the client's latching error slot.
func (c *Client) LastError() (lferr.Code, bool) {
	return c.errSlot.Get()
}

// Bind resolves the manifest's function table (computing its
// identifier and every declared function's ret/param tags, per
// manifest.Module.Resolve) and records its module index. Without a
// running dynamic-loader round trip to query the device's table, the
// index is taken directly from the
// caller-supplied standard index when the manifest declares a
// standard module, or derived from the identifier's low byte with the
// user-invocation bit set when it declares a user module — mirroring
// how registry.RegisterUserModule assigns device-side indices, so a
// host manifest and a device registry built from the same name agree
// without a shared compiled header. Once bound, Invoke validates
// calls against m's declared function table.
func (c *Client) Bind(dev *Device, m *manifest.Module, standardIndex uint8) error {
	if err := m.Resolve(); err != nil {
		c.errSlot.Set(lferr.Type)
		return fmt.Errorf("bind: %w", err)
	}
	id := m.Identifier()
	var index uint8
	if m.User {
		index = wire.UserModuleBit | uint8(id)
	} else {
		index = standardIndex
	}
	dev.bind(m.Name, index, m)
	if glog.L != nil {
		glog.L.Bind(m.Name, index, true)
	}
	return nil
}

// Invoke resolves the target module, builds the packet, transfers
// it, awaits the reply, and surfaces value and error.
func (c *Client) Invoke(ctx context.Context, dev *Device, module, function string, functionIndex uint8, args []wire.Arg, ret wire.Tag) (uint64, error) {
	correlationID := uuid.NewString()

	if dev == nil {
		c.errSlot.Set(lferr.NoDevice)
		return 0, lferr.ErrNoDevice
	}
	bm, ok := dev.lookup(module)
	if !ok {
		c.errSlot.Set(lferr.Module)
		return 0, lferr.ErrModule
	}
	index := bm.index

	// When the bound manifest declares the function being called, its
	// function table is authoritative: it supplies the dispatch index
	// and return tag, and its declared arity is enforced, so a caller
	// can't silently invoke with the wrong shape against a module that
	// documented its own contract.
	if bm.manifest != nil {
		if fn, idx, ok := bm.manifest.FunctionByName(function); ok {
			if len(args) != len(fn.ParamTags) {
				c.errSlot.Set(lferr.Type)
				return 0, lferr.ErrIllegalType
			}
			functionIndex = idx
			ret = fn.RetTag
		}
	}

	class := wire.ClassStandard
	if index&wire.UserModuleBit != 0 {
		class = wire.ClassUser
	}

	inv := wire.Invocation{
		Index:    index,
		Function: functionIndex,
		Ret:      ret,
		Args:     args,
		Profile:  dev.Profile,
	}
	buf := make([]byte, wire.MaxPacketSize)
	n, err := wire.BuildInvocation(buf, class, inv)
	if err != nil {
		c.errSlot.Set(codeFromErr(err))
		return 0, err
	}

	if glog.L != nil {
		glog.L.Invoke(module, function, correlationID)
	}
	ev := trace.NewEvent(correlationID, class.String(), module, function, "")
	trace.DefaultEnricher(ev)
	if c.collector != nil {
		c.collector.Add(ev)
	}
	if glog.L != nil {
		glog.L.Trace(ev)
	}

	if err := dev.Endpoint.Push(ctx, buf[:n]); err != nil {
		c.errSlot.Set(lferr.Endpoint)
		return 0, lferr.ErrNoDevice
	}

	result, err := c.awaitResult(ctx, dev)
	if err == lferr.ErrInvocationFailure {
		ev.Detail = "err:" + result.Error.String()
		trace.DefaultEnricher(ev)
		if glog.L != nil {
			glog.L.Reply(module, function, uint32(result.Error))
			glog.L.Trace(ev)
		}
		return 0, err
	}
	if err != nil {
		return 0, err
	}
	if glog.L != nil {
		glog.L.Reply(module, function, uint32(lferr.OK))
	}
	return result.Value, nil
}

// awaitResult pulls the fixed-size reply that terminates every
// transaction (the Result is always the last thing on the wire),
// latching a non-OK device code into the error slot and surfacing it
// as ErrInvocationFailure.
func (c *Client) awaitResult(ctx context.Context, dev *Device) (wire.Result, error) {
	reply := make([]byte, wire.ResultSize)
	if err := dev.Endpoint.Pull(ctx, reply); err != nil {
		c.errSlot.Set(lferr.Endpoint)
		return wire.Result{}, lferr.ErrNoDevice
	}
	result, err := wire.DecodeResult(reply)
	if err != nil {
		c.errSlot.Set(codeFromErr(err))
		return wire.Result{}, err
	}
	if result.Error != lferr.OK {
		c.errSlot.Set(result.Error)
		return result, lferr.ErrInvocationFailure
	}
	return result, nil
}

// Push implements the host side of a push-class bulk transfer:
// transmit the invocation packet, then the raw payload, then await
// the Result.
func (c *Client) Push(ctx context.Context, dev *Device, module, function string, functionIndex uint8, ptr uint64, payload []byte) error {
	index, ok := dev.boundIndex(module)
	if !ok {
		c.errSlot.Set(lferr.Module)
		return lferr.ErrModule
	}
	pp := wire.PushPull{
		Length: uint32(len(payload)),
		Invocation: wire.Invocation{
			Index: index, Function: functionIndex, Ret: wire.TagVoid, Profile: dev.Profile,
			Args: []wire.Arg{
				{Tag: wire.TagPtr, Value: ptr},
				{Tag: wire.TagU32, Value: uint64(len(payload))},
			},
		},
	}
	buf := make([]byte, wire.MaxPacketSize)
	n, err := wire.BuildPushPull(buf, wire.ClassPush, pp)
	if err != nil {
		c.errSlot.Set(codeFromErr(err))
		return err
	}
	if err := dev.Endpoint.Push(ctx, buf[:n]); err != nil {
		return lferr.ErrNoDevice
	}
	if err := dev.Endpoint.Push(ctx, payload); err != nil {
		return lferr.ErrNoDevice
	}
	_, err = c.awaitResult(ctx, dev)
	return err
}

// Pull implements the host side of a pull-class bulk transfer:
// transmit the invocation packet, then read the raw payload, then
// await the Result, in exactly that order.
func (c *Client) Pull(ctx context.Context, dev *Device, module, function string, functionIndex uint8, ptr uint64, dst []byte) error {
	index, ok := dev.boundIndex(module)
	if !ok {
		c.errSlot.Set(lferr.Module)
		return lferr.ErrModule
	}
	pp := wire.PushPull{
		Length: uint32(len(dst)),
		Invocation: wire.Invocation{
			Index: index, Function: functionIndex, Ret: wire.TagVoid, Profile: dev.Profile,
			Args: []wire.Arg{
				{Tag: wire.TagPtr, Value: ptr},
				{Tag: wire.TagU32, Value: uint64(len(dst))},
			},
		},
	}
	buf := make([]byte, wire.MaxPacketSize)
	n, err := wire.BuildPushPull(buf, wire.ClassPull, pp)
	if err != nil {
		c.errSlot.Set(codeFromErr(err))
		return err
	}
	if err := dev.Endpoint.Push(ctx, buf[:n]); err != nil {
		return lferr.ErrNoDevice
	}
	if err := dev.Endpoint.Pull(ctx, dst); err != nil {
		return lferr.ErrNoDevice
	}
	_, err = c.awaitResult(ctx, dev)
	return err
}

// Configuration queries the device for its configuration record. The
// record precedes the Result on the wire; the host reads in exactly
// that order.
func (c *Client) Configuration(ctx context.Context, dev *Device) (wire.Configuration, error) {
	if dev == nil {
		c.errSlot.Set(lferr.NoDevice)
		return wire.Configuration{}, lferr.ErrNoDevice
	}
	buf := make([]byte, wire.MaxPacketSize)
	n, err := wire.BuildConfiguration(buf)
	if err != nil {
		c.errSlot.Set(codeFromErr(err))
		return wire.Configuration{}, err
	}
	if err := dev.Endpoint.Push(ctx, buf[:n]); err != nil {
		c.errSlot.Set(lferr.Endpoint)
		return wire.Configuration{}, lferr.ErrNoDevice
	}

	record := make([]byte, wire.ConfigurationSize)
	if err := dev.Endpoint.Pull(ctx, record); err != nil {
		c.errSlot.Set(lferr.Endpoint)
		return wire.Configuration{}, lferr.ErrNoDevice
	}
	cfg, err := wire.DecodeConfiguration(record)
	if err != nil {
		c.errSlot.Set(codeFromErr(err))
		return wire.Configuration{}, err
	}
	if _, err := c.awaitResult(ctx, dev); err != nil {
		return wire.Configuration{}, err
	}
	return cfg, nil
}

// Send copies payload to freshly-allocated device memory, returning
// the device address it landed at.
func (c *Client) Send(ctx context.Context, dev *Device, payload []byte) (uint64, error) {
	return c.transferOut(ctx, dev, wire.ClassSend, payload)
}

// LoadImage stages a loadable image into device RAM via the ram-load
// class, returning the load address. The image must begin with a
// well-formed handoff header whose file-backed sections fit within
// it; a malformed image is rejected host-side before anything is put
// on the wire.
func (c *Client) LoadImage(ctx context.Context, dev *Device, data []byte) (uint64, error) {
	hdr, err := image.ParseHeader(data)
	if err != nil {
		c.errSlot.Set(codeFromErr(err))
		return 0, err
	}
	if err := hdr.Validate(len(data)); err != nil {
		c.errSlot.Set(codeFromErr(err))
		return 0, err
	}
	return c.transferOut(ctx, dev, wire.ClassRAMLoad, data)
}

// transferOut implements the host side of the send and ram-load
// classes: packet, then raw payload, then the Result. No device
// function is invoked, so the sub-invocation is empty.
func (c *Client) transferOut(ctx context.Context, dev *Device, class wire.Class, payload []byte) (uint64, error) {
	if dev == nil {
		c.errSlot.Set(lferr.NoDevice)
		return 0, lferr.ErrNoDevice
	}
	pp := wire.PushPull{
		Length: uint32(len(payload)),
		Invocation: wire.Invocation{
			Ret:     wire.TagVoid,
			Profile: dev.Profile,
		},
	}
	buf := make([]byte, wire.MaxPacketSize)
	n, err := wire.BuildPushPull(buf, class, pp)
	if err != nil {
		c.errSlot.Set(codeFromErr(err))
		return 0, err
	}
	if err := dev.Endpoint.Push(ctx, buf[:n]); err != nil {
		c.errSlot.Set(lferr.Endpoint)
		return 0, lferr.ErrNoDevice
	}
	if err := dev.Endpoint.Push(ctx, payload); err != nil {
		c.errSlot.Set(lferr.Endpoint)
		return 0, lferr.ErrNoDevice
	}
	result, err := c.awaitResult(ctx, dev)
	if err != nil {
		return 0, err
	}
	return result.Value, nil
}

// Receive reads len(dst) bytes back from the device address addr via
// the receive class: the raw bytes precede the Result, and the host
// reads in exactly that order.
func (c *Client) Receive(ctx context.Context, dev *Device, addr uint64, dst []byte) error {
	if dev == nil {
		c.errSlot.Set(lferr.NoDevice)
		return lferr.ErrNoDevice
	}
	pp := wire.PushPull{
		Length: uint32(len(dst)),
		Invocation: wire.Invocation{
			Ret:     wire.TagVoid,
			Profile: dev.Profile,
			Args: []wire.Arg{
				{Tag: wire.TagPtr, Value: addr},
			},
		},
	}
	buf := make([]byte, wire.MaxPacketSize)
	n, err := wire.BuildPushPull(buf, wire.ClassReceive, pp)
	if err != nil {
		c.errSlot.Set(codeFromErr(err))
		return err
	}
	if err := dev.Endpoint.Push(ctx, buf[:n]); err != nil {
		c.errSlot.Set(lferr.Endpoint)
		return lferr.ErrNoDevice
	}
	if err := dev.Endpoint.Pull(ctx, dst); err != nil {
		c.errSlot.Set(lferr.Endpoint)
		return lferr.ErrNoDevice
	}
	_, err = c.awaitResult(ctx, dev)
	return err
}

func codeFromErr(err error) lferr.Code {
	if le, ok := err.(*lferr.Error); ok {
		return le.Code
	}
	return lferr.Fmr
}
