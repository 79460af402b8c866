// Package perform implements the device-side perform engine:
// validate, classify, dispatch, reply, running one packet at a time
// per endpoint with no re-entrancy.
package perform

import (
	"context"
	"encoding/binary"
	"reflect"
	"sync"

	glog "github.com/lfproto/lf/internal/log"

	"github.com/lfproto/lf/internal/lferr"
	"github.com/lfproto/lf/internal/registry"
	"github.com/lfproto/lf/internal/trampoline"
	"github.com/lfproto/lf/internal/transport"
	"github.com/lfproto/lf/internal/wire"
	"golang.org/x/sync/errgroup"
)

// Info describes the device a configuration query reports.
type Info struct {
	Name         string
	PointerWidth uint8
}

// Engine is the device-side dispatch loop. One Engine may serve
// multiple endpoints concurrently (one goroutine per endpoint via
// Serve/ServeAll); its internal state (bulk-transfer memory, the
// latching error slot) is mutex-guarded since it is shared across
// those goroutines.
type Engine struct {
	Registry *registry.Registry
	Profile  wire.Profile
	Info     Info

	mu       sync.Mutex
	errSlot  lferr.Slot
	memory   map[uint64][]byte
	nextAddr uint64
}

// New creates an Engine bound to reg, reporting info on configuration
// queries.
func New(reg *registry.Registry, profile wire.Profile, info Info) *Engine {
	return &Engine{
		Registry: reg,
		Profile:  profile,
		Info:     info,
		memory:   make(map[uint64][]byte),
		nextAddr: 0x10000000,
	}
}

// LastError reads and clears the engine's latching error slot.
func (e *Engine) LastError() (lferr.Code, bool) {
	return e.errSlot.Get()
}

// Serve runs the perform loop against a single endpoint until ctx is
// canceled or a transport-level error occurs. Packets are processed
// one at a time on this goroutine; nothing else touches the channel.
func (e *Engine) Serve(ctx context.Context, ep transport.Endpoint) error {
	if err := ep.Configure(ctx); err != nil {
		return err
	}
	defer ep.Destroy()

	buf := make([]byte, wire.MaxPacketSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := e.servePacket(ctx, ep, buf); err != nil {
			return err
		}
	}
}

// ServeAll runs Serve against every endpoint concurrently, one
// goroutine each, so one endpoint's failure doesn't take down the
// others.
func (e *Engine) ServeAll(ctx context.Context, eps ...transport.Endpoint) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, ep := range eps {
		ep := ep
		g.Go(func() error { return e.Serve(ctx, ep) })
	}
	return g.Wait()
}

func (e *Engine) servePacket(ctx context.Context, ep transport.Endpoint, buf []byte) error {
	header := buf[:wire.HeaderSize]
	if err := ep.Pull(ctx, header); err != nil {
		return err
	}
	length := binary.LittleEndian.Uint16(header[4:6])

	if int(length) < wire.HeaderSize || int(length) > len(buf) {
		e.errSlot.Set(lferr.Overflow)
		return e.reply(ctx, ep, wire.Result{Error: lferr.Overflow})
	}
	if int(length) > wire.HeaderSize {
		if err := ep.Pull(ctx, buf[wire.HeaderSize:length]); err != nil {
			return err
		}
	}

	pkt, perr := wire.Parse(buf[:length], e.Profile)
	if perr != nil {
		code := codeFromErr(perr)
		e.errSlot.Set(code)
		return e.reply(ctx, ep, wire.Result{Error: code})
	}

	result, err := e.dispatch(ctx, ep, pkt)
	if err != nil {
		return err
	}
	return e.reply(ctx, ep, result)
}

func (e *Engine) reply(ctx context.Context, ep transport.Endpoint, result wire.Result) error {
	buf := make([]byte, wire.ResultSize)
	result.Encode(buf)
	return ep.Push(ctx, buf)
}

// dispatch switches on packet class. Protocol-level
// failures (unknown module, type mismatch, ...) are folded into the
// returned wire.Result rather than the error return, which is
// reserved for transport failures that should abort Serve's loop.
func (e *Engine) dispatch(ctx context.Context, ep transport.Endpoint, pkt wire.Packet) (wire.Result, error) {
	switch pkt.Class {
	case wire.ClassConfiguration:
		return e.performConfiguration(ctx, ep)
	case wire.ClassStandard, wire.ClassUser:
		return e.performInvocation(pkt.Invocation), nil
	case wire.ClassRAMLoad:
		return e.performRAMLoad(ctx, ep, pkt.PushPull)
	case wire.ClassSend:
		return e.performSend(ctx, ep, pkt.PushPull)
	case wire.ClassPush:
		return e.performPush(ctx, ep, pkt.PushPull)
	case wire.ClassPull:
		return e.performPull(ctx, ep, pkt.PushPull)
	case wire.ClassReceive:
		return e.performReceive(ctx, ep, pkt.PushPull)
	case wire.ClassEvent:
		return wire.Result{Error: lferr.OK}, nil
	default:
		// An unrecognized class is rejected outright.
		e.errSlot.Set(lferr.Subclass)
		return wire.Result{Error: lferr.Subclass}, nil
	}
}

func (e *Engine) performConfiguration(ctx context.Context, ep transport.Endpoint) (wire.Result, error) {
	cfg := wire.Configuration{
		Name:         e.Info.Name,
		PointerWidth: e.Info.PointerWidth,
		ModuleCount:  e.Registry.Count(),
	}
	buf := make([]byte, wire.ConfigurationSize)
	cfg.Encode(buf)
	if err := ep.Push(ctx, buf); err != nil {
		return wire.Result{}, err
	}
	return wire.Result{Error: lferr.OK}, nil
}

func (e *Engine) performInvocation(inv *wire.Invocation) wire.Result {
	mod, ok := e.Registry.Module(inv.Index)
	if !ok {
		e.errSlot.Set(lferr.Null)
		return wire.Result{Error: lferr.Null}
	}
	fn, ok := mod.Function(inv.Function)
	if !ok {
		e.errSlot.Set(lferr.Null)
		return wire.Result{Error: lferr.Null}
	}

	val, err := trampoline.CallValues(reflect.ValueOf(fn.Fn), inv.Ret, inv.Args, inv.Profile)
	if err != nil {
		code := codeFromErr(err)
		e.errSlot.Set(code)
		if glog.L != nil {
			glog.L.Reply(mod.Name, fn.Name, uint32(code))
		}
		return wire.Result{Value: val, Error: code}
	}
	if glog.L != nil {
		glog.L.Invoke(mod.Name, fn.Name, "")
		glog.L.Reply(mod.Name, fn.Name, uint32(lferr.OK))
	}
	return wire.Result{Value: val, Error: lferr.OK}
}

// performRAMLoad accepts length bytes from the channel and copies them
// into a designated RAM region, returning its base address as
// result.value.
func (e *Engine) performRAMLoad(ctx context.Context, ep transport.Endpoint, pp *wire.PushPull) (wire.Result, error) {
	buf := make([]byte, pp.Length)
	if err := ep.Pull(ctx, buf); err != nil {
		return wire.Result{}, err
	}
	addr := e.store(buf)
	return wire.Result{Value: addr, Error: lferr.OK}, nil
}

// performSend accepts length bytes and copies them to freshly
// allocated device memory, returning its address.
func (e *Engine) performSend(ctx context.Context, ep transport.Endpoint, pp *wire.PushPull) (wire.Result, error) {
	buf := make([]byte, pp.Length)
	if err := ep.Pull(ctx, buf); err != nil {
		return wire.Result{}, err
	}
	addr := e.store(buf)
	return wire.Result{Value: addr, Error: lferr.OK}, nil
}

// performPush accepts length bytes into the buffer identified by the
// sub-invocation's first implicit ptr argument, then performs the
// invocation as a standard call.
func (e *Engine) performPush(ctx context.Context, ep transport.Endpoint, pp *wire.PushPull) (wire.Result, error) {
	buf := make([]byte, pp.Length)
	if err := ep.Pull(ctx, buf); err != nil {
		return wire.Result{}, err
	}
	if len(pp.Invocation.Args) > 0 {
		e.storeAt(pp.Invocation.Args[0].Value, buf)
	}
	return e.performInvocation(&pp.Invocation), nil
}

// performPull invokes the function first, then transmits length bytes
// from the buffer identified by the first implicit ptr argument; the
// raw bytes precede the Result on the wire either way.
func (e *Engine) performPull(ctx context.Context, ep transport.Endpoint, pp *wire.PushPull) (wire.Result, error) {
	result := e.performInvocation(&pp.Invocation)

	var buf []byte
	if len(pp.Invocation.Args) > 0 {
		buf = e.load(pp.Invocation.Args[0].Value, int(pp.Length))
	} else {
		buf = make([]byte, pp.Length)
	}
	if err := ep.Push(ctx, buf); err != nil {
		return wire.Result{}, err
	}
	return result, nil
}

// performReceive transmits length bytes from the address given in the
// first parameter slot, without invoking a function.
func (e *Engine) performReceive(ctx context.Context, ep transport.Endpoint, pp *wire.PushPull) (wire.Result, error) {
	var buf []byte
	if len(pp.Invocation.Args) > 0 {
		buf = e.load(pp.Invocation.Args[0].Value, int(pp.Length))
	} else {
		buf = make([]byte, pp.Length)
	}
	if err := ep.Push(ctx, buf); err != nil {
		return wire.Result{}, err
	}
	return wire.Result{Error: lferr.OK}, nil
}

func (e *Engine) store(data []byte) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	addr := e.nextAddr
	cp := make([]byte, len(data))
	copy(cp, data)
	e.memory[addr] = cp
	e.nextAddr += uint64(len(data)) + 8
	return addr
}

func (e *Engine) storeAt(addr uint64, data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	e.memory[addr] = cp
}

func (e *Engine) load(addr uint64, n int) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]byte, n)
	if buf, ok := e.memory[addr]; ok {
		copy(out, buf)
	}
	return out
}

func codeFromErr(err error) lferr.Code {
	if le, ok := err.(*lferr.Error); ok {
		return le.Code
	}
	return lferr.Fmr
}
