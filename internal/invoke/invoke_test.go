package invoke

import (
	"context"
	"testing"
	"time"

	"github.com/lfproto/lf/internal/image"
	"github.com/lfproto/lf/internal/lferr"
	"github.com/lfproto/lf/internal/manifest"
	"github.com/lfproto/lf/internal/perform"
	"github.com/lfproto/lf/internal/registry"
	"github.com/lfproto/lf/internal/trace"
	"github.com/lfproto/lf/internal/transport/loopback"
	"github.com/lfproto/lf/internal/wire"
)

func newHarness(t *testing.T) (*Client, *Device) {
	t.Helper()
	reg := registry.New()
	reg.RegisterModule(&registry.Module{
		Name:  "led",
		Index: 1,
		Functions: []registry.Function{
			{Name: "setRGB", Ret: wire.TagVoid, Fn: func(r, g, b uint8) {}},
		},
	})

	engine := perform.New(reg, wire.Profile32, perform.Info{Name: "test", PointerWidth: 4})
	pair := loopback.New()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go engine.Serve(ctx, pair.Device)

	dev, err := Attach(ctx, "led-board", pair.Host, wire.Profile32)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	client := NewClient()
	client.Select(dev)
	if err := client.Bind(dev, &manifest.Module{Name: "led"}, 1); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	return client, dev
}

func TestInvokeVoidCall(t *testing.T) {
	client, dev := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	val, err := client.Invoke(ctx, dev, "led", "setRGB", 0, []wire.Arg{
		{Tag: wire.TagU8, Value: 10},
		{Tag: wire.TagU8, Value: 20},
		{Tag: wire.TagU8, Value: 30},
	}, wire.TagVoid)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if val != 0 {
		t.Errorf("val = %d, want 0", val)
	}
}

func TestInvokeUnboundModuleReturnsErrModule(t *testing.T) {
	client, dev := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := client.Invoke(ctx, dev, "nonexistent", "fn", 0, nil, wire.TagVoid)
	if err != lferr.ErrModule {
		t.Fatalf("err = %v, want ErrModule", err)
	}
}

func TestBindIdempotence(t *testing.T) {
	client, dev := newHarness(t)
	m := &manifest.Module{Name: "led"}

	if err := client.Bind(dev, m, 1); err != nil {
		t.Fatalf("Bind #1: %v", err)
	}
	idx1, _ := dev.boundIndex("led")

	if err := client.Bind(dev, m, 1); err != nil {
		t.Fatalf("Bind #2: %v", err)
	}
	idx2, _ := dev.boundIndex("led")

	if idx1 != idx2 {
		t.Fatalf("bind not idempotent: %d != %d", idx1, idx2)
	}
}

func TestInvokeNilDeviceReturnsErrNoDevice(t *testing.T) {
	client := NewClient()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.Invoke(ctx, nil, "led", "setRGB", 0, nil, wire.TagVoid)
	if err != lferr.ErrNoDevice {
		t.Fatalf("err = %v, want ErrNoDevice", err)
	}
}

func TestInvokeValidatesManifestArity(t *testing.T) {
	client, dev := newHarness(t)
	m := &manifest.Module{
		Name: "led",
		Functions: []manifest.Function{
			{Name: "setRGB", Ret: "void", Params: []string{"u8", "u8", "u8"}},
		},
	}
	if err := client.Bind(dev, m, 1); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Wrong argc against the manifest's declared arity must be rejected
	// before anything is put on the wire.
	_, err := client.Invoke(ctx, dev, "led", "setRGB", 0, []wire.Arg{
		{Tag: wire.TagU8, Value: 10},
	}, wire.TagVoid)
	if err != lferr.ErrIllegalType {
		t.Fatalf("err = %v, want ErrIllegalType", err)
	}

	// The correct arity, with functionIndex/ret now derived from the
	// manifest rather than the (wrong) values passed in, still succeeds.
	val, err := client.Invoke(ctx, dev, "led", "setRGB", 99, []wire.Arg{
		{Tag: wire.TagU8, Value: 10},
		{Tag: wire.TagU8, Value: 20},
		{Tag: wire.TagU8, Value: 30},
	}, wire.TagU64)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if val != 0 {
		t.Errorf("val = %d, want 0", val)
	}
}

func TestConfigurationQuery(t *testing.T) {
	client, dev := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg, err := client.Configuration(ctx, dev)
	if err != nil {
		t.Fatalf("Configuration: %v", err)
	}
	if cfg.Name != "test" {
		t.Errorf("Name = %q, want %q", cfg.Name, "test")
	}
	if cfg.PointerWidth != 4 {
		t.Errorf("PointerWidth = %d, want 4", cfg.PointerWidth)
	}
	if cfg.ModuleCount != 1 {
		t.Errorf("ModuleCount = %d, want 1", cfg.ModuleCount)
	}
}

func TestSendReceiveRoundTrip(t *testing.T) {
	client, dev := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	addr, err := client.Send(ctx, dev, payload)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if addr == 0 {
		t.Fatal("Send returned a zero address")
	}

	dst := make([]byte, len(payload))
	if err := client.Receive(ctx, dev, addr, dst); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	for i := range payload {
		if dst[i] != payload[i] {
			t.Fatalf("received %x, want %x", dst, payload)
		}
	}
}

func TestLoadImage(t *testing.T) {
	client, dev := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload := []byte{1, 2, 3, 4}
	hdr := image.Header{
		ModuleOff:  image.HeaderSize,
		ModuleSize: uint32(len(payload)),
	}
	data := make([]byte, image.HeaderSize+len(payload))
	if err := hdr.Encode(data); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	copy(data[image.HeaderSize:], payload)

	addr, err := client.LoadImage(ctx, dev, data)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	if addr == 0 {
		t.Fatal("LoadImage returned a zero load address")
	}

	// The staged bytes must read back intact from the load address.
	back := make([]byte, len(data))
	if err := client.Receive(ctx, dev, addr, back); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	got, err := image.ParseHeader(back)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if got != hdr {
		t.Errorf("staged header = %+v, want %+v", got, hdr)
	}
}

func TestLoadImageRejectsTruncatedImage(t *testing.T) {
	client, dev := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Header names a module section past the end of the image; nothing
	// may reach the wire.
	hdr := image.Header{ModuleOff: image.HeaderSize, ModuleSize: 1024}
	data := make([]byte, image.HeaderSize)
	if err := hdr.Encode(data); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := client.LoadImage(ctx, dev, data); err != lferr.ErrOverflow {
		t.Fatalf("err = %v, want ErrOverflow", err)
	}
}

func TestInvokeFeedsCollector(t *testing.T) {
	client, dev := newHarness(t)
	col := trace.NewCollector()
	client.SetCollector(col)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := client.Invoke(ctx, dev, "led", "setRGB", 0, []wire.Arg{
		{Tag: wire.TagU8, Value: 1},
		{Tag: wire.TagU8, Value: 2},
		{Tag: wire.TagU8, Value: 3},
	}, wire.TagVoid); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	events := col.GetAndClear()
	if len(events) != 1 {
		t.Fatalf("collected %d events, want 1", len(events))
	}
	if events[0].Module != "led" || events[0].Function != "setRGB" {
		t.Errorf("event = %+v", events[0])
	}
	if events[0].CorrelationID == "" {
		t.Errorf("event has empty CorrelationID")
	}
}
