package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lfproto/lf/internal/registry"
	"github.com/lfproto/lf/internal/wire"
)

const sampleYAML = `
name: led
user: true
functions:
  - name: setRGB
    ret: void
    params: [u8, u8, u8]
  - name: brightness
    ret: u8
    params: []
`

func TestLoadParsesManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "led.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Name != "led" || !m.User {
		t.Fatalf("got %+v", m)
	}
	if len(m.Functions) != 2 {
		t.Fatalf("Functions = %d, want 2", len(m.Functions))
	}
	if m.Functions[0].Name != "setRGB" || len(m.Functions[0].Params) != 3 {
		t.Errorf("functions[0] = %+v", m.Functions[0])
	}
	if m.Functions[0].RetTag != wire.TagVoid {
		t.Errorf("functions[0].RetTag = %v, want TagVoid", m.Functions[0].RetTag)
	}
	wantParams := []wire.Tag{wire.TagU8, wire.TagU8, wire.TagU8}
	for i, tag := range m.Functions[0].ParamTags {
		if tag != wantParams[i] {
			t.Errorf("functions[0].ParamTags[%d] = %v, want %v", i, tag, wantParams[i])
		}
	}
	if m.Identifier() == 0 {
		t.Errorf("Identifier() = 0 after Load, want Resolve to have computed it")
	}
}

func TestLoadRejectsArityOverMaxArgc(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overflow.yaml")
	params := make([]string, wire.MaxArgc+1)
	for i := range params {
		params[i] = "u8"
	}
	yaml := "name: overflow\nfunctions:\n  - name: tooMany\n    ret: void\n    params: [" + strings.Join(params, ", ") + "]\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("Load succeeded with %d params, want error (MaxArgc=%d)", len(params), wire.MaxArgc)
	}
}

func TestFunctionByName(t *testing.T) {
	m := &Module{Functions: []Function{
		{Name: "setRGB", Ret: "void", Params: []string{"u8", "u8", "u8"}},
		{Name: "brightness", Ret: "u8"},
	}}
	if err := m.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	fn, idx, ok := m.FunctionByName("brightness")
	if !ok || idx != 1 || fn.RetTag != wire.TagU8 {
		t.Fatalf("FunctionByName(brightness) = %+v, %d, %v", fn, idx, ok)
	}
	if _, _, ok := m.FunctionByName("missing"); ok {
		t.Errorf("FunctionByName(missing) = ok, want not found")
	}
}

func TestIdentifierMatchesRegistryCRC(t *testing.T) {
	m := &Module{Name: "led"}
	if m.Identifier() == 0 {
		t.Fatalf("Identifier() = 0, want nonzero CRC")
	}
	if want := registry.Identifier("led"); m.Identifier() != want {
		t.Fatalf("Identifier() = %#x, want registry.Identifier = %#x", m.Identifier(), want)
	}
}

func TestResolveTag(t *testing.T) {
	tag, err := ResolveTag("i16")
	if err != nil {
		t.Fatalf("ResolveTag: %v", err)
	}
	if tag != wire.TagI16 {
		t.Errorf("tag = %v, want TagI16", tag)
	}
	if _, err := ResolveTag("bogus"); err == nil {
		t.Errorf("ResolveTag(bogus) succeeded, want error")
	}
}
