package loopback

import (
	"bytes"
	"context"
	"testing"
)

func TestHostToDevicePush(t *testing.T) {
	pair := New()
	defer pair.Host.Destroy()
	defer pair.Device.Destroy()

	ctx := context.Background()
	want := []byte{0x01, 0x02, 0x03, 0x04}

	done := make(chan error, 1)
	go func() { done <- pair.Host.Push(ctx, want) }()

	got := make([]byte, len(want))
	if err := pair.Device.Pull(ctx, got); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDeviceToHostPush(t *testing.T) {
	pair := New()
	defer pair.Host.Destroy()
	defer pair.Device.Destroy()

	ctx := context.Background()
	want := []byte{0xAA, 0xBB}

	done := make(chan error, 1)
	go func() { done <- pair.Device.Push(ctx, want) }()

	got := make([]byte, len(want))
	if err := pair.Host.Pull(ctx, got); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
