// Package transport abstracts the byte-stream channel a host uses to
// reach a device. Implementations are
// thin adapters over an opaque channel: they move exactly the
// requested byte count, blocking until done, and carry no protocol
// logic of their own.
package transport

import "context"

// Endpoint is a blocking, total push/pull channel. Push and Pull never
// return a partial transfer: either the full buffer was moved, or an
// error is returned and the buffer's contents are undefined.
type Endpoint interface {
	// Configure prepares the endpoint for use (e.g. a handshake or
	// connection dial). It is safe to call once before the first
	// Push/Pull.
	Configure(ctx context.Context) error

	// Push writes the entirety of buf to the channel.
	Push(ctx context.Context, buf []byte) error

	// Pull reads exactly len(buf) bytes from the channel into buf.
	Pull(ctx context.Context, buf []byte) error

	// Destroy releases any resources held by the endpoint. Destroy is
	// idempotent.
	Destroy() error
}
