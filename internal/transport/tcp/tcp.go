// Package tcp provides a net.Conn-backed Endpoint for a TCP-attached
// device, standing in for USB/UART DMA transports whose internals
// live outside the runtime.
package tcp

import (
	"context"
	"io"
	"net"

	"github.com/lfproto/lf/internal/lferr"
)

// Endpoint dials (or wraps) a single TCP connection and moves bytes
// over it with total/blocking semantics.
type Endpoint struct {
	addr string
	conn net.Conn
}

// Dial returns an Endpoint that connects to addr on Configure.
func Dial(addr string) *Endpoint {
	return &Endpoint{addr: addr}
}

// Wrap returns an Endpoint around an already-established connection;
// Configure is then a no-op.
func Wrap(conn net.Conn) *Endpoint {
	return &Endpoint{conn: conn}
}

func (e *Endpoint) Configure(ctx context.Context) error {
	if e.conn != nil {
		return nil
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", e.addr)
	if err != nil {
		return lferr.ErrNoDevice
	}
	e.conn = conn
	return nil
}

func (e *Endpoint) Push(ctx context.Context, buf []byte) error {
	if e.conn == nil {
		return lferr.ErrNoDevice
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = e.conn.SetWriteDeadline(deadline)
	}
	n, err := e.conn.Write(buf)
	if err != nil || n != len(buf) {
		return lferr.ErrNoDevice
	}
	return nil
}

func (e *Endpoint) Pull(ctx context.Context, buf []byte) error {
	if e.conn == nil {
		return lferr.ErrNoDevice
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = e.conn.SetReadDeadline(deadline)
	}
	if _, err := io.ReadFull(e.conn, buf); err != nil {
		return lferr.ErrNoDevice
	}
	return nil
}

func (e *Endpoint) Destroy() error {
	if e.conn == nil {
		return nil
	}
	return e.conn.Close()
}

// Listener accepts TCP connections and hands each one off as an
// Endpoint, for the device side of a serve loop. A real device has
// exactly one channel; this stand-in can host several concurrently.
type Listener struct {
	ln net.Listener
}

// Listen binds addr and returns a Listener ready to Accept.
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln}, nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Next blocks until a connection arrives, returning it wrapped as an
// Endpoint.
func (l *Listener) Next() (*Endpoint, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return Wrap(conn), nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}
