// Package loopback provides an in-process Endpoint pair backed by
// io.Pipe, used by engine tests and the demo CLI's self-test mode.
package loopback

import (
	"context"
	"io"

	"github.com/lfproto/lf/internal/lferr"
)

// Pair is a connected pair of endpoints: writes to one's Push are
// visible to the other's Pull, and vice versa.
type Pair struct {
	Host   *Endpoint
	Device *Endpoint
}

// New builds a connected in-process pair.
func New() Pair {
	hostToDevice := newPipe()
	deviceToHost := newPipe()
	return Pair{
		Host:   &Endpoint{w: hostToDevice.w, r: deviceToHost.r},
		Device: &Endpoint{w: deviceToHost.w, r: hostToDevice.r},
	}
}

type pipe struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func newPipe() pipe {
	r, w := io.Pipe()
	return pipe{r: r, w: w}
}

// Endpoint is one side of a Pair.
type Endpoint struct {
	w *io.PipeWriter
	r *io.PipeReader
}

func (e *Endpoint) Configure(ctx context.Context) error { return nil }

func (e *Endpoint) Push(ctx context.Context, buf []byte) error {
	n, err := e.w.Write(buf)
	if err != nil {
		return lferr.ErrNoDevice
	}
	if n != len(buf) {
		return lferr.ErrNoDevice
	}
	return nil
}

func (e *Endpoint) Pull(ctx context.Context, buf []byte) error {
	if _, err := io.ReadFull(e.r, buf); err != nil {
		return lferr.ErrNoDevice
	}
	return nil
}

func (e *Endpoint) Destroy() error {
	_ = e.w.Close()
	_ = e.r.Close()
	return nil
}
