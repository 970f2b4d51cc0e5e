package bzimage

import (
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"gitlab.com/tozd/go/errors"
)

var errEngineClosed = errors.New("bzimage: engine closed")

// Size of the input and output chunks. Memory use per decompression attempt
// is two chunks plus the decoder's history window.
const ChunkSize = 16384

// Progress reported by [Engine.Step].
type Status int

const (
	StatusOK        Status = iota // Output buffer was filled, more output may be pending
	StatusNeedInput               // Source is exhausted but the stream has not ended
	StatusStreamEnd               // Trailer consumed and verified
)

func (st Status) String() string {
	switch st {
	case StatusOK:
		return "ok"
	case StatusNeedInput:
		return "need input"
	case StatusStreamEnd:
		return "stream end"
	default:
		return "unknown"
	}
}

// Fixed size input chunk refilled from the source on demand.
//
// Implements [flate.Reader] so that neither the gzip header parser nor the
// DEFLATE decoder wraps it in their own read-ahead buffer; consumed then
// counts exactly the bytes the decoder asked for.
type window struct {
	src      io.Reader
	buf      []byte
	r, w     int
	consumed int64
	refills  int
	drained  bool
	err      error
}

var _ flate.Reader = (*window)(nil)

func (win *window) fill() error {
	if win.r < win.w {
		return nil
	}

	if win.err != nil {
		return win.err
	}

	if win.drained {
		return io.EOF
	}

	n, err := win.src.Read(win.buf[:cap(win.buf)])
	win.r, win.w = 0, n
	if n > 0 {
		win.refills++
		return nil
	}

	switch {
	case err == nil, errors.Is(err, io.EOF):
		win.drained = true
		return io.EOF
	default:
		win.err = newError(KindIO, errors.Errorf("reading compressed input: %w", err))
		return win.err
	}
}

func (win *window) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if err := win.fill(); err != nil {
		return 0, err
	}

	n := copy(p, win.buf[win.r:win.w])
	win.r += n
	win.consumed += int64(n)
	return n, nil
}

func (win *window) ReadByte() (byte, error) {
	if err := win.fill(); err != nil {
		return 0, err
	}

	c := win.buf[win.r]
	win.r++
	win.consumed++
	return c, nil
}

// The decoder state for one decompression attempt.
//
// An Engine reads the gzip header lazily on the first call to [Engine.Step],
// then inflates the DEFLATE bitstream into caller supplied output chunks until
// the trailer has been consumed and its CRC-32 and length verified.
type Engine struct {
	win   window
	zr    *gzip.Reader
	out   int64
	ended bool
	err   error
}

func NewEngine(src io.Reader) *Engine {
	return &Engine{
		win: window{
			src: src,
			buf: make([]byte, ChunkSize),
		},
	}
}

// Compressed bytes consumed by the decoder so far. Once the stream has ended
// this is the exact length of the gzip member.
func (e *Engine) TotalIn() int64 { return e.win.consumed }

// Decompressed bytes produced so far.
func (e *Engine) TotalOut() int64 { return e.out }

// Number of input chunks read from the source.
func (e *Engine) Refills() int { return e.win.refills }

// Produce up to len(out) decompressed bytes.
//
// Returns [StatusOK] if out was completely filled, [StatusStreamEnd] once the
// trailer is verified and [StatusNeedInput] if the source ran dry first. The
// error is non-nil for corrupt input and read failures, and is sticky.
func (e *Engine) Step(out []byte) (n int, st Status, err error) {
	if e.ended {
		return 0, StatusStreamEnd, nil
	}

	if e.err != nil {
		return 0, StatusOK, e.err
	}

	if e.zr == nil {
		zr, err := newEnvelopeReader(&e.win)
		if err != nil {
			st, err = e.fail(err)
			return 0, st, err
		}
		e.zr = zr
	}

	for n < len(out) {
		m, err := e.zr.Read(out[n:])
		n += m
		e.out += int64(m)

		if errors.Is(err, io.EOF) {
			e.ended = true
			return n, StatusStreamEnd, nil
		}

		if err != nil {
			st, err = e.fail(err)
			return n, st, err
		}
	}

	return n, StatusOK, nil
}

// A truncated stream surfaces from the decoder as an unexpected EOF, which is
// only reported as [StatusNeedInput] when the source really is exhausted.
func (e *Engine) fail(err error) (Status, error) {
	if e.win.drained && e.win.err == nil && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) {
		e.err = ErrIncomplete
		return StatusNeedInput, nil
	}

	e.err = errors.WithStack(err)
	return StatusOK, e.err
}

// Release the decoder state. The engine must not be used afterwards.
func (e *Engine) Close() error {
	var err error
	if e.zr != nil {
		err = e.zr.Close()
		e.zr = nil
	}

	e.win.buf = nil
	e.win.src = nil
	if e.err == nil {
		e.err = errEngineClosed
	}
	return err
}
