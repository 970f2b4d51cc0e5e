package bzimage

import (
	"bytes"
	"io"
	"os"
)

// An in-memory sink for decompressed output.
//
// Once a write would take the total past Limit, nothing more is stored and
// [ErrOutOfMemory] is returned. A Limit of 0 or less means no limit.
type LimitedBuffer struct {
	Limit int64

	buf    bytes.Buffer
	closed bool
}

var _ io.WriteCloser = (*LimitedBuffer)(nil)

func (lb *LimitedBuffer) Write(p []byte) (int, error) {
	if lb.closed {
		return 0, os.ErrClosed
	}

	if lb.Limit > 0 && int64(lb.buf.Len())+int64(len(p)) > lb.Limit {
		return 0, ErrOutOfMemory
	}

	return lb.buf.Write(p)
}

func (lb *LimitedBuffer) Close() error {
	lb.closed = true
	return nil
}

// Discard anything written so far and reopen the buffer for writing.
func (lb *LimitedBuffer) Reset() {
	lb.buf.Reset()
	lb.closed = false
}

func (lb *LimitedBuffer) Len() int { return lb.buf.Len() }

// The bytes written so far. Only valid until the next write or reset.
func (lb *LimitedBuffer) Bytes() []byte { return lb.buf.Bytes() }
