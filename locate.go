package bzimage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"

	slogctx "github.com/veqryn/slog-context"
	"gitlab.com/tozd/go/errors"
)

// Opens a fresh sink for the decompression attempt at offset. Whatever the
// attempt writes is left in place when it fails.
type SinkFunc func(offset int) (io.WriteCloser, error)

// The outcome of trying to decompress from one candidate offset.
type Attempt struct {
	Offset  int
	Stats   Stats
	Payload Lookahead // What the first decompressed bytes look like
	Err     error

	fatal bool
}

func (a *Attempt) OK() bool { return a.Err == nil }

// Summary of a successful [Locator.Locate].
type Result struct {
	Offset         int       // Where the gzip member starts in the input
	CompressedSize int64     // Length of the gzip member, header and trailer included
	Size           int64     // Decompressed size
	Payload        Lookahead // What the decompressed payload looks like
	Attempts       int       // Number of candidate offsets tried, the winner included
}

// Finds and decompresses the first gzip member in a buffer that decodes
// completely. The zero value discards decompressed output.
type Locator struct {
	NewSink SinkFunc
}

type discardCloser struct{ io.Writer }

func (discardCloser) Close() error { return nil }

func (l *Locator) openSink(offset int) (io.WriteCloser, error) {
	if l.NewSink == nil {
		return discardCloser{io.Discard}, nil
	}
	return l.NewSink(offset)
}

// Provides a lazy sequence of decompression attempts, one for each offset
// where [Signature] appears, in ascending order.
//
// Each attempt decodes buf[offset:] directly. A failed attempt does not end
// the sequence; failing to open a sink or a cancelled context does, after
// yielding that failure.
func (l *Locator) Attempts(ctx context.Context, buf []byte) iter.Seq[Attempt] {
	return func(yield func(Attempt) bool) {
		for offset := range Candidates(buf) {
			if err := ctx.Err(); err != nil {
				yield(Attempt{Offset: offset, Err: errors.WithStack(err), fatal: true})
				return
			}

			a := l.attempt(buf, offset)
			if !yield(a) || a.fatal {
				return
			}
		}
	}
}

func (l *Locator) attempt(buf []byte, offset int) Attempt {
	var a = Attempt{Offset: offset}

	sink, err := l.openSink(offset)
	if err != nil {
		a.Err = &Error{Kind: KindIO, Offset: offset, Err: errors.Errorf("opening output: %w", err)}
		a.fatal = true
		return a
	}

	var hr = headRecorder{w: sink}

	a.Stats, err = Decompress(bytes.NewReader(buf[offset:]), &hr)
	a.Payload = hr.Lookahead()

	if cerr := sink.Close(); cerr != nil && err == nil {
		err = newError(KindIO, errors.Errorf("closing output: %w", cerr))
	}

	if err != nil {
		e := asError(err)
		e.Offset = offset
		a.Err = e
	}

	return a
}

// Scan buf for the first offset whose gzip member decompresses completely.
//
// Decode failures only move the scan on by one byte. If no offset succeeds
// the error is an [*Error] of kind [KindNotFound] that also wraps the last
// attempt's failure, if there was one.
func (l *Locator) Locate(ctx context.Context, buf []byte) (Result, error) {
	var (
		log  = slogctx.FromCtx(ctx)
		res  Result
		last error
	)

	for a := range l.Attempts(ctx, buf) {
		if a.fatal {
			return res, a.Err
		}

		res.Attempts++

		log.InfoContext(ctx, "found gzip magic", "offset", HexOffset(a.Offset))

		if !a.OK() {
			log.WarnContext(ctx, "unpacking failed",
				"offset", HexOffset(a.Offset),
				"reason", Classify(a.Err).String(),
				"consumed", a.Stats.In,
				"produced", a.Stats.Out,
				"error", a.Err,
			)

			last = a.Err
			continue
		}

		log.DebugContext(ctx, "unpacked gzip member",
			"offset", HexOffset(a.Offset),
			"consumed", a.Stats.In,
			"produced", a.Stats.Out,
			"payload", a.Payload,
		)

		res.Offset = a.Offset
		res.CompressedSize = a.Stats.In
		res.Size = a.Stats.Out
		res.Payload = a.Payload
		return res, nil
	}

	var cause error = ErrNotFound
	if last != nil {
		cause = errors.Join(ErrNotFound, last)
	}

	return res, newError(KindNotFound, cause)
}

// Formats an offset the way diagnostics print it.
func HexOffset(offset int) string { return fmt.Sprintf("0x%08X", offset) }
