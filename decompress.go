package bzimage

import (
	"io"

	"gitlab.com/tozd/go/errors"
)

// Counters for a single decompression attempt.
type Stats struct {
	In  int64 // Compressed bytes consumed
	Out int64 // Decompressed bytes produced
}

// Decompress one gzip member from src, writing output to sink as it is
// produced.
//
// Returns nil once the member's trailer has been verified. Otherwise the error
// is an [*Error] of kind [KindIncompleteOrCorrupt] (truncated or malformed
// input), [KindOutOfMemory] (the sink reported [ErrOutOfMemory]) or [KindIO].
// Output already written to the sink is left in place on failure.
func Decompress(src io.Reader, sink io.Writer) (Stats, error) {
	var (
		e   = NewEngine(src)
		out = make([]byte, ChunkSize)
	)

	defer e.Close()

	stats := func() Stats { return Stats{In: e.TotalIn(), Out: e.TotalOut()} }

	for {
		// Inflate until the output chunk comes back short of full
		n, st, err := e.Step(out)

		if n > 0 {
			if werr := writeAll(sink, out[:n]); werr != nil {
				kind := KindIO
				if errors.Is(werr, ErrOutOfMemory) {
					kind = KindOutOfMemory
				}
				return stats(), newError(kind, werr)
			}
		}

		if err != nil {
			return stats(), asError(err)
		}

		switch st {
		case StatusStreamEnd:
			return stats(), nil
		case StatusNeedInput:
			return stats(), newError(KindIncompleteOrCorrupt, ErrIncomplete)
		}
	}
}

func writeAll(w io.Writer, p []byte) error {
	n, err := w.Write(p)
	if err != nil {
		if errors.Is(err, ErrOutOfMemory) {
			return err
		}
		return errors.Errorf("writing output: %w", err)
	}

	if n != len(p) {
		return errors.WithStack(io.ErrShortWrite)
	}

	return nil
}
