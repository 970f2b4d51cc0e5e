package bzimage

import (
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// A [CompressWriter] will compress anything written to it and write a single
// gzip member to the given output once closed.
type CompressWriter func(output io.Writer) (io.WriteCloser, error)

// A [CompressWriter] using [github.com/klauspost/compress/gzip.NewWriterLevel]
// at the best compression level, as the kernel's own build does.
func GzipWriter(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, gzip.BestCompression)
}

// Opens the gzip envelope and consumes its header.
//
// Boot images carry more data after the gzip member, so the reader stops at
// the end of the first member instead of looking for another header.
func newEnvelopeReader(r flate.Reader) (*gzip.Reader, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}

	zr.Multistream(false)
	return zr, nil
}
