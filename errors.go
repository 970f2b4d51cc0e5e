package bzimage

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"gitlab.com/tozd/go/errors"
)

var (
	ErrNotFound    = errors.New("bzimage: packed image not found")
	ErrIncomplete  = errors.New("bzimage: compressed stream ended before its trailer")
	ErrOutOfMemory = errors.New("bzimage: out of memory")
)

// Classification of a failure, see [Classify].
type Kind int

const (
	KindNone                Kind = iota
	KindIO                       // Platform read or write failure
	KindIncompleteOrCorrupt      // Truncated or malformed compressed data
	KindOutOfMemory              // Decoder or sink could not get working memory
	KindNotFound                 // No offset decoded completely
	KindUsage                    // Missing or bad command line arguments
	KindOpen                     // Input file could not be opened or read
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindIO:
		return "i/o error"
	case KindIncompleteOrCorrupt:
		return "invalid or incomplete deflate data"
	case KindOutOfMemory:
		return "out of memory"
	case KindNotFound:
		return "packed image not found"
	case KindUsage:
		return "usage"
	case KindOpen:
		return "error opening file"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// An Error records the [Kind] of a failure and, where one applies, the offset
// of the candidate stream it happened at (otherwise -1).
type Error struct {
	Kind   Kind
	Offset int
	Err    error
}

func (e *Error) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("bzimage: %s at 0x%08X: %s", e.Kind, e.Offset, e.Err.Error())
	}
	return fmt.Sprintf("bzimage: %s: %s", e.Kind, e.Err.Error())
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error) *Error { return &Error{Kind: kind, Offset: -1, Err: err} }

// Reuses an [*Error] already in the chain, or classifies err into a new one.
func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(Classify(err), err)
}

// Determine the [Kind] of err.
//
// An [*Error] anywhere in the chain wins. Otherwise the known decoder errors
// are recognized, and anything left over is treated as [KindIO].
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	var corrupt flate.CorruptInputError

	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrOutOfMemory):
		return KindOutOfMemory
	case errors.Is(err, ErrIncomplete),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, gzip.ErrHeader),
		errors.Is(err, gzip.ErrChecksum),
		errors.As(err, &corrupt):
		return KindIncompleteOrCorrupt
	default:
		return KindIO
	}
}
