package bzimage

import (
	"bytes"
	"iter"
)

// The gzip member signature: ID1, ID2 and the DEFLATE compression method.
var Signature = [SignatureSize]byte{0x1F, 0x8B, 0x08}

const SignatureSize = 3

// Returns true if p starts with [Signature].
func MatchSignature(p []byte) bool {
	return len(p) >= SignatureSize && bytes.Equal(p[:SignatureSize], Signature[:])
}

// Provides every offset in buf where [Signature] begins, in ascending order.
//
// Offsets 0 through len(buf)-[SignatureSize] are considered. A buffer shorter
// than the signature yields nothing.
func Candidates(buf []byte) iter.Seq[int] {
	return func(yield func(offset int) bool) {
		if len(buf) < SignatureSize {
			return
		}

		for offset := 0; offset <= len(buf)-SignatureSize; {
			i := bytes.Index(buf[offset:], Signature[:])
			if i == -1 {
				return
			}

			offset += i
			if !yield(offset) {
				return
			}

			// Single byte step, matches may overlap a bad candidate
			offset++
		}
	}
}
