package bzimage

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

// A well formed gzip header followed by a DEFLATE block of the reserved
// type 3, which no decoder accepts.
var spuriousMember = []byte{0x1F, 0x8B, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03, 0x07}

func gzipBytes(t testing.TB, payload []byte) []byte {
	t.Helper()

	var buf bytes.Buffer

	zw, err := GzipWriter(&buf)
	require.NoError(t, err)

	_, err = zw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func randomBytes(n int) []byte {
	var (
		r = rand.New(rand.NewPCG(0x62_7a, 0x69_6d))
		p = make([]byte, n)
	)
	for i := range p {
		p[i] = byte(r.Uint32())
	}
	return p
}

func concat(parts ...[]byte) []byte { return bytes.Join(parts, nil) }

func zeros(n int) []byte { return make([]byte, n) }

// Looks like the tail of a bzImage after the compressed kernel.
var trailingGarbage = bytes.Repeat([]byte{0xFF, 0x00, 0x55}, 40)
