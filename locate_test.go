package bzimage

import (
	"bytes"
	"context"
	"io"
	"os"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

type memSinks struct {
	opened []int
	bufs   map[int]*LimitedBuffer
}

func (ms *memSinks) open(offset int) (io.WriteCloser, error) {
	if ms.bufs == nil {
		ms.bufs = make(map[int]*LimitedBuffer)
	}
	ms.opened = append(ms.opened, offset)
	ms.bufs[offset] = &LimitedBuffer{}
	return ms.bufs[offset], nil
}

func TestLocator_Locate(t *testing.T) {
	var (
		payload = randomBytes(ChunkSize + 77)
		member  = gzipBytes(t, payload)
	)

	var testcases = []struct {
		name     string
		buf      []byte
		offset   int
		attempts int
	}{
		{"at start", member, 0, 1},
		{"after setup", concat(zeros(0x4000), member, trailingGarbage), 0x4000, 1},
		{"spurious before", concat(zeros(8), spuriousMember, zeros(3), member), 8 + len(spuriousMember) + 3, 2},
		{"bare signature before", concat(Signature[:], []byte{0xFF, 0xFF}, member), 5, 2},
		{"two members", concat(zeros(1), member, gzipBytes(t, []byte("second"))), 1, 1},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			var (
				sinks memSinks
				l     = Locator{NewSink: sinks.open}
			)

			res, err := l.Locate(context.Background(), tc.buf)
			require.NoError(t, err)

			assert.Equal(t, tc.offset, res.Offset)
			assert.Equal(t, tc.attempts, res.Attempts)
			assert.Equal(t, int64(len(member)), res.CompressedSize)
			assert.Equal(t, int64(len(payload)), res.Size)
			assert.Equal(t, payload, sinks.bufs[tc.offset].Bytes())
			assert.Equal(t, tc.offset, sinks.opened[len(sinks.opened)-1], "scan continued after success")
		})
	}
}

func TestLocator_SingleByte(t *testing.T) {
	// Ten zero bytes, then a minimal gzip member of "A"
	var (
		buf   = concat(zeros(10), gzipBytes(t, []byte("A")))
		sinks memSinks
		l     = Locator{NewSink: sinks.open}
	)

	res, err := l.Locate(context.Background(), buf)
	require.NoError(t, err)

	assert.Equal(t, 10, res.Offset)
	assert.Equal(t, []byte("A"), sinks.bufs[10].Bytes())
	assert.Equal(t, int64(1), res.Size)
	assert.Equal(t, UnknownLookahead, res.Payload)
}

func TestLocator_NotFound(t *testing.T) {
	var member = gzipBytes(t, randomBytes(2*ChunkSize))

	var testcases = []struct {
		name  string
		buf   []byte
		first int // First attempted offset, -1 for none
	}{
		{"empty", nil, -1},
		{"too short", []byte{0x1F, 0x8B}, -1},
		{"no signature", bytes.Repeat([]byte("bzImage setup code "), 100), -1},
		{"signature at end", concat(zeros(4), Signature[:]), 4},
		{"truncated", concat(zeros(32), member[:len(member)/2]), 32},
		{"garbage", concat(spuriousMember, trailingGarbage), 0},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			var (
				sinks memSinks
				l     = Locator{NewSink: sinks.open}
			)

			_, err := l.Locate(context.Background(), tc.buf)
			require.Error(t, err)

			assert.ErrorIs(t, err, ErrNotFound)
			assert.Equal(t, KindNotFound, Classify(err))
			assert.Equal(t, slices.Collect(Candidates(tc.buf)), sinks.opened)

			if tc.first == -1 {
				assert.Empty(t, sinks.opened)
				return
			}

			require.NotEmpty(t, sinks.opened)
			assert.Equal(t, tc.first, sinks.opened[0])

			for a := range l.Attempts(context.Background(), tc.buf) {
				assert.Equal(t, KindIncompleteOrCorrupt, Classify(a.Err), "offset %d", a.Offset)
			}
		})
	}
}

func TestLocator_Attempts(t *testing.T) {
	var (
		member = gzipBytes(t, []byte("payload"))
		buf    = concat(spuriousMember, zeros(2), spuriousMember, member, trailingGarbage)
		l      Locator
	)

	attempts := slices.Collect(l.Attempts(context.Background(), buf))
	require.Len(t, attempts, 3)

	for i, a := range attempts[:2] {
		assert.False(t, a.OK(), "#%d", i)

		var e *Error
		if assert.True(t, errors.As(a.Err, &e), "#%d", i) {
			assert.Equal(t, a.Offset, e.Offset, "#%d", i)
			assert.Equal(t, KindIncompleteOrCorrupt, e.Kind, "#%d", i)
		}
	}

	assert.Equal(t, []int{0, 13, 24}, []int{attempts[0].Offset, attempts[1].Offset, attempts[2].Offset})
	assert.True(t, attempts[2].OK())
	assert.Equal(t, int64(len(member)), attempts[2].Stats.In)
}

func TestLocator_SinkOpenFails(t *testing.T) {
	var (
		errDenied = errors.Errorf("create: %w", os.ErrPermission)
		buf       = concat(spuriousMember, gzipBytes(t, []byte("kernel")))
		calls     int
		l         = Locator{
			NewSink: func(offset int) (io.WriteCloser, error) {
				calls++
				return nil, errDenied
			},
		}
	)

	_, err := l.Locate(context.Background(), buf)
	require.Error(t, err)

	assert.Equal(t, 1, calls, "scan continued after a fatal error")
	assert.Equal(t, KindIO, Classify(err))
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestLocator_Cancelled(t *testing.T) {
	var (
		ctx, cancel = context.WithCancel(context.Background())
		buf         = concat(spuriousMember, gzipBytes(t, []byte("kernel")))
		l           Locator
	)

	cancel()

	_, err := l.Locate(ctx, buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocator_Payload(t *testing.T) {
	var testcases = []struct {
		payload []byte
		expect  Lookahead
	}{
		{[]byte("\x7fELF\x02\x01\x01\x00"), Elf},
		{[]byte("MZ\x90\x00"), PE},
		{[]byte("070701000000"), CpioFile},
		{nil, Empty},
	}

	for i, tc := range testcases {
		var l Locator

		res, err := l.Locate(context.Background(), concat(zeros(3), gzipBytes(t, tc.payload)))
		if !assert.NoError(t, err, "#%d", i) {
			continue
		}

		assert.Equal(t, tc.expect, res.Payload, "#%d", i)
	}
}
