package bzimage

import (
	"context"
	"io"
	"os"

	slogctx "github.com/veqryn/slog-context"
	"gitlab.com/tozd/go/errors"
)

const (
	DefaultSuffix = "_unpacked" // Appended to the input path to name the output
	StagedSuffix  = ".gz"       // Appended to the input path to name the saved gzip member
)

// Controls [ExtractFile]. The zero value is ready to use.
type Options struct {
	// Appended to the input path to name the output file. Defaults to
	// [DefaultSuffix].
	Suffix string

	// Remove the output file if no gzip member could be decompressed. By
	// default a failed scan leaves the partial output of its last attempt.
	Clean bool

	// Also save the compressed gzip member itself next to the input, named
	// with [StagedSuffix].
	StageGz bool
}

func (o *Options) suffix() string {
	if o == nil || o.Suffix == "" {
		return DefaultSuffix
	}
	return o.Suffix
}

// The output path for an input path and suffix.
func OutputPath(input, suffix string) string {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return input + suffix
}

// Unpack the boot image at path, writing the decompressed payload to
// [OutputPath].
//
// The input is read into memory in full. Every candidate offset truncates and
// rewrites the same output file, so a failing scan leaves behind whatever its
// last attempt wrote unless [Options.Clean] is set.
func ExtractFile(ctx context.Context, path string, opts *Options) (Result, error) {
	if opts == nil {
		opts = &Options{}
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return Result{}, newError(KindOpen, errors.Errorf("reading %s: %w", path, err))
	}

	var (
		outPath = OutputPath(path, opts.suffix())
		created bool
	)

	ctx = slogctx.Append(ctx, "output", outPath)

	var l = Locator{
		NewSink: func(offset int) (io.WriteCloser, error) {
			created = true
			return os.Create(outPath)
		},
	}

	res, err := l.Locate(ctx, buf)
	if err != nil {
		if created && opts.Clean && Classify(err) == KindNotFound {
			if rerr := os.Remove(outPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				slogctx.FromCtx(ctx).WarnContext(ctx, "removing partial output", "error", rerr)
			}
		}
		return res, err
	}

	if opts.StageGz {
		stagedPath := path + StagedSuffix
		member := buf[res.Offset:][:res.CompressedSize]
		if err := os.WriteFile(stagedPath, member, 0o644); err != nil {
			return res, newError(KindIO, errors.Errorf("writing %s: %w", stagedPath, err))
		}

		slogctx.FromCtx(ctx).DebugContext(ctx, "saved gzip member", "path", stagedPath, "size", len(member))
	}

	return res, nil
}

// Unpack a boot image held in memory, returning the decompressed payload.
//
// Output beyond limit bytes fails the attempt with [KindOutOfMemory]; a limit
// of 0 or less means no limit.
func ExtractBytes(ctx context.Context, buf []byte, limit int64) (Result, []byte, error) {
	var (
		sink = LimitedBuffer{Limit: limit}
		l    = Locator{
			NewSink: func(offset int) (io.WriteCloser, error) {
				sink.Reset()
				return &sink, nil
			},
		}
	)

	res, err := l.Locate(ctx, buf)
	if err != nil {
		return res, nil, err
	}

	return res, sink.Bytes(), nil
}
