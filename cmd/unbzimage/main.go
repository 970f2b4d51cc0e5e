// Unpacks the gzip compressed kernel from a bzImage-style boot image.
//
// The decompressed payload is written next to the input, named by appending
// "_unpacked" to the input path.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"
	slogctx "github.com/veqryn/slog-context"

	"go.pdmccormick.com/bzimage"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var (
		opts    bzimage.Options
		verbose bool
		noColor bool
		help    bool
	)

	flagSet := pflag.NewFlagSet("unbzimage", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.Suffix, "suffix", bzimage.DefaultSuffix, "`suffix` appended to the input path to name the output file")
	flagSet.BoolVar(&opts.StageGz, "gz", false, "also save the compressed gzip member as <bzImage_path>"+bzimage.StagedSuffix)
	flagSet.BoolVar(&opts.Clean, "clean", false, "remove the partial output file when no packed image is found")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log every decompression attempt in detail")
	flagSet.BoolVar(&noColor, "no-color", false, "disable colored log output")
	flagSet.BoolVarP(&help, "help", "h", false, "show help")
	flagSet.Usage = func() { printUsage(stdout, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		return 1
	}

	if help {
		printUsage(stdout, flagSet)
		return 0
	}

	if flagSet.NArg() < 1 {
		printUsage(stdout, flagSet)
		return 1
	}

	var path = flagSet.Arg(0)

	ctx = setupLogging(ctx, stderr, verbose, noColor)
	ctx = slogctx.With(ctx, "input", path)

	res, err := bzimage.ExtractFile(ctx, path, &opts)
	if err != nil {
		return report(ctx, stdout, path, err)
	}

	slogctx.FromCtx(ctx).InfoContext(ctx, "unpacked",
		"offset", bzimage.HexOffset(res.Offset),
		"compressed", humanize.Bytes(uint64(res.CompressedSize)),
		"size", humanize.Bytes(uint64(res.Size)),
		"payload", res.Payload,
		"attempts", res.Attempts,
	)

	if !res.Payload.Executable() {
		slogctx.FromCtx(ctx).WarnContext(ctx, "payload does not look like a kernel", "payload", res.Payload)
	}

	fmt.Fprintf(stdout, "Success: unpacked image was saved in file %s\n", bzimage.OutputPath(path, opts.Suffix))
	return 0
}

func report(ctx context.Context, stdout io.Writer, path string, err error) int {
	var kind = bzimage.Classify(err)

	slogctx.FromCtx(ctx).ErrorContext(ctx, "unpack failed", "reason", kind.String(), "error", err)

	switch kind {
	case bzimage.KindNotFound:
		fmt.Fprintf(stdout, "Error: packed image was not found in file %s\n", path)
	case bzimage.KindOpen:
		fmt.Fprintf(stdout, "Error opening file %s\n", path)
	default:
		fmt.Fprintf(stdout, "Error: %s\n", kind)
	}

	return 1
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, "Unpacks bzImage file.\nUsage:\n%s [flags] <bzImage_path>\n\nFlags:\n%s", flagSet.Name(), flagSet.FlagUsages())
}

func setupLogging(ctx context.Context, w io.Writer, verbose, noColor bool) context.Context {
	var level = slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handler := tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	})

	logger := slog.New(slogctx.NewHandler(handler, &slogctx.HandlerOptions{}))

	return slogctx.NewCtx(ctx, logger)
}
