package bzimage

import (
	"bytes"
	"fmt"
	"io"
)

// Identify what kind of data an extracted payload holds by looking at its
// first few bytes and identifying magic values.
//
// A bzImage normally unpacks to an ELF vmlinux. Other results are worth a
// second look: EFI zboot images unpack to a PE binary, an initrd unpacks to a
// cpio archive, and a doubly compressed payload starts with another magic
// value from the RD_ and KERNEL_ config options in [Linux kernel usr/Kconfig].
//
// [Linux kernel usr/Kconfig]: https://git.kernel.org/pub/scm/linux/kernel/git/torvalds/linux.git/tree/usr/Kconfig
type Lookahead int

const (
	UnknownLookahead Lookahead = iota
	Empty                      // No data
	Padding                    // Zero padding
	Elf                        // ELF executable, typically vmlinux
	PE                         // PE/COFF executable, typically an EFI stub
	CpioFile                   // Start of cpio archive member file header
	Gzip                       // Start of Gzip compressed data
	Bzip2                      // Start of Bzip2 compressed data
	Lzma                       // Start of LZMA compressed data
	Xz                         // Start of XZ compressed data
	Lzo                        // Start of LZO compressed data
	Lz4                        // Start of LZ4 compressed data
	Zstd                       // Start of Zstd compressed data
)

// The most bytes [SniffLookahead] will look at.
const LookaheadSize = 6

var (
	magicElf     = []byte("\x7fELF")
	magic_070701 = []byte("070701")
	magic_070702 = []byte("070702")
)

// Determine what kind of data head starts with. Needs at most
// [LookaheadSize] bytes; fewer may leave the answer as [UnknownLookahead].
func SniffLookahead(head []byte) Lookahead {
	if len(head) == 0 {
		return Empty
	}

	if head[0] == 0 {
		return Padding
	}

	if len(head) < 2 {
		return UnknownLookahead
	}

	m, ok := SniffMagic([2]byte{head[0], head[1]})
	if !ok {
		return UnknownLookahead
	}

	switch m {
	case ElfMagic:
		if bytes.HasPrefix(head, magicElf) {
			return Elf
		}
	case PEMagic:
		return PE
	case CpioFileMagic:
		if bytes.HasPrefix(head, magic_070701) || bytes.HasPrefix(head, magic_070702) {
			return CpioFile
		}
	case GzipMagic1, GzipMagic2:
		return Gzip
	case Bzip2Magic:
		return Bzip2
	case LzmaMagic:
		return Lzma
	case XzMagic:
		return Xz
	case LzoMagic:
		return Lzo
	case Lz4Magic:
		return Lz4
	case ZstdMagic:
		return Zstd
	}

	return UnknownLookahead
}

// Returns true if and only if the lookahead indicates the start of compressed data.
func (la Lookahead) Compression() bool {
	switch la {
	case Gzip,
		Bzip2,
		Lzma,
		Xz,
		Lzo,
		Lz4,
		Zstd:
		return true
	default:
		return false
	}
}

// Returns true for the executable formats a kernel image is expected to unpack to.
func (la Lookahead) Executable() bool { return la == Elf || la == PE }

func (la Lookahead) String() string {
	switch la {
	case UnknownLookahead:
		return "unknown"
	case Empty:
		return "empty"
	case Padding:
		return "padding"
	case Elf:
		return "elf"
	case PE:
		return "pe"
	case CpioFile:
		return "cpiofile"
	case Gzip:
		return "gzip"
	case Bzip2:
		return "bzip2"
	case Lzma:
		return "lzma"
	case Xz:
		return "xz"
	case Lzo:
		return "lzo"
	case Lz4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("0x%x", int(la))
	}
}

// Magic byte values used to identify the start of various types of data.
//
// The compression values match what the kernel uses, see
// [Linux kernel lib/decompress.c].
//
// [Linux kernel lib/decompress.c]: https://git.kernel.org/pub/scm/linux/kernel/git/torvalds/linux.git/tree/lib/decompress.c
type Magic uint16

const (
	ElfMagic      Magic = 0x7F_45 // "\x7fE", the full magic is "\x7fELF"
	PEMagic       Magic = 0x4D_5A // "MZ", the MS-DOS stub in front of a PE header
	CpioFileMagic Magic = 0x30_37 // A cpio archive member file header starts with "07" (either "070701" or "070702")
	GzipMagic1    Magic = 0x1F_8B
	GzipMagic2    Magic = 0x1F_9E
	Bzip2Magic    Magic = 0x42_5A
	LzmaMagic     Magic = 0x5D_00
	XzMagic       Magic = 0xFD_37
	LzoMagic      Magic = 0x89_4C
	Lz4Magic      Magic = 0x02_21
	ZstdMagic     Magic = 0x28_B5
)

// Determine if the provided bytes are a recognized magic value.
func SniffMagic(peek [2]byte) (m Magic, ok bool) {
	m = Magic(peek[0])<<8 | Magic(peek[1])
	switch m {
	case ElfMagic,
		PEMagic,
		CpioFileMagic,
		GzipMagic1,
		GzipMagic2,
		Bzip2Magic,
		LzmaMagic,
		XzMagic,
		LzoMagic,
		Lz4Magic,
		ZstdMagic:
		return m, true
	default:
		return
	}
}

// Returns true if the bytes match the magic value.
func (m Magic) Match(a [2]byte) bool { return m == Magic(a[0])<<8|Magic(a[1]) }

func (m Magic) MatchBytes(p []byte) bool {
	var a [2]byte
	copy(a[:], p)
	return m.Match(a)
}

// Records the first [LookaheadSize] bytes written through it.
type headRecorder struct {
	w    io.Writer
	head [LookaheadSize]byte
	n    int
}

func (hr *headRecorder) Write(p []byte) (int, error) {
	if hr.n < len(hr.head) {
		hr.n += copy(hr.head[hr.n:], p)
	}
	return hr.w.Write(p)
}

func (hr *headRecorder) Lookahead() Lookahead { return SniffLookahead(hr.head[:hr.n]) }
