// Unpack Linux kernel bzImage-style boot images by carving out the embedded
// gzip compressed payload.
//
// A boot image carries a small uncompressed setup and decompressor stub in
// front of the compressed kernel. The payload is found by scanning for the
// gzip member signature (1F 8B 08) and decoding from each match in turn until
// one decodes completely, in the same way as the kernel's
// [scripts/extract-vmlinux].
//
// The container is the [gzip file format] wrapping a [DEFLATE] bitstream.
// No other compression formats are decoded, although [SniffLookahead] will
// name them when they turn up inside an extracted payload.
//
// [scripts/extract-vmlinux]: https://git.kernel.org/pub/scm/linux/kernel/git/torvalds/linux.git/tree/scripts/extract-vmlinux
// [gzip file format]: https://www.rfc-editor.org/rfc/rfc1952
// [DEFLATE]: https://www.rfc-editor.org/rfc/rfc1951
package bzimage
