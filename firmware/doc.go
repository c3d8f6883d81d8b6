// Package firmware loads firmware images for download: Intel HEX files are
// flattened into contiguous images, raw binaries pass through, and Blocks
// splits an image into DFU transfer-sized blocks.
package firmware
