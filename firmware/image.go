package firmware

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marcinbor85/gohex"

	"github.com/sztsian/tomu-bootloader/pkg"
)

// ErasedByte is the value of unprogrammed flash; gaps between Intel HEX
// segments are filled with it.
const ErasedByte = 0xFF

// Load reads a firmware image from path. Files with a .hex extension are
// parsed as Intel HEX and flattened into a contiguous image starting at the
// lowest segment address; anything else is taken as a raw binary.
func Load(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".hex") {
		return loadIntelHex(raw)
	}
	if len(raw) == 0 {
		return nil, pkg.ErrImageEmpty
	}
	pkg.LogInfo(pkg.ComponentFirmware, "raw image loaded",
		"path", path,
		"bytes", len(raw))
	return raw, nil
}

// loadIntelHex parses Intel HEX data and flattens its segments.
func loadIntelHex(raw []byte) ([]byte, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, pkg.ErrImageEmpty
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Address < segments[j].Address
	})
	base := segments[0].Address
	end := base
	for _, seg := range segments {
		if segEnd := seg.Address + uint32(len(seg.Data)); segEnd > end {
			end = segEnd
		}
	}

	img := make([]byte, end-base)
	for i := range img {
		img[i] = ErasedByte
	}
	for _, seg := range segments {
		copy(img[seg.Address-base:], seg.Data)
	}

	pkg.LogInfo(pkg.ComponentFirmware, "hex image loaded",
		"base", base,
		"bytes", len(img),
		"segments", len(segments))

	return img, nil
}

// Blocks splits an image into DFU download blocks of at most size bytes.
// The final block may be shorter; an empty image yields no blocks.
func Blocks(img []byte, size int) [][]byte {
	if size <= 0 || len(img) == 0 {
		return nil
	}
	blocks := make([][]byte, 0, (len(img)+size-1)/size)
	for len(img) > 0 {
		n := size
		if n > len(img) {
			n = len(img)
		}
		blocks = append(blocks, img[:n])
		img = img[n:]
	}
	return blocks
}
