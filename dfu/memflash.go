package dfu

import (
	"sync"

	"github.com/sztsian/tomu-bootloader/pkg"
)

// DefaultBlockSize is the DFU transfer size advertised by the bootloader:
// each DNLOAD block is programmed at block number * DefaultBlockSize.
const DefaultBlockSize = 1024

// MemFlash is a RAM-backed flash backend. Blocks are programmed at
// block*blockSize + offset, bounds-checked against the region size. It
// models the dfuIDLE / dfuDNLOAD-IDLE / dfuMANIFEST state transitions the
// host-side DFU drivers expect.
//
// MemFlash stands in for a real flash programmer: it gives the control
// engine a complete backend to drive in tests and simulation without
// touching hardware.
type MemFlash struct {
	mutex     sync.Mutex
	region    []byte
	written   []bool
	blockSize int
	state     State
	status    Status
	highWater int // One past the highest programmed byte
}

// NewMemFlash creates a RAM flash region of the given size. blockSize is
// the DFU transfer size; zero selects DefaultBlockSize.
func NewMemFlash(size, blockSize int) *MemFlash {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &MemFlash{
		region:    make([]byte, size),
		written:   make([]bool, size),
		blockSize: blockSize,
		state:     StateIdle,
		status:    StatusOK,
	}
}

// BlockSize returns the DFU transfer size.
func (f *MemFlash) BlockSize() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.blockSize
}

// Download accepts one chunk of a DNLOAD block. A zero total with empty
// data manifests the download (a zero-length DNLOAD from the host).
func (f *MemFlash) Download(block uint16, total, offset int, data []byte) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.state == StateError {
		return pkg.ErrBackendFailure
	}

	if total == 0 && len(data) == 0 {
		// End of download. An empty region means the host aborted
		// before sending any data.
		if f.highWater == 0 {
			f.fail(StatusErrNotDone)
			return pkg.ErrBackendFailure
		}
		f.state = StateManifestWaitReset
		pkg.LogInfo(pkg.ComponentDFU, "download manifested",
			"bytes", f.highWater)
		return nil
	}

	if offset < 0 || len(data) == 0 || offset+len(data) > total {
		f.fail(StatusErrAddress)
		return pkg.ErrBackendFailure
	}

	addr := int(block)*f.blockSize + offset
	if addr+len(data) > len(f.region) {
		f.fail(StatusErrAddress)
		return pkg.ErrBackendFailure
	}

	copy(f.region[addr:], data)
	for i := addr; i < addr+len(data); i++ {
		f.written[i] = true
	}
	if end := addr + len(data); end > f.highWater {
		f.highWater = end
	}
	f.state = StateDownloadIdle

	pkg.LogDebug(pkg.ComponentDFU, "chunk programmed",
		"block", block,
		"offset", offset,
		"length", len(data))

	return nil
}

// Status returns the DFU status record.
func (f *MemFlash) Status() (StatusRecord, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return StatusRecord{
		Status: f.status,
		State:  f.state,
	}, nil
}

// ClearStatus clears an error condition and returns to dfuIDLE.
func (f *MemFlash) ClearStatus() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.status = StatusOK
	f.state = StateIdle
	return nil
}

// State returns the current DFU state.
func (f *MemFlash) State() State {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.state
}

// Abort cancels an in-progress download and returns to dfuIDLE.
// Previously programmed bytes are kept; the next download overwrites them.
func (f *MemFlash) Abort() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.state = StateIdle
	f.status = StatusOK
	f.highWater = 0
	for i := range f.written {
		f.written[i] = false
	}
	return nil
}

// Bytes returns a copy of the programmed region up to the highest written
// byte.
func (f *MemFlash) Bytes() []byte {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	out := make([]byte, f.highWater)
	copy(out, f.region[:f.highWater])
	return out
}

// Verify compares the programmed region against want and reports whether
// every byte of want was written with the expected value.
func (f *MemFlash) Verify(want []byte) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if len(want) > len(f.region) {
		return false
	}
	for i, b := range want {
		if !f.written[i] || f.region[i] != b {
			return false
		}
	}
	return true
}

// fail records an error status; the caller holds the mutex.
func (f *MemFlash) fail(status Status) {
	f.state = StateError
	f.status = status
	pkg.LogWarn(pkg.ComponentDFU, "backend error",
		"status", uint8(status))
}

// Compile-time interface check
var _ Backend = (*MemFlash)(nil)
