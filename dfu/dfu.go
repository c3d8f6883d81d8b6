package dfu

import "github.com/sztsian/tomu-bootloader/pkg"

// State is the DFU device state machine state (DFU 1.1 Spec Table A.2.2).
type State uint8

// DFU states.
const (
	StateAppIdle            State = 0  // Device is running its normal application
	StateAppDetach          State = 1  // Detach received, waiting for reset
	StateIdle               State = 2  // Idle in DFU mode
	StateDownloadSync       State = 3  // Block received, waiting for GETSTATUS
	StateDownloadBusy       State = 4  // Programming a block
	StateDownloadIdle       State = 5  // Expecting further DNLOAD blocks
	StateManifestSync       State = 6  // End of download, waiting for GETSTATUS
	StateManifest           State = 7  // Manifesting the new firmware
	StateManifestWaitReset  State = 8  // Manifestation done, waiting for reset
	StateUploadIdle         State = 9  // Expecting further UPLOAD requests
	StateError              State = 10 // An error occurred; CLRSTATUS clears
)

// String returns the DFU specification name of the state.
func (s State) String() string {
	switch s {
	case StateAppIdle:
		return "appIDLE"
	case StateAppDetach:
		return "appDETACH"
	case StateIdle:
		return "dfuIDLE"
	case StateDownloadSync:
		return "dfuDNLOAD-SYNC"
	case StateDownloadBusy:
		return "dfuDNBUSY"
	case StateDownloadIdle:
		return "dfuDNLOAD-IDLE"
	case StateManifestSync:
		return "dfuMANIFEST-SYNC"
	case StateManifest:
		return "dfuMANIFEST"
	case StateManifestWaitReset:
		return "dfuMANIFEST-WAIT-RESET"
	case StateUploadIdle:
		return "dfuUPLOAD-IDLE"
	case StateError:
		return "dfuERROR"
	default:
		return "UNKNOWN"
	}
}

// Status is the DFU status code reported in the GETSTATUS record
// (DFU 1.1 Spec Table A.2.1).
type Status uint8

// DFU status codes.
const (
	StatusOK          Status = 0x00 // No error
	StatusErrTarget   Status = 0x01 // File is not targeted for this device
	StatusErrFile     Status = 0x02 // File fails a vendor-specific test
	StatusErrWrite    Status = 0x03 // Device is unable to write memory
	StatusErrErase    Status = 0x04 // Memory erase failed
	StatusErrCheck    Status = 0x05 // Memory erase check failed
	StatusErrProg     Status = 0x06 // Program memory failed
	StatusErrVerify   Status = 0x07 // Programmed memory failed verification
	StatusErrAddress  Status = 0x08 // Address out of range
	StatusErrNotDone  Status = 0x09 // DNLOAD ended before the firmware was complete
	StatusErrFirmware Status = 0x0A // Firmware is corrupt
	StatusErrVendor   Status = 0x0B // Vendor-specific error
	StatusErrUSB      Status = 0x0C // Unexpected USB reset
	StatusErrPOR      Status = 0x0D // Unexpected power-on reset
	StatusErrUnknown  Status = 0x0E // Unknown error
	StatusErrStalled  Status = 0x0F // Device stalled an unexpected request
)

// StatusRecordSize is the wire size of the GETSTATUS reply.
const StatusRecordSize = 6

// StatusRecord is the 6-byte DFU_GETSTATUS reply.
type StatusRecord struct {
	Status      Status // bStatus
	PollTimeout uint32 // bwPollTimeout: milliseconds before the next GETSTATUS (24 bits)
	State       State  // bState
	StringIndex uint8  // iString: index of a status description string, or 0
}

// MarshalTo serializes the status record to buf.
// Returns the number of bytes written (always 6 if buf is large enough).
func (r *StatusRecord) MarshalTo(buf []byte) int {
	if len(buf) < StatusRecordSize {
		return 0
	}
	buf[0] = uint8(r.Status)
	buf[1] = uint8(r.PollTimeout)
	buf[2] = uint8(r.PollTimeout >> 8)
	buf[3] = uint8(r.PollTimeout >> 16)
	buf[4] = uint8(r.State)
	buf[5] = r.StringIndex
	return StatusRecordSize
}

// ParseStatusRecord parses a 6-byte GETSTATUS reply into out.
func ParseStatusRecord(data []byte, out *StatusRecord) error {
	if len(data) < StatusRecordSize {
		return pkg.ErrBufferTooSmall
	}
	out.Status = Status(data[0])
	out.PollTimeout = uint32(data[1]) | uint32(data[2])<<8 | uint32(data[3])<<16
	out.State = State(data[4])
	out.StringIndex = data[5]
	return nil
}

// Backend accepts firmware block writes from the control engine and answers
// the DFU query requests. The engine never interprets why a backend call
// failed; any error surfaces to the host as a stall.
type Backend interface {
	// Download accepts one chunk of the block identified by block number.
	// total is the announced block length (wLength), offset the chunk's
	// position within the block, and data the chunk bytes. A zero total
	// with empty data signals end-of-download (manifestation).
	Download(block uint16, total, offset int, data []byte) error

	// Status returns the 6-byte DFU status record.
	Status() (StatusRecord, error)

	// ClearStatus clears an error condition and returns to dfuIDLE.
	ClearStatus() error

	// State returns the current DFU state.
	State() State

	// Abort cancels an in-progress download and returns to dfuIDLE.
	Abort() error
}
