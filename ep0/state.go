package ep0

import "github.com/sztsian/tomu-bootloader/ep0/hal"

// Phase is the control pipe state. It always reflects the next hardware
// completion event the engine expects on EP0.
type Phase uint8

// Control pipe phases.
const (
	WaitSetup     Phase = iota // Idle, armed for the next SETUP
	InData                     // IN data phase, more chunks follow
	OutData                    // OUT data phase in progress
	LastInData                 // IN data phase, final chunk (or ZLP) in flight
	WaitStatusIn               // Zero-length IN handshake in flight
	WaitStatusOut              // Zero-length OUT handshake expected
	Stalled                    // Transient: error surfaced to host
)

// String returns a human-readable phase name.
func (p Phase) String() string {
	switch p {
	case WaitSetup:
		return "WAIT_SETUP"
	case InData:
		return "IN_DATA"
	case OutData:
		return "OUT_DATA"
	case LastInData:
		return "LAST_IN_DATA"
	case WaitStatusIn:
		return "WAIT_STATUS_IN"
	case WaitStatusOut:
		return "WAIT_STATUS_OUT"
	case Stalled:
		return "STALLED"
	default:
		return "UNKNOWN"
	}
}

// step classifies what the engine must do for a completion event in a given
// phase. The mapping is the control transfer transition table, consolidated
// in one place so it can be tested in isolation from hardware.
type step uint8

// Step kinds.
const (
	stepNone          step = iota // Ignore the event
	stepDataIn                    // Continue the IN data phase
	stepDataOut                   // Consume an OUT data chunk
	stepStatusInDone              // Control WRITE (or no-data) finished
	stepStatusOutDone             // Control READ finished
	stepAbort                     // Wrong-direction event: stall and resync
)

// nextStep returns the step to take when a completion event of the given
// type arrives in the given phase. SETUP events are not classified here:
// a new SETUP overrides any in-flight transfer unconditionally and is
// dispatched directly.
func nextStep(p Phase, ev hal.EventType) step {
	switch ev {
	case hal.EventIn0:
		switch p {
		case InData, LastInData:
			return stepDataIn
		case WaitStatusIn:
			return stepStatusInDone
		default:
			// OUT_DATA, WAIT_STATUS_OUT, WAIT_SETUP, or unknown:
			// the host aborted or the hardware is out of sync.
			return stepAbort
		}
	case hal.EventOut0:
		switch p {
		case OutData:
			return stepDataOut
		case WaitStatusOut:
			return stepStatusOutDone
		default:
			return stepAbort
		}
	default:
		return stepNone
	}
}

// ctrlData is the in-flight data phase cursor. It is owned exclusively by
// the engine and reset at the start of every new data phase.
type ctrlData struct {
	// buf holds the bytes not yet handed to the controller for an IN
	// data phase. For OUT phases it is nil; remaining tracks the count.
	buf []byte

	// remaining is the number of OUT data bytes still expected.
	remaining int

	// needZLP records that the IN data phase must be terminated by a
	// zero-length packet because the clamped total is a non-zero exact
	// multiple of the maximum packet size. Computed once at transfer
	// start and consumed exactly once.
	needZLP bool
}

// reset clears the cursor for a new transfer.
func (d *ctrlData) reset() {
	d.buf = nil
	d.remaining = 0
	d.needZLP = false
}
