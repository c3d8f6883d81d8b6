package ep0

import (
	"unsafe"

	"github.com/sztsian/tomu-bootloader/dfu"
	"github.com/sztsian/tomu-bootloader/ep0/hal"
	"github.com/sztsian/tomu-bootloader/pkg"
)

// Engine is the EP0 control transfer engine. It consumes decoded hardware
// events, runs the SETUP/DATA/STATUS state machine, dispatches requests,
// and reassembles multi-packet DFU downloads into the flash backend.
//
// The engine is single-threaded by contract: HandleEvent must be called
// from one goroutine (or interrupt context) at a time, matching the
// serialized event delivery the HAL guarantees.
type Engine struct {
	ctl     hal.Controller
	table   *DescriptorTable
	backend dfu.Backend

	// state is the control pipe phase, always the next completion event
	// the engine expects.
	state Phase

	// devReq is the SETUP packet currently being serviced. lastSetup
	// keeps a copy for diagnostics after devReq is overwritten.
	devReq    SetupPacket
	lastSetup SetupPacket

	// data is the in-flight data phase cursor.
	data ctrlData

	// rxOffset is the DFU reassembly cursor: bytes of the current
	// DNLOAD block already handed to the backend. Invariant:
	// 0 <= rxOffset <= int(devReq.Length).
	rxOffset int

	// address is the assigned device address. pendingAddr defers the
	// hardware latch until the SET_ADDRESS status stage completes, so
	// the status handshake itself still goes out on address zero.
	address     uint8
	pendingAddr bool

	// configuration is the value set by SET_CONFIGURATION.
	configuration uint8

	// stageBuf stages IN data whose caller buffer is not word-aligned,
	// for controllers that DMA directly from memory. rxBuf receives
	// every OUT data chunk; it is reused per chunk, so DFU chunks must
	// be consumed before the next OUT is armed. replyBuf holds short
	// generated replies (status words, DFU records).
	stageBuf [MaxPacketSize]byte
	rxBuf    [MaxPacketSize]byte
	replyBuf [ReplyBufferSize]byte
}

// NewEngine creates a control engine bound to a controller, a descriptor
// table, and a DFU backend.
func NewEngine(ctl hal.Controller, table *DescriptorTable, backend dfu.Backend) *Engine {
	return &Engine{
		ctl:     ctl,
		table:   table,
		backend: backend,
		state:   WaitSetup,
	}
}

// Init brings the controller out of reset and attaches to the bus. The
// engine is left waiting for the bus reset and enumeration events.
func (e *Engine) Init() error {
	if err := e.ctl.ResetCore(); err != nil {
		return err
	}
	if err := e.ctl.FlushTxFIFO(0); err != nil {
		return err
	}
	if err := e.ctl.FlushRxFIFO(); err != nil {
		return err
	}
	if err := e.ctl.SetDeviceAddress(0); err != nil {
		return err
	}
	if err := e.ctl.EnableInterrupts(); err != nil {
		return err
	}
	if err := e.ctl.Connect(); err != nil {
		return err
	}
	e.resetState()
	pkg.LogInfo(pkg.ComponentEngine, "controller initialized")
	return nil
}

// State returns the current control pipe phase.
func (e *Engine) State() Phase {
	return e.state
}

// Address returns the assigned device address.
func (e *Engine) Address() uint8 {
	return e.address
}

// Configuration returns the configuration value set by SET_CONFIGURATION.
func (e *Engine) Configuration() uint8 {
	return e.configuration
}

// LastSetup returns the most recently dispatched SETUP packet.
func (e *Engine) LastSetup() SetupPacket {
	return e.lastSetup
}

// HandleEvent consumes one decoded hardware event. It returns an error only
// for hardware (controller) failures; protocol violations are handled
// internally by stalling EP0 and resynchronizing to the next SETUP.
func (e *Engine) HandleEvent(ev hal.Event) error {
	switch ev.Type {
	case hal.EventReset:
		return e.handleReset()
	case hal.EventEnumDone:
		return e.handleEnumDone()
	case hal.EventSetup:
		var req SetupPacket
		req.RequestType = ev.Setup.RequestType
		req.Request = ev.Setup.Request
		req.Value = ev.Setup.Value
		req.Index = ev.Setup.Index
		req.Length = ev.Setup.Length
		return e.dispatchSetup(&req)
	case hal.EventIn0:
		return e.handleIn0()
	case hal.EventOut0:
		return e.handleOut0(ev.Received)
	default:
		return nil
	}
}

// handleReset services a bus reset: all transfer state is discarded and the
// device returns to the default (unaddressed, unconfigured) state.
func (e *Engine) handleReset() error {
	pkg.LogInfo(pkg.ComponentEngine, "bus reset")
	e.resetState()
	if err := e.ctl.FlushTxFIFO(0); err != nil {
		return err
	}
	if err := e.ctl.FlushRxFIFO(); err != nil {
		return err
	}
	return e.ctl.SetDeviceAddress(0)
}

// handleEnumDone services enumeration completion: EP0 is armed for the
// first SETUP packet.
func (e *Engine) handleEnumDone() error {
	pkg.LogInfo(pkg.ComponentEngine, "enumeration done")
	e.state = WaitSetup
	if err := e.ctl.ArmSetup(); err != nil {
		return err
	}
	return e.ctl.EnableInterrupts()
}

// handleIn0 services an EP0 IN completion.
func (e *Engine) handleIn0() error {
	switch nextStep(e.state, hal.EventIn0) {
	case stepDataIn:
		return e.handleDataStageIn()

	case stepStatusInDone:
		// A control WRITE (or no-data request) just finished its
		// zero-length IN handshake. A deferred SET_ADDRESS latches
		// now, after the handshake went out on the old address.
		if e.pendingAddr {
			e.pendingAddr = false
			if err := e.ctl.SetDeviceAddress(e.address); err != nil {
				return err
			}
			pkg.LogInfo(pkg.ComponentEngine, "address latched",
				"address", e.address)
		}
		e.state = WaitSetup
		return nil

	default:
		// IN completion in a phase that expects OUT traffic: the host
		// abandoned the transfer. Stall and resync.
		pkg.LogWarn(pkg.ComponentEngine, "unexpected IN completion",
			"phase", e.state.String(),
			"error", pkg.ErrTransferAborted)
		return e.ctrlError()
	}
}

// handleOut0 services an EP0 OUT completion of n received bytes.
func (e *Engine) handleOut0(n int) error {
	switch nextStep(e.state, hal.EventOut0) {
	case stepDataOut:
		return e.handleDataStageOut(n)

	case stepStatusOutDone:
		// A control READ just finished its zero-length OUT handshake.
		// The handshake reception consumed the EP0 OUT arming, so the
		// endpoint must be re-armed for the next SETUP.
		e.state = WaitSetup
		e.rxOffset = 0
		return e.ctl.ArmSetup()

	default:
		pkg.LogWarn(pkg.ComponentEngine, "unexpected OUT completion",
			"phase", e.state.String(),
			"error", pkg.ErrTransferAborted)
		return e.ctrlError()
	}
}

// handleDataStageIn continues an IN data phase after a chunk completion:
// either the next chunk, the terminating ZLP, or the switch to the status
// stage.
func (e *Engine) handleDataStageIn() error {
	if len(e.data.buf) == 0 {
		if e.data.needZLP {
			// The transfer total is an exact multiple of the packet
			// size: a zero-length packet tells the host it ended.
			e.data.needZLP = false
			e.state = LastInData
			if err := e.ctl.ArmSetup(); err != nil {
				return err
			}
			return e.ctl.StartIn(nil)
		}
		// Data phase complete; expect the host's zero-length OUT
		// handshake.
		e.state = WaitStatusOut
		return e.ctl.StartOut(nil)
	}

	n := len(e.data.buf)
	if n > MaxPacketSize {
		n = MaxPacketSize
	}
	chunk := e.data.buf[:n]
	e.data.buf = e.data.buf[n:]
	if len(e.data.buf) == 0 && !e.data.needZLP {
		e.state = LastInData
	} else {
		e.state = InData
	}
	if err := e.ctl.ArmSetup(); err != nil {
		return err
	}
	return e.ctl.StartIn(chunk)
}

// handleDataStageOut consumes one received OUT data chunk.
func (e *Engine) handleDataStageOut(n int) error {
	if n > e.data.remaining {
		pkg.LogWarn(pkg.ComponentEngine, "OUT data overrun",
			"received", n,
			"remaining", e.data.remaining,
			"error", pkg.ErrTransferOverrun)
		return e.ctrlError()
	}
	e.data.remaining -= n

	if e.devReq.Code() == codeDFUDownload {
		return e.downloadChunk(e.rxBuf[:n])
	}

	// No other supported request carries OUT data; drain and ack.
	if e.data.remaining > 0 {
		return e.armNextOut()
	}
	return e.ctrlAck()
}

// ctrlSend starts the IN data phase of a control READ. The reply is clamped
// to wLength; a terminating ZLP is scheduled when the clamped total is a
// non-zero exact multiple of the packet size. buf must remain valid until
// the transfer completes unless it is staged.
func (e *Engine) ctrlSend(buf []byte) error {
	total := len(buf)
	if total > int(e.devReq.Length) {
		total = int(e.devReq.Length)
	}
	buf = buf[:total]

	e.data.reset()
	e.data.needZLP = total > 0 && total%MaxPacketSize == 0

	n := total
	if n > MaxPacketSize {
		n = MaxPacketSize
	}
	chunk := buf[:n]
	e.data.buf = buf[n:]

	// Controllers that DMA from memory need word-aligned source buffers.
	// Single-packet replies from unaligned storage are staged through an
	// aligned scratch buffer; multi-packet descriptors are required to be
	// aligned by their producers.
	if n > 0 && uintptr(unsafe.Pointer(&chunk[0]))&3 != 0 && total <= MaxPacketSize {
		copy(e.stageBuf[:n], chunk)
		chunk = e.stageBuf[:n]
	}

	if len(e.data.buf) == 0 && !e.data.needZLP {
		e.state = LastInData
	} else {
		e.state = InData
	}
	if err := e.ctl.ArmSetup(); err != nil {
		return err
	}
	return e.ctl.StartIn(chunk)
}

// ctrlReceive starts the OUT data phase of a control WRITE expecting total
// bytes. Chunks arrive in rxBuf, at most MaxPacketSize at a time.
func (e *Engine) ctrlReceive(total int) error {
	e.data.reset()
	e.data.remaining = total
	n := total
	if n > MaxPacketSize {
		n = MaxPacketSize
	}
	e.state = OutData
	return e.ctl.StartOut(e.rxBuf[:n])
}

// armNextOut arms EP0 for the next chunk of an in-progress OUT data phase.
func (e *Engine) armNextOut() error {
	n := e.data.remaining
	if n > MaxPacketSize {
		n = MaxPacketSize
	}
	e.state = OutData
	return e.ctl.StartOut(e.rxBuf[:n])
}

// ctrlAck completes a control WRITE (or no-data request) by sending the
// zero-length IN status handshake.
func (e *Engine) ctrlAck() error {
	if err := e.ctl.ArmSetup(); err != nil {
		return err
	}
	e.state = WaitStatusIn
	return e.ctl.StartIn(nil)
}

// ctrlError surfaces a protocol error to the host: both EP0 directions are
// stalled and the engine resynchronizes to the next SETUP packet. The
// hardware clears the EP0 stall automatically when that SETUP arrives.
func (e *Engine) ctrlError() error {
	e.state = Stalled
	e.data.reset()
	e.pendingAddr = false
	if err := e.ctl.StallOut(0); err != nil {
		return err
	}
	if err := e.ctl.StallIn(0); err != nil {
		return err
	}
	e.state = WaitSetup
	return e.ctl.ArmSetup()
}

// resetState discards all transfer and device state after a bus reset or
// controller initialization.
func (e *Engine) resetState() {
	e.state = WaitSetup
	e.data.reset()
	e.rxOffset = 0
	e.address = 0
	e.pendingAddr = false
	e.configuration = 0
}
