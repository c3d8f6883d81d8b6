package sim

import (
	"sync"

	"github.com/sztsian/tomu-bootloader/ep0/hal"
	"github.com/sztsian/tomu-bootloader/pkg"
)

// Controller is an in-memory hal.Controller. It keeps the same arming
// discipline as real hardware: an IN or OUT completion event can only be
// produced for an endpoint the engine previously armed, and delivering a
// SETUP clears an EP0 stall, as the hardware does.
//
// The device side is the hal.Controller methods; the host side is the
// SetupEvent/OutEvent/InEvent helpers, which produce the events a real
// interrupt service routine would decode.
type Controller struct {
	mutex sync.Mutex

	connected bool
	address   uint8

	armedSetup    bool
	armedOut      []byte // Engine's OUT buffer; nil when not armed
	armedOutValid bool
	armedIn       []byte // Data the engine queued for IN; nil payload is a ZLP
	armedInValid  bool

	stalledIn  bool
	stalledOut bool

	// inPackets records every completed IN payload, in order, as copies.
	inPackets [][]byte

	resets    int
	rxFlushes int
	txFlushes int
}

// New creates a disconnected simulated controller.
func New() *Controller {
	return &Controller{}
}

// ResetCore performs a simulated core soft reset.
func (c *Controller) ResetCore() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.resets++
	c.armedSetup = false
	c.armedOutValid = false
	c.armedInValid = false
	c.stalledIn = false
	c.stalledOut = false
	c.address = 0
	return nil
}

// FlushRxFIFO flushes the simulated receive FIFO.
func (c *Controller) FlushRxFIFO() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.rxFlushes++
	c.armedOutValid = false
	return nil
}

// FlushTxFIFO flushes the simulated transmit FIFO of the given endpoint.
func (c *Controller) FlushTxFIFO(ep uint8) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if ep != 0 {
		return pkg.ErrInvalidEndpoint
	}
	c.txFlushes++
	c.armedInValid = false
	return nil
}

// Connect attaches the simulated device to the bus.
func (c *Controller) Connect() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.connected = true
	return nil
}

// Disconnect detaches the simulated device from the bus.
func (c *Controller) Disconnect() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.connected = false
	return nil
}

// SetDeviceAddress latches the device address.
func (c *Controller) SetDeviceAddress(addr uint8) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.address = addr
	return nil
}

// ArmSetup arms EP0 OUT for the next SETUP packet.
func (c *Controller) ArmSetup() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.armedSetup = true
	return nil
}

// StartOut arms EP0 OUT to receive into buf. It reprograms the same OUT
// registers a SETUP arming uses, so any pending SETUP arming is overwritten.
func (c *Controller) StartOut(buf []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.armedOut = buf
	c.armedOutValid = true
	c.armedSetup = false
	return nil
}

// StartIn arms EP0 IN to transmit data. The slice is held by reference
// until the completion, matching a DMA controller.
func (c *Controller) StartIn(data []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.armedIn = data
	c.armedInValid = true
	return nil
}

// StallOut stalls the OUT direction of the given endpoint.
func (c *Controller) StallOut(ep uint8) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if ep != 0 {
		return pkg.ErrInvalidEndpoint
	}
	c.stalledOut = true
	c.armedOutValid = false
	return nil
}

// StallIn stalls the IN direction of the given endpoint.
func (c *Controller) StallIn(ep uint8) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if ep != 0 {
		return pkg.ErrInvalidEndpoint
	}
	c.stalledIn = true
	c.armedInValid = false
	return nil
}

// ClearStallOut clears an OUT stall and resets the data toggle.
func (c *Controller) ClearStallOut(ep uint8) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if ep != 0 {
		return pkg.ErrInvalidEndpoint
	}
	c.stalledOut = false
	return nil
}

// ClearStallIn clears an IN stall and resets the data toggle.
func (c *Controller) ClearStallIn(ep uint8) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if ep != 0 {
		return pkg.ErrInvalidEndpoint
	}
	c.stalledIn = false
	return nil
}

// IsStalledIn reports whether the IN direction is stalled.
func (c *Controller) IsStalledIn(ep uint8) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if ep != 0 {
		return false
	}
	return c.stalledIn
}

// EnableInterrupts is a no-op: the simulation delivers events directly.
func (c *Controller) EnableInterrupts() error {
	return nil
}

// SetupEvent produces the event for a host-sent SETUP packet. Delivering a
// SETUP clears an EP0 stall and cancels any armed data transfer, as the
// hardware does when a new SETUP token arrives.
func (c *Controller) SetupEvent(s hal.SetupPacket) hal.Event {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.stalledIn = false
	c.stalledOut = false
	c.armedSetup = false
	c.armedOutValid = false
	c.armedInValid = false
	return hal.Event{Type: hal.EventSetup, Setup: s}
}

// OutEvent delivers host OUT data into the armed buffer and produces the
// completion event. It fails if EP0 OUT is stalled or not armed.
func (c *Controller) OutEvent(data []byte) (hal.Event, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.stalledOut {
		return hal.Event{}, pkg.ErrStall
	}
	if !c.armedOutValid {
		return hal.Event{}, pkg.ErrEndpointNotArmed
	}
	n := copy(c.armedOut, data)
	c.armedOutValid = false
	return hal.Event{Type: hal.EventOut0, Received: n}, nil
}

// InEvent completes the armed IN transfer: it returns the completion event
// together with a copy of the transmitted payload (empty for a ZLP). It
// fails if EP0 IN is stalled or not armed.
func (c *Controller) InEvent() (hal.Event, []byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.stalledIn {
		return hal.Event{}, nil, pkg.ErrStall
	}
	if !c.armedInValid {
		return hal.Event{}, nil, pkg.ErrEndpointNotArmed
	}
	pkt := make([]byte, len(c.armedIn))
	copy(pkt, c.armedIn)
	c.armedInValid = false
	c.inPackets = append(c.inPackets, pkt)
	return hal.Event{Type: hal.EventIn0}, pkt, nil
}

// InPackets returns every completed IN payload, in order.
func (c *Controller) InPackets() [][]byte {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	out := make([][]byte, len(c.inPackets))
	copy(out, c.inPackets)
	return out
}

// ClearInPackets discards the recorded IN payloads.
func (c *Controller) ClearInPackets() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.inPackets = nil
}

// Stalled reports the stall latches of both EP0 directions.
func (c *Controller) Stalled() (in, out bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.stalledIn, c.stalledOut
}

// Address returns the latched device address.
func (c *Controller) Address() uint8 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.address
}

// Connected reports whether the device is attached to the bus.
func (c *Controller) Connected() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.connected
}

// SetupArmed reports whether EP0 is armed for a SETUP packet.
func (c *Controller) SetupArmed() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.armedSetup
}

// Resets returns the number of core soft resets performed.
func (c *Controller) Resets() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.resets
}

// Compile-time interface check
var _ hal.Controller = (*Controller)(nil)
