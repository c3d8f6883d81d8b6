package hal

// MaxPacketSize is the maximum packet size of the control endpoint for a
// full-speed device.
const MaxPacketSize = 64

// SetupPacket represents a USB SETUP packet as delivered by the controller.
// This is a fixed-size, zero-allocation structure for SETUP transactions.
type SetupPacket struct {
	RequestType uint8  // Request characteristics
	Request     uint8  // Specific request
	Value       uint16 // Request-specific value
	Index       uint16 // Request-specific index
	Length      uint16 // Number of bytes to transfer
}

// SetupPacketSize is the size of a USB SETUP packet in bytes.
const SetupPacketSize = 8

// ParseSetupPacket parses raw bytes into a SetupPacket.
// Returns false if data is too short.
func ParseSetupPacket(data []byte, out *SetupPacket) bool {
	if len(data) < SetupPacketSize {
		return false
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = uint16(data[2]) | uint16(data[3])<<8
	out.Index = uint16(data[4]) | uint16(data[5])<<8
	out.Length = uint16(data[6]) | uint16(data[7])<<8
	return true
}

// MarshalTo writes the setup packet to buf.
// Returns the number of bytes written (8), or 0 if buf is too small.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	buf[2] = byte(s.Value)
	buf[3] = byte(s.Value >> 8)
	buf[4] = byte(s.Index)
	buf[5] = byte(s.Index >> 8)
	buf[6] = byte(s.Length)
	buf[7] = byte(s.Length >> 8)
	return SetupPacketSize
}

// EventType identifies a decoded hardware interrupt event.
type EventType uint8

// Hardware event types delivered to the control engine.
const (
	EventNone     EventType = iota // No event
	EventReset                     // Bus reset
	EventEnumDone                  // Enumeration (speed negotiation) complete
	EventSetup                     // SETUP packet received on EP0 OUT
	EventIn0                       // EP0 IN transfer complete
	EventOut0                      // EP0 OUT transfer complete (data or status)
)

// String returns a human-readable event type name.
func (t EventType) String() string {
	switch t {
	case EventNone:
		return "none"
	case EventReset:
		return "reset"
	case EventEnumDone:
		return "enum-done"
	case EventSetup:
		return "setup"
	case EventIn0:
		return "in0-complete"
	case EventOut0:
		return "out0-complete"
	default:
		return "unknown"
	}
}

// Event is a decoded hardware interrupt event for the control endpoint.
// The interrupt service routine demultiplexes the controller's raw status
// registers into exactly one Event per completed transaction.
type Event struct {
	Type EventType

	// Setup holds the decoded SETUP packet. Valid only for EventSetup.
	Setup SetupPacket

	// Received is the number of bytes the controller wrote into the armed
	// OUT buffer, taken from the transfer-size register. Valid only for
	// EventOut0.
	Received int
}

// Controller is the register-level endpoint driver consumed by the control
// engine. Implementations own the hardware (or a simulation of it); the
// engine depends only on this interface, never on register layout.
//
// All operations apply to endpoint 0 unless an endpoint number parameter
// says otherwise. None of the methods block: each arms the hardware for a
// later completion event and returns.
type Controller interface {
	// ResetCore performs a controller core soft reset.
	ResetCore() error

	// FlushRxFIFO flushes the shared receive FIFO.
	FlushRxFIFO() error

	// FlushTxFIFO flushes the transmit FIFO of the given endpoint.
	FlushTxFIFO(ep uint8) error

	// Connect attaches the device to the bus (clears soft disconnect).
	Connect() error

	// Disconnect detaches the device from the bus.
	Disconnect() error

	// SetDeviceAddress latches the device address in hardware.
	SetDeviceAddress(addr uint8) error

	// ArmSetup arms EP0 OUT to receive the next SETUP packet.
	ArmSetup() error

	// StartOut arms EP0 OUT to receive up to len(buf) bytes into buf.
	// A nil or empty buf arms a zero-length (status) reception.
	StartOut(buf []byte) error

	// StartIn arms EP0 IN to transmit data. A nil or empty slice sends a
	// zero-length packet. The controller may DMA directly from data; the
	// slice must remain valid until the completion event.
	StartIn(data []byte) error

	// StallOut stalls the OUT direction of the given endpoint.
	StallOut(ep uint8) error

	// StallIn stalls the IN direction of the given endpoint.
	StallIn(ep uint8) error

	// ClearStallOut clears a stall on the OUT direction of the given
	// endpoint and resets its data toggle to DATA0.
	ClearStallOut(ep uint8) error

	// ClearStallIn clears a stall on the IN direction of the given
	// endpoint and resets its data toggle to DATA0.
	ClearStallIn(ep uint8) error

	// IsStalledIn reports whether the IN direction of the given endpoint
	// is currently stalled.
	IsStalledIn(ep uint8) bool

	// EnableInterrupts unmasks the controller interrupts the engine
	// depends on (reset, enumeration done, EP0 IN/OUT completion).
	EnableInterrupts() error
}
