// Package hal defines the hardware abstraction layer for the control
// endpoint engine.
//
// The HAL provides a platform-agnostic interface between the protocol engine
// and the underlying USB device controller. Platform ports implement this
// interface to run the bootloader engine on their specific hardware.
//
// # Design Principles
//
// The HAL is designed to be:
//
//   - Minimal: only the primitives the EP0 engine needs
//   - Generic: no register layout or controller-family assumptions
//   - Non-blocking: every operation arms hardware and returns; completions
//     arrive later as decoded [Event] values
//
// The engine implements all protocol logic, leaving the HAL to handle only
// register-level interactions.
//
// # Interface Overview
//
// The [Controller] interface defines the contract:
//
//   - Core lifecycle: soft reset, FIFO flushes, connect/disconnect
//   - EP0 arming: SETUP reception, OUT and IN transfers
//   - Error signalling: stall/unstall per direction
//   - Device address latch and interrupt unmasking
//
// # Event Decoding
//
// The interrupt service routine of a port decodes its raw interrupt status
// into [Event] values (reset, enumeration done, SETUP received, IN complete,
// OUT complete with byte count) and hands each to the engine's single entry
// point. The engine is not re-entrant; events must be delivered serialized
// in interrupt arrival order.
//
// A simulated controller for testing is available in
// [github.com/sztsian/tomu-bootloader/ep0/hal/sim].
package hal
