// Package ep0 implements the control-endpoint protocol engine of the DFU
// bootloader: SETUP packet parsing, the SETUP/DATA/STATUS control transfer
// state machine, standard and vendor and DFU class request dispatch, and
// multi-packet DFU_DNLOAD reassembly into a flash backend.
//
// The engine is driven exclusively by decoded hardware completion events
// delivered through Engine.HandleEvent. It never blocks: arming the next
// phase is a non-blocking HAL call, and "waiting" is expressed purely as
// the Phase value. All per-transfer state lives in fixed-size buffers; the
// event path performs no allocation.
//
// Errors split two ways: controller (hardware) failures are returned to the
// caller, while protocol violations are handled internally by stalling both
// directions of EP0 and resynchronizing to the next SETUP packet.
package ep0
