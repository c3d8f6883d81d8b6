// Package dfu holds the USB Device Firmware Update class definitions: the
// DFU state and status codes, the 6-byte GETSTATUS record, and the Backend
// interface through which the control engine hands downloaded firmware
// blocks to a flash programmer.
//
// MemFlash is a RAM-backed Backend used in tests and simulation.
package dfu
