package ep0

import (
	"encoding/binary"
	"fmt"

	"github.com/sztsian/tomu-bootloader/pkg"
)

// SetupPacket represents an 8-byte USB SETUP packet.
type SetupPacket struct {
	RequestType uint8  // bmRequestType: direction, type, recipient
	Request     uint8  // bRequest: specific request code
	Value       uint16 // wValue: request-specific parameter
	Index       uint16 // wIndex: request-specific index
	Length      uint16 // wLength: number of bytes to transfer
}

// SetupPacketSize is the size of a USB SETUP packet in bytes.
const SetupPacketSize = 8

// ParseSetupPacket parses a setup packet from 8 bytes into out.
// Returns an error if the data is too short.
func ParseSetupPacket(data []byte, out *SetupPacket) error {
	if len(data) < SetupPacketSize {
		return pkg.ErrSetupPacketTooShort
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = binary.LittleEndian.Uint16(data[2:4])
	out.Index = binary.LittleEndian.Uint16(data[4:6])
	out.Length = binary.LittleEndian.Uint16(data[6:8])
	return nil
}

// MarshalTo serializes the setup packet to buf.
// Returns the number of bytes written (always 8 if buf is large enough).
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	binary.LittleEndian.PutUint16(buf[2:4], s.Value)
	binary.LittleEndian.PutUint16(buf[4:6], s.Index)
	binary.LittleEndian.PutUint16(buf[6:8], s.Length)
	return SetupPacketSize
}

// Code returns the combined request code (bRequest in the high byte,
// bmRequestType in the low byte) used to key the dispatch table.
func (s *SetupPacket) Code() uint16 {
	return uint16(s.Request)<<8 | uint16(s.RequestType)
}

// Direction returns the transfer direction.
func (s *SetupPacket) Direction() uint8 {
	return s.RequestType & RequestTypeDirectionMask
}

// IsDeviceToHost returns true if this is a device-to-host transfer.
func (s *SetupPacket) IsDeviceToHost() bool {
	return s.Direction() == RequestDirectionDeviceToHost
}

// IsHostToDevice returns true if this is a host-to-device transfer.
func (s *SetupPacket) IsHostToDevice() bool {
	return s.Direction() == RequestDirectionHostToDevice
}

// Type returns the request type (Standard, Class, or Vendor).
func (s *SetupPacket) Type() uint8 {
	return s.RequestType & RequestTypeTypeMask
}

// IsStandard returns true if this is a standard request.
func (s *SetupPacket) IsStandard() bool {
	return s.Type() == RequestTypeStandard
}

// IsClass returns true if this is a class-specific request.
func (s *SetupPacket) IsClass() bool {
	return s.Type() == RequestTypeClass
}

// IsVendor returns true if this is a vendor-specific request.
func (s *SetupPacket) IsVendor() bool {
	return s.Type() == RequestTypeVendor
}

// Recipient returns the request recipient.
func (s *SetupPacket) Recipient() uint8 {
	return s.RequestType & RequestTypeRecipientMask
}

// DescriptorType returns the descriptor type from wValue high byte.
func (s *SetupPacket) DescriptorType() uint8 {
	return uint8(s.Value >> 8)
}

// DescriptorIndex returns the descriptor index from wValue low byte.
func (s *SetupPacket) DescriptorIndex() uint8 {
	return uint8(s.Value & 0xFF)
}

// String returns a human-readable representation of the setup packet.
func (s *SetupPacket) String() string {
	dir := "OUT"
	if s.IsDeviceToHost() {
		dir = "IN"
	}
	reqType := "Standard"
	switch s.Type() {
	case RequestTypeClass:
		reqType = "Class"
	case RequestTypeVendor:
		reqType = "Vendor"
	}
	recip := "Device"
	switch s.Recipient() {
	case RequestRecipientInterface:
		recip = "Interface"
	case RequestRecipientEndpoint:
		recip = "Endpoint"
	case RequestRecipientOther:
		recip = "Other"
	}
	return fmt.Sprintf("SETUP[%s %s %s] Request=0x%02X Value=0x%04X Index=0x%04X Length=%d",
		dir, reqType, recip, s.Request, s.Value, s.Index, s.Length)
}

// GetDescriptorSetup initializes out as a GET_DESCRIPTOR setup packet.
func GetDescriptorSetup(out *SetupPacket, descType, descIndex uint8, length uint16) {
	out.RequestType = RequestDirectionDeviceToHost | RequestTypeStandard | RequestRecipientDevice
	out.Request = RequestGetDescriptor
	out.Value = uint16(descType)<<8 | uint16(descIndex)
	out.Index = 0
	out.Length = length
}

// SetAddressSetup initializes out as a SET_ADDRESS setup packet.
func SetAddressSetup(out *SetupPacket, address uint8) {
	out.RequestType = RequestDirectionHostToDevice | RequestTypeStandard | RequestRecipientDevice
	out.Request = RequestSetAddress
	out.Value = uint16(address)
	out.Index = 0
	out.Length = 0
}

// SetConfigurationSetup initializes out as a SET_CONFIGURATION setup packet.
func SetConfigurationSetup(out *SetupPacket, config uint8) {
	out.RequestType = RequestDirectionHostToDevice | RequestTypeStandard | RequestRecipientDevice
	out.Request = RequestSetConfiguration
	out.Value = uint16(config)
	out.Index = 0
	out.Length = 0
}

// GetConfigurationSetup initializes out as a GET_CONFIGURATION setup packet.
func GetConfigurationSetup(out *SetupPacket) {
	out.RequestType = RequestDirectionDeviceToHost | RequestTypeStandard | RequestRecipientDevice
	out.Request = RequestGetConfiguration
	out.Value = 0
	out.Index = 0
	out.Length = 1
}

// GetStatusSetup initializes out as a GET_STATUS setup packet.
func GetStatusSetup(out *SetupPacket, recipient uint8, index uint16) {
	out.RequestType = RequestDirectionDeviceToHost | RequestTypeStandard | recipient
	out.Request = RequestGetStatus
	out.Value = 0
	out.Index = index
	out.Length = 2
}

// DownloadSetup initializes out as a DFU_DNLOAD setup packet for the given
// block number and block length.
func DownloadSetup(out *SetupPacket, block uint16, length uint16) {
	out.RequestType = RequestDirectionHostToDevice | RequestTypeClass | RequestRecipientInterface
	out.Request = RequestDFUDownload
	out.Value = block
	out.Index = 0
	out.Length = length
}

// DFUGetStatusSetup initializes out as a DFU_GETSTATUS setup packet.
func DFUGetStatusSetup(out *SetupPacket) {
	out.RequestType = RequestDirectionDeviceToHost | RequestTypeClass | RequestRecipientInterface
	out.Request = RequestDFUGetStatus
	out.Value = 0
	out.Index = 0
	out.Length = 6
}

// DFUGetStateSetup initializes out as a DFU_GETSTATE setup packet.
func DFUGetStateSetup(out *SetupPacket) {
	out.RequestType = RequestDirectionDeviceToHost | RequestTypeClass | RequestRecipientInterface
	out.Request = RequestDFUGetState
	out.Value = 0
	out.Index = 0
	out.Length = 1
}
