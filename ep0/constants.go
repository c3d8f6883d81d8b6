package ep0

import "github.com/sztsian/tomu-bootloader/ep0/hal"

// MaxPacketSize is the EP0 maximum packet size for a full-speed device.
// Every data-phase packet is min(remaining, MaxPacketSize) bytes.
const MaxPacketSize = hal.MaxPacketSize

// ReplyBufferSize is the size of the internal reply buffer used for status
// and DFU query replies. No supported reply exceeds 8 bytes.
const ReplyBufferSize = 8

// Standard USB request codes (USB 2.0 Spec Table 9-4).
const (
	RequestGetStatus        = 0x00
	RequestClearFeature     = 0x01
	RequestSetFeature       = 0x03
	RequestSetAddress       = 0x05
	RequestGetDescriptor    = 0x06
	RequestGetConfiguration = 0x08
	RequestSetConfiguration = 0x09
)

// DFU class request codes (DFU 1.1 Spec Table 3.2).
const (
	RequestDFUDetach    = 0x00
	RequestDFUDownload  = 0x01
	RequestDFUUpload    = 0x02
	RequestDFUGetStatus = 0x03
	RequestDFUClrStatus = 0x04
	RequestDFUGetState  = 0x05
	RequestDFUAbort     = 0x06
)

// Feature selectors (USB 2.0 Spec Table 9-6).
const (
	FeatureEndpointHalt = 0x00 // Endpoint halt feature
)

// Request type masks (USB 2.0 Spec Table 9-2).
const (
	RequestTypeDirectionMask = 0x80 // Direction bit mask
	RequestTypeTypeMask      = 0x60 // Type bits mask
	RequestTypeRecipientMask = 0x1F // Recipient bits mask
)

// Request type direction values.
const (
	RequestDirectionHostToDevice = 0x00 // Host to device
	RequestDirectionDeviceToHost = 0x80 // Device to host
)

// Request type values.
const (
	RequestTypeStandard = 0x00 // Standard request
	RequestTypeClass    = 0x20 // Class-specific request
	RequestTypeVendor   = 0x40 // Vendor-specific request
)

// Request recipient values.
const (
	RequestRecipientDevice    = 0x00 // Device recipient
	RequestRecipientInterface = 0x01 // Interface recipient
	RequestRecipientEndpoint  = 0x02 // Endpoint recipient
	RequestRecipientOther     = 0x03 // Other recipient
)

// USB descriptor types served by the bootloader (USB 2.0 Spec Table 9-5).
const (
	DescriptorTypeDevice        = 0x01
	DescriptorTypeConfiguration = 0x02
	DescriptorTypeString        = 0x03
	DescriptorTypeInterface     = 0x04
	DescriptorTypeEndpoint      = 0x05
)

// Combined request codes: bRequest in the high byte, bmRequestType in the
// low byte, exactly as the dispatch path compares them. This mirrors the
// layout of the first two bytes of the SETUP packet read as a little-endian
// 16-bit word.
const (
	codeGetStatusDevice      = 0x0080
	codeGetStatusEndpoint    = 0x0082
	codeClearFeatureEndpoint = 0x0102
	codeSetFeatureEndpoint   = 0x0302
	codeSetAddress           = 0x0500
	codeGetDescriptorDevice  = 0x0680
	codeGetDescriptorIface   = 0x0681
	codeGetConfiguration     = 0x0880
	codeSetConfiguration     = 0x0900

	codeDFUDownload  = 0x0121
	codeDFUGetStatus = 0x03A1
	codeDFUClrStatus = 0x0421
	codeDFUGetState  = 0x05A1
	codeDFUAbort     = 0x0621
)

// Vendor (Microsoft OS descriptor) request types. The request code itself is
// configured in the descriptor table; only requests with these bmRequestType
// values are considered.
const (
	vendorRequestDevice = 0xC0 // Device-to-host, vendor, device recipient
	vendorRequestIface  = 0xC1 // Device-to-host, vendor, interface recipient
)

// MicrosoftCompatIDIndex is the only wIndex value answered for the vendor
// request: the extended compatible ID descriptor.
const MicrosoftCompatIDIndex = 0x0004
