package pkg

import "errors"

// Control transfer and protocol errors.
var (
	// ErrStall indicates the control endpoint was stalled.
	ErrStall = errors.New("endpoint stalled")

	// ErrProtocol indicates a control protocol violation.
	ErrProtocol = errors.New("protocol error")

	// ErrInvalidRequest indicates an invalid or unsupported request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidEndpoint indicates an invalid endpoint address or index.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")

	// ErrDescriptorNotFound indicates no descriptor table entry matched.
	ErrDescriptorNotFound = errors.New("descriptor not found")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrTransferAborted indicates the host aborted an in-flight transfer.
	ErrTransferAborted = errors.New("transfer aborted")

	// ErrTransferOverrun indicates received data exceeded the announced length.
	ErrTransferOverrun = errors.New("transfer overrun")

	// ErrEndpointNotArmed indicates the endpoint was not armed for the event.
	ErrEndpointNotArmed = errors.New("endpoint not armed")

	// ErrNoMemory indicates a fixed-size table or buffer is full.
	ErrNoMemory = errors.New("insufficient memory")

	// ErrBackendFailure indicates the flash backend rejected an operation.
	ErrBackendFailure = errors.New("backend failure")

	// ErrImageTooLarge indicates a firmware image exceeds the flash region.
	ErrImageTooLarge = errors.New("image too large")

	// ErrImageEmpty indicates a firmware image contains no data.
	ErrImageEmpty = errors.New("image empty")
)
