package ep0

import (
	"github.com/sztsian/tomu-bootloader/pkg"
)

// dispatchSetup routes a freshly received SETUP packet. A SETUP overrides
// any in-flight transfer unconditionally: all prior cursor state is
// discarded before the request is interpreted.
func (e *Engine) dispatchSetup(req *SetupPacket) error {
	e.devReq = *req
	e.lastSetup = *req
	e.data.reset()
	e.rxOffset = 0
	e.pendingAddr = false

	pkg.LogDebug(pkg.ComponentDispatch, "setup received",
		"request", req.String(),
		"code", req.Code())

	switch req.Code() {
	case codeGetStatusDevice:
		// Bus-powered, no remote wakeup.
		e.replyBuf[0] = 0
		e.replyBuf[1] = 0
		return e.ctrlSend(e.replyBuf[:2])

	case codeGetStatusEndpoint:
		if req.Index != 0 {
			return e.ctrlError()
		}
		e.replyBuf[0] = 0
		if e.ctl.IsStalledIn(0) {
			e.replyBuf[0] = 1
		}
		e.replyBuf[1] = 0
		return e.ctrlSend(e.replyBuf[:2])

	case codeClearFeatureEndpoint:
		if req.Index != 0 || req.Value != FeatureEndpointHalt {
			return e.ctrlError()
		}
		if err := e.ctl.ClearStallIn(0); err != nil {
			return err
		}
		return e.ctrlAck()

	case codeSetFeatureEndpoint:
		if req.Index != 0 || req.Value != FeatureEndpointHalt {
			return e.ctrlError()
		}
		if err := e.ctl.StallIn(0); err != nil {
			return err
		}
		return e.ctrlAck()

	case codeSetAddress:
		// The handshake must still go out on the old address, so the
		// hardware latch is deferred until the status stage completes.
		e.address = uint8(req.Value)
		e.pendingAddr = true
		return e.ctrlAck()

	case codeGetDescriptorDevice, codeGetDescriptorIface:
		return e.getDescriptor(req)

	case codeGetConfiguration:
		e.replyBuf[0] = e.configuration
		return e.ctrlSend(e.replyBuf[:1])

	case codeSetConfiguration:
		e.configuration = uint8(req.Value)
		return e.ctrlAck()

	case codeDFUDownload:
		return e.dfuDownload(req)

	case codeDFUGetStatus:
		return e.dfuGetStatus(req)

	case codeDFUClrStatus:
		if req.Index != 0 {
			return e.ctrlError()
		}
		if err := e.backend.ClearStatus(); err != nil {
			pkg.LogWarn(pkg.ComponentDispatch, "clear status rejected",
				"error", err)
			return e.ctrlError()
		}
		return e.ctrlAck()

	case codeDFUGetState:
		if req.Index != 0 {
			return e.ctrlError()
		}
		e.replyBuf[0] = uint8(e.backend.State())
		return e.ctrlSend(e.replyBuf[:1])

	case codeDFUAbort:
		if req.Index != 0 {
			return e.ctrlError()
		}
		if err := e.backend.Abort(); err != nil {
			return e.ctrlError()
		}
		return e.ctrlAck()

	default:
		if e.isVendorDescriptorRequest(req) {
			return e.ctrlSend(e.table.CompatID)
		}
		pkg.LogWarn(pkg.ComponentDispatch, "unsupported request",
			"request", req.String(),
			"error", pkg.ErrInvalidRequest)
		return e.ctrlError()
	}
}

// getDescriptor answers GET_DESCRIPTOR from the descriptor table.
func (e *Engine) getDescriptor(req *SetupPacket) error {
	data, ok := e.table.Lookup(req.Value)
	if !ok {
		pkg.LogDebug(pkg.ComponentDispatch, "descriptor lookup failed",
			"value", req.Value,
			"error", pkg.ErrDescriptorNotFound)
		return e.ctrlError()
	}
	return e.ctrlSend(data)
}

// isVendorDescriptorRequest reports whether req is the Microsoft OS
// extended compatible ID descriptor query. The request code is the vendor
// code advertised in the OS string descriptor; only the compatible ID
// index is answered.
func (e *Engine) isVendorDescriptorRequest(req *SetupPacket) bool {
	if e.table.VendorCode == 0 || req.Request != e.table.VendorCode {
		return false
	}
	if req.RequestType != vendorRequestDevice && req.RequestType != vendorRequestIface {
		return false
	}
	return req.Index == MicrosoftCompatIDIndex && len(e.table.CompatID) > 0
}

// dfuDownload begins servicing DFU_DNLOAD. A zero-length block signals
// end-of-download and completes synchronously; otherwise the OUT data phase
// is armed and the block is forwarded chunk by chunk as packets arrive.
func (e *Engine) dfuDownload(req *SetupPacket) error {
	if req.Index != 0 {
		return e.ctrlError()
	}
	if req.Length == 0 {
		if err := e.backend.Download(req.Value, 0, 0, nil); err != nil {
			pkg.LogError(pkg.ComponentDFU, "manifest rejected",
				"error", err)
			return e.ctrlError()
		}
		return e.ctrlAck()
	}
	pkg.LogDebug(pkg.ComponentDFU, "download block start",
		"block", req.Value,
		"length", req.Length)
	return e.ctrlReceive(int(req.Length))
}

// dfuGetStatus answers DFU_GETSTATUS with the backend's 6-byte record.
func (e *Engine) dfuGetStatus(req *SetupPacket) error {
	if req.Index != 0 {
		return e.ctrlError()
	}
	rec, err := e.backend.Status()
	if err != nil {
		return e.ctrlError()
	}
	if rec.MarshalTo(e.replyBuf[:]) == 0 {
		return e.ctrlError()
	}
	return e.ctrlSend(e.replyBuf[:6])
}
