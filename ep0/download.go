package ep0

import (
	"github.com/sztsian/tomu-bootloader/pkg"
)

// downloadChunk forwards one received DFU_DNLOAD chunk to the backend and
// advances the reassembly cursor. The cursor invariant is
// 0 <= rxOffset <= wLength for the duration of the block; the final chunk
// triggers the ACK handshake.
func (e *Engine) downloadChunk(chunk []byte) error {
	total := int(e.lastSetup.Length)

	if e.rxOffset+len(chunk) > total {
		pkg.LogWarn(pkg.ComponentDFU, "download overrun",
			"offset", e.rxOffset,
			"chunk", len(chunk),
			"total", total,
			"error", pkg.ErrTransferOverrun)
		return e.ctrlError()
	}

	err := e.backend.Download(e.lastSetup.Value, total, e.rxOffset, chunk)
	if err != nil {
		pkg.LogError(pkg.ComponentDFU, "backend rejected chunk",
			"block", e.lastSetup.Value,
			"offset", e.rxOffset,
			"error", err)
		return e.ctrlError()
	}
	e.rxOffset += len(chunk)

	if e.rxOffset >= total {
		pkg.LogDebug(pkg.ComponentDFU, "download block complete",
			"block", e.lastSetup.Value,
			"length", total)
		return e.ctrlAck()
	}
	return e.armNextOut()
}
