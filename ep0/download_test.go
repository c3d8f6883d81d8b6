package ep0

import (
	"bytes"
	"testing"
)

// Scenario: DFU_DNLOAD wLength=200 arrives as OUT packets of 64, 64, 64
// and 8 bytes; the backend sees one chunk call per packet at offsets 0,
// 64, 128 and 192, followed by exactly one ACK.
func TestDownloadBlockReassembly(t *testing.T) {
	eng, ctl, backend := newTestEngine(t)

	block := make([]byte, 200)
	for i := range block {
		block[i] = byte(i)
	}

	var s SetupPacket
	DownloadSetup(&s, 0, 200)
	controlWrite(t, eng, ctl, &s, block)

	wantOffsets := []int{0, 64, 128, 192}
	wantLens := []int{64, 64, 64, 8}
	if len(backend.chunks) != len(wantOffsets) {
		t.Fatalf("chunk calls = %d, want %d", len(backend.chunks), len(wantOffsets))
	}

	var reassembled []byte
	for i, c := range backend.chunks {
		if c.block != 0 {
			t.Errorf("chunk %d: block = %d, want 0", i, c.block)
		}
		if c.total != 200 {
			t.Errorf("chunk %d: total = %d, want 200", i, c.total)
		}
		if c.offset != wantOffsets[i] {
			t.Errorf("chunk %d: offset = %d, want %d", i, c.offset, wantOffsets[i])
		}
		if len(c.data) != wantLens[i] {
			t.Errorf("chunk %d: length = %d, want %d", i, len(c.data), wantLens[i])
		}
		reassembled = append(reassembled, c.data...)
	}
	if !bytes.Equal(reassembled, block) {
		t.Error("reassembled block differs from sent data")
	}
}

// An exact-multiple block length ends on the packet boundary with no
// trailing chunk.
func TestDownloadExactMultipleBlock(t *testing.T) {
	eng, ctl, backend := newTestEngine(t)

	block := make([]byte, 128)
	var s SetupPacket
	DownloadSetup(&s, 2, 128)
	controlWrite(t, eng, ctl, &s, block)

	if len(backend.chunks) != 2 {
		t.Fatalf("chunk calls = %d, want 2", len(backend.chunks))
	}
	if backend.chunks[1].offset != 64 || len(backend.chunks[1].data) != 64 {
		t.Errorf("final chunk = offset %d len %d, want 64/64",
			backend.chunks[1].offset, len(backend.chunks[1].data))
	}
}

// A single-packet block completes after one chunk.
func TestDownloadShortBlock(t *testing.T) {
	eng, ctl, backend := newTestEngine(t)

	block := []byte{1, 2, 3, 4, 5}
	var s SetupPacket
	DownloadSetup(&s, 9, uint16(len(block)))
	controlWrite(t, eng, ctl, &s, block)

	if len(backend.chunks) != 1 {
		t.Fatalf("chunk calls = %d, want 1", len(backend.chunks))
	}
	c := backend.chunks[0]
	if c.block != 9 || c.offset != 0 || !bytes.Equal(c.data, block) {
		t.Errorf("chunk = %+v", c)
	}
}

// A zero-length DNLOAD signals end-of-download and completes synchronously
// with no OUT data phase.
func TestDownloadZeroLengthManifests(t *testing.T) {
	eng, ctl, backend := newTestEngine(t)

	var s SetupPacket
	DownloadSetup(&s, 4, 0)
	sendSetup(t, eng, ctl, &s)
	if eng.State() != WaitStatusIn {
		t.Fatalf("phase = %s, want WAIT_STATUS_IN", eng.State())
	}
	finishWrite(t, eng, ctl)

	if len(backend.chunks) != 1 {
		t.Fatalf("chunk calls = %d, want 1", len(backend.chunks))
	}
	c := backend.chunks[0]
	if c.block != 4 || c.total != 0 || c.offset != 0 || len(c.data) != 0 {
		t.Errorf("manifest chunk = %+v", c)
	}
}

// A backend rejection stalls the transfer immediately; no further chunks
// are delivered.
func TestDownloadBackendFailureStalls(t *testing.T) {
	eng, ctl, backend := newTestEngine(t)
	backend.failDownload = true

	var s SetupPacket
	DownloadSetup(&s, 0, 128)
	sendSetup(t, eng, ctl, &s)

	ev, err := ctl.OutEvent(make([]byte, 64))
	if err != nil {
		t.Fatalf("OUT chunk: %v", err)
	}
	if err := eng.HandleEvent(ev); err != nil {
		t.Fatalf("OUT completion: %v", err)
	}

	in, out := ctl.Stalled()
	if !in || !out {
		t.Errorf("stalled = (%v, %v), want both", in, out)
	}
	if eng.State() != WaitSetup {
		t.Errorf("phase = %s, want WAIT_SETUP", eng.State())
	}
	if len(backend.chunks) != 1 {
		t.Errorf("chunk calls = %d, want 1", len(backend.chunks))
	}
}

// Consecutive blocks restart the reassembly cursor.
func TestDownloadConsecutiveBlocks(t *testing.T) {
	eng, ctl, backend := newTestEngine(t)

	for block := uint16(0); block < 3; block++ {
		data := make([]byte, 100)
		for i := range data {
			data[i] = byte(block)
		}
		var s SetupPacket
		DownloadSetup(&s, block, 100)
		controlWrite(t, eng, ctl, &s, data)
	}

	if len(backend.chunks) != 6 {
		t.Fatalf("chunk calls = %d, want 6", len(backend.chunks))
	}
	for i, c := range backend.chunks {
		wantOffset := 0
		if i%2 == 1 {
			wantOffset = 64
		}
		if c.offset != wantOffset || c.block != uint16(i/2) {
			t.Errorf("chunk %d = block %d offset %d, want block %d offset %d",
				i, c.block, c.offset, i/2, wantOffset)
		}
	}
}
