package ep0

import (
	"bytes"
	"testing"

	"github.com/sztsian/tomu-bootloader/dfu"
)

func TestGetStatusDevice(t *testing.T) {
	eng, ctl, _ := newTestEngine(t)
	var s SetupPacket
	GetStatusSetup(&s, RequestRecipientDevice, 0)
	reply := controlRead(t, eng, ctl, &s)
	if !bytes.Equal(reply, []byte{0, 0}) {
		t.Errorf("reply = % X, want 00 00", reply)
	}
}

func TestGetStatusEndpoint(t *testing.T) {
	eng, ctl, _ := newTestEngine(t)
	var s SetupPacket
	GetStatusSetup(&s, RequestRecipientEndpoint, 0)
	reply := controlRead(t, eng, ctl, &s)
	if !bytes.Equal(reply, []byte{0, 0}) {
		t.Errorf("reply = % X, want 00 00", reply)
	}
}

// The halted bit reflects the controller's stall latch at dispatch time.
func TestGetStatusEndpointHalted(t *testing.T) {
	eng, ctl, _ := newTestEngine(t)

	if err := ctl.StallIn(0); err != nil {
		t.Fatalf("StallIn() error = %v", err)
	}
	var s SetupPacket
	GetStatusSetup(&s, RequestRecipientEndpoint, 0)
	if err := eng.dispatchSetup(&s); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// Release the latch so the queued reply can be collected.
	if err := ctl.ClearStallIn(0); err != nil {
		t.Fatalf("ClearStallIn() error = %v", err)
	}
	reply, _ := drainIn(t, eng, ctl)
	finishRead(t, eng, ctl)
	if !bytes.Equal(reply, []byte{1, 0}) {
		t.Errorf("reply = % X, want 01 00", reply)
	}
}

func TestSetAndClearEndpointHalt(t *testing.T) {
	eng, ctl, _ := newTestEngine(t)

	s := SetupPacket{
		RequestType: RequestRecipientEndpoint,
		Request:     RequestSetFeature,
		Value:       FeatureEndpointHalt,
	}
	if err := eng.dispatchSetup(&s); err != nil {
		t.Fatalf("SET_FEATURE: %v", err)
	}
	if !ctl.IsStalledIn(0) {
		t.Error("IsStalledIn(0) = false after SET_FEATURE(halt)")
	}

	s.Request = RequestClearFeature
	if err := eng.dispatchSetup(&s); err != nil {
		t.Fatalf("CLEAR_FEATURE: %v", err)
	}
	if ctl.IsStalledIn(0) {
		t.Error("IsStalledIn(0) = true after CLEAR_FEATURE(halt)")
	}
	finishWrite(t, eng, ctl)
}

func TestSetAndGetConfiguration(t *testing.T) {
	eng, ctl, _ := newTestEngine(t)

	var s SetupPacket
	SetConfigurationSetup(&s, 1)
	controlWrite(t, eng, ctl, &s, nil)
	if eng.Configuration() != 1 {
		t.Fatalf("Configuration() = %d, want 1", eng.Configuration())
	}

	GetConfigurationSetup(&s)
	reply := controlRead(t, eng, ctl, &s)
	if !bytes.Equal(reply, []byte{1}) {
		t.Errorf("reply = % X, want 01", reply)
	}
}

func TestVendorCompatIDRequest(t *testing.T) {
	eng, ctl, _ := newTestEngine(t)

	s := SetupPacket{
		RequestType: vendorRequestDevice,
		Request:     eng.table.VendorCode,
		Index:       MicrosoftCompatIDIndex,
		Length:      uint16(len(eng.table.CompatID)),
	}
	reply := controlRead(t, eng, ctl, &s)
	if !bytes.Equal(reply, eng.table.CompatID) {
		t.Errorf("reply = % X, want compat ID descriptor", reply)
	}
}

func TestVendorRequestWrongIndexStalls(t *testing.T) {
	eng, ctl, _ := newTestEngine(t)

	s := SetupPacket{
		RequestType: vendorRequestDevice,
		Request:     eng.table.VendorCode,
		Index:       0x0005,
		Length:      16,
	}
	sendSetup(t, eng, ctl, &s)
	in, out := ctl.Stalled()
	if !in || !out {
		t.Errorf("stalled = (%v, %v), want both", in, out)
	}
	if eng.State() != WaitSetup {
		t.Errorf("phase = %s, want WAIT_SETUP", eng.State())
	}
}

func TestUnknownDescriptorStalls(t *testing.T) {
	eng, ctl, _ := newTestEngine(t)

	var s SetupPacket
	GetDescriptorSetup(&s, DescriptorTypeEndpoint, 0, 7)
	sendSetup(t, eng, ctl, &s)
	in, out := ctl.Stalled()
	if !in || !out {
		t.Errorf("stalled = (%v, %v), want both", in, out)
	}
}

// Scenario: an unsupported combined request code (0x1234) stalls both EP0
// directions immediately and the engine returns to WAIT_SETUP.
func TestUnsupportedRequestStalls(t *testing.T) {
	eng, ctl, backend := newTestEngine(t)

	s := SetupPacket{RequestType: 0x34, Request: 0x12, Length: 4}
	if got := s.Code(); got != 0x1234 {
		t.Fatalf("Code() = 0x%04X, want 0x1234", got)
	}
	sendSetup(t, eng, ctl, &s)
	in, out := ctl.Stalled()
	if !in || !out {
		t.Errorf("stalled = (%v, %v), want both", in, out)
	}
	if eng.State() != WaitSetup {
		t.Errorf("phase = %s, want WAIT_SETUP", eng.State())
	}
	if len(backend.chunks) != 0 || backend.statusCalls != 0 {
		t.Error("unsupported request reached the backend")
	}
}

// The direction bit does not make wIndex zero: 0x0080 addresses a
// nonexistent endpoint and must stall with no side effect.
func TestDirectionBitEndpointIndexStalls(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*SetupPacket)
	}{
		{"GET_STATUS endpoint", func(s *SetupPacket) {
			GetStatusSetup(s, RequestRecipientEndpoint, 0x0080)
		}},
		{"SET_FEATURE endpoint", func(s *SetupPacket) {
			s.RequestType = RequestRecipientEndpoint
			s.Request = RequestSetFeature
			s.Value = FeatureEndpointHalt
			s.Index = 0x0080
		}},
		{"CLEAR_FEATURE endpoint", func(s *SetupPacket) {
			s.RequestType = RequestRecipientEndpoint
			s.Request = RequestClearFeature
			s.Value = FeatureEndpointHalt
			s.Index = 0x0080
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, ctl, _ := newTestEngine(t)
			var s SetupPacket
			tt.setup(&s)
			sendSetup(t, eng, ctl, &s)

			in, out := ctl.Stalled()
			if !in || !out {
				t.Errorf("stalled = (%v, %v), want both", in, out)
			}
			if eng.State() != WaitSetup {
				t.Errorf("phase = %s, want WAIT_SETUP", eng.State())
			}
		})
	}
}

func TestDFUGetStatus(t *testing.T) {
	eng, ctl, backend := newTestEngine(t)
	backend.state = dfu.StateDownloadIdle

	var s SetupPacket
	DFUGetStatusSetup(&s)
	reply := controlRead(t, eng, ctl, &s)

	var rec dfu.StatusRecord
	if err := dfu.ParseStatusRecord(reply, &rec); err != nil {
		t.Fatalf("ParseStatusRecord() error = %v", err)
	}
	if rec.Status != dfu.StatusOK || rec.State != dfu.StateDownloadIdle {
		t.Errorf("record = %+v", rec)
	}
}

func TestDFUGetState(t *testing.T) {
	eng, ctl, backend := newTestEngine(t)
	backend.state = dfu.StateManifestWaitReset

	var s SetupPacket
	DFUGetStateSetup(&s)
	reply := controlRead(t, eng, ctl, &s)
	if !bytes.Equal(reply, []byte{uint8(dfu.StateManifestWaitReset)}) {
		t.Errorf("reply = % X, want %02X", reply, uint8(dfu.StateManifestWaitReset))
	}
}

func TestDFUClearStatusAndAbort(t *testing.T) {
	eng, ctl, backend := newTestEngine(t)

	s := SetupPacket{
		RequestType: RequestTypeClass | RequestRecipientInterface,
		Request:     RequestDFUClrStatus,
	}
	controlWrite(t, eng, ctl, &s, nil)
	if backend.clears != 1 {
		t.Errorf("clears = %d, want 1", backend.clears)
	}

	s.Request = RequestDFUAbort
	controlWrite(t, eng, ctl, &s, nil)
	if backend.aborts != 1 {
		t.Errorf("aborts = %d, want 1", backend.aborts)
	}
}

// Requests addressed to a nonzero interface or endpoint stall with no
// backend side effect.
func TestNonzeroIndexStallsWithoutSideEffect(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*SetupPacket)
	}{
		{"DFU_DNLOAD", func(s *SetupPacket) { DownloadSetup(s, 0, 64) }},
		{"DFU_GETSTATUS", func(s *SetupPacket) { DFUGetStatusSetup(s) }},
		{"DFU_GETSTATE", func(s *SetupPacket) { DFUGetStateSetup(s) }},
		{"GET_STATUS endpoint", func(s *SetupPacket) {
			GetStatusSetup(s, RequestRecipientEndpoint, 0)
		}},
		{"CLEAR_FEATURE endpoint", func(s *SetupPacket) {
			s.RequestType = RequestRecipientEndpoint
			s.Request = RequestClearFeature
			s.Value = FeatureEndpointHalt
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, ctl, backend := newTestEngine(t)
			var s SetupPacket
			tt.setup(&s)
			s.Index = 1
			sendSetup(t, eng, ctl, &s)

			in, out := ctl.Stalled()
			if !in || !out {
				t.Errorf("stalled = (%v, %v), want both", in, out)
			}
			if len(backend.chunks) != 0 || backend.statusCalls != 0 ||
				backend.clears != 0 || backend.aborts != 0 {
				t.Error("request with nonzero index reached the backend")
			}
		})
	}
}
