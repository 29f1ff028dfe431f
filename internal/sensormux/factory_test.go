package sensormux

import "testing"

func TestBridgeModeZeroMeansDefault(t *testing.T) {
	mode, err := bridgeMode(0)
	if err != nil {
		t.Fatalf("bridgeMode(0) failed: %v", err)
	}
	if mode.BaudRate != DefaultBaudRate {
		t.Errorf("BaudRate = %d, want %d", mode.BaudRate, DefaultBaudRate)
	}
}

func TestBridgeModeFixedFraming(t *testing.T) {
	mode, err := bridgeMode(57600)
	if err != nil {
		t.Fatalf("bridgeMode(57600) failed: %v", err)
	}
	if mode.DataBits != 8 {
		t.Errorf("DataBits = %d, want 8", mode.DataBits)
	}
}

func TestBridgeModeRejectsUnknownRate(t *testing.T) {
	for _, rate := range []int{9600, 19200, 1000000, -1} {
		if _, err := bridgeMode(rate); err == nil {
			t.Errorf("bridgeMode(%d) should be rejected", rate)
		}
	}
}
