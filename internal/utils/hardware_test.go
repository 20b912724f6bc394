package utils

import (
	"strings"
	"testing"
)

func TestDeviceIDFrom(t *testing.T) {
	a := DeviceIDFrom("", "till-1")
	if a != DeviceIDFrom("till-1") {
		t.Errorf("empty sources should be skipped")
	}
	if !strings.HasPrefix(a, "POS-") || len(a) != len("POS-")+8 {
		t.Errorf("unexpected format %q", a)
	}
	if a == DeviceIDFrom("till-2") {
		t.Errorf("different sources gave the same id")
	}
	if got := DeviceIDFrom("", ""); got != "UNKNOWN-DEVICE" {
		t.Errorf("no source: got %q", got)
	}
	if GetDeviceID() != GetDeviceID() {
		t.Errorf("device id not stable")
	}
}
