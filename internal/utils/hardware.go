// Package utils holds small host helpers.
package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"os"
	"strings"
	"sync"
)

var (
	deviceOnce sync.Once
	deviceID   string
)

// GetDeviceID identifies this machine as "POS-" plus 8 hex digits. It is
// derived from the first active MAC address, or the hostname when there is
// none, so it stays stable across restarts.
func GetDeviceID() string {
	deviceOnce.Do(func() {
		deviceID = DeviceIDFrom(firstMAC(), hostname())
	})
	return deviceID
}

// DeviceIDFrom hashes the first non-empty source.
func DeviceIDFrom(sources ...string) string {
	for _, src := range sources {
		if src == "" {
			continue
		}
		hash := sha256.Sum256([]byte(src + "BAR-POS-DEVICE"))
		return "POS-" + strings.ToUpper(hex.EncodeToString(hash[:])[:8])
	}
	return "UNKNOWN-DEVICE"
}

func firstMAC() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, i := range interfaces {
		// first active physical interface
		if i.Flags&net.FlagUp != 0 && i.Flags&net.FlagLoopback == 0 && len(i.HardwareAddr) > 0 {
			return i.HardwareAddr.String()
		}
	}
	return ""
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}
