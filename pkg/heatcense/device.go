package heatcense

import (
	"fmt"
	"net"
	"os"
	"strings"
)

// DeviceIdentity returns a stable id for this process's host, suitable
// for use as an MQTT client id and as the prefix of Home Assistant
// unique_id values. It prefers the first non-loopback interface's MAC
// address (stable across reboots on a single-NIC device such as a
// Raspberry Pi) and falls back to the kernel's machine id.
func DeviceIdentity() (string, error) {
	if mac, ok := firstHardwareAddr(); ok {
		return "heatcense-" + strings.ReplaceAll(mac, ":", ""), nil
	}
	if id, err := machineID(); err == nil {
		return "heatcense-" + id, nil
	}
	return "", fmt.Errorf("no stable device identity available")
}

func firstHardwareAddr() (string, bool) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr.String(), true
	}
	return "", false
}

func machineID() (string, error) {
	data, err := os.ReadFile("/etc/machine-id")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
