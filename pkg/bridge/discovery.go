// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"errors"
	"path/filepath"
	"sort"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// DeviceInfo describes a serial port a mote may be attached to.
type DeviceInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// Name patterns used when the enumerator cannot tell USB adapters apart.
var devicePatterns = []string{
	"/dev/ttyUSB*",
	"/dev/ttyACM*",
	"/dev/cu.usbserial*",
	"/dev/tty.usbserial*",
	"COM*",
}

// AvailablePorts returns the serial ports motes are likely attached to, sorted by name.
func AvailablePorts() ([]DeviceInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		if devices := filterUSB(details); len(devices) > 0 {
			return devices, nil
		}
	}

	names, err := serial.GetPortsList()
	if err != nil {
		var pe *serial.PortError
		if errors.As(err, &pe) && pe.Code() == serial.ErrorEnumeratingPorts {
			// Windows reports this when there are no serial ports at all
			return nil, nil
		}
		return nil, err
	}
	return filterNames(names), nil
}

func filterUSB(details []*enumerator.PortDetails) []DeviceInfo {
	var devices []DeviceInfo
	for _, d := range details {
		if d == nil || !d.IsUSB {
			continue
		}
		devices = append(devices, DeviceInfo{
			Name:         d.Name,
			IsUSB:        true,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices
}

func filterNames(names []string) []DeviceInfo {
	var devices []DeviceInfo
	for _, name := range names {
		for _, pattern := range devicePatterns {
			if ok, _ := filepath.Match(pattern, name); ok {
				devices = append(devices, DeviceInfo{Name: name})
				break
			}
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices
}

// DeviceNames returns just the names of devices
func DeviceNames(devices []DeviceInfo) []string {
	names := make([]string, 0, len(devices))
	for _, d := range devices {
		names = append(names, d.Name)
	}
	return names
}
