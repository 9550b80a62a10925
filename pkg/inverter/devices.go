package inverter

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
)

// Device is an inverter reachable through one of the online drivers.
type Device struct {
	Handle DeviceHandle `json:"handle"`
	Name   string       `json:"name"`
}

// ListDevices returns the devices currently known to the master, ordered
// by handle.
func (s *Session) ListDevices() ([]Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return nil, ErrNotInitialized
	}

	handles := s.master.DeviceHandles(s.opts.MaxDevices)
	if len(handles) == 0 {
		s.debugf("No devices have been found")
		return []Device{}, nil
	}

	devices := make([]Device, 0, len(handles))
	seen := make(map[DeviceHandle]bool, len(handles))
	for _, h := range handles {
		if seen[h] {
			continue
		}
		seen[h] = true

		raw := s.master.DeviceName(h)
		s.debugf("Found device with a handle of: %d and a name of: %s", h, raw)

		devices = append(devices, Device{Handle: h, Name: normalizeName(raw)})
	}

	slices.SortFunc(devices, func(a, b Device) int {
		return cmp.Compare(a.Handle, b.Handle)
	})
	return devices, nil
}

// normalizeName replaces whitespace in a device name with underscores so
// the name can be used as a key.
func normalizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, name)
}
