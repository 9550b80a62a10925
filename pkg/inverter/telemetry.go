package inverter

import "math"

// Reading is the value of a spot channel at the time of a fetch.
type Reading struct {
	Value        string  `json:"value"`
	Unit         string  `json:"units"`
	NumericValue float64 `json:"numericValue"`
}

// FetchDeviceData reads every spot channel of dev. Channels whose name or
// value cannot be read, or whose value is not a finite number, are left out
// of the result.
func (s *Session) FetchDeviceData(dev DeviceHandle) (map[string]Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return nil, ErrNotInitialized
	}

	data := make(map[string]Reading)

	channels := s.master.ChannelHandles(dev, s.opts.MaxChannels, SpotChannels)
	if len(channels) == 0 {
		s.debugf("Could not get the channel count of device %d", dev)
		return data, nil
	}

	for _, ch := range channels {
		name, code := s.master.ChannelName(ch)
		if code != ResultOK {
			s.debugf("Error reading channel name of channel %d: %v", ch, code)
			continue
		}

		unit := s.master.ChannelUnit(ch)

		value, text, code := s.master.ChannelValue(ch, dev, s.opts.MaxAge)
		if code != ResultOK {
			s.debugf("Error reading channel value for channel: %s (%v)", name, code)
			continue
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			s.debugf("Ignoring non-finite value for channel: %s (%v)", name, value)
			continue
		}

		data[name] = Reading{
			Value:        text,
			Unit:         unit,
			NumericValue: value,
		}
	}

	return data, nil
}
