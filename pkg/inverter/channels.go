package inverter

// Range is the valid value range reported for a channel.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies within the closed range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// ChannelInfo describes a single channel of a device.
type ChannelInfo struct {
	Handle ChannelHandle `json:"handle"`
	Name   string        `json:"name"`
	Min    float64       `json:"minValue"`
	Max    float64       `json:"maxValue"`
	Unit   string        `json:"units"`
}

// ResolveChannel looks up a channel of dev by its exact name.
func (s *Session) ResolveChannel(dev DeviceHandle, name string) (ChannelHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return InvalidHandle, ErrNotInitialized
	}
	return s.resolveChannel(dev, name)
}

// resolveChannel scans all channels of the device on every call; the
// channel set may change between calls. The caller must hold s.mu.
func (s *Session) resolveChannel(dev DeviceHandle, name string) (ChannelHandle, error) {
	channels := s.master.ChannelHandles(dev, s.opts.MaxChannels, AllChannels)
	if len(channels) == 0 {
		s.debugf("Could not get channel handles of device %d", dev)
		return InvalidHandle, ErrChannelNotFound
	}

	for _, ch := range channels {
		chName, code := s.master.ChannelName(ch)
		if code == ResultOK && chName == name {
			return ch, nil
		}
	}

	return InvalidHandle, ErrChannelNotFound
}

// ChannelInfo resolves a channel and reports its unit and value range.
func (s *Session) ChannelInfo(dev DeviceHandle, name string) (ChannelInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return ChannelInfo{}, ErrNotInitialized
	}

	ch, err := s.resolveChannel(dev, name)
	if err != nil {
		return ChannelInfo{}, err
	}

	lo, hi, code := s.master.ChannelRange(ch)
	if code != ResultOK {
		s.debugf("Error getting channel value range: %v", code)
		return ChannelInfo{}, ErrRangeUnavailable
	}

	return ChannelInfo{
		Handle: ch,
		Name:   name,
		Min:    lo,
		Max:    hi,
		Unit:   s.master.ChannelUnit(ch),
	}, nil
}
