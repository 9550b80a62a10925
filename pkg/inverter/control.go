package inverter

// WriteOutcome reports the result of a channel write. ValidRange is set
// when the value was rejected before reaching the device.
type WriteOutcome struct {
	Success    bool      `json:"success"`
	Code       ErrorKind `json:"code"`
	Message    string    `json:"error,omitempty"`
	ValidRange *Range    `json:"validRange,omitempty"`
}

// SetChannelValue writes value to the named channel of dev. Values outside
// the range reported by the device are rejected without a write. Device
// errors are returned in the outcome; the write is never retried.
func (s *Session) SetChannelValue(dev DeviceHandle, name string, value float64) (WriteOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return WriteOutcome{}, ErrNotInitialized
	}

	ch, err := s.resolveChannel(dev, name)
	if err != nil {
		return WriteOutcome{}, err
	}

	// An unknown range does not block the write.
	if lo, hi, code := s.master.ChannelRange(ch); code == ResultOK {
		valid := Range{Min: lo, Max: hi}
		if !valid.Contains(value) {
			s.debugf("Value out of range. Valid range: [%v, %v]", lo, hi)
			return WriteOutcome{
				Success:    false,
				Code:       KindValueNotValid,
				Message:    "Value out of range",
				ValidRange: &valid,
			}, nil
		}
	}

	kind, msg := writeResult(s.master.SetChannelValue(ch, dev, value))
	if kind != KindOK {
		s.debugf("Error setting channel value: %s (code: %v)", msg, kind)
	}

	return WriteOutcome{
		Success: kind == KindOK,
		Code:    kind,
		Message: msg,
	}, nil
}
