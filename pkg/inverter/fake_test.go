package inverter

import (
	"io"
	"time"

	log "github.com/sirupsen/logrus"
)

type fakeChannel struct {
	handle   ChannelHandle
	name     string
	unit     string
	value    float64
	text     string
	min, max float64
	spot     bool

	nameErr  bool
	valueErr ResultCode
	noRange  bool
}

// fakeMaster is a scripted master layer that records the calls made to it.
type fakeMaster struct {
	initCode    ResultCode
	driverCount int
	drivers     []DriverHandle
	online      map[DriverHandle]bool
	detectCode  ResultCode
	devices     []DeviceHandle
	deviceNames map[DeviceHandle]string
	channels    map[DeviceHandle][]*fakeChannel
	writeCode   ResultCode

	initCalls     int
	offlineCalls  []DriverHandle
	shutdownCalls int
	detectCalls   []int
	writes        []float64
	lastMaxAge    time.Duration
}

func newFakeMaster() *fakeMaster {
	return &fakeMaster{
		online:      map[DriverHandle]bool{},
		deviceNames: map[DeviceHandle]string{},
		channels:    map[DeviceHandle][]*fakeChannel{},
	}
}

func (m *fakeMaster) Initialize(configPath string) (ResultCode, int) {
	m.initCalls++
	return m.initCode, m.driverCount
}

func (m *fakeMaster) Drivers(max int) []DriverHandle {
	if len(m.drivers) > max {
		return m.drivers[:max]
	}
	return m.drivers
}

func (m *fakeMaster) DriverName(drv DriverHandle) string { return "driver" }

func (m *fakeMaster) SetDriverOnline(drv DriverHandle) bool { return m.online[drv] }

func (m *fakeMaster) SetDriverOffline(drv DriverHandle) {
	m.offlineCalls = append(m.offlineCalls, drv)
}

func (m *fakeMaster) Shutdown() { m.shutdownCalls++ }

func (m *fakeMaster) DetectDevices(expected int, blocking bool) ResultCode {
	m.detectCalls = append(m.detectCalls, expected)
	return m.detectCode
}

func (m *fakeMaster) DeviceHandles(max int) []DeviceHandle {
	if len(m.devices) > max {
		return m.devices[:max]
	}
	return m.devices
}

func (m *fakeMaster) DeviceName(dev DeviceHandle) string { return m.deviceNames[dev] }

func (m *fakeMaster) ChannelHandles(dev DeviceHandle, max int, filter ChannelFilter) []ChannelHandle {
	var handles []ChannelHandle
	for _, ch := range m.channels[dev] {
		if filter == SpotChannels && !ch.spot {
			continue
		}
		if len(handles) == max {
			break
		}
		handles = append(handles, ch.handle)
	}
	return handles
}

func (m *fakeMaster) channel(h ChannelHandle) *fakeChannel {
	for _, chs := range m.channels {
		for _, ch := range chs {
			if ch.handle == h {
				return ch
			}
		}
	}
	return nil
}

func (m *fakeMaster) ChannelName(h ChannelHandle) (string, ResultCode) {
	ch := m.channel(h)
	if ch == nil {
		return "", ResultInvalidHandle
	}
	if ch.nameErr {
		return "", ResultError
	}
	return ch.name, ResultOK
}

func (m *fakeMaster) ChannelUnit(h ChannelHandle) string {
	if ch := m.channel(h); ch != nil {
		return ch.unit
	}
	return ""
}

func (m *fakeMaster) ChannelValue(h ChannelHandle, dev DeviceHandle, maxAge time.Duration) (float64, string, ResultCode) {
	m.lastMaxAge = maxAge
	ch := m.channel(h)
	if ch == nil {
		return 0, "", ResultInvalidHandle
	}
	if ch.valueErr != ResultOK {
		return 0, "", ch.valueErr
	}
	return ch.value, ch.text, ResultOK
}

func (m *fakeMaster) ChannelRange(h ChannelHandle) (float64, float64, ResultCode) {
	ch := m.channel(h)
	if ch == nil {
		return 0, 0, ResultInvalidHandle
	}
	if ch.noRange {
		return 0, 0, ResultNoRange
	}
	return ch.min, ch.max, ResultOK
}

func (m *fakeMaster) SetChannelValue(h ChannelHandle, dev DeviceHandle, value float64) ResultCode {
	m.writes = append(m.writes, value)
	return m.writeCode
}

// plantMaster returns a master with two online drivers and a single
// "SB 3000" inverter.
func plantMaster() *fakeMaster {
	m := newFakeMaster()
	m.driverCount = 2
	m.drivers = []DriverHandle{1, 2}
	m.online[1] = true
	m.online[2] = true
	m.devices = []DeviceHandle{1001}
	m.deviceNames[1001] = "SB 3000"
	m.channels[1001] = []*fakeChannel{
		{handle: 3, name: "Upv-Ist", unit: "V", value: 312.5, text: "312.5", min: 0, max: 600, spot: true},
		{handle: 4, name: "E-Total", unit: "kWh", value: 1234.1, text: "1234.1", min: 0, max: 1e9, spot: true},
		{handle: 5, name: "Pac", unit: "W", value: 1500, text: "1500", min: 0, max: 3000, spot: true},
		{handle: 6, name: "Betriebsart", unit: "", min: 0, max: 4},
	}
	return m
}

func testLogger() log.FieldLogger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(log.DebugLevel)
	return logger.WithField("component", "test")
}

func readySession(m *fakeMaster) *Session {
	s := NewSession(m, Options{DebugLevel: 1}, testLogger())
	if err := s.Initialize("yasdi.ini"); err != nil {
		panic(err)
	}
	return s
}
