// Package simulator implements an inverter master layer that serves a
// plant described in YAML. It is used when no YASDI library is available.
package simulator

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"inverter/pkg/inverter"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const firstDeviceHandle = 1000

type channel struct {
	spec   ChannelSpec
	device *device
	value  float64
}

type device struct {
	handle   inverter.DeviceHandle
	name     string
	channels []inverter.ChannelHandle
}

// Simulator implements inverter.Master.
type Simulator struct {
	logger log.FieldLogger
	store  *store // nil when written values are not persisted

	mu          sync.Mutex
	plant       Plant
	initialized bool
	online      map[inverter.DriverHandle]bool
	devices     []*device // in plant order
	channels    map[inverter.ChannelHandle]*channel
	detected    []inverter.DeviceHandle
}

// New creates a simulator for the plant. Values written to channels are
// saved in db when it is not nil.
func New(plant Plant, db *bolt.DB, logger log.FieldLogger) (*Simulator, error) {
	if err := plant.validate(); err != nil {
		return nil, err
	}

	sim := Simulator{
		logger:   logger,
		plant:    plant,
		online:   make(map[inverter.DriverHandle]bool),
		channels: make(map[inverter.ChannelHandle]*channel),
	}

	if db != nil {
		st, err := newStore(db)
		if err != nil {
			return nil, fmt.Errorf("failed to create store: %v", err)
		}
		sim.store = st
	}

	handles := deviceHandles(plant.Devices)

	next := inverter.ChannelHandle(1)
	for i, spec := range plant.Devices {
		dev := &device{handle: handles[i], name: spec.Name}

		for _, chSpec := range spec.Channels {
			ch := &channel{spec: chSpec, device: dev, value: chSpec.Value}
			if err := sim.restore(ch); err != nil {
				return nil, err
			}
			sim.channels[next] = ch
			dev.channels = append(dev.channels, next)
			next++
		}
		sim.devices = append(sim.devices, dev)
	}

	return &sim, nil
}

// deviceHandles returns the handle of every device. Devices without an
// explicit handle get the next free one above firstDeviceHandle.
func deviceHandles(devices []DeviceSpec) []inverter.DeviceHandle {
	taken := make(map[inverter.DeviceHandle]bool)
	for _, spec := range devices {
		if spec.Handle != 0 {
			taken[inverter.DeviceHandle(spec.Handle)] = true
		}
	}

	handles := make([]inverter.DeviceHandle, len(devices))
	next := inverter.DeviceHandle(firstDeviceHandle + 1)
	for i, spec := range devices {
		if spec.Handle != 0 {
			handles[i] = inverter.DeviceHandle(spec.Handle)
			continue
		}
		for taken[next] {
			next++
		}
		handles[i] = next
		taken[next] = true
	}
	return handles
}

func (s *Simulator) restore(ch *channel) error {
	if s.store == nil || !ch.spec.Writable {
		return nil
	}

	value, ok, err := s.store.GetValue(ch.device.name, ch.spec.Name)
	if err != nil {
		return fmt.Errorf("failed to restore %s/%s: %v", ch.device.name, ch.spec.Name, err)
	}
	if ok {
		ch.value = value
	}
	return nil
}

func (s *Simulator) Initialize(configPath string) (inverter.ResultCode, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Infof("Initializing simulated master (config %s)", configPath)
	s.initialized = true
	s.online = make(map[inverter.DriverHandle]bool)
	s.detected = nil
	return inverter.ResultOK, len(s.plant.Drivers)
}

func (s *Simulator) driver(drv inverter.DriverHandle) (DriverSpec, bool) {
	i := int(drv) - 1
	if i < 0 || i >= len(s.plant.Drivers) {
		return DriverSpec{}, false
	}
	return s.plant.Drivers[i], true
}

func (s *Simulator) Drivers(max int) []inverter.DriverHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil
	}

	var drivers []inverter.DriverHandle
	for i := range s.plant.Drivers {
		if len(drivers) == max {
			break
		}
		drivers = append(drivers, inverter.DriverHandle(i+1))
	}
	return drivers
}

func (s *Simulator) DriverName(drv inverter.DriverHandle) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	spec, _ := s.driver(drv)
	return spec.Name
}

func (s *Simulator) SetDriverOnline(drv inverter.DriverHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	spec, ok := s.driver(drv)
	if !s.initialized || !ok || spec.Offline {
		return false
	}
	s.online[drv] = true
	return true
}

func (s *Simulator) SetDriverOffline(drv inverter.DriverHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.online, drv)
}

func (s *Simulator) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Shutting down simulated master")
	s.initialized = false
	s.online = make(map[inverter.DriverHandle]bool)
	s.detected = nil
}

// DetectDevices replaces the detected device set with the devices of the
// plant. Nothing is found while no driver is online.
func (s *Simulator) DetectDevices(expected int, blocking bool) inverter.ResultCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return inverter.ResultShutdown
	}

	s.detected = nil
	if len(s.online) > 0 {
		for _, dev := range s.devices {
			s.detected = append(s.detected, dev.handle)
		}
	}

	if len(s.detected) < expected {
		return inverter.ResultNotAllDevicesFound
	}
	return inverter.ResultOK
}

func (s *Simulator) DeviceHandles(max int) []inverter.DeviceHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.detected) > max {
		return append([]inverter.DeviceHandle(nil), s.detected[:max]...)
	}
	return append([]inverter.DeviceHandle(nil), s.detected...)
}

func (s *Simulator) findDevice(handle inverter.DeviceHandle) *device {
	for _, h := range s.detected {
		if h != handle {
			continue
		}
		for _, dev := range s.devices {
			if dev.handle == handle {
				return dev
			}
		}
	}
	return nil
}

func (s *Simulator) DeviceName(handle inverter.DeviceHandle) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dev := s.findDevice(handle); dev != nil {
		return dev.name
	}
	return ""
}

func (s *Simulator) ChannelHandles(handle inverter.DeviceHandle, max int, filter inverter.ChannelFilter) []inverter.ChannelHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	dev := s.findDevice(handle)
	if dev == nil {
		return nil
	}

	var handles []inverter.ChannelHandle
	for _, h := range dev.channels {
		if len(handles) == max {
			break
		}
		if filter == inverter.SpotChannels && !s.channels[h].spec.Spot {
			continue
		}
		handles = append(handles, h)
	}
	return handles
}

func (s *Simulator) ChannelName(h inverter.ChannelHandle) (string, inverter.ResultCode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[h]
	if !ok {
		return "", inverter.ResultInvalidHandle
	}
	return ch.spec.Name, inverter.ResultOK
}

func (s *Simulator) ChannelUnit(h inverter.ChannelHandle) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.channels[h]; ok {
		return ch.spec.Unit
	}
	return ""
}

func (s *Simulator) ChannelValue(h inverter.ChannelHandle, dev inverter.DeviceHandle, maxAge time.Duration) (float64, string, inverter.ResultCode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, code := s.lookup(h, dev)
	if code != inverter.ResultOK {
		return 0, "", code
	}
	if ch.spec.Failing {
		return 0, "", inverter.ResultTimeout
	}
	return ch.value, strconv.FormatFloat(ch.value, 'f', -1, 64), inverter.ResultOK
}

func (s *Simulator) ChannelRange(h inverter.ChannelHandle) (float64, float64, inverter.ResultCode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[h]
	if !ok {
		return 0, 0, inverter.ResultInvalidHandle
	}
	if ch.spec.NoRange {
		return 0, 0, inverter.ResultNoRange
	}
	return ch.spec.Min, ch.spec.Max, inverter.ResultOK
}

func (s *Simulator) SetChannelValue(h inverter.ChannelHandle, dev inverter.DeviceHandle, value float64) inverter.ResultCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, code := s.lookup(h, dev)
	if code != inverter.ResultOK {
		return code
	}

	switch {
	case !ch.spec.Writable:
		return inverter.ResultNoAccessRights
	case ch.spec.Failing:
		return inverter.ResultTimeout
	case !ch.spec.NoRange && (value < ch.spec.Min || value > ch.spec.Max):
		return inverter.ResultValueNotValid
	}

	ch.value = value
	s.logger.Infof("Set %s/%s to %v", ch.device.name, ch.spec.Name, value)

	if s.store != nil {
		if err := s.store.SetValue(ch.device.name, ch.spec.Name, value); err != nil {
			s.logger.Errorf("Failed to save %s/%s: %v", ch.device.name, ch.spec.Name, err)
		}
	}
	return inverter.ResultOK
}

// lookup returns the channel if it belongs to a detected device.
// The caller must hold s.mu.
func (s *Simulator) lookup(h inverter.ChannelHandle, dev inverter.DeviceHandle) (*channel, inverter.ResultCode) {
	if !s.initialized {
		return nil, inverter.ResultShutdown
	}

	ch, ok := s.channels[h]
	if !ok || ch.device.handle != dev || s.findDevice(dev) == nil {
		return nil, inverter.ResultInvalidHandle
	}
	return ch, inverter.ResultOK
}
