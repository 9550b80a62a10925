package inverter

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Options bounds the enumerations done against the master layer.
type Options struct {
	DebugLevel  int
	MaxDrivers  int
	MaxDevices  int
	MaxChannels int
	// MaxAge is the oldest cached channel value accepted on reads.
	MaxAge time.Duration
}

var DefaultOptions = Options{
	MaxDrivers:  10,
	MaxDevices:  50,
	MaxChannels: 500,
	MaxAge:      5 * time.Second,
}

// Session owns the drivers of one master layer. Every method is
// serialized on the session; devices and channels can only be accessed
// while the session is ready.
type Session struct {
	master Master
	opts   Options
	logger log.FieldLogger

	mu      sync.Mutex
	state   State
	drivers []DriverHandle // online drivers, discovery order
}

// NewSession creates an uninitialized session. Zero limits in opts are
// replaced with the values of DefaultOptions.
func NewSession(master Master, opts Options, logger log.FieldLogger) *Session {
	if opts.MaxDrivers <= 0 {
		opts.MaxDrivers = DefaultOptions.MaxDrivers
	}
	if opts.MaxDevices <= 0 {
		opts.MaxDevices = DefaultOptions.MaxDevices
	}
	if opts.MaxChannels <= 0 {
		opts.MaxChannels = DefaultOptions.MaxChannels
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultOptions.MaxAge
	}

	return &Session{
		master: master,
		opts:   opts,
		logger: logger,
		state:  StateUninitialized,
	}
}

func (s *Session) debugf(format string, args ...any) {
	if s.opts.DebugLevel > 0 {
		s.logger.Debugf(format, args...)
	}
}

func (s *Session) DebugLevel() int {
	return s.opts.DebugLevel
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Drivers returns the drivers that were switched online.
func (s *Session) Drivers() []DriverHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DriverHandle(nil), s.drivers...)
}

// Initialize starts the master layer with the given configuration file and
// switches all of its drivers online. The session is ready when at least
// one driver came online; on failure it stays uninitialized.
func (s *Session) Initialize(configPath string) error {
	if configPath == "" {
		return fmt.Errorf("%w: config file path expected", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateReady {
		return ErrAlreadyInitialized
	}
	s.state = StateInitializing

	code, count := s.master.Initialize(configPath)
	s.debugf("Master initialization returned: %v", code)
	s.debugf("Found %d drivers", count)

	if count <= 0 {
		s.state = StateUninitialized
		return ErrNoDriversFound
	}
	if count > s.opts.MaxDrivers {
		s.master.Shutdown()
		s.state = StateUninitialized
		return fmt.Errorf("%w: %d drivers, capacity %d", ErrDriverCapacity, count, s.opts.MaxDrivers)
	}

	online := make([]DriverHandle, 0, count)
	for _, drv := range s.master.Drivers(s.opts.MaxDrivers) {
		s.debugf("Switching on driver: %s", s.master.DriverName(drv))
		if s.master.SetDriverOnline(drv) {
			online = append(online, drv)
		} else {
			s.debugf("Driver %d could not be set online", drv)
		}
	}

	if len(online) == 0 {
		s.master.Shutdown()
		s.state = StateUninitialized
		return ErrNoDriversOnline
	}

	s.drivers = online
	s.state = StateReady
	s.logger.Infof("Session ready with %d of %d drivers online", len(online), count)
	return nil
}

// DetectDevices blocks until the master has found the expected number of
// devices or gave up.
func (s *Session) DetectDevices(expected int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return ErrNotInitialized
	}
	if expected < 1 {
		return fmt.Errorf("%w: expected device count must be positive, got %d", ErrInvalidArgument, expected)
	}

	s.debugf("Trying to detect %d devices", expected)

	switch code := s.master.DetectDevices(expected, true); code {
	case ResultOK:
		return nil
	case ResultDetectionInProgress:
		s.logger.Warn("Device detection already in progress")
		return ErrDetectionInProgress
	case ResultNotAllDevicesFound:
		s.logger.Warnf("Not all of %d devices were found", expected)
		return ErrNotAllDevicesFound
	default:
		s.logger.Warnf("Device detection failed: %v", code)
		return fmt.Errorf("%w: %v", ErrDetectionFailed, code)
	}
}

// Shutdown takes all drivers offline and stops the master layer. It is a
// no-op unless the session is ready.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return nil
	}

	for _, drv := range s.drivers {
		s.debugf("Switching off driver: %d", drv)
		s.master.SetDriverOffline(drv)
	}
	s.master.Shutdown()

	s.drivers = nil
	s.state = StateShutdown
	s.logger.Info("Session shut down")
	return nil
}

// Close releases the master layer if the session is still ready.
func (s *Session) Close() {
	if err := s.Shutdown(); err != nil {
		s.logger.Errorf("failed to shut down session: %v", err)
	}
}
