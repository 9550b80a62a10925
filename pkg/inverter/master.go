// Package inverter manages a session with an inverter communication master
// and gives access to the devices and channels behind it.
package inverter

import "time"

// DriverHandle identifies one communication driver of the master layer.
type DriverHandle uint32

// DeviceHandle identifies a detected device. It stays valid for the
// lifetime of the master once the device has been detected.
type DeviceHandle uint32

// ChannelHandle identifies a channel of a device.
type ChannelHandle uint32

// InvalidHandle is never returned for an existing channel.
const InvalidHandle ChannelHandle = 0

// ChannelFilter selects which channels of a device are enumerated.
type ChannelFilter int

const (
	AllChannels ChannelFilter = iota
	SpotChannels
)

func (f ChannelFilter) String() string {
	switch f {
	case AllChannels:
		return "all"
	case SpotChannels:
		return "spot"
	default:
		return "unknown"
	}
}

// ResultCode is the outcome of a call into the master layer.
type ResultCode int

const (
	ResultOK ResultCode = iota
	ResultInvalidHandle
	ResultShutdown
	ResultTimeout
	ResultValueNotValid
	ResultNoAccessRights
	ResultNoRange
	ResultDetectionInProgress
	ResultNotAllDevicesFound
	ResultError
)

func (c ResultCode) String() string {
	switch c {
	case ResultOK:
		return "OK"
	case ResultInvalidHandle:
		return "InvalidHandle"
	case ResultShutdown:
		return "Shutdown"
	case ResultTimeout:
		return "Timeout"
	case ResultValueNotValid:
		return "ValueNotValid"
	case ResultNoAccessRights:
		return "NoAccessRights"
	case ResultNoRange:
		return "NoRange"
	case ResultDetectionInProgress:
		return "DetectionInProgress"
	case ResultNotAllDevicesFound:
		return "NotAllDevicesFound"
	default:
		return "Error"
	}
}

// Master is the device communication layer. All calls block until the
// layer answers or runs into its own timeout.
type Master interface {
	// Initialize loads the layer configuration and reports how many
	// drivers it found.
	Initialize(configPath string) (ResultCode, int)
	Drivers(max int) []DriverHandle
	DriverName(drv DriverHandle) string
	SetDriverOnline(drv DriverHandle) bool
	SetDriverOffline(drv DriverHandle)
	Shutdown()

	DetectDevices(expected int, blocking bool) ResultCode
	DeviceHandles(max int) []DeviceHandle
	DeviceName(dev DeviceHandle) string

	ChannelHandles(dev DeviceHandle, max int, filter ChannelFilter) []ChannelHandle
	ChannelName(ch ChannelHandle) (string, ResultCode)
	ChannelUnit(ch ChannelHandle) string
	// ChannelValue returns the numeric and the display value of a channel.
	// Cached values older than maxAge are refreshed from the device.
	ChannelValue(ch ChannelHandle, dev DeviceHandle, maxAge time.Duration) (float64, string, ResultCode)
	ChannelRange(ch ChannelHandle) (min, max float64, code ResultCode)
	SetChannelValue(ch ChannelHandle, dev DeviceHandle, value float64) ResultCode
}
