//go:build yasdi

// Package yasdi binds the SMA YASDI master library. The library keeps
// global state, so only one Master should be initialized per process.
package yasdi

/*
#cgo LDFLAGS: -lyasdimaster -lyasdi
#include <stdlib.h>
#include "libyasdi.h"
#include "libyasdimaster.h"

enum {
	R_OK,
	R_INVALID_HANDLE,
	R_SHUTDOWN,
	R_TIMEOUT,
	R_VALUE_NOT_VALID,
	R_NO_ACCESS_RIGHTS,
	R_NO_RANGE,
	R_DETECT_IN_PROGRESS,
	R_NOT_ALL_FOUND,
	R_ERROR
};

static int ym_initialize(const char *path, unsigned int *count) {
	DWORD n = 0;
	int r = (int)yasdiMasterInitialize(path, &n);
	*count = (unsigned int)n;
	return r;
}

static unsigned int ym_drivers(unsigned int *handles, unsigned int max) {
	DWORD buf[64];
	DWORD n, i;
	if (max > 64) max = 64;
	n = yasdiMasterGetDriver(buf, max);
	for (i = 0; i < n && i < max; i++) handles[i] = (unsigned int)buf[i];
	return (unsigned int)i;
}

static void ym_driver_name(unsigned int drv, char *buf, unsigned int size) {
	yasdiGetDriverName((DWORD)drv, buf, size);
}

static int ym_driver_online(unsigned int drv) {
	return yasdiSetDriverOnline((DWORD)drv) ? 1 : 0;
}

static void ym_driver_offline(unsigned int drv) {
	yasdiSetDriverOffline((DWORD)drv);
}

static int ym_detect(int expected, int blocking) {
	int r = DoStartDeviceDetection(expected, blocking ? TRUE : FALSE);
	if (r == YE_OK) return R_OK;
	if (r == YE_DEV_DETECT_IN_PROGRESS) return R_DETECT_IN_PROGRESS;
	if (r == YE_NOT_ALL_DEVS_FOUND) return R_NOT_ALL_FOUND;
	return R_ERROR;
}

static unsigned int ym_devices(unsigned int *handles, unsigned int max) {
	DWORD *buf = malloc(sizeof(DWORD) * max);
	DWORD n, i;
	if (buf == NULL) return 0;
	n = GetDeviceHandles(buf, max);
	for (i = 0; i < n && i < max; i++) handles[i] = (unsigned int)buf[i];
	free(buf);
	return (unsigned int)i;
}

static void ym_device_name(unsigned int dev, char *buf, unsigned int size) {
	GetDeviceName((DWORD)dev, buf, size);
}

static unsigned int ym_channels(unsigned int dev, unsigned int *handles, unsigned int max, int spot) {
	DWORD *buf = malloc(sizeof(DWORD) * max);
	DWORD n, i;
	if (buf == NULL) return 0;
	n = GetChannelHandlesEx((DWORD)dev, buf, max, spot ? SPOTCHANNELS : ALLCHANNELS);
	for (i = 0; i < n && i < max; i++) handles[i] = (unsigned int)buf[i];
	free(buf);
	return (unsigned int)i;
}

static int ym_read_result(int r) {
	if (r == YE_OK) return R_OK;
	if (r == YE_UNKNOWN_HANDLE) return R_INVALID_HANDLE;
	if (r == YE_SHUTDOWN) return R_SHUTDOWN;
	if (r == YE_TIMEOUT) return R_TIMEOUT;
	return R_ERROR;
}

static int ym_channel_name(unsigned int ch, char *buf, unsigned int size) {
	return ym_read_result(GetChannelName((DWORD)ch, buf, size));
}

static void ym_channel_unit(unsigned int ch, char *buf, unsigned int size) {
	GetChannelUnit((DWORD)ch, buf, size);
}

static int ym_channel_value(unsigned int ch, unsigned int dev, double *value, char *buf, unsigned int size, unsigned int maxAge) {
	return ym_read_result(GetChannelValue((DWORD)ch, (DWORD)dev, value, buf, size, maxAge));
}

static int ym_channel_range(unsigned int ch, double *min, double *max) {
	int r = GetChannelValRange((DWORD)ch, min, max);
	if (r == YE_OK) return R_OK;
	if (r == YE_UNKNOWN_HANDLE) return R_INVALID_HANDLE;
	return R_NO_RANGE;
}

static int ym_set_value(unsigned int ch, unsigned int dev, double value) {
	int r = SetChannelValue((DWORD)ch, (DWORD)dev, value);
	if (r == YE_OK) return R_OK;
	if (r == INVALID_HANDLE || r == YE_UNKNOWN_HANDLE) return R_INVALID_HANDLE;
	if (r == YE_SHUTDOWN) return R_SHUTDOWN;
	if (r == YE_TIMEOUT) return R_TIMEOUT;
	if (r == YE_VALUE_NOT_VALID) return R_VALUE_NOT_VALID;
	if (r == YE_NO_ACCESS_RIGHTS) return R_NO_ACCESS_RIGHTS;
	return R_ERROR;
}
*/
import "C"

import (
	"time"
	"unsafe"

	"inverter/pkg/inverter"

	log "github.com/sirupsen/logrus"
)

const textSize = 64

var results = map[C.int]inverter.ResultCode{
	C.R_OK:                 inverter.ResultOK,
	C.R_INVALID_HANDLE:     inverter.ResultInvalidHandle,
	C.R_SHUTDOWN:           inverter.ResultShutdown,
	C.R_TIMEOUT:            inverter.ResultTimeout,
	C.R_VALUE_NOT_VALID:    inverter.ResultValueNotValid,
	C.R_NO_ACCESS_RIGHTS:   inverter.ResultNoAccessRights,
	C.R_NO_RANGE:           inverter.ResultNoRange,
	C.R_DETECT_IN_PROGRESS: inverter.ResultDetectionInProgress,
	C.R_NOT_ALL_FOUND:      inverter.ResultNotAllDevicesFound,
}

func result(r C.int) inverter.ResultCode {
	if code, ok := results[r]; ok {
		return code
	}
	return inverter.ResultError
}

// Master implements inverter.Master on top of libyasdimaster.
type Master struct {
	logger log.FieldLogger
}

func New(logger log.FieldLogger) *Master {
	return &Master{logger: logger}
}

func handles(max int, fill func(buf *C.uint, max C.uint) C.uint) []uint32 {
	if max <= 0 {
		return nil
	}
	buf := make([]C.uint, max)
	n := int(fill(&buf[0], C.uint(max)))

	out := make([]uint32, 0, n)
	for _, h := range buf[:n] {
		out = append(out, uint32(h))
	}
	return out
}

func text(fill func(buf *C.char, size C.uint)) string {
	buf := make([]byte, textSize)
	fill((*C.char)(unsafe.Pointer(&buf[0])), C.uint(textSize-1))
	return C.GoString((*C.char)(unsafe.Pointer(&buf[0])))
}

func (m *Master) Initialize(configPath string) (inverter.ResultCode, int) {
	path := C.CString(configPath)
	defer C.free(unsafe.Pointer(path))

	var count C.uint
	r := C.ym_initialize(path, &count)
	m.logger.Debugf("yasdiMasterInitialize returned %d", int(r))
	if r != 0 {
		return inverter.ResultError, int(count)
	}
	return inverter.ResultOK, int(count)
}

func (m *Master) Drivers(max int) []inverter.DriverHandle {
	var drivers []inverter.DriverHandle
	for _, h := range handles(max, func(buf *C.uint, n C.uint) C.uint { return C.ym_drivers(buf, n) }) {
		drivers = append(drivers, inverter.DriverHandle(h))
	}
	return drivers
}

func (m *Master) DriverName(drv inverter.DriverHandle) string {
	return text(func(buf *C.char, size C.uint) { C.ym_driver_name(C.uint(drv), buf, size) })
}

func (m *Master) SetDriverOnline(drv inverter.DriverHandle) bool {
	return C.ym_driver_online(C.uint(drv)) == 1
}

func (m *Master) SetDriverOffline(drv inverter.DriverHandle) {
	C.ym_driver_offline(C.uint(drv))
}

func (m *Master) Shutdown() {
	C.yasdiMasterShutdown()
}

func (m *Master) DetectDevices(expected int, blocking bool) inverter.ResultCode {
	wait := C.int(0)
	if blocking {
		wait = 1
	}
	return result(C.ym_detect(C.int(expected), wait))
}

func (m *Master) DeviceHandles(max int) []inverter.DeviceHandle {
	var devices []inverter.DeviceHandle
	for _, h := range handles(max, func(buf *C.uint, n C.uint) C.uint { return C.ym_devices(buf, n) }) {
		devices = append(devices, inverter.DeviceHandle(h))
	}
	return devices
}

func (m *Master) DeviceName(dev inverter.DeviceHandle) string {
	return text(func(buf *C.char, size C.uint) { C.ym_device_name(C.uint(dev), buf, size) })
}

func (m *Master) ChannelHandles(dev inverter.DeviceHandle, max int, filter inverter.ChannelFilter) []inverter.ChannelHandle {
	spot := C.int(0)
	if filter == inverter.SpotChannels {
		spot = 1
	}

	var channels []inverter.ChannelHandle
	for _, h := range handles(max, func(buf *C.uint, n C.uint) C.uint { return C.ym_channels(C.uint(dev), buf, n, spot) }) {
		channels = append(channels, inverter.ChannelHandle(h))
	}
	return channels
}

func (m *Master) ChannelName(ch inverter.ChannelHandle) (string, inverter.ResultCode) {
	var r C.int
	name := text(func(buf *C.char, size C.uint) { r = C.ym_channel_name(C.uint(ch), buf, size) })
	return name, result(r)
}

func (m *Master) ChannelUnit(ch inverter.ChannelHandle) string {
	return text(func(buf *C.char, size C.uint) { C.ym_channel_unit(C.uint(ch), buf, size) })
}

func (m *Master) ChannelValue(ch inverter.ChannelHandle, dev inverter.DeviceHandle, maxAge time.Duration) (float64, string, inverter.ResultCode) {
	var (
		value C.double
		r     C.int
	)
	age := C.uint(maxAge / time.Second)
	display := text(func(buf *C.char, size C.uint) {
		r = C.ym_channel_value(C.uint(ch), C.uint(dev), &value, buf, size, age)
	})
	return float64(value), display, result(r)
}

func (m *Master) ChannelRange(ch inverter.ChannelHandle) (float64, float64, inverter.ResultCode) {
	var lo, hi C.double
	r := C.ym_channel_range(C.uint(ch), &lo, &hi)
	return float64(lo), float64(hi), result(r)
}

func (m *Master) SetChannelValue(ch inverter.ChannelHandle, dev inverter.DeviceHandle, value float64) inverter.ResultCode {
	return result(C.ym_set_value(C.uint(ch), C.uint(dev), C.double(value)))
}
