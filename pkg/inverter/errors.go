package inverter

import "errors"

var (
	ErrNotInitialized     = errors.New("session not initialized")
	ErrAlreadyInitialized = errors.New("session already initialized")
	ErrInvalidArgument    = errors.New("invalid argument")

	ErrNoDriversFound   = errors.New("no drivers found")
	ErrNoDriversOnline  = errors.New("no drivers could be set online")
	ErrDriverCapacity   = errors.New("driver count exceeds capacity")
	ErrChannelNotFound  = errors.New("channel not found")
	ErrRangeUnavailable = errors.New("channel value range unavailable")

	ErrDetectionInProgress = errors.New("device detection in progress")
	ErrNotAllDevicesFound  = errors.New("not all devices were found")
	ErrDetectionFailed     = errors.New("device detection failed")
)

// ErrorKind classifies the outcome of a channel write.
type ErrorKind int

const (
	KindOK ErrorKind = iota
	KindInvalidHandle
	KindShuttingDown
	KindTimeout
	KindValueNotValid
	KindNoAccessRights
	KindUnknown
)

var kindNames = map[ErrorKind]string{
	KindOK:             "Ok",
	KindInvalidHandle:  "InvalidHandle",
	KindShuttingDown:   "ShuttingDown",
	KindTimeout:        "Timeout",
	KindValueNotValid:  "ValueNotValid",
	KindNoAccessRights: "NoAccessRights",
	KindUnknown:        "Unknown",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ErrorKind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	*k = KindUnknown
	return nil
}

// writeResult maps the result of a channel write to its kind and message.
func writeResult(code ResultCode) (ErrorKind, string) {
	switch code {
	case ResultOK:
		return KindOK, ""
	case ResultInvalidHandle:
		return KindInvalidHandle, "Invalid channel handle"
	case ResultShutdown:
		return KindShuttingDown, "Master is in shutdown mode"
	case ResultTimeout:
		return KindTimeout, "Device did not respond (timeout)"
	case ResultValueNotValid:
		return KindValueNotValid, "Channel value not within valid range"
	case ResultNoAccessRights:
		return KindNoAccessRights, "Not enough access rights to write to channel"
	default:
		return KindUnknown, "Unknown error"
	}
}
