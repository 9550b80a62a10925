package api

import (
	"errors"
	"fmt"

	"inverter/pkg/inverter"
)

// Error numbers reported in the ErrorNumber field. Numbers from 0x500 are
// specific to this server.
const (
	errInvalidValue     = 0x401
	errNotConnected     = 0x407
	errInvalidOperation = 0x40B
	errUnspecified      = 0x4FF

	errNoDriversFound   = 0x500
	errNoDriversOnline  = 0x501
	errDriverCapacity   = 0x502
	errChannelNotFound  = 0x503
	errRangeUnavailable = 0x504
)

var errorNumbers = []struct {
	err    error
	number int
}{
	{inverter.ErrInvalidArgument, errInvalidValue},
	{inverter.ErrNotInitialized, errNotConnected},
	{inverter.ErrAlreadyInitialized, errInvalidOperation},
	{inverter.ErrNoDriversFound, errNoDriversFound},
	{inverter.ErrNoDriversOnline, errNoDriversOnline},
	{inverter.ErrDriverCapacity, errDriverCapacity},
	{inverter.ErrChannelNotFound, errChannelNotFound},
	{inverter.ErrRangeUnavailable, errRangeUnavailable},
}

func errorNumber(err error) int {
	for _, e := range errorNumbers {
		if errors.Is(err, e.err) {
			return e.number
		}
	}
	return errUnspecified
}

func missingParam(name string) error {
	return fmt.Errorf("%w: %s expected", inverter.ErrInvalidArgument, name)
}

func invalidParam(name, value string) error {
	return fmt.Errorf("%w: %s %q", inverter.ErrInvalidArgument, name, value)
}
