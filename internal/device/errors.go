package device

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownClass   = errors.New("unknown device class")
	ErrReservedKey    = errors.New("reserved settings key")
	ErrMissingSetting = errors.New("missing required setting")
	ErrInvalidSetting = errors.New("invalid setting")
	ErrInvalidState   = errors.New("invalid device state")
)

// UnknownClassError is returned when a device class name is not registered.
type UnknownClassError struct {
	Name  string
	Valid []string
}

func (e *UnknownClassError) Error() string {
	return fmt.Sprintf("invalid device class %q, available options: [%s]", e.Name, strings.Join(e.Valid, " "))
}

func (e *UnknownClassError) Is(target error) bool {
	return target == ErrUnknownClass
}
