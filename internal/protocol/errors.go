package protocol

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure raised by the codecs wraps exactly one of these,
// so callers can classify with errors.Is.
var (
	ErrTruncated     = errors.New("protocol: truncated input")
	ErrViolation     = errors.New("protocol: violation")
	ErrConfiguration = errors.New("protocol: invalid configuration")
	ErrCapValidation = errors.New("protocol: invalid cap")
)

// Truncatedf reports input that ended before what.
func Truncatedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTruncated, fmt.Sprintf(format, args...))
}

// Violationf reports a well-formed read that found the wrong thing.
func Violationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrViolation, fmt.Sprintf(format, args...))
}

// Configf reports a value the encoder refuses to write.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// StrayByteError is raised when a marker byte was expected but something else
// was found.
type StrayByteError struct {
	Byte   byte
	Offset int64
}

func (e *StrayByteError) Error() string {
	return fmt.Sprintf("protocol: stray byte 0x%02x at position %d", e.Byte, e.Offset)
}

func (e *StrayByteError) Unwrap() error {
	return ErrViolation
}
