// Error taxonomy threaded through every subsystem
// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package status implements the single closed error taxonomy shared by
// the virtio transport, the ELF parser, the loader and the SBI trap
// stub. A bare-metal loader has no stack to unwind and no recovery
// path beyond a safe halt, so every operational failure is represented
// as a value rather than a panic; only invariant violations that
// indicate a programming error still panic.
package status

import (
	"errors"
	"strconv"
)

// Code identifies one member of the closed error taxonomy.
type Code int

const (
	// Device discovery and validation.
	DeviceNotFound Code = iota
	InvalidMagic
	UnsupportedVersion
	UnsupportedDevice

	// Device initialization.
	InitFailed
	FeaturesNegotiationFailed
	QueueSetupFailed
	ConfigAccessFailed

	// I/O.
	DmaError
	IoError
	BufferTooSmall
	InvalidParam
	Timeout

	// Queue operations.
	QueueFull
	QueueEmpty
	InvalidDescriptor
	MemoryNotAligned

	// Image loading.
	KernelNotFound
	InvalidFormat
	SegmentLoadError
)

var names = [...]string{
	DeviceNotFound:            "device not found",
	InvalidMagic:              "invalid magic value",
	UnsupportedVersion:        "unsupported transport version",
	UnsupportedDevice:         "unsupported device type",
	InitFailed:                "device initialization failed",
	FeaturesNegotiationFailed: "features negotiation failed",
	QueueSetupFailed:          "virtqueue setup failed",
	ConfigAccessFailed:        "device configuration access failed",
	DmaError:                  "DMA transfer error",
	IoError:                   "I/O operation error",
	BufferTooSmall:            "buffer too small",
	InvalidParam:              "invalid parameter",
	Timeout:                   "operation timed out",
	QueueFull:                 "virtqueue is full",
	QueueEmpty:                "virtqueue is empty",
	InvalidDescriptor:         "invalid descriptor",
	MemoryNotAligned:          "memory not properly aligned",
	KernelNotFound:            "kernel image not found",
	InvalidFormat:             "invalid ELF format",
	SegmentLoadError:          "segment load error",
}

// String returns the human-readable name of the code.
func (c Code) String() string {
	if int(c) < 0 || int(c) >= len(names) || names[c] == "" {
		return "unknown error " + strconv.Itoa(int(c))
	}
	return names[c]
}

// Error pairs a Code with an optional component tag and context string,
// matching the "[component] message" diagnostic convention used on the
// console.
type Error struct {
	Component string
	Code      Code
	Context   string
}

// New builds an Error for the given component and code with no
// additional context.
func New(component string, code Code) *Error {
	return &Error{Component: component, Code: code}
}

// Newf builds an Error for the given component and code with a context
// string.
func Newf(component string, code Code, context string) *Error {
	return &Error{Component: component, Code: code, Context: context}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := "[" + e.Component + "] " + e.Code.String()

	if e.Context != "" {
		msg += ": " + e.Context
	}

	return msg
}

// Is reports whether err carries the given code, unwrapping through
// wrapped errors that implement the standard interface.
func Is(err error, code Code) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == code
}
