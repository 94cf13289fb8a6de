// Package compute is a minimal WebGPU compute-dispatch core for element-wise
// operations over 4-D tensors. A Session owns the instance, adapter, device
// and queue; kernels are embedded per element type and compiled into compute
// pipelines lazily, one per type; Dispatch submits asynchronously and returns
// a handle with explicit Wait/Poll/Read.
package compute

import (
	"errors"
	"fmt"
)

// Validation errors, surfaced synchronously before any device interaction.
var (
	// ErrNoSuitableDevice is returned when no adapter exposing a usable
	// compute device can be acquired.
	ErrNoSuitableDevice = errors.New("compute: no suitable device")

	// ErrUnsupportedElementType is returned for a tag outside the closed
	// ElementType enum.
	ErrUnsupportedElementType = errors.New("compute: unsupported element type")

	// ErrUnsupportedOp is returned for a tag outside the closed Op enum.
	ErrUnsupportedOp = errors.New("compute: unsupported op")

	// ErrShapeMismatch is returned when the two input shapes differ in any
	// dimension.
	ErrShapeMismatch = errors.New("compute: shape mismatch")

	// ErrEmptyShape is returned for shapes with a zero dimension.
	ErrEmptyShape = errors.New("compute: empty shape")

	// ErrSizeMismatch is returned when an input slice's byte length does not
	// match its declared shape and element type.
	ErrSizeMismatch = errors.New("compute: input size mismatch")

	// ErrSessionClosed is returned for operations on a closed Session.
	ErrSessionClosed = errors.New("compute: session closed")
)

// InitError wraps a driver failure during instance or device setup. Fatal to
// the session; the caller must not proceed to dispatch.
type InitError struct {
	Err error
}

func (e *InitError) Error() string { return "compute: init: " + e.Err.Error() }
func (e *InitError) Unwrap() error { return e.Err }

// PipelineError wraps a driver rejection while compiling the kernel for one
// element type. Fatal for that type only; cached entries for other types are
// unaffected and the failed type may be retried.
type PipelineError struct {
	Type ElementType
	Err  error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("compute: pipeline %s: %v", e.Type, e.Err)
}
func (e *PipelineError) Unwrap() error { return e.Err }

// DispatchError wraps a submission or completion failure. Device loss lands
// here; recovery means a fresh Session, pipelines and buffers included.
type DispatchError struct {
	Err error
}

func (e *DispatchError) Error() string { return "compute: dispatch: " + e.Err.Error() }
func (e *DispatchError) Unwrap() error { return e.Err }
