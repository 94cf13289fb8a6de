package compute

import (
	_ "embed"
	"fmt"
)

// The kernels are embedded as opaque blobs, one variant per element type,
// the same way the shader-compilation step hands them over: bytes plus exact
// length. Nothing here inspects the contents.

//go:embed shaders/elementwise_f32.wgsl
var kernelFloat []byte

//go:embed shaders/elementwise_i32.wgsl
var kernelInt []byte

//go:embed shaders/elementwise_u32.wgsl
var kernelUint []byte

// Workgroup geometry baked into every kernel variant. Dispatch counts are
// derived from these; they must match the @workgroup_size in the sources.
const (
	workgroupX = 8
	workgroupY = 8
	workgroupZ = 4
)

// BytecodeFor returns the kernel blob for one element type. Pure lookup, no
// allocation. The enum is closed, so the failure arm is a defensive check
// against a forged tag.
func BytecodeFor(t ElementType) ([]byte, error) {
	switch t {
	case Float32:
		return kernelFloat, nil
	case Int32:
		return kernelInt, nil
	case Uint32:
		return kernelUint, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnsupportedElementType, t)
}
