package compute

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytecodeForAllTypes(t *testing.T) {
	for _, et := range []ElementType{Float32, Int32, Uint32} {
		blob, err := BytecodeFor(et)
		require.NoError(t, err, et)
		assert.NotEmpty(t, blob, et)
		assert.Contains(t, string(blob), "@compute", et)
	}
}

func TestBytecodeForPerTypeVariant(t *testing.T) {
	f, _ := BytecodeFor(Float32)
	i, _ := BytecodeFor(Int32)
	u, _ := BytecodeFor(Uint32)
	assert.Contains(t, string(f), "array<f32>")
	assert.Contains(t, string(i), "array<i32>")
	assert.Contains(t, string(u), "array<u32>")
}

func TestBytecodeForUnsupportedTag(t *testing.T) {
	blob, err := BytecodeFor(ElementType(7))
	assert.Nil(t, blob)
	assert.ErrorIs(t, err, ErrUnsupportedElementType)
}

func TestKernelsMatchWorkgroupConstants(t *testing.T) {
	// The Go-side dispatch math must agree with the @workgroup_size baked
	// into every kernel variant.
	for _, et := range []ElementType{Float32, Int32, Uint32} {
		blob, err := BytecodeFor(et)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(blob), "@workgroup_size(8, 8, 4)"), et)
	}
}

func TestElementTypeStrings(t *testing.T) {
	assert.Equal(t, "float32", Float32.String())
	assert.Equal(t, "int32", Int32.String())
	assert.Equal(t, "uint32", Uint32.String())
	assert.Equal(t, "invalid", ElementType(9).String())
	assert.Equal(t, uint32(4), Float32.Stride())
}

func TestOpStrings(t *testing.T) {
	assert.Equal(t, "add", OpAdd.String())
	assert.Equal(t, "max", OpMax.String())
	assert.Equal(t, "invalid", Op(9).String())
	assert.True(t, OpMax.valid())
	assert.False(t, Op(5).valid())
}
