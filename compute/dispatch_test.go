package compute

import (
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSession skips the test when no adapter is available, so the GPU
// suite degrades cleanly on headless CI.
func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(SessionOptions{AppName: "compute-test", EngineName: "shuttle", SkipProbe: true})
	if err != nil {
		t.Skipf("no GPU available: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// Metrics are process-global, so tests track deltas.
func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	c.Write(&m)
	return m.Counter.GetValue()
}

func TestPipelineCachedPerType(t *testing.T) {
	s := newTestSession(t)

	startBuilds := counterValue(pipelineBuilds)
	startHits := counterValue(pipelineCacheHits)

	p1, err := s.pipelineFor(Float32)
	require.NoError(t, err)
	p2, err := s.pipelineFor(Float32)
	require.NoError(t, err)

	assert.Same(t, p1, p2, "second lookup must return the cached pipeline")
	assert.Equal(t, 1.0, counterValue(pipelineBuilds)-startBuilds)
	assert.Equal(t, 1.0, counterValue(pipelineCacheHits)-startHits)

	// A different element type builds its own pipeline and leaves the
	// float32 entry alone.
	p3, err := s.pipelineFor(Int32)
	require.NoError(t, err)
	assert.NotSame(t, p1, p3)
	p4, err := s.pipelineFor(Float32)
	require.NoError(t, err)
	assert.Same(t, p1, p4)
}

func TestDispatchFloat32AddScenario(t *testing.T) {
	s := newTestSession(t)

	shape := NewShape(2, 2, 2, 2)
	n := int(shape.Elems())
	require.Equal(t, 16, n)

	a := make([]float32, n)
	b := make([]float32, n)
	for i := range a {
		a[i] = 1.0
		b[i] = 2.0
	}

	h, err := s.DispatchFloat32(OpAdd, shape, a, b)
	require.NoError(t, err)
	defer h.Release()

	require.NoError(t, h.Wait())
	out, err := h.ReadFloat32()
	require.NoError(t, err)
	require.Len(t, out, n)
	for i, v := range out {
		assert.InDelta(t, 3.0, v, 1e-6, "element %d", i)
	}
}

func TestDispatchFloat32Ops(t *testing.T) {
	s := newTestSession(t)

	shape := NewShape(1, 2, 3, 4)
	n := int(shape.Elems())
	a := make([]float32, n)
	b := make([]float32, n)
	for i := range a {
		a[i] = float32(i) * 0.5
		b[i] = float32(n-i) * 0.25
	}

	cases := []struct {
		op  Op
		ref func(x, y float32) float32
	}{
		{OpAdd, func(x, y float32) float32 { return x + y }},
		{OpSub, func(x, y float32) float32 { return x - y }},
		{OpMul, func(x, y float32) float32 { return x * y }},
		{OpMin, func(x, y float32) float32 { return float32(math.Min(float64(x), float64(y))) }},
		{OpMax, func(x, y float32) float32 { return float32(math.Max(float64(x), float64(y))) }},
	}
	for _, tc := range cases {
		t.Run(tc.op.String(), func(t *testing.T) {
			h, err := s.DispatchFloat32(tc.op, shape, a, b)
			require.NoError(t, err)
			defer h.Release()
			out, err := h.ReadFloat32()
			require.NoError(t, err)
			for i := range out {
				assert.InDelta(t, tc.ref(a[i], b[i]), out[i], 1e-5, "element %d", i)
			}
		})
	}
}

func TestDispatchInt32Semantics(t *testing.T) {
	s := newTestSession(t)

	shape := NewShape(1, 1, 2, 2)
	a := []int32{10, -3, math.MaxInt32, -7}
	b := []int32{5, 4, 1, -2}

	h, err := s.DispatchInt32(OpAdd, shape, a, b)
	require.NoError(t, err)
	defer h.Release()
	out, err := h.ReadInt32()
	require.NoError(t, err)
	// i32 arithmetic wraps two's-complement.
	assert.Equal(t, []int32{15, 1, math.MinInt32, -9}, out)

	h2, err := s.DispatchInt32(OpMin, shape, a, b)
	require.NoError(t, err)
	defer h2.Release()
	out2, err := h2.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, []int32{5, -3, 1, -7}, out2)
}

func TestDispatchUint32Semantics(t *testing.T) {
	s := newTestSession(t)

	shape := NewShape(1, 1, 1, 4)
	a := []uint32{10, 3, math.MaxUint32, 0}
	b := []uint32{5, 4, 1, 9}

	h, err := s.DispatchUint32(OpMax, shape, a, b)
	require.NoError(t, err)
	defer h.Release()
	out, err := h.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, []uint32{10, 4, math.MaxUint32, 9}, out)

	h2, err := s.DispatchUint32(OpSub, shape, a, b)
	require.NoError(t, err)
	defer h2.Release()
	out2, err := h2.ReadUint32()
	require.NoError(t, err)
	// u32 subtraction wraps modulo 2^32.
	assert.Equal(t, []uint32{5, math.MaxUint32, math.MaxUint32 - 1, math.MaxUint32 - 8}, out2)
}

func TestDispatchPollCompletes(t *testing.T) {
	s := newTestSession(t)

	shape := NewShape(2, 2, 2, 2)
	n := int(shape.Elems())
	a := make([]float32, n)
	b := make([]float32, n)

	h, err := s.DispatchFloat32(OpAdd, shape, a, b)
	require.NoError(t, err)
	defer h.Release()

	deadline := time.Now().Add(2 * time.Second)
	for !h.Poll() {
		if time.Now().After(deadline) {
			t.Fatal("dispatch never completed")
		}
		time.Sleep(time.Millisecond)
	}
	out, err := h.ReadFloat32()
	require.NoError(t, err)
	assert.Len(t, out, n)
}

func TestDispatchShapeMismatchBeforeSubmission(t *testing.T) {
	s := newTestSession(t)

	startDispatches := counterValue(dispatchesTotal)
	h, err := s.Dispatch(DispatchSpec{
		Type:   Float32,
		Op:     OpAdd,
		ShapeA: NewShape(2, 2, 2, 2),
		ShapeB: NewShape(2, 2, 2, 3),
		A:      make([]byte, 64),
		B:      make([]byte, 96),
	})
	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Equal(t, 0.0, counterValue(dispatchesTotal)-startDispatches, "nothing may reach the queue")
}

func TestDispatchEmptyShapeBeforeAllocation(t *testing.T) {
	s := newTestSession(t)

	startMisses := counterValue(poolMisses)
	startHits := counterValue(poolHits)
	h, err := s.DispatchFloat32(OpAdd, NewShape(2, 0, 2, 2), []float32{}, []float32{})
	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrEmptyShape)
	assert.Equal(t, 0.0, counterValue(poolMisses)-startMisses, "no buffer allocation")
	assert.Equal(t, 0.0, counterValue(poolHits)-startHits)
}

func TestDispatchReusesPooledBuffers(t *testing.T) {
	s := newTestSession(t)

	shape := NewShape(2, 2, 2, 2)
	n := int(shape.Elems())
	a := make([]float32, n)
	b := make([]float32, n)

	h1, err := s.DispatchFloat32(OpAdd, shape, a, b)
	require.NoError(t, err)
	require.NoError(t, h1.Wait())
	_, err = h1.Read()
	require.NoError(t, err)
	h1.Release()

	startHits := counterValue(poolHits)
	h2, err := s.DispatchFloat32(OpMul, shape, a, b)
	require.NoError(t, err)
	defer h2.Release()
	require.NoError(t, h2.Wait())

	// Three storage buffers, the params uniform and the staging buffer all
	// come back from the pool on the second dispatch.
	assert.GreaterOrEqual(t, counterValue(poolHits)-startHits, 5.0)
}

func TestHandleReleaseIdempotent(t *testing.T) {
	s := newTestSession(t)

	shape := NewShape(1, 1, 1, 4)
	h, err := s.DispatchFloat32(OpAdd, shape, make([]float32, 4), make([]float32, 4))
	require.NoError(t, err)
	require.NoError(t, h.Wait())

	h.Release()
	h.Release() // second release is a no-op

	err = h.Wait()
	assert.Error(t, err, "a released handle is unusable")
}

func TestDispatchAfterClose(t *testing.T) {
	s := newTestSession(t)
	s.Close()
	s.Close() // idempotent

	shape := NewShape(1, 1, 1, 4)
	_, err := s.DispatchFloat32(OpAdd, shape, make([]float32, 4), make([]float32, 4))
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func BenchmarkDispatchFloat32Add(b *testing.B) {
	s, err := NewSession(SessionOptions{AppName: "compute-bench", SkipProbe: true})
	if err != nil {
		b.Skipf("no GPU available: %v", err)
	}
	defer s.Close()

	shape := NewShape(8, 8, 8, 8)
	n := int(shape.Elems())
	x := make([]float32, n)
	y := make([]float32, n)
	for i := range x {
		x[i] = float32(i)
		y[i] = float32(n - i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h, err := s.DispatchFloat32(OpAdd, shape, x, y)
		if err != nil {
			b.Fatal(err)
		}
		if err := h.Wait(); err != nil {
			b.Fatal(err)
		}
		h.Release()
	}
}
