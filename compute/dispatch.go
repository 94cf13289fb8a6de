package compute

import (
	"errors"
	"fmt"
	"time"

	"github.com/openfluke/webgpu/wgpu"
	"github.com/rs/zerolog/log"
)

// paramsBytes is the uniform block size: four dims, op tag, three pad words.
const paramsBytes = 8 * 4

// DispatchSpec describes one element-wise dispatch: the kernel variant, the
// operation, both input shapes and the raw input data. Inputs are contiguous
// row-major bytes in the declared element representation.
type DispatchSpec struct {
	Type   ElementType
	Op     Op
	ShapeA Shape
	ShapeB Shape
	A      []byte
	B      []byte
}

// validate runs every host-side check before any device interaction.
func (d *DispatchSpec) validate() error {
	if !d.Type.valid() {
		return fmt.Errorf("%w: %d", ErrUnsupportedElementType, d.Type)
	}
	if !d.Op.valid() {
		return fmt.Errorf("%w: %d", ErrUnsupportedOp, d.Op)
	}
	if err := d.ShapeA.Validate(); err != nil {
		return err
	}
	if err := d.ShapeB.Validate(); err != nil {
		return err
	}
	if !d.ShapeA.Equal(d.ShapeB) {
		return fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, d.ShapeA, d.ShapeB)
	}
	want := d.ShapeA.Bytes(d.Type)
	if uint64(len(d.A)) != want {
		return fmt.Errorf("%w: input A is %d bytes, shape %v wants %d", ErrSizeMismatch, len(d.A), d.ShapeA, want)
	}
	if uint64(len(d.B)) != want {
		return fmt.Errorf("%w: input B is %d bytes, shape %v wants %d", ErrSizeMismatch, len(d.B), d.ShapeB, want)
	}
	return nil
}

// grid maps the 4-D shape onto the 3-axis dispatch: x covers d0, y covers
// d1, and d3 is folded onto z with d2, matching the kernels' indexing.
func (d *DispatchSpec) grid() (gx, gy, gz uint32) {
	s := d.ShapeA
	gx = (s[0] + workgroupX - 1) / workgroupX
	gy = (s[1] + workgroupY - 1) / workgroupY
	gz = (s[2]*s[3] + workgroupZ - 1) / workgroupZ
	return
}

// DispatchHandle tracks one in-flight submission. Submitted work either
// completes or the device is lost; there is no cancellation. Once Wait (or a
// completed Poll) returns, every write to the output is visible to Read.
type DispatchHandle struct {
	sess  *Session
	etype ElementType
	shape Shape
	size  uint64

	a, b, out, params, staging tensorBuffer
	bind                       *wgpu.BindGroup

	done     chan struct{}
	mapErr   error
	timeout  time.Duration
	mapped   bool
	result   []byte
	released bool
}

// Dispatch validates the request, uploads the inputs, records one compute pass
// plus the output-to-staging copy, and submits to the queue. It returns
// immediately; call Wait (or Poll until true) before reading the output.
func (s *Session) Dispatch(spec DispatchSpec) (*DispatchHandle, error) {
	if err := spec.validate(); err != nil {
		dispatchFailures.Inc()
		return nil, err
	}

	p, err := s.pipelineFor(spec.Type)
	if err != nil {
		dispatchFailures.Inc()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		dispatchFailures.Inc()
		return nil, ErrSessionClosed
	}

	size := spec.ShapeA.Bytes(spec.Type)
	gx, gy, gz := spec.grid()
	lim := s.limits.Limits
	if size > lim.MaxStorageBufferBindingSize {
		dispatchFailures.Inc()
		return nil, &DispatchError{Err: fmt.Errorf("tensor of %d bytes exceeds storage binding limit %d", size, lim.MaxStorageBufferBindingSize)}
	}
	if maxDim := lim.MaxComputeWorkgroupsPerDimension; gx > maxDim || gy > maxDim || gz > maxDim {
		dispatchFailures.Inc()
		return nil, &DispatchError{Err: fmt.Errorf("grid (%d,%d,%d) exceeds per-dimension limit %d", gx, gy, gz, maxDim)}
	}

	var allocErr error
	acquire := func(kind bufferKind, n uint64, label string) tensorBuffer {
		if allocErr != nil {
			return tensorBuffer{}
		}
		buf, err := s.pool.get(s.device, kind, n, label)
		if err != nil {
			allocErr = err
			return tensorBuffer{}
		}
		return tensorBuffer{buf: buf, kind: kind, size: n}
	}

	h := &DispatchHandle{
		sess:    s,
		etype:   spec.Type,
		shape:   spec.ShapeA,
		size:    size,
		done:    make(chan struct{}),
		timeout: s.opts.WaitTimeout,
	}
	h.a = acquire(bufStorage, size, "Tensor_A")
	h.b = acquire(bufStorage, size, "Tensor_B")
	h.out = acquire(bufStorage, size, "Tensor_Out")
	h.params = acquire(bufUniform, paramsBytes, "Tensor_Params")
	h.staging = acquire(bufStaging, size, "Tensor_Staging")
	if allocErr != nil {
		h.recycleLocked()
		dispatchFailures.Inc()
		return nil, &DispatchError{Err: allocErr}
	}

	fail := func(err error) (*DispatchHandle, error) {
		h.recycleLocked()
		dispatchFailures.Inc()
		return nil, &DispatchError{Err: err}
	}

	s.queue.WriteBuffer(h.a.buf, 0, spec.A)
	s.queue.WriteBuffer(h.b.buf, 0, spec.B)
	params := []uint32{spec.ShapeA[0], spec.ShapeA[1], spec.ShapeA[2], spec.ShapeA[3], uint32(spec.Op), 0, 0, 0}
	s.queue.WriteBuffer(h.params.buf, 0, wgpu.ToBytes(params))

	h.bind, err = s.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Elementwise_Bind",
		Layout: p.layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: h.a.buf, Size: h.a.buf.GetSize()},
			{Binding: 1, Buffer: h.b.buf, Size: h.b.buf.GetSize()},
			{Binding: 2, Buffer: h.out.buf, Size: h.out.buf.GetSize()},
			{Binding: 3, Buffer: h.params.buf, Size: h.params.buf.GetSize()},
		},
	})
	if err != nil {
		return fail(err)
	}

	encoder, err := s.device.CreateCommandEncoder(nil)
	if err != nil {
		return fail(err)
	}
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(p.handle)
	pass.SetBindGroup(0, h.bind, nil)
	pass.DispatchWorkgroups(gx, gy, gz)
	pass.End()
	// The copy is ordered after the pass on the same queue; it is the
	// compute-to-host visibility boundary before read-back.
	encoder.CopyBufferToBuffer(h.out.buf, 0, h.staging.buf, 0, size)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fail(err)
	}
	s.queue.Submit(cmd)

	err = h.staging.buf.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			h.mapErr = fmt.Errorf("map status: %d", status)
		}
		close(h.done)
	})
	if err != nil {
		return fail(err)
	}

	dispatchesTotal.Inc()
	log.Debug().
		Str("type", spec.Type.String()).
		Str("op", spec.Op.String()).
		Str("shape", spec.ShapeA.String()).
		Uint32("gx", gx).Uint32("gy", gy).Uint32("gz", gz).
		Msg("dispatch submitted")
	return h, nil
}

// Wait blocks until the output is host-visible, bounded by the session's
// wait timeout. Safe to call repeatedly.
func (h *DispatchHandle) Wait() error {
	if h.released {
		return &DispatchError{Err: errors.New("handle released")}
	}
	if err := awaitMapped(func() { h.sess.device.Poll(false, nil) }, h.done, h.timeout); err != nil {
		return &DispatchError{Err: err}
	}
	if h.mapErr != nil {
		return &DispatchError{Err: h.mapErr}
	}
	h.mapped = true
	return nil
}

// Poll reports whether the submission has completed, without blocking.
// Repeatable; a true result means Read will not block.
func (h *DispatchHandle) Poll() bool {
	if h.released {
		return false
	}
	h.sess.device.Poll(false, nil)
	select {
	case <-h.done:
		h.mapped = h.mapErr == nil
		return true
	default:
		return false
	}
}

// Read waits for completion and returns the output tensor as raw bytes in
// the same row-major layout as the inputs. The copy is cached, so repeated
// reads are cheap.
func (h *DispatchHandle) Read() ([]byte, error) {
	if h.result != nil {
		return h.result, nil
	}
	if err := h.Wait(); err != nil {
		return nil, err
	}
	data := h.staging.buf.GetMappedRange(0, uint(h.size))
	if data == nil {
		return nil, &DispatchError{Err: errors.New("failed to get mapped range")}
	}
	out := make([]byte, h.size)
	copy(out, data)
	h.staging.buf.Unmap()
	h.mapped = false
	h.result = out
	return out, nil
}

// ReadFloat32 reads the output as float32 elements.
func (h *DispatchHandle) ReadFloat32() ([]float32, error) {
	raw, err := h.Read()
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(raw)/4)
	copy(out, wgpu.FromBytes[float32](raw))
	return out, nil
}

// ReadInt32 reads the output as int32 elements.
func (h *DispatchHandle) ReadInt32() ([]int32, error) {
	raw, err := h.Read()
	if err != nil {
		return nil, err
	}
	out := make([]int32, len(raw)/4)
	copy(out, wgpu.FromBytes[int32](raw))
	return out, nil
}

// ReadUint32 reads the output as uint32 elements.
func (h *DispatchHandle) ReadUint32() ([]uint32, error) {
	raw, err := h.Read()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, len(raw)/4)
	copy(out, wgpu.FromBytes[uint32](raw))
	return out, nil
}

// Release returns the handle's buffers to the session pool. Idempotent. A
// handle whose work never completed keeps its staging buffer out of the pool
// (a late map callback must not touch a recycled buffer).
func (h *DispatchHandle) Release() {
	if h.released {
		return
	}
	s := h.sess
	s.mu.Lock()
	defer s.mu.Unlock()
	h.recycleLocked()
}

// recycleLocked tears down the handle's resources under the session lock.
func (h *DispatchHandle) recycleLocked() {
	if h.released {
		return
	}
	h.released = true
	if h.bind != nil {
		h.bind.Release()
		h.bind = nil
	}

	s := h.sess
	for _, tb := range []tensorBuffer{h.a, h.b, h.out, h.params} {
		if !tb.valid() {
			continue
		}
		if s.closed {
			tb.buf.Destroy()
		} else {
			s.pool.put(tb.kind, tb.size, tb.buf)
		}
	}

	if h.staging.valid() {
		completed := h.done == nil
		if h.done != nil {
			select {
			case <-h.done:
				completed = true
			default:
			}
		}
		if h.mapped {
			h.staging.buf.Unmap()
			h.mapped = false
		}
		if completed && !s.closed {
			s.pool.put(h.staging.kind, h.staging.size, h.staging.buf)
		} else {
			h.staging.buf.Destroy()
		}
	}
}

// DispatchFloat32 is a typed convenience over Dispatch for float32 tensors.
func (s *Session) DispatchFloat32(op Op, shape Shape, a, b []float32) (*DispatchHandle, error) {
	return s.Dispatch(DispatchSpec{
		Type: Float32, Op: op, ShapeA: shape, ShapeB: shape,
		A: wgpu.ToBytes(a), B: wgpu.ToBytes(b),
	})
}

// DispatchInt32 is a typed convenience over Dispatch for int32 tensors.
func (s *Session) DispatchInt32(op Op, shape Shape, a, b []int32) (*DispatchHandle, error) {
	return s.Dispatch(DispatchSpec{
		Type: Int32, Op: op, ShapeA: shape, ShapeB: shape,
		A: wgpu.ToBytes(a), B: wgpu.ToBytes(b),
	})
}

// DispatchUint32 is a typed convenience over Dispatch for uint32 tensors.
func (s *Session) DispatchUint32(op Op, shape Shape, a, b []uint32) (*DispatchHandle, error) {
	return s.Dispatch(DispatchSpec{
		Type: Uint32, Op: op, ShapeA: shape, ShapeB: shape,
		A: wgpu.ToBytes(a), B: wgpu.ToBytes(b),
	})
}
