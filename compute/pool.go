package compute

import (
	"github.com/openfluke/webgpu/wgpu"
)

type bufferKind uint8

const (
	bufStorage bufferKind = iota
	bufUniform
	bufStaging
)

func (k bufferKind) usage() wgpu.BufferUsage {
	switch k {
	case bufUniform:
		return wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
	case bufStaging:
		return wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
	}
	return wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc
}

type poolKey struct {
	kind bufferKind
	size uint64
}

// bufferPool recycles device buffers bucketed by exact byte size. Tensor
// workloads repeat the same shapes, so exact-size buckets hit often without
// wasting oversized buffers.
type bufferPool struct {
	free map[poolKey][]*wgpu.Buffer
}

func newBufferPool() *bufferPool {
	return &bufferPool{free: make(map[poolKey][]*wgpu.Buffer)}
}

// get pops a pooled buffer of the exact size or allocates a fresh one.
// Callers hold the session lock.
func (bp *bufferPool) get(dev *wgpu.Device, kind bufferKind, size uint64, label string) (*wgpu.Buffer, error) {
	key := poolKey{kind: kind, size: size}
	if list := bp.free[key]; len(list) > 0 {
		buf := list[len(list)-1]
		bp.free[key] = list[:len(list)-1]
		poolHits.Inc()
		poolBuffers.Dec()
		poolSizeBytes.Sub(float64(size))
		return buf, nil
	}

	poolMisses.Inc()
	return dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: kind.usage(),
	})
}

// put returns a buffer to its bucket. Callers hold the session lock and must
// not return mapped buffers.
func (bp *bufferPool) put(kind bufferKind, size uint64, buf *wgpu.Buffer) {
	key := poolKey{kind: kind, size: size}
	bp.free[key] = append(bp.free[key], buf)
	poolBuffers.Inc()
	poolSizeBytes.Add(float64(size))
}

func (bp *bufferPool) close() {
	for key, list := range bp.free {
		for _, buf := range list {
			buf.Destroy()
			poolBuffers.Dec()
			poolSizeBytes.Sub(float64(key.size))
		}
		delete(bp.free, key)
	}
}
