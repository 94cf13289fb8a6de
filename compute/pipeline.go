package compute

import (
	"github.com/openfluke/webgpu/wgpu"
	"github.com/rs/zerolog/log"
)

// pipeline is a device-resident kernel for one element type: the compute
// pipeline plus the explicit bind-group layout dispatches bind against.
type pipeline struct {
	etype  ElementType
	handle *wgpu.ComputePipeline
	layout *wgpu.BindGroupLayout
}

func (p *pipeline) release() {
	if p.handle != nil {
		p.handle.Release()
	}
	if p.layout != nil {
		p.layout.Release()
	}
}

// pipelineFor returns the cached pipeline for the element type, building it
// on first use. The session lock makes cache population single-writer; a
// failed build is not cached, so the type can be retried.
func (s *Session) pipelineFor(t ElementType) (*pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if p, hit := s.pipelines[t]; hit {
		pipelineCacheHits.Inc()
		return p, nil
	}
	p, err := s.buildPipeline(t)
	if err != nil {
		return nil, err
	}
	s.pipelines[t] = p
	return p, nil
}

func (s *Session) buildPipeline(t ElementType) (*pipeline, error) {
	blob, err := BytecodeFor(t)
	if err != nil {
		return nil, err
	}

	label := "Elementwise_" + t.String()
	module, err := s.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label + "_Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: string(blob)},
	})
	if err != nil {
		return nil, &PipelineError{Type: t, Err: err}
	}

	// Explicit layout: two read-only inputs, one read-write output, one
	// uniform params block carrying the four dims plus the op tag.
	bgl, err := s.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: label + "_BGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}},
			{Binding: 1, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}},
			{Binding: 3, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}},
		},
	})
	if err != nil {
		module.Release()
		return nil, &PipelineError{Type: t, Err: err}
	}

	pipelineLayout, err := s.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label + "_Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{bgl},
	})
	if err != nil {
		bgl.Release()
		module.Release()
		return nil, &PipelineError{Type: t, Err: err}
	}

	handle, err := s.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   label + "_Pipe",
		Layout:  pipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{Module: module, EntryPoint: "main"},
	})
	module.Release()
	if err != nil {
		bgl.Release()
		return nil, &PipelineError{Type: t, Err: err}
	}

	pipelineBuilds.Inc()
	log.Debug().Str("type", t.String()).Msg("compiled compute pipeline")
	return &pipeline{etype: t, handle: handle, layout: bgl}, nil
}
