package gpu

import (
	"fmt"

	"github.com/openfluke/linalg"
	"github.com/openfluke/webgpu/wgpu"
)

// KernelDesc describes a WGSL compute entry point to compile.
type KernelDesc struct {
	Label      string
	Source     string
	EntryPoint string
	Workgroup  [3]uint32 // @workgroup_size declared by the entry point
	// Layout lists the binding types of group 0 in binding order.
	// Nil lets the pipeline derive its layout from the shader.
	Layout []wgpu.BufferBindingType
}

// Kernel is a compiled compute pipeline.
type Kernel struct {
	Label     string
	Workgroup [3]uint32

	pipeline *wgpu.ComputePipeline
	layout   *wgpu.BindGroupLayout
}

// Binding attaches a buffer to a binding index of group 0.
type Binding struct {
	Index  uint32
	Buffer *wgpu.Buffer
}

// CompileKernel compiles desc into a pipeline. Compiler and validation
// failures come back as linalg.ErrBackend; nothing is retained on failure.
func (c *Context) CompileKernel(desc KernelDesc) (*Kernel, error) {
	c.log.Debug().Str("kernel", desc.Label).Str("entry", desc.EntryPoint).Msg("compiling kernel")

	module, err := c.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          desc.Label + "_Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.Source},
	})
	if err != nil {
		return nil, linalg.Backend("gpu.CompileKernel", fmt.Errorf("shader compile: %w", err))
	}
	defer module.Release()

	k := &Kernel{Label: desc.Label, Workgroup: desc.Workgroup}
	pipeDesc := &wgpu.ComputePipelineDescriptor{
		Label: desc.Label + "_Pipe",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: desc.EntryPoint,
		},
	}

	if desc.Layout != nil {
		entries := make([]wgpu.BindGroupLayoutEntry, len(desc.Layout))
		for i, typ := range desc.Layout {
			entries[i] = wgpu.BindGroupLayoutEntry{
				Binding:    uint32(i),
				Visibility: wgpu.ShaderStageCompute,
				Buffer:     wgpu.BufferBindingLayout{Type: typ},
			}
		}
		k.layout, err = c.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label:   desc.Label + "_BGL",
			Entries: entries,
		})
		if err != nil {
			return nil, linalg.Backend("gpu.CompileKernel", fmt.Errorf("create bgl: %w", err))
		}
		pipelineLayout, err := c.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
			Label:            desc.Label + "_Layout",
			BindGroupLayouts: []*wgpu.BindGroupLayout{k.layout},
		})
		if err != nil {
			k.layout.Release()
			return nil, linalg.Backend("gpu.CompileKernel", fmt.Errorf("create pipeline layout: %w", err))
		}
		defer pipelineLayout.Release()
		pipeDesc.Layout = pipelineLayout
	}

	k.pipeline, err = c.Device.CreateComputePipeline(pipeDesc)
	if err != nil {
		if k.layout != nil {
			k.layout.Release()
		}
		return nil, linalg.Backend("gpu.CompileKernel", fmt.Errorf("pipeline create: %w", err))
	}
	if k.layout == nil {
		k.layout = k.pipeline.GetBindGroupLayout(0)
	}
	return k, nil
}

// Dispatch runs k over groups workgroups with the given bindings and blocks
// until the device has finished.
func (c *Context) Dispatch(k *Kernel, bindings []Binding, groups [3]uint32) error {
	c.log.Debug().
		Str("kernel", k.Label).
		Uints32("workgroups", groups[:]).
		Msg("dispatching kernel")

	entries := make([]wgpu.BindGroupEntry, len(bindings))
	for i, b := range bindings {
		entries[i] = wgpu.BindGroupEntry{Binding: b.Index, Buffer: b.Buffer, Size: b.Buffer.GetSize()}
	}
	bindGroup, err := c.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   k.Label + "_Bind",
		Layout:  k.layout,
		Entries: entries,
	})
	if err != nil {
		return linalg.Backend("gpu.Dispatch", fmt.Errorf("create bind group: %w", err))
	}
	defer bindGroup.Release()

	enc, err := c.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: k.Label + "_Enc"})
	if err != nil {
		return linalg.Backend("gpu.Dispatch", fmt.Errorf("create encoder: %w", err))
	}
	pass := enc.BeginComputePass(&wgpu.ComputePassDescriptor{Label: k.Label + "_Pass"})
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(groups[0], groups[1], groups[2])
	pass.End()

	cmd, err := enc.Finish(nil)
	if err != nil {
		enc.Release()
		return linalg.Backend("gpu.Dispatch", fmt.Errorf("finish: %w", err))
	}
	enc.Release()
	c.Queue.Submit(cmd)
	cmd.Release()
	c.Wait()
	return nil
}

// Release frees the pipeline and its bind group layout.
func (k *Kernel) Release() {
	if k.layout != nil {
		k.layout.Release()
		k.layout = nil
	}
	if k.pipeline != nil {
		k.pipeline.Release()
		k.pipeline = nil
	}
}
