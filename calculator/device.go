package calculator

import (
	"github.com/openfluke/linalg"
	"github.com/openfluke/linalg/detector"
	"github.com/openfluke/linalg/gpu"
	"github.com/openfluke/webgpu/wgpu"
)

// device is the surface of the compute backend the Calculator drives.
type device interface {
	newBuffer(label string, n int) (buffer, error)
	newParams(label string, params []int32) (buffer, error)
	write(b buffer, data []float32) error
	read(b buffer, n int) ([]float32, error)
	compile(desc gpu.KernelDesc) (program, error)
	dispatch(p program, bindings []binding, groups [3]uint32) error
	limits() detector.Limits
	report() *detector.Report
	release()
}

// buffer is one device allocation.
type buffer interface {
	len() int // element count
	release()
}

// program is one compiled entry point.
type program interface {
	release()
}

type binding struct {
	index uint32
	buf   buffer
}

// wgpuDevice implements device on a gpu.Context.
type wgpuDevice struct {
	ctx *gpu.Context
}

type wgpuBuffer struct {
	buf *wgpu.Buffer
	n   int
}

func (b *wgpuBuffer) len() int { return b.n }

func (b *wgpuBuffer) release() {
	if b.buf != nil {
		gpu.DestroyBuffer(b.buf)
		b.buf = nil
	}
}

type wgpuProgram struct {
	k *gpu.Kernel
}

func (p *wgpuProgram) release() { p.k.Release() }

func (d *wgpuDevice) newBuffer(label string, n int) (buffer, error) {
	buf, err := d.ctx.NewStorageBuffer(label, n)
	if err != nil {
		return nil, err
	}
	return &wgpuBuffer{buf: buf, n: n}, nil
}

func (d *wgpuDevice) newParams(label string, params []int32) (buffer, error) {
	buf, err := d.ctx.NewParamBuffer(label, params)
	if err != nil {
		return nil, err
	}
	return &wgpuBuffer{buf: buf, n: len(params)}, nil
}

func (d *wgpuDevice) write(b buffer, data []float32) error {
	wb, err := asWGPU(b)
	if err != nil {
		return err
	}
	d.ctx.WriteFloats(wb.buf, data)
	return nil
}

func (d *wgpuDevice) read(b buffer, n int) ([]float32, error) {
	wb, err := asWGPU(b)
	if err != nil {
		return nil, err
	}
	return d.ctx.ReadBuffer(wb.buf, n)
}

func (d *wgpuDevice) compile(desc gpu.KernelDesc) (program, error) {
	k, err := d.ctx.CompileKernel(desc)
	if err != nil {
		return nil, err
	}
	return &wgpuProgram{k: k}, nil
}

func (d *wgpuDevice) dispatch(p program, bindings []binding, groups [3]uint32) error {
	wp, ok := p.(*wgpuProgram)
	if !ok {
		return linalg.Errorf(linalg.KindMemoryInconsistency, "calculator.dispatch", "program %T not compiled by this device", p)
	}
	gb := make([]gpu.Binding, len(bindings))
	for i, b := range bindings {
		wb, err := asWGPU(b.buf)
		if err != nil {
			return err
		}
		gb[i] = gpu.Binding{Index: b.index, Buffer: wb.buf}
	}
	return d.ctx.Dispatch(wp.k, gb, groups)
}

func (d *wgpuDevice) limits() detector.Limits { return d.ctx.Report().Limits }

func (d *wgpuDevice) report() *detector.Report { return d.ctx.Report() }

func (d *wgpuDevice) release() { d.ctx.Release() }

func asWGPU(b buffer) (*wgpuBuffer, error) {
	wb, ok := b.(*wgpuBuffer)
	if !ok || wb.buf == nil {
		return nil, linalg.Errorf(linalg.KindMemoryInconsistency, "calculator", "buffer %T is not a live device buffer", b)
	}
	return wb, nil
}
