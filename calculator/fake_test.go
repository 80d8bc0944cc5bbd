package calculator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openfluke/linalg"
	"github.com/openfluke/linalg/detector"
	"github.com/openfluke/linalg/gpu"
	"github.com/rs/zerolog"
)

// invocation is a Go stand-in for one WGSL compute invocation.
type invocation func(gid [3]uint32, out []float32, params []int32, in [][]float32)

// fakeDevice runs kernels on the host so the calculator can be tested
// without an adapter. Kernels are looked up by entry point name.
type fakeDevice struct {
	kernels    map[string]invocation
	lim        detector.Limits
	failAlloc  error
	live       int
	writes     int
	reads      int
	dispatches int
	compiles   int
	released   bool
}

type fakeBuffer struct {
	data     []float32
	ints     []int32
	released bool
	dev      *fakeDevice
}

func (b *fakeBuffer) len() int {
	if b.ints != nil {
		return len(b.ints)
	}
	return len(b.data)
}

func (b *fakeBuffer) release() {
	if !b.released {
		b.released = true
		b.dev.live--
	}
}

type fakeProgram struct {
	run       invocation
	workgroup [3]uint32
	released  bool
}

func (p *fakeProgram) release() { p.released = true }

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		// WebGPU default limits
		lim: detector.Limits{
			MaxComputeInvocationsPerWorkgroup: 256,
			MaxComputeWorkgroupSizeX:          256,
			MaxComputeWorkgroupSizeY:          256,
			MaxComputeWorkgroupSizeZ:          64,
			MaxComputeWorkgroupsPerDimension:  65535,
			MaxStorageBufferBindingSize:       128 << 20,
			MaxStorageBuffersPerShaderStage:   8,
			MaxBufferSize:                     256 << 20,
		},
		kernels: map[string]invocation{
			matMulName: fakeMatMul,
			"mat_ewmult": func(gid [3]uint32, out []float32, params []int32, in [][]float32) {
				n := uint32(params[0])
				idx := gid[0]*n + gid[1]
				if int(idx) >= len(out) {
					return
				}
				out[idx] = in[0][idx] * in[1][idx]
			},
			"add3": func(gid [3]uint32, out []float32, _ []int32, in [][]float32) {
				i := gid[0]
				if int(i) >= len(out) {
					return
				}
				out[i] = in[0][i] + in[1][i] + in[2][i]
			},
		},
	}
}

// fakeMatMul mirrors matMulSource.
func fakeMatMul(gid [3]uint32, c []float32, dims []int32, in [][]float32) {
	m, n, k := uint32(dims[0]), uint32(dims[1]), uint32(dims[2])
	row, col := gid[0], gid[1]
	if row >= m || col >= n {
		return
	}
	var acc float32
	for i := uint32(0); i < k; i++ {
		acc += in[0][row*k+i] * in[1][i*n+col]
	}
	c[row*n+col] = acc
}

func (d *fakeDevice) newBuffer(_ string, n int) (buffer, error) {
	if d.failAlloc != nil {
		return nil, linalg.Backend("fake.newBuffer", d.failAlloc)
	}
	d.live++
	return &fakeBuffer{data: make([]float32, n), dev: d}, nil
}

func (d *fakeDevice) newParams(_ string, params []int32) (buffer, error) {
	d.live++
	p := make([]int32, len(params))
	copy(p, params)
	return &fakeBuffer{ints: p, dev: d}, nil
}

func (d *fakeDevice) write(b buffer, data []float32) error {
	fb := b.(*fakeBuffer)
	if fb.released {
		return errors.New("write to released buffer")
	}
	d.writes++
	copy(fb.data, data)
	return nil
}

func (d *fakeDevice) read(b buffer, n int) ([]float32, error) {
	fb := b.(*fakeBuffer)
	if fb.released {
		return nil, errors.New("read from released buffer")
	}
	d.reads++
	out := make([]float32, n)
	copy(out, fb.data)
	return out, nil
}

func (d *fakeDevice) compile(desc gpu.KernelDesc) (program, error) {
	d.compiles++
	if strings.Contains(desc.Source, "syntax error") {
		return nil, linalg.Backend("fake.compile", fmt.Errorf("shader compile: %s: unexpected token", desc.Label))
	}
	run, ok := d.kernels[desc.EntryPoint]
	if !ok {
		return nil, linalg.Backend("fake.compile", fmt.Errorf("pipeline create: entry point %q not found", desc.EntryPoint))
	}
	return &fakeProgram{run: run, workgroup: desc.Workgroup}, nil
}

func (d *fakeDevice) dispatch(p program, bindings []binding, groups [3]uint32) error {
	fp := p.(*fakeProgram)
	d.dispatches++

	var out []float32
	var params []int32
	var in [][]float32
	for _, b := range bindings {
		fb := b.buf.(*fakeBuffer)
		if fb.released {
			return errors.New("dispatch with released buffer")
		}
		switch {
		case b.index == 0:
			out = fb.data
		case b.index == 1:
			params = fb.ints
		default:
			in = append(in, fb.data)
		}
	}

	wg := fp.workgroup
	for i := range wg {
		if wg[i] == 0 {
			wg[i] = 1
		}
	}
	for x := uint32(0); x < groups[0]*wg[0]; x++ {
		for y := uint32(0); y < groups[1]*wg[1]; y++ {
			for z := uint32(0); z < groups[2]*wg[2]; z++ {
				fp.run([3]uint32{x, y, z}, out, params, in)
			}
		}
	}
	return nil
}

func (d *fakeDevice) limits() detector.Limits { return d.lim }

func (d *fakeDevice) report() *detector.Report {
	return &detector.Report{Name: "fake", Limits: d.lim}
}

func (d *fakeDevice) release() { d.released = true }

func newFakeCalculator(opts ...Option) (*Calculator, *fakeDevice, error) {
	dev := newFakeDevice()
	cfg := config{capacity: DefaultCapacity, growth: DefaultGrowth, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	c, err := newCalculator(dev, cfg)
	return c, dev, err
}
