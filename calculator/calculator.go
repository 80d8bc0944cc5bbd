// Package calculator keeps matrices resident on a WebGPU device and runs
// compute kernels against them.
//
// A Calculator owns one device, a table of device buffers addressed by
// Handle, and a registry of compiled kernels. Every call blocks until the
// device has finished, so operations from one goroutine complete in the
// order they were issued. A Calculator may be shared between goroutines;
// calls are serialised by a single mutex.
package calculator

import (
	"fmt"
	"sync"

	"github.com/openfluke/linalg"
	"github.com/openfluke/linalg/detector"
	"github.com/openfluke/linalg/gpu"
	"github.com/openfluke/linalg/matrix"
	"github.com/rs/zerolog"
)

// Calculator is the entry point to the device.
type Calculator struct {
	mu     sync.Mutex
	dev    device
	mem    *memoryTable
	progs  *registry
	log    zerolog.Logger
	closed bool
}

// Stats is a snapshot of buffer table and registry occupancy.
type Stats struct {
	Occupied int
	Capacity int
	Kernels  int
}

// New acquires a device and compiles the built-in kernels. It returns
// linalg.ErrNoDevice when no adapter is available and linalg.ErrBackend
// when the built-in program fails to compile.
func New(opts ...Option) (*Calculator, error) {
	cfg := newConfig(opts)
	ctx, err := gpu.NewContext(gpu.Options{
		Adapter:         cfg.adapter,
		PowerPreference: cfg.power,
		Logger:          cfg.log,
	})
	if err != nil {
		return nil, err
	}
	c, err := newCalculator(&wgpuDevice{ctx: ctx}, cfg)
	if err != nil {
		ctx.Release()
		return nil, err
	}
	return c, nil
}

func newCalculator(dev device, cfg config) (*Calculator, error) {
	c := &Calculator{
		dev:   dev,
		mem:   newMemoryTable(dev, cfg.capacity, cfg.growth),
		progs: newRegistry(dev),
		log:   cfg.log,
	}
	if err := c.progs.loadDefault(); err != nil {
		return nil, fmt.Errorf("load default program: %w", err)
	}
	c.log.Debug().Int("capacity", cfg.capacity).Int("growth", cfg.growth).Msg("calculator ready")
	return c, nil
}

// Store copies m to the device and returns its handle.
func (c *Calculator) Store(m *matrix.Matrix) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("calculator.Store"); err != nil {
		return 0, err
	}
	if m == nil {
		return 0, linalg.Errorf(linalg.KindArgument, "calculator.Store", "nil matrix")
	}
	return c.store(m)
}

func (c *Calculator) store(m *matrix.Matrix) (Handle, error) {
	h, err := c.mem.allocate(m.Rows(), m.Cols())
	if err != nil {
		return 0, err
	}
	if err := c.mem.upload(h, m); err != nil {
		_ = c.mem.free(h)
		return 0, err
	}
	c.log.Debug().Stringer("handle", h).Int("rows", m.Rows()).Int("cols", m.Cols()).Msg("stored matrix")
	return h, nil
}

// Retrieve copies the matrix behind h back to the host.
func (c *Calculator) Retrieve(h Handle) (*matrix.Matrix, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("calculator.Retrieve"); err != nil {
		return nil, err
	}
	return c.mem.download(h)
}

// Overwrite replaces the contents behind h with m, which must have the same
// shape. h is invalidated; the returned handle refers to the new contents.
func (c *Calculator) Overwrite(h Handle, m *matrix.Matrix) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("calculator.Overwrite"); err != nil {
		return 0, err
	}
	if m == nil {
		return 0, linalg.Errorf(linalg.KindArgument, "calculator.Overwrite", "nil matrix")
	}
	return c.mem.overwrite(h, m)
}

// Free releases the buffer behind h. h is invalid afterwards.
func (c *Calculator) Free(h Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("calculator.Free"); err != nil {
		return err
	}
	if err := c.mem.free(h); err != nil {
		return err
	}
	c.log.Debug().Stringer("handle", h).Msg("freed matrix")
	return nil
}

// Shape returns the dimensions of the matrix behind h without reading it.
func (c *Calculator) Shape(h Handle) (Shape, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("calculator.Shape"); err != nil {
		return Shape{}, err
	}
	return c.mem.shape(h)
}

// MatMul multiplies the matrices behind lhs and rhs on the device. The
// product is returned and also stays resident under the returned handle.
func (c *Calculator) MatMul(lhs, rhs Handle) (*matrix.Matrix, Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("calculator.MatMul"); err != nil {
		return nil, 0, err
	}
	return c.exec(MatMulKernel, nil, nil, []Handle{lhs, rhs})
}

// Register compiles a custom kernel and returns its id.
func (c *Calculator) Register(spec KernelSpec) (KernelID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("calculator.Register"); err != nil {
		return 0, err
	}
	id, err := c.progs.loadCustom(spec)
	if err != nil {
		return 0, err
	}
	c.log.Debug().Str("kernel", spec.Name).Int("id", int(id)).Msg("registered kernel")
	return id, nil
}

// Exec runs kernel id over operands. A non-nil dispatch replaces the global
// size inferred by the kernel's shape function; the shape function still
// validates the operands and decides the output shape. params are the
// kernel's scalar parameters and must number exactly KernelSpec.Params;
// the built-in multiply derives its own and takes none.
func (c *Calculator) Exec(id KernelID, dispatch []int, params []int32, operands ...Handle) (*matrix.Matrix, Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("calculator.Exec"); err != nil {
		return nil, 0, err
	}
	return c.exec(id, dispatch, params, operands)
}

func (c *Calculator) exec(id KernelID, dispatch []int, params []int32, operands []Handle) (*matrix.Matrix, Handle, error) {
	k, err := c.progs.lookup(id)
	if err != nil {
		return nil, 0, err
	}

	shapes := make([]Shape, len(operands))
	bufs := make([]buffer, len(operands))
	for i, h := range operands {
		if shapes[i], err = c.mem.shape(h); err != nil {
			return nil, 0, err
		}
		if bufs[i], err = c.mem.buffer(h); err != nil {
			return nil, 0, err
		}
	}

	out, inferred, err := k.spec.Shape(shapes)
	if err != nil {
		return nil, 0, err
	}
	if out.Rows <= 0 || out.Cols <= 0 {
		return nil, 0, linalg.Errorf(linalg.KindSize, k.spec.Name, "shape function returned output %v", out)
	}
	if dispatch == nil {
		dispatch = inferred
	}

	if k.params != nil {
		if params != nil {
			return nil, 0, linalg.Errorf(linalg.KindArgument, k.spec.Name, "kernel derives its own parameters, got %d", len(params))
		}
		params = k.params(shapes)
	} else if len(params) != k.spec.Params {
		return nil, 0, linalg.Errorf(linalg.KindArgument, k.spec.Name,
			"expected %d scalar parameters, got %d", k.spec.Params, len(params))
	}

	lim := c.dev.limits()
	storage := len(operands) + 1
	if len(params) > 0 {
		storage++
	}
	if lim.MaxStorageBuffersPerShaderStage != 0 && storage > int(lim.MaxStorageBuffersPerShaderStage) {
		return nil, 0, linalg.Errorf(linalg.KindArgument, k.spec.Name,
			"launch binds %d storage buffers, device allows %d", storage, lim.MaxStorageBuffersPerShaderStage)
	}

	groups, err := gpu.Workgroups(dispatch, k.spec.Workgroup, lim.MaxComputeWorkgroupsPerDimension)
	if err != nil {
		return nil, 0, err
	}

	h, err := c.mem.allocate(out.Rows, out.Cols)
	if err != nil {
		return nil, 0, err
	}
	result, err := c.launch(k, h, params, bufs, groups)
	if err != nil {
		_ = c.mem.free(h)
		return nil, 0, err
	}
	c.log.Debug().
		Str("kernel", k.spec.Name).
		Stringer("result", h).
		Stringer("shape", out).
		Msg("kernel complete")
	return result, h, nil
}

func (c *Calculator) launch(k *kernelEntry, out Handle, params []int32, operands []buffer, groups [3]uint32) (*matrix.Matrix, error) {
	outBuf, err := c.mem.buffer(out)
	if err != nil {
		return nil, err
	}
	bindings := make([]binding, 0, len(operands)+2)
	bindings = append(bindings, binding{index: 0, buf: outBuf})
	if len(params) > 0 {
		pb, err := c.dev.newParams(k.spec.Name+"_Params", params)
		if err != nil {
			return nil, err
		}
		defer pb.release()
		bindings = append(bindings, binding{index: 1, buf: pb})
	}
	for i, b := range operands {
		bindings = append(bindings, binding{index: uint32(2 + i), buf: b})
	}

	if err := c.dev.dispatch(k.prog, bindings, groups); err != nil {
		return nil, err
	}
	return c.mem.download(out)
}

// Lookup finds a registered kernel by name.
func (c *Calculator) Lookup(name string) (KernelID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progs.lookupName(name)
}

// Kernels lists registered kernel names in sorted order.
func (c *Calculator) Kernels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progs.names()
}

// Stats reports buffer table occupancy and kernel count.
func (c *Calculator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Occupied: c.mem.occupied(),
		Capacity: c.mem.capacity(),
		Kernels:  len(c.progs.kernels),
	}
}

// Reserve grows the buffer table to at least n slots ahead of a burst of
// allocations. It never shrinks the table.
func (c *Calculator) Reserve(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("calculator.Reserve"); err != nil {
		return err
	}
	if n <= c.mem.capacity() {
		return nil
	}
	return c.mem.resizeCapacity(n)
}

// Report describes the device the Calculator is bound to.
func (c *Calculator) Report() *detector.Report {
	return c.dev.report()
}

// Close frees every buffer and kernel and releases the device. Later calls
// return linalg.ErrClosed.
func (c *Calculator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.mem.releaseAll()
	c.progs.releaseAll()
	c.dev.release()
	c.log.Debug().Msg("calculator closed")
	return nil
}

func (c *Calculator) check(op string) error {
	if c.closed {
		return &linalg.Error{Kind: linalg.KindClosed, Op: op}
	}
	return nil
}
