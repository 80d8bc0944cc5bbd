package calculator

import (
	"fmt"
	"sort"

	"github.com/openfluke/linalg"
	"github.com/openfluke/linalg/detector"
	"github.com/openfluke/linalg/gpu"
)

// KernelID identifies a compiled kernel within one Calculator.
type KernelID int

// Shape is the row and column count of a device-resident matrix.
type Shape struct {
	Rows, Cols int
}

func (s Shape) String() string { return fmt.Sprintf("%dx%d", s.Rows, s.Cols) }

// ShapeFunc computes the output shape and the global dispatch size of a
// kernel from its operand shapes. It sees shapes only, never data, and must
// be deterministic. Errors should be linalg.ErrArgument for a wrong operand
// count and linalg.ErrSize for incompatible shapes.
type ShapeFunc func(operands []Shape) (out Shape, dispatch []int, err error)

// KernelSpec describes a WGSL kernel to register.
//
// Every kernel follows one binding convention in group 0: binding 0 is the
// output array<f32> (read_write), binding 1 holds Params scalar i32
// parameters (only bound when Params > 0), and operand i sits at binding 2+i.
// Kernels must bounds-check their global id, since dispatch sizes are
// rounded up to whole workgroups.
//
// Workgroup is used to turn global sizes into workgroup counts and must equal
// the entry point's @workgroup_size; the source is not parsed to verify it.
// Declaring a larger size than the shader launches too few workgroups and
// leaves part of the output unwritten. Sizes beyond the device's workgroup
// limits are rejected by Register.
type KernelSpec struct {
	Name       string
	Source     string
	EntryPoint string // defaults to Name
	Shape      ShapeFunc
	Workgroup  [3]uint32 // must match @workgroup_size; zero entries mean 1
	Params     int
}

type kernelEntry struct {
	id   KernelID
	spec KernelSpec
	prog program
	// derives scalar parameters from operand shapes instead of taking them
	// from the caller; set for the built-in multiply.
	params func([]Shape) []int32
}

type registry struct {
	dev     device
	kernels []*kernelEntry
	byName  map[string]KernelID
}

func newRegistry(dev device) *registry {
	return &registry{dev: dev, byName: make(map[string]KernelID)}
}

// loadDefault compiles the built-in matrix multiply as MatMulKernel.
func (r *registry) loadDefault() error {
	spec := matMulSpec()
	prog, err := r.dev.compile(gpu.KernelDesc{
		Label:      spec.Name,
		Source:     spec.Source,
		EntryPoint: spec.EntryPoint,
		Workgroup:  spec.Workgroup,
		Layout:     matMulLayout,
	})
	if err != nil {
		return err
	}
	r.add(&kernelEntry{spec: spec, prog: prog, params: matMulParams})
	return nil
}

// loadCustom compiles spec and registers it. Nothing is registered on error.
func (r *registry) loadCustom(spec KernelSpec) (KernelID, error) {
	if spec.EntryPoint == "" {
		spec.EntryPoint = spec.Name
	}
	switch {
	case spec.Name == "":
		return 0, linalg.Errorf(linalg.KindArgument, "calculator.Register", "kernel name is empty")
	case spec.Shape == nil:
		return 0, linalg.Errorf(linalg.KindArgument, "calculator.Register", "kernel %q has no shape function", spec.Name)
	case spec.Params < 0:
		return 0, linalg.Errorf(linalg.KindArgument, "calculator.Register", "kernel %q declares %d parameters", spec.Name, spec.Params)
	}
	if _, dup := r.byName[spec.Name]; dup {
		return 0, linalg.Errorf(linalg.KindArgument, "calculator.Register", "kernel %q already registered", spec.Name)
	}
	for i, w := range spec.Workgroup {
		if w == 0 {
			spec.Workgroup[i] = 1
		}
	}
	if err := checkWorkgroup(spec.Name, spec.Workgroup, r.dev.limits()); err != nil {
		return 0, err
	}

	prog, err := r.dev.compile(gpu.KernelDesc{
		Label:      spec.Name,
		Source:     spec.Source,
		EntryPoint: spec.EntryPoint,
		Workgroup:  spec.Workgroup,
	})
	if err != nil {
		return 0, err
	}
	return r.add(&kernelEntry{spec: spec, prog: prog}), nil
}

// checkWorkgroup rejects workgroup sizes no pipeline on this device could
// declare. Zero limits are unchecked.
func checkWorkgroup(name string, wg [3]uint32, lim detector.Limits) error {
	limit := [3]uint32{lim.MaxComputeWorkgroupSizeX, lim.MaxComputeWorkgroupSizeY, lim.MaxComputeWorkgroupSizeZ}
	for i := range wg {
		if limit[i] != 0 && wg[i] > limit[i] {
			return linalg.Errorf(linalg.KindArgument, "calculator.Register",
				"kernel %q workgroup %v exceeds device size %v", name, wg, limit)
		}
	}
	invocations := uint64(wg[0]) * uint64(wg[1]) * uint64(wg[2])
	if lim.MaxComputeInvocationsPerWorkgroup != 0 && invocations > uint64(lim.MaxComputeInvocationsPerWorkgroup) {
		return linalg.Errorf(linalg.KindArgument, "calculator.Register",
			"kernel %q workgroup %v has %d invocations, device allows %d",
			name, wg, invocations, lim.MaxComputeInvocationsPerWorkgroup)
	}
	return nil
}

func (r *registry) add(e *kernelEntry) KernelID {
	e.id = KernelID(len(r.kernels))
	r.kernels = append(r.kernels, e)
	r.byName[e.spec.Name] = e.id
	return e.id
}

func (r *registry) lookup(id KernelID) (*kernelEntry, error) {
	if id < 0 || int(id) >= len(r.kernels) {
		return nil, linalg.Errorf(linalg.KindArgument, "calculator.lookup", "kernel %d is not registered", id)
	}
	return r.kernels[id], nil
}

func (r *registry) lookupName(name string) (KernelID, bool) {
	id, ok := r.byName[name]
	return id, ok
}

func (r *registry) names() []string {
	out := make([]string, 0, len(r.byName))
	for k := range r.byName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *registry) releaseAll() {
	for _, e := range r.kernels {
		e.prog.release()
	}
	r.kernels = nil
	r.byName = make(map[string]KernelID)
}

// Elementwise returns a ShapeFunc for kernels over n operands of identical
// shape. The output has that shape and the dispatch is (rows, cols).
func Elementwise(n int) ShapeFunc {
	return func(in []Shape) (Shape, []int, error) {
		if len(in) != n || n == 0 {
			return Shape{}, nil, argCountError("elementwise", n, len(in))
		}
		for _, s := range in[1:] {
			if s != in[0] {
				return Shape{}, nil, sizeErrorf("elementwise", "operand shapes %v and %v differ", in[0], s)
			}
		}
		return in[0], []int{in[0].Rows, in[0].Cols}, nil
	}
}

func argCountError(kernel string, want, got int) error {
	return linalg.Errorf(linalg.KindArgument, kernel, "expected %d operands, got %d", want, got)
}

func sizeErrorf(kernel, format string, args ...any) error {
	return linalg.Errorf(linalg.KindSize, kernel, format, args...)
}
