package calculator

import "github.com/openfluke/webgpu/wgpu"

// MatMulKernel is the id of the built-in matrix multiply.
const MatMulKernel KernelID = 0

const matMulName = "mat_mul"

// matMulSource computes c = a * b with one invocation per output element.
// dims holds [rows of a, cols of b, shared dimension].
const matMulSource = `
@group(0) @binding(0) var<storage, read_write> c : array<f32>;
@group(0) @binding(1) var<storage, read> dims : array<i32>;
@group(0) @binding(2) var<storage, read> a : array<f32>;
@group(0) @binding(3) var<storage, read> b : array<f32>;

@compute @workgroup_size(8, 8, 1)
fn mat_mul(@builtin(global_invocation_id) gid : vec3<u32>) {
	let m = u32(dims[0]);
	let n = u32(dims[1]);
	let k = u32(dims[2]);
	let row = gid.x;
	let col = gid.y;
	if (row >= m || col >= n) {
		return;
	}

	var acc : f32 = 0.0;
	for (var i : u32 = 0u; i < k; i = i + 1u) {
		acc = acc + a[row * k + i] * b[i * n + col];
	}
	c[row * n + col] = acc;
}
`

var matMulLayout = []wgpu.BufferBindingType{
	wgpu.BufferBindingTypeStorage,
	wgpu.BufferBindingTypeReadOnlyStorage,
	wgpu.BufferBindingTypeReadOnlyStorage,
	wgpu.BufferBindingTypeReadOnlyStorage,
}

func matMulSpec() KernelSpec {
	return KernelSpec{
		Name:       matMulName,
		Source:     matMulSource,
		EntryPoint: matMulName,
		Shape:      matMulShape,
		Workgroup:  [3]uint32{8, 8, 1},
		Params:     3,
	}
}

func matMulShape(in []Shape) (Shape, []int, error) {
	if len(in) != 2 {
		return Shape{}, nil, argCountError(matMulName, 2, len(in))
	}
	lhs, rhs := in[0], in[1]
	if lhs.Cols != rhs.Rows {
		return Shape{}, nil, sizeErrorf(matMulName, "lhs is %v, rhs is %v: lhs cols must equal rhs rows", lhs, rhs)
	}
	out := Shape{Rows: lhs.Rows, Cols: rhs.Cols}
	return out, []int{out.Rows, out.Cols}, nil
}

func matMulParams(in []Shape) []int32 {
	return []int32{int32(in[0].Rows), int32(in[1].Cols), int32(in[0].Cols)}
}
