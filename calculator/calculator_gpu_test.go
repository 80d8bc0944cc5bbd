package calculator

import (
	"errors"
	"testing"

	"github.com/openfluke/linalg"
	"github.com/openfluke/linalg/matrix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ewmultWGSL = `
@group(0) @binding(0) var<storage, read_write> c : array<f32>;
@group(0) @binding(1) var<storage, read> dims : array<i32>;
@group(0) @binding(2) var<storage, read> a : array<f32>;
@group(0) @binding(3) var<storage, read> b : array<f32>;

@compute @workgroup_size(1, 1, 1)
fn mat_ewmult(@builtin(global_invocation_id) gid : vec3<u32>) {
	let n = u32(dims[0]);
	let idx = gid.x * n + gid.y;
	if (idx >= arrayLength(&c)) {
		return;
	}
	c[idx] = a[idx] * b[idx];
}
`

// newDeviceCalculator returns a Calculator on the real adapter or skips.
func newDeviceCalculator(t *testing.T) *Calculator {
	t.Helper()
	c, err := New()
	if err != nil {
		t.Skipf("no WebGPU device: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDeviceMatMul(t *testing.T) {
	c := newDeviceCalculator(t)
	t.Logf("adapter: %s (%s)", c.Report().Name, c.Report().Backend)

	a, err := c.Store(matrix.Must(matA, 2, 3))
	require.NoError(t, err)
	b, err := c.Store(matrix.Must(matB, 3, 2))
	require.NoError(t, err)

	got, ab, err := c.MatMul(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float32{12, 10, 30, 25}, got.Data())

	d, _, err := c.MatMul(ab, a)
	require.NoError(t, err)
	assert.Equal(t, []float32{52, 74, 96, 130, 185, 240}, d.Data())

	before := c.Stats()
	_, _, err = c.MatMul(a, a)
	assert.True(t, errors.Is(err, linalg.ErrSize))
	assert.Equal(t, before, c.Stats())
}

func TestDeviceMatMulAgainstHost(t *testing.T) {
	c := newDeviceCalculator(t)

	const m, k, n = 37, 19, 23
	lhs := make([]float32, m*k)
	rhs := make([]float32, k*n)
	for i := range lhs {
		lhs[i] = float32(i%5) - 2
	}
	for i := range rhs {
		rhs[i] = float32(i%3) - 1
	}
	hl, err := c.Store(matrix.Must(lhs, m, k))
	require.NoError(t, err)
	hr, err := c.Store(matrix.Must(rhs, k, n))
	require.NoError(t, err)

	got, _, err := c.MatMul(hl, hr)
	require.NoError(t, err)
	want, err := matrix.Must(lhs, m, k).Mul(matrix.Must(rhs, k, n))
	require.NoError(t, err)
	assert.InDeltaSlice(t, want.Data(), got.Data(), 1e-4)
}

func TestDeviceCustomKernel(t *testing.T) {
	c := newDeviceCalculator(t)

	id, err := c.Register(KernelSpec{
		Name:      "mat_ewmult",
		Source:    ewmultWGSL,
		Shape:     Elementwise(2),
		Workgroup: [3]uint32{1, 1, 1},
		Params:    1,
	})
	require.NoError(t, err)

	a, err := c.Store(matrix.Must(matA, 2, 3))
	require.NoError(t, err)
	b, err := c.Store(matrix.Must(matB, 2, 3))
	require.NoError(t, err)

	got, _, err := c.Exec(id, nil, []int32{3}, a, b)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 2, 6, 12, 10, 6}, got.Data())

	_, err = c.Register(KernelSpec{Name: "broken", Source: "fn broken( {", Shape: Elementwise(1)})
	assert.True(t, errors.Is(err, linalg.ErrBackend))
	assert.Equal(t, []string{"mat_ewmult", matMulName}, c.Kernels())
}

func TestDeviceFreeAndGrow(t *testing.T) {
	c := newDeviceCalculator(t)

	var handles []Handle
	for i := 0; i < 10; i++ {
		h, err := c.Store(matrix.Must([]float32{float32(i)}, 1, 1))
		require.NoError(t, err)
		handles = append(handles, h)
	}
	for i, h := range handles {
		got, err := c.Retrieve(h)
		require.NoError(t, err)
		assert.Equal(t, []float32{float32(i)}, got.Data())
	}

	require.NoError(t, c.Free(handles[3]))
	_, err := c.Retrieve(handles[3])
	assert.True(t, errors.Is(err, linalg.ErrMemoryInconsistency))
}
