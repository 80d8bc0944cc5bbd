package matrix

import (
	"github.com/openfluke/linalg"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Add returns m + o element-wise.
func (m *Matrix) Add(o *Matrix) (*Matrix, error) {
	if err := sameShape("matrix.Add", m, o); err != nil {
		return nil, err
	}
	out := m.Clone()
	for i, v := range o.data {
		out.data[i] += v
	}
	return out, nil
}

// Sub returns m - o element-wise.
func (m *Matrix) Sub(o *Matrix) (*Matrix, error) {
	if err := sameShape("matrix.Sub", m, o); err != nil {
		return nil, err
	}
	out := m.Clone()
	for i, v := range o.data {
		out.data[i] -= v
	}
	return out, nil
}

// AddScalar returns m with s added to every element.
func (m *Matrix) AddScalar(s float32) *Matrix {
	out := m.Clone()
	for i := range out.data {
		out.data[i] += s
	}
	return out
}

// Scale returns m with every element multiplied by s.
func (m *Matrix) Scale(s float32) *Matrix {
	out := m.Clone()
	for i := range out.data {
		out.data[i] *= s
	}
	return out
}

// Neg returns -m.
func (m *Matrix) Neg() *Matrix { return m.Scale(-1) }

// Mul returns the matrix product m * o computed on the CPU.
func (m *Matrix) Mul(o *Matrix) (*Matrix, error) {
	if m.cols != o.rows {
		return nil, linalg.Errorf(linalg.KindSize, "matrix.Mul",
			"incompatible dimensions: %dx%d * %dx%d", m.rows, m.cols, o.rows, o.cols)
	}
	out := Zeros(m.rows, o.cols)
	if m.rows == 0 || o.cols == 0 || m.cols == 0 {
		return out, nil
	}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, m.general(), o.general(), 0, out.general())
	return out, nil
}

func (m *Matrix) general() blas32.General {
	return blas32.General{Rows: m.rows, Cols: m.cols, Stride: m.cols, Data: m.data}
}

func sameShape(op string, a, b *Matrix) error {
	if a.rows != b.rows || a.cols != b.cols {
		return linalg.Errorf(linalg.KindSize, op,
			"non-identical dimensions %dx%d and %dx%d", a.rows, a.cols, b.rows, b.cols)
	}
	return nil
}
