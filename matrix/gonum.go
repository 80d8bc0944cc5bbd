package matrix

import "gonum.org/v1/gonum/mat"

// FromDense converts any gonum matrix, narrowing elements to float32.
func FromDense(d mat.Matrix) *Matrix {
	r, c := d.Dims()
	out := Zeros(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.data[i*c+j] = float32(d.At(i, j))
		}
	}
	return out
}

// Dense converts m to a gonum *mat.Dense. Empty matrices yield nil since
// gonum does not allow zero-sized dense matrices.
func (m *Matrix) Dense() *mat.Dense {
	if m.rows == 0 || m.cols == 0 {
		return nil
	}
	data := make([]float64, len(m.data))
	for i, v := range m.data {
		data[i] = float64(v)
	}
	return mat.NewDense(m.rows, m.cols, data)
}
