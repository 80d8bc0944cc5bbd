// Package matrix provides the host-side matrix exchanged with the calculator.
//
// A Matrix is a row-major slice of float32 with a fixed element count. Its
// shape can change through Resize as long as rows*cols stays the same, and
// its contents can be replaced through UpdateData with a slice of the same
// length. Everything else returns a new Matrix.
package matrix

import (
	"fmt"
	"math"
	"strings"

	"github.com/openfluke/linalg"
)

// Matrix is a dense row-major float32 matrix.
type Matrix struct {
	data []float32
	rows int
	cols int
}

// Elements returns rows*cols, or false when either dimension is negative or
// the product does not fit in an int.
func Elements(rows, cols int) (int, bool) {
	if rows < 0 || cols < 0 {
		return 0, false
	}
	if cols != 0 && rows > math.MaxInt/cols {
		return 0, false
	}
	return rows * cols, true
}

// New copies data into a rows x cols matrix.
func New(data []float32, rows, cols int) (*Matrix, error) {
	n, ok := Elements(rows, cols)
	if !ok {
		return nil, linalg.Errorf(linalg.KindSize, "matrix.New", "invalid dimensions %dx%d", rows, cols)
	}
	if len(data) != n {
		return nil, linalg.Errorf(linalg.KindSize, "matrix.New",
			"data length (%d) does not match shape %dx%d", len(data), rows, cols)
	}
	buf := make([]float32, len(data))
	copy(buf, data)
	return &Matrix{data: buf, rows: rows, cols: cols}, nil
}

// Must is New for literals in tests and examples. It panics on error.
func Must(data []float32, rows, cols int) *Matrix {
	m, err := New(data, rows, cols)
	if err != nil {
		panic(err)
	}
	return m
}

// Zeros returns a rows x cols matrix of zeros. Negative dimensions give an
// empty matrix; it panics when rows*cols overflows.
func Zeros(rows, cols int) *Matrix {
	if rows < 0 || cols < 0 {
		rows, cols = 0, 0
	}
	n, ok := Elements(rows, cols)
	if !ok {
		panic(linalg.Errorf(linalg.KindSize, "matrix.Zeros", "%dx%d overflows", rows, cols))
	}
	return &Matrix{data: make([]float32, n), rows: rows, cols: cols}
}

// Identity returns the n x n identity matrix.
func Identity(n int) *Matrix {
	m := Zeros(n, n)
	for i := 0; i < n; i++ {
		m.data[i*n+i] = 1
	}
	return m
}

func (m *Matrix) Rows() int { return m.rows }
func (m *Matrix) Cols() int { return m.cols }
func (m *Matrix) Len() int  { return len(m.data) }

// Shape returns (rows, cols).
func (m *Matrix) Shape() (int, int) { return m.rows, m.cols }

// Data returns a copy of the row-major contents.
func (m *Matrix) Data() []float32 {
	out := make([]float32, len(m.data))
	copy(out, m.data)
	return out
}

// At returns the element at row r, column c.
func (m *Matrix) At(r, c int) (float32, error) {
	if r < 0 || r >= m.rows || c < 0 || c >= m.cols {
		return 0, linalg.Errorf(linalg.KindIndex, "matrix.At", "[%d,%d] outside %dx%d", r, c, m.rows, m.cols)
	}
	return m.data[r*m.cols+c], nil
}

// Row returns a copy of row r.
func (m *Matrix) Row(r int) ([]float32, error) {
	if r < 0 || r >= m.rows {
		return nil, linalg.Errorf(linalg.KindIndex, "matrix.Row", "row %d outside %d rows", r, m.rows)
	}
	out := make([]float32, m.cols)
	copy(out, m.data[r*m.cols:(r+1)*m.cols])
	return out, nil
}

// Col returns a copy of column c.
func (m *Matrix) Col(c int) ([]float32, error) {
	if c < 0 || c >= m.cols {
		return nil, linalg.Errorf(linalg.KindIndex, "matrix.Col", "column %d outside %d columns", c, m.cols)
	}
	out := make([]float32, m.rows)
	for r := 0; r < m.rows; r++ {
		out[r] = m.data[r*m.cols+c]
	}
	return out, nil
}

// Resize changes the shape in place. The element count must not change.
func (m *Matrix) Resize(rows, cols int) error {
	if n, ok := Elements(rows, cols); !ok || n != len(m.data) {
		return linalg.Errorf(linalg.KindResize, "matrix.Resize",
			"%dx%d does not hold %d elements", rows, cols, len(m.data))
	}
	m.rows, m.cols = rows, cols
	return nil
}

// UpdateData replaces the contents with a copy of data.
func (m *Matrix) UpdateData(data []float32) error {
	if len(data) != len(m.data) {
		return linalg.Errorf(linalg.KindDataUpdate, "matrix.UpdateData",
			"got %d elements, %dx%d needs %d", len(data), m.rows, m.cols, len(m.data))
	}
	copy(m.data, data)
	return nil
}

// Transpose returns a new matrix with rows and columns swapped.
func (m *Matrix) Transpose() *Matrix {
	out := Zeros(m.cols, m.rows)
	for r := 0; r < m.rows; r++ {
		for c := 0; c < m.cols; c++ {
			out.data[c*m.rows+r] = m.data[r*m.cols+c]
		}
	}
	return out
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	return &Matrix{data: m.Data(), rows: m.rows, cols: m.cols}
}

// Equal reports whether both matrices have the same shape and elements.
func (m *Matrix) Equal(o *Matrix) bool {
	if o == nil || m.rows != o.rows || m.cols != o.cols {
		return false
	}
	for i, v := range m.data {
		if o.data[i] != v {
			return false
		}
	}
	return true
}

func (m *Matrix) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Matrix(%dx%d)[", m.rows, m.cols)
	for r := 0; r < m.rows; r++ {
		if r > 0 {
			sb.WriteString("; ")
		}
		for c := 0; c < m.cols; c++ {
			if c > 0 {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(&sb, "%g", m.data[r*m.cols+c])
		}
	}
	sb.WriteByte(']')
	return sb.String()
}
