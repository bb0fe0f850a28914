package ml

import (
	"math/rand/v2"
	"unsafe"

	"gonum.org/v1/gonum/mat"
)

// cacheAlign is the byte alignment of every Matrix backing buffer.
const cacheAlign = 128

// Matrix is a dense row-major matrix over a flat, 128-byte aligned slice.
// The slice is shared with a gonum Dense so either view can be used.
type Matrix struct {
	rows, cols int
	data       []float64
	dense      *mat.Dense
}

// -------- CONSTRUCTORS ------- //
func NewMatrix(rows, cols int) *Matrix {
	data := alignedFloats(rows * cols)
	return &Matrix{
		rows:  rows,
		cols:  cols,
		data:  data,
		dense: mat.NewDense(rows, cols, data),
	}
}

// alignedFloats over-allocates by one alignment unit and re-slices so that
// element 0 starts on a cacheAlign boundary. The Go heap never moves objects.
func alignedFloats(n int) []float64 {
	const pad = cacheAlign / 8
	buf := make([]float64, n+pad)
	if n == 0 {
		return buf[:0]
	}
	addr := uintptr(unsafe.Pointer(&buf[0]))
	off := 0
	if rem := addr % cacheAlign; rem != 0 {
		off = int((cacheAlign - rem) / 8)
	}
	return buf[off : off+n : off+n]
}

// ------- MATRIX METHODS ------ //
func (m *Matrix) Dims() (int, int) { return m.rows, m.cols }

// Row returns row i as a slice aliasing the backing buffer.
func (m *Matrix) Row(i int) []float64 {
	return m.dense.RawRowView(i)
}

func (m *Matrix) Data() []float64 { return m.data }

// RandomizeUniform fills the matrix with values drawn uniformly from [-0.5/scale, 0.5/scale].
// Columns are the outer loop.
func (m *Matrix) RandomizeUniform(rng *rand.Rand, scale float64) {
	for j := 0; j < m.cols; j++ {
		for i := 0; i < m.rows; i++ {
			m.data[i*m.cols+j] = (rng.Float64() - 0.5) / scale
		}
	}
}

func (m *Matrix) Fill(v float64) {
	for i := range m.data {
		m.data[i] = v
	}
}

func (m *Matrix) Clone() *Matrix {
	c := NewMatrix(m.rows, m.cols)
	copy(c.data, m.data)
	return c
}
