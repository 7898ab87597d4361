// business/bandit/math.go
package bandit

import (
	"fmt"
	"math"
)

const (
	singularPivot  = 1e-12
	shermanMinDen  = 1e-12
	symmetryTol    = 1e-8
	choleskyJitter = 1e-10
)

func identity(d int, scale float64) [][]float64 {
	m := make([][]float64, d)
	for i := range d {
		m[i] = make([]float64, d)
		m[i][i] = scale
	}
	return m
}

func cloneMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i := range m {
		out[i] = append([]float64(nil), m[i]...)
	}
	return out
}

func cloneVector(v []float64) []float64 {
	return append([]float64(nil), v...)
}

// y = A * x
func matVecMul(A [][]float64, x []float64) []float64 {
	y := make([]float64, len(A))
	for i := range A {
		sum := 0.0
		for j, v := range A[i] {
			sum += v * x[j]
		}
		y[i] = sum
	}
	return y
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// A := A + x x^T
func addOuter(A [][]float64, x []float64) {
	for i := range x {
		for j := range x {
			A[i][j] += x[i] * x[j]
		}
	}
}

// b := b + r x
func addScaled(b []float64, x []float64, r float64) {
	for i := range x {
		b[i] += r * x[i]
	}
}

// shermanMorrison applies (A + x x^T)^-1 = A^-1 - (A^-1 x)(A^-1 x)^T / (1 + x^T A^-1 x)
// in place. It reports false when the denominator is too small to trust.
func shermanMorrison(AInv [][]float64, x []float64) bool {
	Ax := matVecMul(AInv, x)
	den := 1.0 + dot(x, Ax)
	if !(den > shermanMinDen) || math.IsInf(den, 0) {
		return false
	}
	for i := range Ax {
		for j := range Ax {
			AInv[i][j] -= Ax[i] * Ax[j] / den
		}
	}
	return true
}

// invert inverts a square matrix using Gauss-Jordan with partial pivoting.
func invert(A [][]float64) ([][]float64, error) {
	d := len(A)
	aug := make([][]float64, d)

	// Build augmented [A | I]
	for i := range d {
		if len(A[i]) != d {
			return nil, fmt.Errorf("matrix is not square")
		}
		aug[i] = make([]float64, 2*d)
		copy(aug[i], A[i])
		aug[i][d+i] = 1.0
	}

	for col := range d {
		p := col
		for r := col + 1; r < d; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[p][col]) {
				p = r
			}
		}
		if math.Abs(aug[p][col]) < singularPivot {
			return nil, fmt.Errorf("matrix is singular")
		}
		aug[col], aug[p] = aug[p], aug[col]

		// Normalize pivot row
		pivot := aug[col][col]
		for j := range 2 * d {
			aug[col][j] /= pivot
		}

		// Eliminate other rows
		for i := range d {
			if i == col {
				continue
			}
			factor := aug[i][col]
			if factor == 0 {
				continue
			}
			for j := range 2 * d {
				aug[i][j] -= factor * aug[col][j]
			}
		}
	}

	inv := make([][]float64, d)
	for i := range d {
		inv[i] = append([]float64(nil), aug[i][d:]...)
	}
	return inv, nil
}

// cholesky returns lower-triangular L with L L^T = A. A tiny diagonal jitter
// absorbs round-off; anything worse is reported as not positive definite.
func cholesky(A [][]float64) ([][]float64, error) {
	d := len(A)
	L := make([][]float64, d)
	for i := range d {
		L[i] = make([]float64, d)
	}
	for i := range d {
		for j := 0; j <= i; j++ {
			sum := A[i][j]
			for k := range j {
				sum -= L[i][k] * L[j][k]
			}
			if i == j {
				sum += choleskyJitter
				if !(sum > 0) {
					return nil, fmt.Errorf("matrix is not positive definite")
				}
				L[i][i] = math.Sqrt(sum)
				continue
			}
			L[i][j] = sum / L[j][j]
		}
	}
	return L, nil
}

func symmetrize(A [][]float64) {
	for i := range A {
		for j := i + 1; j < len(A); j++ {
			m := 0.5 * (A[i][j] + A[j][i])
			A[i][j], A[j][i] = m, m
		}
	}
}

func isSymmetric(A [][]float64) bool {
	for i := range A {
		for j := i + 1; j < len(A); j++ {
			scale := math.Max(1, math.Max(math.Abs(A[i][j]), math.Abs(A[j][i])))
			if math.Abs(A[i][j]-A[j][i]) > symmetryTol*scale {
				return false
			}
		}
	}
	return true
}

func allFinite(v []float64) bool {
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func matrixFinite(A [][]float64) bool {
	for _, row := range A {
		if !allFinite(row) {
			return false
		}
	}
	return true
}

func trace(A [][]float64) float64 {
	t := 0.0
	for i := range A {
		t += A[i][i]
	}
	return t
}
