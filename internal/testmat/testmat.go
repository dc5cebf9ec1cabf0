// Copyright ©2025 The sundials Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package testmat provides banded test matrices with dense reference
// operations for use in the package tests.
package testmat

import (
	"math"
	"math/rand"
)

// Band is an n×n banded matrix with upper half-bandwidth MU and lower
// half-bandwidth ML, stored densely for simplicity.
type Band struct {
	N, MU, ML int

	data []float64 // row-major n×n
}

// New returns a zero banded matrix.
func New(n, mu, ml int) *Band {
	if n < 0 || mu < 0 || ml < 0 {
		panic("testmat: invalid dimensions")
	}
	return &Band{
		N:    n,
		MU:   mu,
		ML:   ml,
		data: make([]float64, n*n),
	}
}

// Random returns a banded matrix with entries uniform in [-1, 1) and the
// diagonal shifted to make the matrix strictly diagonally dominant.
func Random(n, mu, ml int, rnd *rand.Rand) *Band {
	m := New(n, mu, ml)
	for i := 0; i < n; i++ {
		for j := max(0, i-ml); j <= min(n-1, i+mu); j++ {
			m.data[i*n+j] = 2*rnd.Float64() - 1
		}
	}
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			if j != i {
				sum += math.Abs(m.data[i*n+j])
			}
		}
		m.data[i*n+i] = sum + 1
	}
	return m
}

// At returns element (i,j).
func (m *Band) At(i, j int) float64 {
	return m.data[i*m.N+j]
}

// Set sets element (i,j). It panics outside the band.
func (m *Band) Set(i, j int, v float64) {
	if j < i-m.ML || i+m.MU < j {
		panic("testmat: element outside band")
	}
	m.data[i*m.N+j] = v
}

// MulVec computes dst = A*x.
func (m *Band) MulVec(dst, x []float64) {
	if len(dst) != m.N || len(x) != m.N {
		panic("testmat: dimension mismatch")
	}
	for i := 0; i < m.N; i++ {
		s := 0.0
		for j := max(0, i-m.ML); j <= min(m.N-1, i+m.MU); j++ {
			s += m.data[i*m.N+j] * x[j]
		}
		dst[i] = s
	}
}

// SolveDense solves A*x = b by dense Gaussian elimination with partial
// pivoting, as an independent reference for the banded solvers. It returns
// nil if a zero pivot is met.
func (m *Band) SolveDense(b []float64) []float64 {
	n := m.N
	if len(b) != n {
		panic("testmat: dimension mismatch")
	}
	a := make([]float64, len(m.data))
	copy(a, m.data)
	x := make([]float64, n)
	copy(x, b)

	for k := 0; k < n; k++ {
		p := k
		for i := k + 1; i < n; i++ {
			if math.Abs(a[i*n+k]) > math.Abs(a[p*n+k]) {
				p = i
			}
		}
		if a[p*n+k] == 0 {
			return nil
		}
		if p != k {
			for j := k; j < n; j++ {
				a[p*n+j], a[k*n+j] = a[k*n+j], a[p*n+j]
			}
			x[p], x[k] = x[k], x[p]
		}
		for i := k + 1; i < n; i++ {
			f := a[i*n+k] / a[k*n+k]
			if f == 0 {
				continue
			}
			for j := k; j < n; j++ {
				a[i*n+j] -= f * a[k*n+j]
			}
			x[i] -= f * x[k]
		}
	}
	for k := n - 1; k >= 0; k-- {
		for j := k + 1; j < n; j++ {
			x[k] -= a[k*n+j] * x[j]
		}
		x[k] /= a[k*n+k]
	}
	return x
}
