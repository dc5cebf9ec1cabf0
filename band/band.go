// Copyright ©2025 The sundials Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package band provides a column-major banded matrix type together with an
// in-place LU factorization and the corresponding direct solve.
//
// A banded matrix of order n with upper half-bandwidth mu and lower
// half-bandwidth ml stores only the diagonals within [-mu, ml] of the main
// diagonal. The storage upper half-bandwidth smu may be larger than mu in
// order to hold the fill-in generated by row interchanges during
// factorization; a matrix that will be factored must be allocated with
//  smu = min(n-1, mu+ml).
// A matrix that only holds data and is never factored can use smu = mu.
package band

import (
	"github.com/gonum/floats"
)

// Matrix is a banded matrix of order n stored column by column. Each stored
// column has length smu+ml+1 with the main diagonal element at index smu, so
// that element (i,j) of the matrix lives at index smu+i-j of column j.
//
// Element access outside rows [j-smu, j+ml] of column j is not checked and
// must not be relied upon.
type Matrix struct {
	n    int
	mu   int
	ml   int
	smu  int
	ld   int // column stride, smu+ml+1
	data []float64
}

// New allocates a zeroed banded matrix of order n with the given half-bandwidths.
// It panics if n is negative, any bandwidth is negative, or smu < mu.
// n == 0 is valid and yields a degenerate matrix on which all operations
// are no-ops.
func New(n, mu, ml, smu int) *Matrix {
	switch {
	case n < 0:
		panic("band: negative order")
	case mu < 0 || ml < 0:
		panic("band: negative half-bandwidth")
	case smu < mu:
		panic("band: storage bandwidth smaller than upper bandwidth")
	}
	ld := smu + ml + 1
	return &Matrix{
		n:    n,
		mu:   mu,
		ml:   ml,
		smu:  smu,
		ld:   ld,
		data: make([]float64, n*ld),
	}
}

// Dim returns the order of the matrix.
func (m *Matrix) Dim() int { return m.n }

// Bandwidths returns the upper, lower and storage upper half-bandwidths.
func (m *Matrix) Bandwidths() (mu, ml, smu int) { return m.mu, m.ml, m.smu }

// Col returns the backing slice of column j. The main diagonal element (j,j)
// is at index smu, and element (i,j) at index smu+i-j. The slice aliases the
// matrix storage.
func (m *Matrix) Col(j int) []float64 {
	return m.data[j*m.ld : (j+1)*m.ld]
}

// At returns element (i,j). It panics if the element lies outside the band
// [-mu, ml] around the diagonal.
func (m *Matrix) At(i, j int) float64 {
	if i < j-m.mu || j+m.ml < i {
		panic("band: element outside band")
	}
	return m.data[j*m.ld+m.smu+i-j]
}

// SetAt sets element (i,j) to v. It panics if the element lies outside the
// band [-mu, ml] around the diagonal.
func (m *Matrix) SetAt(i, j int, v float64) {
	if i < j-m.mu || j+m.ml < i {
		panic("band: element outside band")
	}
	m.data[j*m.ld+m.smu+i-j] = v
}

// Zero sets the whole storage, including any fill region, to zero.
func (m *Matrix) Zero() {
	for i := range m.data {
		m.data[i] = 0
	}
}

// Scale multiplies all elements within the band [-mu, ml] by c. The fill
// region is left untouched.
func (m *Matrix) Scale(c float64) {
	for j := 0; j < m.n; j++ {
		lo := m.smu - min(j, m.mu)
		hi := m.smu + min(m.n-1-j, m.ml)
		floats.Scale(c, m.Col(j)[lo:hi+1])
	}
}

// AddIdentity adds 1 to every main diagonal element.
func (m *Matrix) AddIdentity() {
	for j := 0; j < m.n; j++ {
		m.data[j*m.ld+m.smu]++
	}
}

// Copy copies the elements within the band [-mu, ml] from src into dst.
// The two matrices must have the same order, and both bands must fit within
// the storage of dst and src. Elements of dst outside the copied band are
// left untouched; zero dst first if a clean fill region is required.
func Copy(dst, src *Matrix, mu, ml int) {
	if dst.n != src.n {
		panic("band: mismatched matrix order")
	}
	if mu > dst.smu || mu > src.smu || ml > dst.ml || ml > src.ml {
		panic("band: copy band exceeds storage")
	}
	for j := 0; j < src.n; j++ {
		sc := src.Col(j)
		dc := dst.Col(j)
		i1 := max(0, j-mu)
		i2 := min(src.n-1, j+ml)
		for i := i1; i <= i2; i++ {
			dc[dst.smu+i-j] = sc[src.smu+i-j]
		}
	}
}
