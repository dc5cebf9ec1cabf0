// Copyright ©2025 The sundials Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package band

import "math"

// Factor computes an in-place LU factorization of the matrix with partial
// pivoting restricted to the band, overwriting the matrix with the factors.
// The pivot row chosen at each elimination step k is recorded in piv[k],
// which must have length n.
//
// Row interchanges generate fill in the diagonals between mu and smu above
// the main one, so the matrix must have been allocated with
// smu = min(n-1, mu+ml) and a zeroed fill region.
//
// Factor returns 0 on success. If a zero pivot is met in column k, Factor
// returns k+1; elimination of that column is skipped and the sweep continues,
// but the factorization is unusable and Solve must not be called.
func (m *Matrix) Factor(piv []int) int {
	n := m.n
	if len(piv) != n {
		panic("band: pivot slice has wrong length")
	}

	fail := 0
	for k := 0; k < n; k++ {
		colK := m.Col(k)
		lastRow := min(k+m.ml, n-1)

		// Find the pivot: the largest magnitude element in rows
		// [k, k+ml] of column k.
		p := k
		pmag := math.Abs(colK[m.smu])
		for i := k + 1; i <= lastRow; i++ {
			if v := math.Abs(colK[m.smu+i-k]); v > pmag {
				pmag = v
				p = i
			}
		}
		piv[k] = p

		if pmag == 0 {
			if fail == 0 {
				fail = k + 1
			}
			continue
		}

		if p != k {
			colK[m.smu+p-k], colK[m.smu] = colK[m.smu], colK[m.smu+p-k]
		}

		// Store the negated multipliers in place of the eliminated
		// entries.
		pivot := colK[m.smu]
		for i := k + 1; i <= lastRow; i++ {
			colK[m.smu+i-k] /= -pivot
		}

		// Apply the interchange and the elimination to the columns the
		// band of row k reaches, at most smu to the right.
		lastCol := min(k+m.smu, n-1)
		for j := k + 1; j <= lastCol; j++ {
			colJ := m.Col(j)
			t := colJ[m.smu+p-j]
			if p != k {
				colJ[m.smu+p-j] = colJ[m.smu+k-j]
				colJ[m.smu+k-j] = t
			}
			if t == 0 {
				continue
			}
			for i := k + 1; i <= lastRow; i++ {
				colJ[m.smu+i-j] += colK[m.smu+i-k] * t
			}
		}
	}
	return fail
}

// Solve overwrites b with the solution of A*x = b using the factors and the
// pivot record produced by Factor. The result is undefined if Factor did not
// return 0, or if it was never called.
func (m *Matrix) Solve(piv []int, b []float64) {
	n := m.n
	if len(piv) != n || len(b) != n {
		panic("band: mismatched slice length")
	}

	// Forward solve L*y = P*b using the stored multipliers.
	if m.ml > 0 {
		for k := 0; k < n-1; k++ {
			p := piv[k]
			t := b[p]
			if p != k {
				b[p] = b[k]
				b[k] = t
			}
			colK := m.Col(k)
			lastRow := min(k+m.ml, n-1)
			for i := k + 1; i <= lastRow; i++ {
				b[i] += colK[m.smu+i-k] * t
			}
		}
	}

	// Back substitution U*x = y. Fill from pivoting extends the columns of
	// U up to smu above the diagonal.
	for k := n - 1; k >= 0; k-- {
		colK := m.Col(k)
		b[k] /= colK[m.smu]
		t := -b[k]
		firstRow := max(0, k-m.smu)
		for i := firstRow; i < k; i++ {
			b[i] += colK[m.smu+i-k] * t
		}
	}
}
