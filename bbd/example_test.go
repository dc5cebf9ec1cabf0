// Copyright ©2025 The sundials Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bbd_test

import (
	"fmt"
	"math"

	"github.com/adriendelsalle/sundials/bbd"
	"github.com/adriendelsalle/sundials/krylov"
	"github.com/adriendelsalle/sundials/nvector"
)

// A one-dimensional advection-diffusion stencil: the right-hand side of the
// method-of-lines ODE y' = f(y) on a grid of m interior points.
func stencil(m int) bbd.LocalFn {
	return func(t float64, y, g nvector.Vector) error {
		yr, gr := y.Raw(), g.Raw()
		for i := range gr {
			left, right := 0.0, 0.0
			if i > 0 {
				left = yr[i-1]
			}
			if i < m-1 {
				right = yr[i+1]
			}
			gr[i] = left - 2*yr[i] + right + 0.5*(right-left)
		}
		return nil
	}
}

// ExamplePrecond wires the band-block-diagonal preconditioner into the
// Newton-correction system (I - γJ)x = r of an implicit integrator, solved
// by restarted GMRES.
func ExamplePrecond() {
	const (
		m     = 100
		gamma = 0.1
	)
	local := stencil(m)

	p, err := bbd.New(m, bbd.Config{
		Local:     local,
		UpperDiff: 1, LowerDiff: 1,
		UpperKeep: 1, LowerKeep: 1,
	})
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	y := nvector.NewSerial(m)
	if _, err := p.Setup(0, y, false, gamma); err != nil {
		fmt.Println("Error:", err)
		return
	}

	// The matrix of the correction system, applied matrix-free through
	// the same local function.
	a := krylov.System{
		MulVec: func(dst, x []float64) {
			local(0, nvector.Serial(x), nvector.Serial(dst))
			for i := range dst {
				dst[i] = x[i] - gamma*dst[i]
			}
		},
	}

	b := make([]float64, m)
	for i := range b {
		b[i] = math.Sin(float64(i+1) / 10)
	}

	result, err := krylov.Solve(a, b, &krylov.GMRES{}, krylov.Settings{
		Tolerance: 1e-10,
		PSolve: func(dst, rhs []float64) error {
			return p.Solve(nvector.Serial(dst), nvector.Serial(rhs))
		},
	})
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	// Verify the solution against the residual.
	r := make([]float64, m)
	a.MulVec(r, result.X)
	maxErr := 0.0
	for i := range r {
		maxErr = math.Max(maxErr, math.Abs(r[i]-b[i]))
	}
	fmt.Println("residual below 1e-8:", maxErr < 1e-8)
	fmt.Println("preconditioner solves:", result.Stats.PSolve > 0)

	// Output:
	// residual below 1e-8: true
	// preconditioner solves: true
}
