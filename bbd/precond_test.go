// Copyright ©2025 The sundials Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bbd

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adriendelsalle/sundials/internal/testmat"
	"github.com/adriendelsalle/sundials/nvector"
)

// linearLocalFn returns a local function computing g(t,y) = A*y.
func linearLocalFn(a *testmat.Band) LocalFn {
	return func(t float64, y, g nvector.Vector) error {
		a.MulVec(g.Raw(), y.Raw())
		return nil
	}
}

func TestSetupSolveLinear(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for _, n := range []int{1, 2, 5, 12, 40} {
		for _, bw := range [][2]int{{0, 0}, {1, 1}, {2, 3}} {
			mu := min(bw[0], n-1)
			ml := min(bw[1], n-1)
			a := testmat.Random(n, mu, ml, rnd)
			const gamma = 0.5

			p, err := New(n, Config{
				Local:     linearLocalFn(a),
				UpperDiff: mu, LowerDiff: ml,
				UpperKeep: mu, LowerKeep: ml,
			})
			require.NoError(t, err)

			y := nvector.NewSerial(n)
			for i := range y {
				y[i] = rnd.NormFloat64()
			}
			jcur, err := p.Setup(0, y, false, gamma)
			require.NoError(t, err)
			require.True(t, jcur, "fresh setup must report a current Jacobian")

			// Reference: dense solve of (I - gamma*A) z = r.
			ref := testmat.New(n, mu, ml)
			for i := 0; i < n; i++ {
				for j := max(0, i-ml); j <= min(n-1, i+mu); j++ {
					v := -gamma * a.At(i, j)
					if i == j {
						v++
					}
					ref.Set(i, j, v)
				}
			}
			r := nvector.NewSerial(n)
			for i := range r {
				r[i] = rnd.NormFloat64()
			}
			want := ref.SolveDense(r.Raw())

			z := nvector.NewSerial(n)
			require.NoError(t, p.Solve(z, r))
			// The difference quotients carry a rounding floor of about
			// sqrt(eps) that the conditioning of I-gamma*A amplifies, so
			// the tolerance must scale with the solution magnitude.
			for i := range want {
				tol := 1e-6 * math.Max(1, math.Abs(want[i]))
				require.InDelta(t, want[i], z[i], tol,
					"n=%v,mu=%v,ml=%v: z[%v]", n, mu, ml, i)
			}
		}
	}
}

func TestJacobianGroupingIndependence(t *testing.T) {
	// The column grouping changes the number of local function
	// evaluations, never the computed Jacobian.
	rnd := rand.New(rand.NewSource(2))
	const n, mu, ml = 15, 2, 1
	a := testmat.Random(n, mu, ml, rnd)

	y := nvector.NewSerial(n)
	for i := range y {
		y[i] = rnd.NormFloat64()
	}

	grouped, err := New(n, Config{
		Local:     linearLocalFn(a),
		UpperDiff: mu, LowerDiff: ml,
		UpperKeep: mu, LowerKeep: ml,
	})
	require.NoError(t, err)
	oneByOne, err := New(n, Config{
		Local:     linearLocalFn(a),
		UpperDiff: n - 1, LowerDiff: n - 1,
		UpperKeep: mu, LowerKeep: ml,
	})
	require.NoError(t, err)

	_, err = grouped.Setup(0, y, false, 1)
	require.NoError(t, err)
	_, err = oneByOne.Setup(0, y, false, 1)
	require.NoError(t, err)

	require.Less(t, grouped.nge, oneByOne.nge,
		"grouping must reduce the evaluation count")

	// The local function is exactly linear, so both saved Jacobians must
	// match A within rounding of the difference quotients.
	for j := 0; j < n; j++ {
		for i := max(0, j-mu); i <= min(n-1, j+ml); i++ {
			require.InDelta(t, a.At(i, j), grouped.savedJ.At(i, j), 1e-6, "grouped J(%v,%v)", i, j)
			require.InDelta(t, a.At(i, j), oneByOne.savedJ.At(i, j), 1e-6, "ungrouped J(%v,%v)", i, j)
		}
	}
}

func TestSetupReuse(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	const n, mu, ml = 8, 1, 1
	a := testmat.Random(n, mu, ml, rnd)

	var evals int
	local := func(t float64, y, g nvector.Vector) error {
		evals++
		a.MulVec(g.Raw(), y.Raw())
		return nil
	}

	p, err := New(n, Config{
		Local:     local,
		UpperDiff: mu, LowerDiff: ml,
		UpperKeep: mu, LowerKeep: ml,
	})
	require.NoError(t, err)

	y := nvector.NewSerial(n)
	for i := range y {
		y[i] = rnd.NormFloat64()
	}

	jcur, err := p.Setup(0, y, false, 0.7)
	require.NoError(t, err)
	require.True(t, jcur)
	evalsAfterFirst := evals

	snapshot := make([]float64, 0)
	for j := 0; j < n; j++ {
		snapshot = append(snapshot, p.savedP.Col(j)...)
	}

	// Reusing the saved Jacobian must skip all local evaluations, report
	// jcur=false, and reproduce the factorization bytes exactly: the
	// scale and shift are applied to a fresh copy, never to the retained
	// Jacobian.
	jcur, err = p.Setup(0, y, true, 0.7)
	require.NoError(t, err)
	require.False(t, jcur, "reuse must report that no fresh Jacobian was computed")
	require.Equal(t, evalsAfterFirst, evals, "reuse must not evaluate the local function")

	var k int
	for j := 0; j < n; j++ {
		for _, v := range p.savedP.Col(j) {
			require.Equal(t, snapshot[k], v, "factor bytes drifted at column %v", j)
			k++
		}
	}
}

func TestSetupScenarioTridiagonal(t *testing.T) {
	// n=4 tridiagonal g(y) = [-2y1+y2, y1-2y2+y3, y2-2y3+y4, y3-2y4],
	// relIncrement 1e-6, gamma 1: Setup must produce factors solving
	// (I-J)x = r reproducibly across repeated calls with identical y.
	const n = 4
	a := testmat.New(n, 1, 1)
	for j := 0; j < n; j++ {
		a.Set(j, j, -2)
		if j > 0 {
			a.Set(j-1, j, 1)
			a.Set(j, j-1, 1)
		}
	}

	p, err := New(n, Config{
		Local:        linearLocalFn(a),
		UpperDiff:    1,
		LowerDiff:    1,
		UpperKeep:    1,
		LowerKeep:    1,
		RelIncrement: 1e-6,
	})
	require.NoError(t, err)

	y := nvector.Serial{0.3, -1.2, 0.8, 2.5}
	r := nvector.Serial{1, -2, 3, -4}

	_, err = p.Setup(0, y, false, 1)
	require.NoError(t, err)
	z1 := nvector.NewSerial(n)
	require.NoError(t, p.Solve(z1, r))

	_, err = p.Setup(0, y.Clone(), false, 1)
	require.NoError(t, err)
	z2 := nvector.NewSerial(n)
	require.NoError(t, p.Solve(z2, r))

	require.Equal(t, z1, z2, "identical inputs must reproduce identical corrections")

	// Check against the dense reference of I - J.
	ref := testmat.New(n, 1, 1)
	for i := 0; i < n; i++ {
		for j := max(0, i-1); j <= min(n-1, i+1); j++ {
			v := -a.At(i, j)
			if i == j {
				v++
			}
			ref.Set(i, j, v)
		}
	}
	want := ref.SolveDense(r.Raw())
	for i := range want {
		require.InDelta(t, want[i], z1[i], 1e-5)
	}
}

func TestDiagonalKeepBand(t *testing.T) {
	// Keep-bandwidths zero retain only the main diagonal: on a decoupled
	// system the preconditioner is the exact inverse of 1 - gamma*J_ii.
	const n = 5
	diag := []float64{-1, -2, -0.5, -4, -3}
	local := func(t float64, y, g nvector.Vector) error {
		yr, gr := y.Raw(), g.Raw()
		for i := range gr {
			gr[i] = diag[i] * yr[i]
		}
		return nil
	}

	p, err := New(n, Config{Local: local})
	require.NoError(t, err)

	y := nvector.NewSerial(n)
	const gamma = 2.0
	_, err = p.Setup(0, y, false, gamma)
	require.NoError(t, err)

	r := nvector.Serial{1, 2, 3, 4, 5}
	z := nvector.NewSerial(n)
	require.NoError(t, p.Solve(z, r))
	for i := range z {
		require.InDelta(t, r[i]/(1-gamma*diag[i]), z[i], 1e-6)
	}
}

func TestSetupCallbackFailures(t *testing.T) {
	const n = 4
	a := testmat.New(n, 0, 0)
	for j := 0; j < n; j++ {
		a.Set(j, j, float64(j+2))
	}

	t.Run("unrecoverable comm", func(t *testing.T) {
		failure := errors.New("halo exchange failed")
		p, err := New(n, Config{
			Local: linearLocalFn(a),
			Comm:  func(t float64, y nvector.Vector) error { return failure },
		})
		require.NoError(t, err)
		_, err = p.Setup(0, nvector.NewSerial(n), false, 1)
		require.ErrorIs(t, err, failure)
		require.False(t, Recoverable(err))
	})

	t.Run("recoverable local", func(t *testing.T) {
		p, err := New(n, Config{
			Local: func(t float64, y, g nvector.Vector) error {
				return fmt.Errorf("negative concentration: %w", ErrRecoverable)
			},
		})
		require.NoError(t, err)
		_, err = p.Setup(0, nvector.NewSerial(n), false, 1)
		require.True(t, Recoverable(err))
	})

	t.Run("saved Jacobian survives failed regeneration", func(t *testing.T) {
		fail := false
		p, err := New(n, Config{
			Local: func(t float64, y, g nvector.Vector) error {
				if fail {
					return errors.New("boom")
				}
				a.MulVec(g.Raw(), y.Raw())
				return nil
			},
		})
		require.NoError(t, err)

		y := nvector.Serial{1, 1, 1, 1}
		_, err = p.Setup(0, y, false, 1)
		require.NoError(t, err)

		fail = true
		_, err = p.Setup(0, y, false, 1)
		require.Error(t, err)

		// The pristine copy from the successful setup is still usable.
		jcur, err := p.Setup(0, y, true, 1)
		require.NoError(t, err)
		require.False(t, jcur)

		r := nvector.Serial{1, 2, 3, 4}
		z := nvector.NewSerial(n)
		require.NoError(t, p.Solve(z, r))
		for i := range z {
			require.InDelta(t, r[i]/(1-a.At(i, i)), z[i], 1e-6)
		}
	})
}

func TestSetupSingular(t *testing.T) {
	// g(y) = y gives J = I, so gamma = 1 makes I - gamma*J exactly
	// singular.
	const n = 3
	p, err := New(n, Config{
		Local: func(t float64, y, g nvector.Vector) error {
			copy(g.Raw(), y.Raw())
			return nil
		},
	})
	require.NoError(t, err)

	_, err = p.Setup(0, nvector.NewSerial(n), false, 1)
	var pe PivotError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, 1, pe.Col)
	require.True(t, Recoverable(err))
}

func TestStatsAndReInit(t *testing.T) {
	rnd := rand.New(rand.NewSource(4))
	const n, mu, ml = 10, 1, 2
	a := testmat.Random(n, mu, ml, rnd)

	p, err := New(n, Config{
		Local:     linearLocalFn(a),
		UpperDiff: mu, LowerDiff: ml,
		UpperKeep: mu, LowerKeep: ml,
	})
	require.NoError(t, err)

	y := nvector.NewSerial(n)
	_, err = p.Setup(0, y, false, 0.1)
	require.NoError(t, err)

	// One baseline evaluation plus one per column group.
	wantEvals := int64(1 + min(mu+ml+1, n))
	st := p.Stats()
	require.Equal(t, wantEvals, st.LocalEvals)
	require.Equal(t, n, st.IntWork)
	require.Positive(t, st.RealWork)

	// A reused Jacobian costs nothing.
	_, err = p.Setup(0, y, true, 0.1)
	require.NoError(t, err)
	require.Equal(t, wantEvals, p.Stats().LocalEvals)

	// ReInit with wider difference-quotient bandwidths resets the
	// counter and changes the group count.
	require.NoError(t, p.ReInit(n-1, n-1, 0, linearLocalFn(a), nil))
	require.Zero(t, p.Stats().LocalEvals)
	_, err = p.Setup(0, y, false, 0.1)
	require.NoError(t, err)
	require.Equal(t, int64(1+n), p.Stats().LocalEvals)

	require.ErrorIs(t, p.ReInit(1, 1, 0, nil, nil), ErrNilLocalFn)
}

func TestZeroSize(t *testing.T) {
	p, err := New(0, Config{
		Local: func(t float64, y, g nvector.Vector) error { return nil },
	})
	require.NoError(t, err)

	jcur, err := p.Setup(0, nvector.NewSerial(0), false, 1)
	require.NoError(t, err)
	require.True(t, jcur)
	require.NoError(t, p.Solve(nvector.NewSerial(0), nvector.NewSerial(0)))
}

func TestNewValidation(t *testing.T) {
	okLocal := func(t float64, y, g nvector.Vector) error { return nil }

	_, err := New(-1, Config{Local: okLocal})
	require.ErrorIs(t, err, ErrNegativeSize)

	_, err = New(4, Config{})
	require.ErrorIs(t, err, ErrNilLocalFn)

	_, err = New(4, Config{Local: okLocal, Scale: []float64{1, 2}})
	require.ErrorIs(t, err, ErrScaleLength)

	// Oversized bandwidths are clamped to n-1.
	p, err := New(4, Config{Local: okLocal, UpperDiff: 100, LowerDiff: 100, UpperKeep: 100, LowerKeep: 100})
	require.NoError(t, err)
	require.Equal(t, 3, p.mudq)
	require.Equal(t, 3, p.mlkeep)
}

func TestScaledIncrements(t *testing.T) {
	// A scale vector adjusts the perturbation floor; for a linear local
	// function the Jacobian must be unaffected.
	rnd := rand.New(rand.NewSource(5))
	const n, mu, ml = 7, 1, 1
	a := testmat.Random(n, mu, ml, rnd)

	scale := make([]float64, n)
	for i := range scale {
		scale[i] = 1e3 // components known to be of size ~1e-3
	}
	p, err := New(n, Config{
		Local:     linearLocalFn(a),
		UpperDiff: mu, LowerDiff: ml,
		UpperKeep: mu, LowerKeep: ml,
		Scale: scale,
	})
	require.NoError(t, err)

	y := nvector.NewSerial(n)
	for i := range y {
		y[i] = 1e-3 * rnd.NormFloat64()
	}
	_, err = p.Setup(0, y, false, 1)
	require.NoError(t, err)

	for j := 0; j < n; j++ {
		for i := max(0, j-mu); i <= min(n-1, j+ml); i++ {
			require.InDelta(t, a.At(i, j), p.savedJ.At(i, j), 1e-4, "J(%v,%v)", i, j)
		}
	}
}
