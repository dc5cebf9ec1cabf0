// Copyright ©2025 The sundials Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bbd

import (
	"math"

	"github.com/adriendelsalle/sundials/nvector"
)

// The difference-quotient Jacobian builders below share one scheme. With
// difference-quotient half-bandwidths mudq and mldq, columns j and
// j+mudq+mldq+1 have disjoint band support, so all columns of one residue
// class modulo width = mudq+mldq+1 can be formed from a single perturbed
// evaluation of the local function. The builders therefore cost
// 1 + min(width, n) local function evaluations in total, independent of n.
//
// Perturbations are applied to a private scratch copy of the caller's
// vectors, and the computed quotients are stored only within the keep band.

// dqIncrement returns the perturbation for a component with value v and
// floor f, nonzero as long as rel and f are.
func dqIncrement(rel, v, f float64) float64 {
	return rel * math.Max(math.Abs(v), f)
}

// floorAt returns the increment floor for component j: the reciprocal scale
// when a scale vector is present, otherwise 1.
func floorAt(scale []float64, j int) float64 {
	if scale != nil {
		return 1 / scale[j]
	}
	return 1
}

// dqJac approximates the banded Jacobian of the local function at (t, y) and
// stores it into the keep band of savedP. On error the saved pristine
// Jacobian is untouched.
func (p *Precond) dqJac(t float64, y nvector.Vector) error {
	n := p.n
	yr := y.Raw()
	copy(p.ytemp, yr)
	yt := nvector.Serial(p.ytemp)

	if p.comm != nil {
		if err := p.comm(t, yt); err != nil {
			return err
		}
	}
	if err := p.local(t, yt, nvector.Serial(p.gbase)); err != nil {
		return err
	}
	p.nge++

	width := p.mldq + p.mudq + 1
	ngroups := min(width, n)
	_, _, smu := p.savedP.Bandwidths()

	for group := 1; group <= ngroups; group++ {
		for j := group - 1; j < n; j += width {
			p.ytemp[j] += dqIncrement(p.relInc, yr[j], floorAt(p.scale, j))
		}

		if err := p.local(t, yt, nvector.Serial(p.gtemp)); err != nil {
			copy(p.ytemp, yr)
			return err
		}
		p.nge++

		for j := group - 1; j < n; j += width {
			p.ytemp[j] = yr[j]
			inc := dqIncrement(p.relInc, yr[j], floorAt(p.scale, j))
			col := p.savedP.Col(j)
			i1 := max(0, j-p.mukeep)
			i2 := min(n-1, j+p.mlkeep)
			for i := i1; i <= i2; i++ {
				col[smu+i-j] = (p.gtemp[i] - p.gbase[i]) / inc
			}
		}
	}
	return nil
}

// dqJac approximates the banded matrix ∂G/∂y + c·∂G/∂y' at (t, y, y') and
// stores it into the keep band of pp. Perturbing y by inc and y' by c·inc
// simultaneously yields both terms from a single quotient.
func (p *DAEPrecond) dqJac(t float64, y, yp nvector.Vector, c float64) error {
	n := p.n
	yr := y.Raw()
	ypr := yp.Raw()
	copy(p.ytemp, yr)
	copy(p.yptemp, ypr)
	yt := nvector.Serial(p.ytemp)
	ypt := nvector.Serial(p.yptemp)

	if p.comm != nil {
		if err := p.comm(t, yt, ypt); err != nil {
			return err
		}
	}
	if err := p.local(t, yt, ypt, nvector.Serial(p.gbase)); err != nil {
		return err
	}
	p.nge++

	width := p.mldq + p.mudq + 1
	ngroups := min(width, n)
	_, _, smu := p.pp.Bandwidths()

	for group := 1; group <= ngroups; group++ {
		for j := group - 1; j < n; j += width {
			inc := p.increment(j, yr, ypr)
			p.ytemp[j] += inc
			p.yptemp[j] += c * inc
		}

		if err := p.local(t, yt, ypt, nvector.Serial(p.gtemp)); err != nil {
			copy(p.ytemp, yr)
			copy(p.yptemp, ypr)
			return err
		}
		p.nge++

		for j := group - 1; j < n; j += width {
			p.ytemp[j] = yr[j]
			p.yptemp[j] = ypr[j]
			inc := p.increment(j, yr, ypr)
			col := p.pp.Col(j)
			i1 := max(0, j-p.mukeep)
			i2 := min(n-1, j+p.mlkeep)
			for i := i1; i <= i2; i++ {
				col[smu+i-j] = (p.gtemp[i] - p.gbase[i]) / inc
			}
		}
	}
	return nil
}

// increment returns the signed perturbation for component j. The magnitude
// honors both the solution and the derivative scale; the sign follows y' so
// that y and y' are perturbed in a consistent direction.
func (p *DAEPrecond) increment(j int, y, yp []float64) float64 {
	inc := p.relInc * math.Max(math.Abs(y[j]), math.Max(math.Abs(yp[j]), floorAt(p.scale, j)))
	if yp[j] < 0 {
		return -inc
	}
	return inc
}

// dqJac approximates the banded Jacobian of the local function at u and
// stores it into the keep band of pp. scale optionally holds reciprocal
// scales of the solution components and may be nil.
func (p *NewtonPrecond) dqJac(u nvector.Vector, scale []float64) error {
	n := p.n
	ur := u.Raw()
	copy(p.utemp, ur)
	ut := nvector.Serial(p.utemp)

	if p.comm != nil {
		if err := p.comm(ut); err != nil {
			return err
		}
	}
	if err := p.local(ut, nvector.Serial(p.gbase)); err != nil {
		return err
	}
	p.nge++

	width := p.mldq + p.mudq + 1
	ngroups := min(width, n)
	_, _, smu := p.pp.Bandwidths()

	for group := 1; group <= ngroups; group++ {
		for j := group - 1; j < n; j += width {
			p.utemp[j] += dqIncrement(p.relInc, ur[j], floorAt(scale, j))
		}

		if err := p.local(ut, nvector.Serial(p.gtemp)); err != nil {
			copy(p.utemp, ur)
			return err
		}
		p.nge++

		for j := group - 1; j < n; j += width {
			p.utemp[j] = ur[j]
			inc := dqIncrement(p.relInc, ur[j], floorAt(scale, j))
			col := p.pp.Col(j)
			i1 := max(0, j-p.mukeep)
			i2 := min(n-1, j+p.mlkeep)
			for i := i1; i <= i2; i++ {
				col[smu+i-j] = (p.gtemp[i] - p.gbase[i]) / inc
			}
		}
	}
	return nil
}
