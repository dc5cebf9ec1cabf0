// Copyright ©2025 The sundials Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bbd

import (
	"math"

	"github.com/adriendelsalle/sundials/band"
	"github.com/adriendelsalle/sundials/nvector"
)

// DAEConfig configures a DAEPrecond. The field meanings match Config, with
// the local function and communication callbacks taking the DAE forms that
// receive both y and y'.
type DAEConfig struct {
	// Local is the local approximation G(t,y,y') to the DAE residual.
	// It must be non-nil.
	Local DAELocalFn
	// Comm exchanges the off-process data Local depends on. It may be
	// nil.
	Comm DAECommFn

	UpperDiff, LowerDiff int
	UpperKeep, LowerKeep int

	RelIncrement float64

	// Scale optionally holds reciprocal scales of the solution
	// components, such as the error weights of the outer integrator.
	Scale []float64
}

// DAEPrecond is the band-block-diagonal preconditioner for implicit DAE
// integration. A successful Setup leaves it holding factors of
//
//	P = ∂G/∂y + c·∂G/∂y',
//
// restricted to the keep band. The Jacobian is regenerated on every Setup;
// there is no reuse flag because the coefficient c changes with the step
// size and order of the outer integrator. It is not safe for concurrent
// use.
type DAEPrecond struct {
	n                          int
	mudq, mldq, mukeep, mlkeep int
	relInc                     float64
	local                      DAELocalFn
	comm                       DAECommFn
	scale                      []float64

	pp  *band.Matrix
	piv []int

	ytemp, yptemp, gbase, gtemp []float64

	nge int64
}

// NewDAE returns a DAE preconditioner for a local problem of size n.
func NewDAE(n int, cfg DAEConfig) (*DAEPrecond, error) {
	if n < 0 {
		return nil, ErrNegativeSize
	}
	if cfg.Local == nil {
		return nil, ErrNilLocalFn
	}
	if cfg.Scale != nil && len(cfg.Scale) != n {
		return nil, ErrScaleLength
	}

	p := &DAEPrecond{
		n:      n,
		mudq:   clampBand(cfg.UpperDiff, n),
		mldq:   clampBand(cfg.LowerDiff, n),
		mukeep: clampBand(cfg.UpperKeep, n),
		mlkeep: clampBand(cfg.LowerKeep, n),
		relInc: cfg.RelIncrement,
		local:  cfg.Local,
		comm:   cfg.Comm,
		scale:  cfg.Scale,
	}
	if p.relInc <= 0 {
		p.relInc = math.Sqrt(uround)
	}

	smu := min(max(n-1, 0), p.mukeep+p.mlkeep)
	p.pp = band.New(n, p.mukeep, p.mlkeep, smu)
	p.piv = make([]int, n)
	p.ytemp = make([]float64, n)
	p.yptemp = make([]float64, n)
	p.gbase = make([]float64, n)
	p.gtemp = make([]float64, n)
	return p, nil
}

// ReInit reconfigures the preconditioner for a new problem of the same
// local size and keep bandwidths, resetting the evaluation counter.
func (p *DAEPrecond) ReInit(upperDiff, lowerDiff int, relInc float64, local DAELocalFn, comm DAECommFn) error {
	if local == nil {
		return ErrNilLocalFn
	}
	p.mudq = clampBand(upperDiff, p.n)
	p.mldq = clampBand(lowerDiff, p.n)
	p.relInc = relInc
	if p.relInc <= 0 {
		p.relInc = math.Sqrt(uround)
	}
	p.local = local
	p.comm = comm
	p.nge = 0
	return nil
}

// Setup regenerates and factors the banded preconditioner
// P = ∂G/∂y + c·∂G/∂y' at the point (t, y, y'). A PivotError return
// reports a singular factorization and is recoverable; callback errors are
// propagated unchanged.
func (p *DAEPrecond) Setup(t float64, y, yp nvector.Vector, c float64) error {
	if p.n == 0 {
		return nil
	}
	if y.Len() != p.n || yp.Len() != p.n {
		panic("bbd: mismatched vector length")
	}

	p.pp.Zero()
	if err := p.dqJac(t, y, yp, c); err != nil {
		return err
	}
	if k := p.pp.Factor(p.piv); k != 0 {
		return PivotError{Col: k}
	}
	return nil
}

// Solve applies the preconditioner to r, storing the solution of P·z = r
// into z. It must not be called before a successful Setup; that case is
// not checked. r and z may be the same vector.
func (p *DAEPrecond) Solve(z, r nvector.Vector) error {
	if p.n == 0 {
		return nil
	}
	if z.Len() != p.n || r.Len() != p.n {
		panic("bbd: mismatched vector length")
	}
	zr := z.Raw()
	copy(zr, r.Raw())
	p.pp.Solve(p.piv, zr)
	return nil
}

// Stats returns the diagnostic outputs of the preconditioner.
func (p *DAEPrecond) Stats() Stats {
	_, _, smu := p.pp.Bandwidths()
	return Stats{
		LocalEvals: p.nge,
		RealWork:   p.n*(smu+p.mlkeep+1) + 4*p.n,
		IntWork:    p.n,
	}
}
