// Copyright ©2025 The sundials Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bbd

import (
	"math"

	"github.com/adriendelsalle/sundials/band"
	"github.com/adriendelsalle/sundials/nvector"
)

// NewtonConfig configures a NewtonPrecond. The field meanings match Config,
// with callbacks taking the time-independent Newton forms. Increment scaling
// is supplied per Setup call rather than here, since the outer nonlinear
// solver updates its scaling as the iteration proceeds.
type NewtonConfig struct {
	// Local is the local approximation g(u) to the system function.
	// It must be non-nil.
	Local NewtonLocalFn
	// Comm exchanges the off-process data Local depends on. It may be
	// nil.
	Comm NewtonCommFn

	UpperDiff, LowerDiff int
	UpperKeep, LowerKeep int

	RelIncrement float64
}

// NewtonPrecond is the band-block-diagonal preconditioner for Newton
// iterations on nonlinear algebraic systems f(u) = 0. A successful Setup
// leaves it holding factors of the banded approximate Jacobian itself,
//
//	P = J ≈ ∂g/∂u,
//
// restricted to the keep band. It is not safe for concurrent use.
type NewtonPrecond struct {
	n                          int
	mudq, mldq, mukeep, mlkeep int
	relInc                     float64
	local                      NewtonLocalFn
	comm                       NewtonCommFn

	pp  *band.Matrix
	piv []int

	utemp, gbase, gtemp []float64

	nge int64
}

// NewNewton returns a Newton preconditioner for a local problem of size n.
func NewNewton(n int, cfg NewtonConfig) (*NewtonPrecond, error) {
	if n < 0 {
		return nil, ErrNegativeSize
	}
	if cfg.Local == nil {
		return nil, ErrNilLocalFn
	}

	p := &NewtonPrecond{
		n:      n,
		mudq:   clampBand(cfg.UpperDiff, n),
		mldq:   clampBand(cfg.LowerDiff, n),
		mukeep: clampBand(cfg.UpperKeep, n),
		mlkeep: clampBand(cfg.LowerKeep, n),
		relInc: cfg.RelIncrement,
		local:  cfg.Local,
		comm:   cfg.Comm,
	}
	if p.relInc <= 0 {
		p.relInc = math.Sqrt(uround)
	}

	smu := min(max(n-1, 0), p.mukeep+p.mlkeep)
	p.pp = band.New(n, p.mukeep, p.mlkeep, smu)
	p.piv = make([]int, n)
	p.utemp = make([]float64, n)
	p.gbase = make([]float64, n)
	p.gtemp = make([]float64, n)
	return p, nil
}

// ReInit reconfigures the preconditioner for a new problem of the same
// local size and keep bandwidths, resetting the evaluation counter.
func (p *NewtonPrecond) ReInit(upperDiff, lowerDiff int, relInc float64, local NewtonLocalFn, comm NewtonCommFn) error {
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

// Setup regenerates and factors the banded approximate Jacobian at u.
// scale optionally holds reciprocal scales of the solution components the
// way the outer solver weighs them; it may be nil. A PivotError return
// reports a singular factorization and is recoverable; callback errors are
// propagated unchanged.
func (p *NewtonPrecond) Setup(u nvector.Vector, scale []float64) error {
	if p.n == 0 {
		return nil
	}
	if u.Len() != p.n {
		panic("bbd: mismatched vector length")
	}
	if scale != nil && len(scale) != p.n {
		return ErrScaleLength
	}

	p.pp.Zero()
	if err := p.dqJac(u, scale); err != nil {
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
func (p *NewtonPrecond) Solve(z, r nvector.Vector) error {
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
func (p *NewtonPrecond) Stats() Stats {
	_, _, smu := p.pp.Bandwidths()
	return Stats{
		LocalEvals: p.nge,
		RealWork:   p.n*(smu+p.mlkeep+1) + 3*p.n,
		IntWork:    p.n,
	}
}
