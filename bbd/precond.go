// Copyright ©2025 The sundials Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bbd

import (
	"math"

	"github.com/adriendelsalle/sundials/band"
	"github.com/adriendelsalle/sundials/nvector"
)

// uround is the difference between 1 and the smallest float64 greater than 1.
const uround = 0x1p-52

// Config configures a Precond.
type Config struct {
	// Local is the local approximation function g(t,y). It must be
	// non-nil.
	Local LocalFn
	// Comm exchanges the off-process data Local depends on. It may be
	// nil if Local needs no neighbor data.
	Comm CommFn

	// UpperDiff and LowerDiff are the half-bandwidths used to group the
	// difference-quotient evaluations. They are clamped to [0, n-1].
	UpperDiff, LowerDiff int
	// UpperKeep and LowerKeep are the half-bandwidths of the retained
	// Jacobian band. They are clamped to [0, n-1] and must not exceed
	// the difference-quotient bandwidths; this precondition is not
	// checked.
	UpperKeep, LowerKeep int

	// RelIncrement is the relative increment for the difference
	// quotients. Zero means sqrt(unit roundoff).
	RelIncrement float64

	// Scale optionally holds reciprocal scales for the solution
	// components, such as the error weights of the outer integrator.
	// The perturbation of component j has magnitude at least
	// RelIncrement/Scale[j]. If Scale is nil a unit floor is used.
	Scale []float64
}

// Precond is the band-block-diagonal preconditioner for implicit ODE
// integration. A successful Setup leaves it holding factors of
//
//	P = I - γ·J,  J ≈ ∂g/∂y,
//
// restricted to the keep band, ready for Solve. It is not safe for
// concurrent use.
type Precond struct {
	n                          int
	mudq, mldq, mukeep, mlkeep int
	relInc                     float64
	local                      LocalFn
	comm                       CommFn
	scale                      []float64

	// savedJ holds the pristine difference-quotient Jacobian from the
	// last regeneration; savedP holds the scaled, shifted and factored
	// working copy.
	savedJ *band.Matrix
	savedP *band.Matrix
	piv    []int

	ytemp, gbase, gtemp []float64

	nge int64
}

// New returns a preconditioner for a local problem of size n.
func New(n int, cfg Config) (*Precond, error) {
	if n < 0 {
		return nil, ErrNegativeSize
	}
	if cfg.Local == nil {
		return nil, ErrNilLocalFn
	}
	if cfg.Scale != nil && len(cfg.Scale) != n {
		return nil, ErrScaleLength
	}

	p := &Precond{
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
	p.savedJ = band.New(n, p.mukeep, p.mlkeep, p.mukeep)
	p.savedP = band.New(n, p.mukeep, p.mlkeep, smu)
	p.piv = make([]int, n)
	p.ytemp = make([]float64, n)
	p.gbase = make([]float64, n)
	p.gtemp = make([]float64, n)
	return p, nil
}

// ReInit reconfigures the preconditioner for a new problem of the same local
// size and keep bandwidths, resetting the evaluation counter. Only the
// difference-quotient bandwidths, the relative increment and the callbacks
// may change.
func (p *Precond) ReInit(upperDiff, lowerDiff int, relInc float64, local LocalFn, comm CommFn) error {
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

// Setup computes or refreshes the banded factors of P = I - γ·J at the
// point (t, y).
//
// If jok is true the Jacobian regeneration is skipped and the saved copy
// from the last regeneration is reused; jcur is then false, informing the
// caller that no fresh Jacobian was produced. If jok is false the Jacobian
// is regenerated by difference quotients, a pristine copy is saved, and
// jcur is true. Staleness of the saved Jacobian is entirely the caller's
// responsibility.
//
// A PivotError return reports a singular factorization and is recoverable.
// Any error from the callbacks is propagated unchanged; the saved Jacobian
// copy from the last successful regeneration is not disturbed.
func (p *Precond) Setup(t float64, y nvector.Vector, jok bool, gamma float64) (jcur bool, err error) {
	if p.n == 0 {
		return !jok, nil
	}
	if y.Len() != p.n {
		panic("bbd: mismatched vector length")
	}

	p.savedP.Zero()
	if jok {
		band.Copy(p.savedP, p.savedJ, p.mukeep, p.mlkeep)
	} else {
		if err := p.dqJac(t, y); err != nil {
			return false, err
		}
		band.Copy(p.savedJ, p.savedP, p.mukeep, p.mlkeep)
		jcur = true
	}

	p.savedP.Scale(-gamma)
	p.savedP.AddIdentity()
	if k := p.savedP.Factor(p.piv); k != 0 {
		return jcur, PivotError{Col: k}
	}
	return jcur, nil
}

// Solve applies the preconditioner to r, storing the solution of P·z = r
// into z. It must not be called before a successful Setup; that case is not
// checked. r and z may be the same vector.
func (p *Precond) Solve(z, r nvector.Vector) error {
	if p.n == 0 {
		return nil
	}
	if z.Len() != p.n || r.Len() != p.n {
		panic("bbd: mismatched vector length")
	}
	zr := z.Raw()
	copy(zr, r.Raw())
	p.savedP.Solve(p.piv, zr)
	return nil
}

// Stats returns the diagnostic outputs of the preconditioner.
func (p *Precond) Stats() Stats {
	_, _, smuJ := p.savedJ.Bandwidths()
	_, _, smuP := p.savedP.Bandwidths()
	return Stats{
		LocalEvals: p.nge,
		RealWork:   p.n*(smuJ+smuP+2*p.mlkeep+2) + 3*p.n,
		IntWork:    p.n,
	}
}
