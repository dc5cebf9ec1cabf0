// Copyright ©2025 The sundials Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package krylov provides preconditioned Krylov subspace methods for solving
// systems of linear equations. It is the outer accelerator for the
// band-block-diagonal preconditioners in the bbd package, whose Solve method
// plugs into the PSolve slot of Settings.
package krylov

import (
	"errors"
	"time"

	"github.com/gonum/floats"
)

// System describes the matrix of the linear system by its matrix-vector
// product.
type System struct {
	// MulVec computes A*x and stores the result into dst.
	// It must be non-nil.
	MulVec func(dst, x []float64)
}

// Settings holds settings for solving a linear system.
type Settings struct {
	// X0 is an initial guess.
	// If it is nil, the zero vector will be used.
	// If it is not nil, its length must be equal to the dimension of
	// the system.
	X0 []float64

	// Tolerance specifies the error tolerance for the final approximate
	// solution: the iteration stops when |r_i| < Tolerance * |b|.
	// Tolerance must be smaller than one and greater than the machine
	// epsilon.
	Tolerance float64

	// MaxIterations is the limit on the number of iterations.
	// If it is zero, it will be set to twice the dimension of the
	// system.
	MaxIterations int

	// PSolve describes the preconditioner solve that stores into dst
	// the solution of the system
	//  M z = rhs.
	// If it is nil, no preconditioning will be used (M is the
	// identity).
	PSolve func(dst, rhs []float64) error
}

func defaultSettings(s *Settings, dim int) {
	if s.Tolerance == 0 {
		s.Tolerance = 1e-8
	}
	if s.MaxIterations == 0 {
		s.MaxIterations = 2 * dim
	}
}

// Operation specifies the type of operation commanded by Method.Iterate.
type Operation uint64

const (
	NoOperation Operation = 0

	// Compute A*x where x is stored in Context.Src and store the result
	// into Context.Dst.
	MulVec Operation = 1 << (iota - 1)

	// Do the preconditioner solve
	//  M z = r,
	// where r is stored in Context.Src, and store the solution z into
	// Context.Dst.
	PSolve

	// Compute b - A*x where x is stored in Context.X and store the
	// result into Context.Residual and its norm into
	// Context.ResidualNorm.
	ComputeResidual

	// Check convergence using the residual norm in Context.ResidualNorm.
	// If convergence is detected, Context.Converged must be set to true
	// before calling Method.Iterate again.
	CheckResidualNorm

	// EndIteration indicates that Method has finished what it considers
	// to be one iteration. If Context.Converged is true, the iterative
	// process must be terminated, and Method.Init must be called before
	// calling Method.Iterate again.
	EndIteration
)

// Method is an iterative method that produces a sequence of vectors
// converging to the solution of
//  A x = b,
// where A is a non-singular dim×dim matrix, and x and b are vectors of
// dimension dim.
//
// Method uses a reverse-communication interface between the iterative
// algorithm and the caller. Method acts as a client that commands the caller
// to perform needed operations via the Operation returned from Iterate. This
// keeps Method independent of the representation of the matrix and of the
// preconditioner.
type Method interface {
	// Init initializes the method for solving a dim×dim linear system.
	Init(dim int)

	// Iterate retrieves data from Context, updates it, and returns the
	// next operation. The caller must perform the Operation using data
	// in Context, and depending on the state call Iterate again.
	Iterate(*Context) (Operation, error)
}

// Context mediates the communication between a Method and the caller. It
// must not be modified or accessed apart from the commanded Operations.
type Context struct {
	// X is the current approximate solution. On the first call to
	// Method.Iterate, X must contain the initial estimate. Method must
	// update X with the current estimate when it commands
	// ComputeResidual and EndIteration.
	X []float64
	// Residual is the current residual b-A*x. On the first call to
	// Method.Iterate, Residual must contain the initial residual.
	Residual []float64
	// ResidualNorm is (an estimate of) the norm of the current
	// residual. Method must update it when it commands
	// CheckResidualNorm. It does not have to be equal to the norm of
	// Residual, some methods (e.g., GMRES) can estimate the residual
	// norm without forming the residual itself.
	ResidualNorm float64
	// Converged indicates to Method that the ResidualNorm satisfies the
	// stopping criterion as a result of the CheckResidualNorm
	// operation.
	Converged bool

	// Src and Dst are the source and destination vectors for the MulVec
	// and PSolve operations.
	Src, Dst []float64
}

// Stats holds statistics about an iterative solve.
type Stats struct {
	// Iterations is the number of iterations done by Method.
	Iterations int
	// MulVec is the number of MulVec operations commanded by Method.
	MulVec int
	// PSolve is the number of PSolve operations commanded by Method.
	PSolve int
	// ResidualNorm is the final norm of the residual.
	ResidualNorm float64
	// StartTime is an approximate time when the solve was started.
	StartTime time.Time
	// Runtime is an approximate duration of the solve.
	Runtime time.Duration
}

// Result holds the result of an iterative solve.
type Result struct {
	// X is the approximate solution.
	X []float64
	// Stats holds the statistics of the solve.
	Stats Stats
}

// Solve solves the system of n linear equations
//  A*x = b,
// where the n×n matrix A is represented by the matrix-vector product in a.
// The dimension of the problem n is determined by the length of b.
//
// method is an iterative method used for finding an approximate solution of
// the linear system. It must not be nil.
//
// settings provides means for adjusting the iterative process. Zero values
// of its fields mean default values.
func Solve(a System, b []float64, method Method, settings Settings) (Result, error) {
	stats := Stats{StartTime: time.Now()}

	dim := len(b)
	if a.MulVec == nil {
		panic("krylov: nil matrix-vector multiplication")
	}
	if settings.X0 != nil && len(settings.X0) != dim {
		panic("krylov: mismatched length of initial guess")
	}

	if dim == 0 {
		return Result{Stats: stats}, nil
	}

	defaultSettings(&settings, dim)
	if settings.Tolerance < dlamchE || 1 <= settings.Tolerance {
		panic("krylov: invalid tolerance")
	}

	ctx := &Context{
		X:        make([]float64, dim),
		Residual: make([]float64, dim),
	}
	if settings.X0 != nil {
		copy(ctx.X, settings.X0)
		a.MulVec(ctx.Residual, ctx.X)
		stats.MulVec++
		floats.AddScaledTo(ctx.Residual, b, -1, ctx.Residual) // r = b - Ax
	} else {
		copy(ctx.Residual, b) // r = b
	}

	ctx.ResidualNorm = floats.Norm(ctx.Residual, 2)
	var err error
	if ctx.ResidualNorm >= settings.Tolerance {
		err = iterate(a, b, ctx, settings, method, &stats)
	}

	stats.Runtime = time.Since(stats.StartTime)
	return Result{
		X:     ctx.X,
		Stats: stats,
	}, err
}

func iterate(a System, b []float64, ctx *Context, settings Settings, method Method, stats *Stats) error {
	dim := len(ctx.X)
	bnorm := floats.Norm(b, 2)
	if bnorm == 0 {
		bnorm = 1
	}

	method.Init(dim)

	for {
		op, err := method.Iterate(ctx)
		if err != nil {
			return err
		}

		switch op {
		case NoOperation:

		case ComputeResidual:
			a.MulVec(ctx.Residual, ctx.X)
			stats.MulVec++
			floats.AddScaledTo(ctx.Residual, b, -1, ctx.Residual) // r = b - Ax
			ctx.ResidualNorm = floats.Norm(ctx.Residual, 2)

		case MulVec:
			a.MulVec(ctx.Dst, ctx.Src)
			stats.MulVec++

		case PSolve:
			if settings.PSolve == nil {
				copy(ctx.Dst, ctx.Src)
				continue
			}
			if err = settings.PSolve(ctx.Dst, ctx.Src); err != nil {
				return err
			}
			stats.PSolve++

		case CheckResidualNorm:
			ctx.Converged = ctx.ResidualNorm/bnorm < settings.Tolerance

		case EndIteration:
			stats.Iterations++
			stats.ResidualNorm = ctx.ResidualNorm
			if ctx.Converged {
				return nil
			}
			if stats.Iterations == settings.MaxIterations {
				return errors.New("krylov: iteration limit reached")
			}

		default:
			panic("krylov: invalid operation")
		}
	}
}

func reuse(v []float64, n int) []float64 {
	if cap(v) < n {
		return make([]float64, n)
	}
	return v[:n]
}

const dlamchE = 1.0 / (1 << 53)
