// Copyright ©2025 The sundials Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bbd

import (
	"errors"
	"fmt"

	"github.com/adriendelsalle/sundials/nvector"
)

// LocalFn evaluates the local approximation g(t,y) to the ODE right-hand
// side f(t,y) and stores the result into g. It must use only locally owned
// data; any neighbor data it needs must have been exchanged beforehand by
// the companion CommFn. The case where g is identical to f is allowed.
//
// A nil return means success. Returning an error that matches
// ErrRecoverable asks the outer solver to retry with adjusted inputs; any
// other error aborts the setup unconditionally.
type LocalFn func(t float64, y, g nvector.Vector) error

// CommFn performs all inter-process communication needed before a LocalFn
// evaluation at (t, y). It is called exactly once per Jacobian
// approximation, immediately before the baseline LocalFn call. Error
// semantics are those of LocalFn.
type CommFn func(t float64, y nvector.Vector) error

// DAELocalFn evaluates the local approximation G(t,y,y') to the DAE
// residual F(t,y,y') and stores the result into g. Error semantics are
// those of LocalFn.
type DAELocalFn func(t float64, y, yp, g nvector.Vector) error

// DAECommFn performs the communication needed before a DAELocalFn
// evaluation. Error semantics are those of LocalFn.
type DAECommFn func(t float64, y, yp nvector.Vector) error

// NewtonLocalFn evaluates the local approximation g(u) to the nonlinear
// system function f(u) and stores the result into g. Error semantics are
// those of LocalFn.
type NewtonLocalFn func(u, g nvector.Vector) error

// NewtonCommFn performs the communication needed before a NewtonLocalFn
// evaluation. Error semantics are those of LocalFn.
type NewtonCommFn func(u nvector.Vector) error

var (
	// ErrRecoverable tags a callback failure that the outer solver may
	// recover from, typically by shrinking the step size. Wrap it with
	// fmt.Errorf("...: %w", ErrRecoverable) to attach detail.
	ErrRecoverable = errors.New("bbd: recoverable callback failure")

	// ErrNilLocalFn indicates a constructor or ReInit call without a
	// local approximation function.
	ErrNilLocalFn = errors.New("bbd: nil local approximation function")

	// ErrNegativeSize indicates a negative local problem size.
	ErrNegativeSize = errors.New("bbd: negative local problem size")

	// ErrScaleLength indicates a scale slice whose length differs from
	// the local problem size.
	ErrScaleLength = errors.New("bbd: scale length does not match local size")
)

// PivotError reports a singular banded factorization during Setup. It is
// recoverable: the caller may retry with a smaller step size, and the saved
// Jacobian copy from the last successful setup remains usable.
type PivotError struct {
	// Col is the 1-based column of the first zero pivot.
	Col int
}

func (e PivotError) Error() string {
	return fmt.Sprintf("bbd: singular preconditioner, zero pivot in column %d", e.Col)
}

// Recoverable reports whether err from Setup permits a retry by the outer
// solver, as opposed to an unrecoverable callback failure.
func Recoverable(err error) bool {
	var pe PivotError
	return errors.Is(err, ErrRecoverable) || errors.As(err, &pe)
}

// Stats holds diagnostic outputs of a preconditioner.
type Stats struct {
	// LocalEvals is the cumulative number of local approximation
	// function evaluations.
	LocalEvals int64
	// RealWork and IntWork are the sizes, in float64 and int words, of
	// the workspace owned by the preconditioner.
	RealWork int
	IntWork  int
}

// clampBand restricts a requested half-bandwidth to [0, n-1].
func clampBand(bw, n int) int {
	return min(max(bw, 0), max(n-1, 0))
}
