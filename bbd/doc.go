// Copyright ©2025 The sundials Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bbd implements band-block-diagonal preconditioners for Krylov
// methods applied to large systems arising from implicit integration of
// ODEs and DAEs and from Newton iterations on nonlinear systems.
//
// The preconditioner matrix is block-diagonal, one block per process, with
// banded blocks. Each block is generated from the Jacobian of a
// user-supplied local function g that approximates the true right-hand side
// (or residual) using only locally owned data. The Jacobian is approximated
// by grouped difference quotients exploiting an assumed banded structure
// with half-bandwidths mudq and mldq, while the retained band may be
// narrower, with half-bandwidths mukeep and mlkeep, to cut storage and
// factorization cost.
//
// Three forms are provided, differing in the matrix that is factored:
//
//	Precond        P = I - γJ,          J ≈ ∂g/∂y        (stiff ODE)
//	DAEPrecond     P = ∂G/∂y + c·∂G/∂y'                  (DAE)
//	NewtonPrecond  P = J,               J ≈ ∂g/∂u        (nonlinear system)
//
// A preconditioner exposes a Setup method, called by the outer solver at the
// start of a Newton stage to compute or refresh the banded factors, and a
// Solve method that applies the approximate inverse to a vector. Both are
// meant to be wired into the preconditioner slot of an outer Krylov
// accelerator such as the krylov package in this module.
//
// Each process in a distributed run owns one independent preconditioner
// value operating on its local block. All cross-process data exchange is
// delegated to the user's communication callback; the package itself never
// communicates. A preconditioner is not safe for concurrent use.
package bbd
