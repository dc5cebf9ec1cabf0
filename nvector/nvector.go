// Copyright ©2025 The sundials Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nvector defines the vector capability consumed by the
// preconditioner modules.
//
// In a distributed computation each process holds only its local block of
// the solution vector; the preconditioners operate exclusively on that local
// block through this interface and never see remote data. Any implementation
// that exposes its local data as a contiguous []float64 can be plugged in.
package nvector

// Vector is an opaque handle to the locally owned block of a possibly
// distributed vector.
type Vector interface {
	// Len returns the local length.
	Len() int

	// Raw returns the local data as a contiguous slice. Mutating the
	// slice mutates the vector.
	Raw() []float64

	// Clone returns a new vector of the same shape holding a copy of the
	// receiver's local data.
	Clone() Vector
}

// Serial is a Vector backed directly by a slice, for single-process use.
// Converting a []float64 to Serial does not copy.
type Serial []float64

// NewSerial returns a zeroed serial vector of length n.
func NewSerial(n int) Serial { return make(Serial, n) }

// Len implements the Vector interface.
func (v Serial) Len() int { return len(v) }

// Raw implements the Vector interface.
func (v Serial) Raw() []float64 { return v }

// Clone implements the Vector interface.
func (v Serial) Clone() Vector {
	w := make(Serial, len(v))
	copy(w, v)
	return w
}
