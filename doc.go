// Package linalg is a GPU-backed linear algebra engine built on WebGPU.
//
// Matrices live on the host as [matrix.Matrix] values and are copied into
// device buffers owned by a [calculator.Calculator]. The calculator hands out
// opaque handles for those buffers, runs the built-in matrix multiply or any
// registered WGSL kernel against them, and keeps every result resident so it
// can feed the next operation without another upload.
//
// This root package only carries the error kinds shared by the subpackages.
package linalg
