//go:build debug

package blas

// debugChecks enables the internal caller-contract assertions.
const debugChecks = true
