// Package tensors implements the Tensor type used by GoSparse: a CPU-resident
// numeric buffer that is either dense ("strided", row-major) or a sparse
// matrix in CSR (compressed sparse row) representation.
//
// A Tensor is operation-scoped: the blas package borrows operands by reference
// for the duration of a call, and output tensors own (and may reallocate)
// their backing storage. There is no locking -- tensors are not meant to be
// shared across goroutines while an operation mutates them.
package tensors

import (
	"fmt"
	"reflect"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/gomlx/gosparse/types/shapes"
	"github.com/x448/float16"
)

// Layout tags how a Tensor stores its elements.
type Layout uint8

const (
	// Strided is the dense layout: a row-major flat slice with one element
	// per position of the shape.
	Strided Layout = iota

	// SparseCSR is the compressed-sparse-row layout: row pointers, column
	// indices and a values buffer holding only the stored entries.
	SparseCSR
)

// String implements fmt.Stringer.
func (l Layout) String() string {
	switch l {
	case Strided:
		return "Strided"
	case SparseCSR:
		return "SparseCsr"
	default:
		return fmt.Sprintf("InvalidLayout(%d)", l)
	}
}

// Supported lists the Go types GoSparse tensors can hold.
type Supported interface {
	float16.Float16 | bfloat16.BFloat16 | float32 | float64 | complex64 | complex128
}

// Tensor is a dense buffer or a sparse CSR matrix. See the package
// documentation for the ownership model.
type Tensor struct {
	shape  shapes.Shape
	layout Layout

	// flat holds the dense storage, a slice of shape.DType's Go type.
	// Only set for Strided tensors.
	flat any

	// CSR storage, only set for SparseCSR tensors. values is a slice of
	// shape.DType's Go type with len == nnz == rowPtr[rows].
	rowPtr []int32
	colIdx []int32
	values any
}

// FromShape returns a dense (Strided) Tensor of the given shape, zero
// initialized. It panics on an invalid shape.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("tensors.FromShape: invalid shape %s", shape)
	}
	flatV := reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), shape.Size(), shape.Size())
	return &Tensor{
		shape:  shape.Clone(),
		layout: Strided,
		flat:   flatV.Interface(),
	}
}

// FromFlatAndDimensions returns a dense Tensor wrapping flat -- a slice of one
// of the Supported types -- with the given dimensions. The dtype is inferred
// from the slice's element type. The tensor takes ownership of flat.
//
// It panics if flat is not a supported slice or its length doesn't match the
// dimensions -- it is a constructor for values the calling code builds itself.
func FromFlatAndDimensions(flat any, dimensions ...int) *Tensor {
	flatV := reflect.ValueOf(flat)
	if flatV.Kind() != reflect.Slice {
		exceptions.Panicf("tensors.FromFlatAndDimensions: flat must be a slice, got %T", flat)
	}
	dtype := dtypes.FromGoType(flatV.Type().Elem())
	if dtype == dtypes.InvalidDType {
		exceptions.Panicf("tensors.FromFlatAndDimensions: unsupported element type %s", flatV.Type().Elem())
	}
	shape := shapes.Make(dtype, dimensions...)
	if flatV.Len() != shape.Size() {
		exceptions.Panicf("tensors.FromFlatAndDimensions: flat has %d elements, shape %s requires %d",
			flatV.Len(), shape, shape.Size())
	}
	return &Tensor{shape: shape, layout: Strided, flat: flat}
}

// Shape of the tensor. For SparseCSR tensors this is the logical (dense)
// shape, not the storage size.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the tensor elements.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Layout of the tensor storage.
func (t *Tensor) Layout() Layout { return t.layout }

// Rank of the tensor. Shortcut to t.Shape().Rank().
func (t *Tensor) Rank() int { return t.shape.Rank() }

// Dim returns the dimension of the given axis. Shortcut to t.Shape().Dim(axis).
func (t *Tensor) Dim(axis int) int { return t.shape.Dim(axis) }

// Size returns the number of logical elements. Shortcut to t.Shape().Size().
func (t *Tensor) Size() int { return t.shape.Size() }

// IsSparseCSR returns whether the tensor is stored in CSR layout.
func (t *Tensor) IsSparseCSR() bool { return t.layout == SparseCSR }

// Flat returns the dense storage slice. It panics for SparseCSR tensors --
// use Values for the stored entries of a sparse tensor.
func (t *Tensor) Flat() any {
	if t.layout != Strided {
		exceptions.Panicf("Tensor.Flat: tensor %s is not strided", t)
	}
	return t.flat
}

// FlatData returns the dense storage of t as a []T. It panics if T doesn't
// correspond to t's dtype or if t is not strided.
//
// The returned slice is the tensor's storage, not a copy.
func FlatData[T Supported](t *Tensor) []T {
	flat, ok := t.Flat().([]T)
	if !ok {
		var v T
		exceptions.Panicf("tensors.FlatData[%T] is incompatible with tensor dtype %s", v, t.DType())
	}
	return flat
}

// String implements fmt.Stringer. It prints shape and layout, not values.
func (t *Tensor) String() string {
	if t == nil {
		return "Tensor(nil)"
	}
	if t.layout == SparseCSR {
		return fmt.Sprintf("%s csr(nnz=%d)", t.shape, t.Nnz())
	}
	return fmt.Sprintf("%s strided", t.shape)
}
