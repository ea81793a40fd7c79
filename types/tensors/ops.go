package tensors

import (
	"reflect"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/gomlx/gosparse/types/shapes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
	"k8s.io/klog/v2"
)

// PODNumeric constrains to the Go native numeric types tensors operate with.
// The 16-bit float types are not included: they are storage-only and get
// converted to float32 for arithmetic.
type PODNumeric interface {
	constraints.Float | constraints.Complex
}

// ConvertScalar converts the complex-capable coefficient c to the numeric
// type T. If T is a real type and c carries a non-zero imaginary part, that is
// a user error: the value cannot be represented.
func ConvertScalar[T PODNumeric](c complex128) (value T, err error) {
	switch p := any(&value).(type) {
	case *float32:
		if imag(c) != 0 {
			return value, errors.Errorf("scalar (%v) with non-zero imaginary part cannot be converted to a real dtype", c)
		}
		*p = float32(real(c))
	case *float64:
		if imag(c) != 0 {
			return value, errors.Errorf("scalar (%v) with non-zero imaginary part cannot be converted to a real dtype", c)
		}
		*p = real(c)
	case *complex64:
		*p = complex64(c)
	case *complex128:
		*p = c
	default:
		return value, errors.Errorf("unsupported scalar type %T", value)
	}
	return
}

// ResizeOutput resizes a dense tensor to the given dimensions, reallocating
// the backing storage only if the total element count changes. The contents
// after a reallocation are unspecified -- callers that accumulate must copy
// the bias in afterward (see blas.Addmv).
//
// It panics for SparseCSR tensors: sparse outputs are resized structurally
// with ResizeAsCSR.
func (t *Tensor) ResizeOutput(dimensions ...int) {
	if t.layout != Strided {
		exceptions.Panicf("Tensor.ResizeOutput: tensor %s is not strided", t)
	}
	newShape := shapes.Make(t.shape.DType, dimensions...)
	if newShape.Size() != t.shape.Size() {
		if klog.V(2).Enabled() {
			klog.Infof("ResizeOutput: reallocating %s -> %s (%s)", t.shape, newShape, humanize.Bytes(uint64(newShape.Memory())))
		}
		t.flat = reflect.MakeSlice(reflect.SliceOf(newShape.DType.GoType()), newShape.Size(), newShape.Size()).Interface()
	}
	t.shape = newShape
}

// CopyFrom copies src's contents into t, elementwise for dense tensors, or
// the full structure (row pointers, column indices and values) for CSR
// tensors. Layouts and dtypes must match; dense tensors must also match in
// total size.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if t.DType() != src.DType() {
		return errors.Errorf("CopyFrom: dtype mismatch, dst is %s and src is %s", t.DType(), src.DType())
	}
	if t.layout != src.layout {
		return errors.Errorf("CopyFrom: layout mismatch, dst is %s and src is %s", t.layout, src.layout)
	}
	if t == src {
		return nil
	}
	if t.layout == SparseCSR {
		t.shape = src.shape.Clone()
		t.rowPtr = slices.Clone(src.rowPtr)
		t.colIdx = slices.Clone(src.colIdx)
		srcV := reflect.ValueOf(src.values)
		dstV := reflect.ValueOf(t.values)
		if dstV.Len() != srcV.Len() {
			dstV = reflect.MakeSlice(srcV.Type(), srcV.Len(), srcV.Len())
			t.values = dstV.Interface()
		}
		reflect.Copy(dstV, srcV)
		return nil
	}
	if t.Size() != src.Size() {
		return errors.Errorf("CopyFrom: dst %s and src %s differ in size", t.shape, src.shape)
	}
	reflect.Copy(reflect.ValueOf(t.flat), reflect.ValueOf(src.flat))
	return nil
}

// Zero fills the tensor's stored elements with zeros: the whole buffer for a
// dense tensor, the stored values (keeping the structure) for a CSR one.
func (t *Tensor) Zero() {
	if t.layout == SparseCSR {
		zeroAny(t.values)
		return
	}
	zeroAny(t.flat)
}

func zeroAny(flat any) {
	switch s := flat.(type) {
	case []float16.Float16:
		clear(s)
	case []bfloat16.BFloat16:
		clear(s)
	case []float32:
		clear(s)
	case []float64:
		clear(s)
	case []complex64:
		clear(s)
	case []complex128:
		clear(s)
	default:
		exceptions.Panicf("tensors: unsupported flat storage %T", flat)
	}
}

// ScaleFrom sets t = beta * src elementwise. Both tensors must be dense, with
// the same dtype and total size. t and src may be the same tensor.
//
// A complex beta with a real dtype is a user error.
func (t *Tensor) ScaleFrom(beta complex128, src *Tensor) error {
	if t.layout != Strided || src.layout != Strided {
		return errors.Errorf("ScaleFrom: expected strided tensors, got dst %s and src %s", t.layout, src.layout)
	}
	if t.DType() != src.DType() {
		return errors.Errorf("ScaleFrom: dtype mismatch, dst is %s and src is %s", t.DType(), src.DType())
	}
	if t.Size() != src.Size() {
		return errors.Errorf("ScaleFrom: dst %s and src %s differ in size", t.shape, src.shape)
	}
	switch t.DType() {
	case dtypes.Float32:
		return scaleSlice[float32](t, src, beta)
	case dtypes.Float64:
		return scaleSlice[float64](t, src, beta)
	case dtypes.Complex64:
		return scaleSlice[complex64](t, src, beta)
	case dtypes.Complex128:
		return scaleSlice[complex128](t, src, beta)
	case dtypes.Float16:
		return scaleSlice16(FlatData[float16.Float16](t), FlatData[float16.Float16](src), beta, float16.Fromfloat32)
	case dtypes.BFloat16:
		return scaleSlice16(FlatData[bfloat16.BFloat16](t), FlatData[bfloat16.BFloat16](src), beta, bfloat16.FromFloat32)
	default:
		return errors.Errorf("ScaleFrom: unsupported dtype %s", t.DType())
	}
}

func scaleSlice[T interface {
	PODNumeric
	Supported
}](dst, src *Tensor, beta complex128) error {
	scale, err := ConvertScalar[T](beta)
	if err != nil {
		return errors.WithMessagef(err, "while scaling a %s tensor", dst.DType())
	}
	dstFlat, srcFlat := FlatData[T](dst), FlatData[T](src)
	for i, v := range srcFlat {
		dstFlat[i] = scale * v
	}
	return nil
}

// Float16s constrains to the 16-bit float storage types, which share the
// Float32 accessor. Conversions back go through an explicit `from` function
// since FromFloat32 is a free function in both packages.
type Float16s interface {
	float16.Float16 | bfloat16.BFloat16
	Float32() float32
}

func scaleSlice16[T Float16s](dstFlat, srcFlat []T, beta complex128, from func(float32) T) error {
	if imag(beta) != 0 {
		return errors.Errorf("scalar (%v) with non-zero imaginary part cannot be converted to a real dtype", beta)
	}
	scale := float32(real(beta))
	for i, v := range srcFlat {
		dstFlat[i] = from(scale * v.Float32())
	}
	return nil
}

// ExpandTo broadcasts a dense tensor to the given dimensions, following the
// usual right-aligned broadcasting rule: each of t's axes must either match
// the corresponding target axis or have dimension 1.
//
// If t already has exactly the target dimensions it is returned as is (no
// copy); otherwise a freshly allocated tensor is returned.
func (t *Tensor) ExpandTo(dimensions ...int) (*Tensor, error) {
	if t.layout != Strided {
		return nil, errors.Errorf("ExpandTo: expected a strided tensor, got %s layout", t.layout)
	}
	if slices.Equal(t.shape.Dimensions, dimensions) {
		return t, nil
	}
	rank := len(dimensions)
	if t.Rank() > rank {
		return nil, errors.Errorf("ExpandTo: cannot broadcast shape %s to dimensions %v of lower rank", t.shape, dimensions)
	}
	// Right-align t's axes against the target and compute source strides,
	// zero on broadcast axes.
	srcDims := make([]int, rank)
	for i := range srcDims {
		srcDims[i] = 1
	}
	copy(srcDims[rank-t.Rank():], t.shape.Dimensions)
	srcStrides := make([]int, rank)
	stride := 1
	for i := rank - 1; i >= 0; i-- {
		if srcDims[i] != dimensions[i] && srcDims[i] != 1 {
			return nil, errors.Errorf("ExpandTo: cannot broadcast shape %s to dimensions %v (axis %d: %d vs %d)",
				t.shape, dimensions, i, srcDims[i], dimensions[i])
		}
		if srcDims[i] != 1 {
			srcStrides[i] = stride
		}
		stride *= srcDims[i]
	}

	expanded := FromShape(shapes.Make(t.DType(), dimensions...))
	dstV := reflect.ValueOf(expanded.flat)
	srcV := reflect.ValueOf(t.flat)
	idx := make([]int, rank)
	for di := 0; di < expanded.Size(); di++ {
		si := 0
		for a, ia := range idx {
			si += ia * srcStrides[a]
		}
		dstV.Index(di).Set(srcV.Index(si))
		for a := rank - 1; a >= 0; a-- {
			idx[a]++
			if idx[a] < dimensions[a] {
				break
			}
			idx[a] = 0
		}
	}
	return expanded, nil
}

// Clone returns a deep copy of the tensor, dense or CSR.
func (t *Tensor) Clone() *Tensor {
	clone := &Tensor{shape: t.shape.Clone(), layout: t.layout}
	if t.layout == SparseCSR {
		clone.rowPtr = slices.Clone(t.rowPtr)
		clone.colIdx = slices.Clone(t.colIdx)
		srcV := reflect.ValueOf(t.values)
		dstV := reflect.MakeSlice(srcV.Type(), srcV.Len(), srcV.Len())
		reflect.Copy(dstV, srcV)
		clone.values = dstV.Interface()
		return clone
	}
	srcV := reflect.ValueOf(t.flat)
	dstV := reflect.MakeSlice(srcV.Type(), srcV.Len(), srcV.Len())
	reflect.Copy(dstV, srcV)
	clone.flat = dstV.Interface()
	return clone
}
