package simplego

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/gomlx/gosparse/types/tensors"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

// Addmv implements backends.Backend: result = beta*result + alpha*(mat @ vec)
// over the CSR structure of mat, row by row. With beta == 0 the prior values
// of result are never read.
func (b *Backend) Addmv(mat, vec *tensors.Tensor, beta, alpha complex128, result *tensors.Tensor) error {
	klog.V(2).Infof("simplego.Addmv: mat=%s vec=%s beta=%v alpha=%v", mat, vec, beta, alpha)
	switch mat.DType() {
	case dtypes.Float32:
		return addmvCSR[float32](mat, vec, beta, alpha, result)
	case dtypes.Float64:
		return addmvCSR[float64](mat, vec, beta, alpha, result)
	case dtypes.Complex64:
		return addmvCSR[complex64](mat, vec, beta, alpha, result)
	case dtypes.Complex128:
		return addmvCSR[complex128](mat, vec, beta, alpha, result)
	case dtypes.Float16:
		return addmvCSR16[float16.Float16](mat, vec, beta, alpha, result, float16.Fromfloat32)
	case dtypes.BFloat16:
		return addmvCSR16[bfloat16.BFloat16](mat, vec, beta, alpha, result, bfloat16.FromFloat32)
	default:
		return errors.Errorf("addmv: dtype %s not supported by the %q backend", mat.DType(), BackendName)
	}
}

func addmvCSR[T interface {
	tensors.PODNumeric
	tensors.Supported
}](mat, vec *tensors.Tensor, beta, alpha complex128, result *tensors.Tensor) error {
	betaT, err := tensors.ConvertScalar[T](beta)
	if err != nil {
		return errors.WithMessagef(err, "addmv: beta for dtype %s", mat.DType())
	}
	alphaT, err := tensors.ConvertScalar[T](alpha)
	if err != nil {
		return errors.WithMessagef(err, "addmv: alpha for dtype %s", mat.DType())
	}
	rowPtr, colIdx := mat.RowPointers(), mat.ColumnIndices()
	vals := tensors.ValuesData[T](mat)
	v := tensors.FlatData[T](vec)
	out := tensors.FlatData[T](result)
	betaIsZero := beta == 0
	for i := 0; i < mat.Dim(0); i++ {
		var sum T
		for p := rowPtr[i]; p < rowPtr[i+1]; p++ {
			sum += vals[p] * v[colIdx[p]]
		}
		if betaIsZero {
			out[i] = alphaT * sum
		} else {
			out[i] = betaT*out[i] + alphaT*sum
		}
	}
	return nil
}

// addmvCSR16 is the 16-bit floats variant: storage in T, arithmetic in float32.
func addmvCSR16[T tensors.Float16s](mat, vec *tensors.Tensor, beta, alpha complex128, result *tensors.Tensor, from func(float32) T) error {
	if imag(beta) != 0 || imag(alpha) != 0 {
		return errors.Errorf("addmv: complex coefficients (beta=%v, alpha=%v) cannot be used with real dtype %s",
			beta, alpha, mat.DType())
	}
	beta32, alpha32 := float32(real(beta)), float32(real(alpha))
	rowPtr, colIdx := mat.RowPointers(), mat.ColumnIndices()
	vals := tensors.ValuesData[T](mat)
	v := tensors.FlatData[T](vec)
	out := tensors.FlatData[T](result)
	betaIsZero := beta == 0
	for i := 0; i < mat.Dim(0); i++ {
		var sum float32
		for p := rowPtr[i]; p < rowPtr[i+1]; p++ {
			sum += vals[p].Float32() * v[colIdx[p]].Float32()
		}
		if betaIsZero {
			out[i] = from(alpha32 * sum)
		} else {
			out[i] = from(beta32*out[i].Float32() + alpha32*sum)
		}
	}
	return nil
}
