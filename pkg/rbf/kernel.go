package rbf

import (
	"fmt"
	"math"
)

// Kernel は放射基底関数の種類を表す。
type Kernel string

const (
	// KernelLinear は φ(r) = -r。1次の条件付き正定値カーネル。
	KernelLinear Kernel = "linear"
	// KernelThinPlateSpline は φ(r) = r² log r。
	KernelThinPlateSpline Kernel = "thin_plate_spline"
	// KernelCubic は φ(r) = r³。
	KernelCubic Kernel = "cubic"
	// KernelQuintic は φ(r) = -r⁵。
	KernelQuintic Kernel = "quintic"
	// KernelGaussian は φ(r) = exp(-(εr)²)。正定値のため多項式項を必要としない。
	KernelGaussian Kernel = "gaussian"
)

// NoPolynomial は多項式項を使用しないことを表す次数。
const NoPolynomial = -1

// MaxPolynomialDegree はサポートする多項式項の最大次数。
const MaxPolynomialDegree = 2

// Kernels はサポートするカーネルの一覧を返す。
func Kernels() []Kernel {
	return []Kernel{KernelLinear, KernelThinPlateSpline, KernelCubic, KernelQuintic, KernelGaussian}
}

// ParseKernel は文字列からカーネルを解決する。空文字列は KernelLinear になる。
func ParseKernel(s string) (Kernel, error) {
	if s == "" {
		return KernelLinear, nil
	}
	if k := Kernel(s); k.valid() {
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown kernel %q", ErrInvalidSettings, s)
}

func (k Kernel) valid() bool {
	for _, known := range Kernels() {
		if k == known {
			return true
		}
	}
	return false
}

// MinDegree はカーネルが解の一意性のために必要とする多項式の最小次数を返す。
func (k Kernel) MinDegree() int {
	switch k {
	case KernelLinear:
		return 0
	case KernelThinPlateSpline, KernelCubic:
		return 1
	case KernelQuintic:
		return 2
	default:
		return NoPolynomial
	}
}

// eval はカーネル関数 φ(r) を評価する。shape はガウスカーネルでのみ使用する。
func (k Kernel) eval(r, shape float64) float64 {
	switch k {
	case KernelLinear:
		return -r
	case KernelThinPlateSpline:
		if r == 0 {
			return 0
		}
		return r * r * math.Log(r)
	case KernelCubic:
		return r * r * r
	case KernelQuintic:
		r2 := r * r
		return -r2 * r2 * r
	case KernelGaussian:
		er := shape * r
		return math.Exp(-er * er)
	default:
		return math.NaN()
	}
}

// MinimumSamples は指定カーネル・次数・次元で補間に必要な最小サンプル数を返す。
// 多項式項の数に1を加えた値で、多項式項が無い場合でも2点以上を要求する。
// degree がカーネルの最小次数を下回る場合は最小次数として扱う。
func MinimumSamples(k Kernel, degree, dim int) int {
	if degree < k.MinDegree() {
		degree = k.MinDegree()
	}
	terms := PolynomialTerms(dim, degree)
	if terms < 1 {
		terms = 1
	}
	if terms == math.MaxInt {
		return math.MaxInt
	}
	return terms + 1
}
