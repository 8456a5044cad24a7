package rbf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultAccuracy は Settings.Accuracy の既定値（絶対誤差）。
const DefaultAccuracy = 0.01

// maxRefinements は反復改良の最大回数。
const maxRefinements = 3

// Settings は補間モデルの構築設定。
type Settings struct {
	// Kernel は使用する放射基底関数。
	Kernel Kernel
	// Degree は多項式項の次数。NoPolynomial で多項式項を使用しない。
	Degree int
	// Nugget は対角成分に加える平滑化項。0 で厳密補間になる。
	Nugget float64
	// Shape はガウスカーネルの形状パラメータ ε（正規化座標系）。
	Shape float64
	// Accuracy は学習点における連立方程式の許容残差（絶対値）。
	Accuracy float64
}

// NewSettings はカーネルの既定値で Settings を生成する。
func NewSettings(k Kernel) Settings {
	return Settings{
		Kernel:   k,
		Degree:   k.MinDegree(),
		Shape:    1,
		Accuracy: DefaultAccuracy,
	}
}

func (s Settings) validate() error {
	if !s.Kernel.valid() {
		return fmt.Errorf("%w: unknown kernel %q", ErrInvalidSettings, s.Kernel)
	}
	if s.Degree < s.Kernel.MinDegree() || s.Degree > MaxPolynomialDegree {
		return fmt.Errorf("%w: degree %d is out of range [%d, %d] for kernel %s",
			ErrInvalidSettings, s.Degree, s.Kernel.MinDegree(), MaxPolynomialDegree, s.Kernel)
	}
	if s.Nugget < 0 || math.IsNaN(s.Nugget) || math.IsInf(s.Nugget, 0) {
		return fmt.Errorf("%w: nugget must be a finite non-negative number", ErrInvalidSettings)
	}
	if !(s.Accuracy > 0) || math.IsInf(s.Accuracy, 0) {
		return fmt.Errorf("%w: accuracy must be positive", ErrInvalidSettings)
	}
	if s.Kernel == KernelGaussian && !(s.Shape > 0) {
		return fmt.Errorf("%w: shape must be positive", ErrInvalidSettings)
	}
	return nil
}

// Interpolator は学習済みの RBF モデル。生成後は読み取り専用で、
// 複数ゴルーチンから Evaluate を呼び出してよい。
type Interpolator struct {
	settings    Settings
	dim         int
	centres     [][]float64
	weights     []float64
	poly        []float64
	exponents   [][]int
	translation []float64
	scale       []float64
}

// Fit は学習点 points と値 values から補間モデルを構築する。
// 入力スライスは変更しない。重複点の除去も行わない。
func Fit(points [][]float64, values []float64, s Settings) (*Interpolator, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	dim, err := checkPoints(points, 0)
	if err != nil {
		return nil, err
	}
	n := len(points)
	if len(values) != n {
		return nil, fmt.Errorf("%w: %d points but %d values", ErrShapeMismatch, n, len(values))
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: value %d", ErrNonFinite, i)
		}
	}
	if minimum := MinimumSamples(s.Kernel, s.Degree, dim); n < minimum {
		return nil, fmt.Errorf("%w: kernel %s needs at least %d samples, got %d",
			ErrInsufficientData, s.Kernel, minimum, n)
	}

	translation, scale := normalization(points, dim)
	rbf := &Interpolator{
		settings:    s,
		dim:         dim,
		centres:     make([][]float64, n),
		exponents:   monomials(dim, s.Degree),
		translation: translation,
		scale:       scale,
	}
	for i, p := range points {
		rbf.centres[i] = rbf.normalize(p)
	}

	m := len(rbf.exponents)
	size := n + m
	system := mat.NewDense(size, size, nil)
	for i := range n {
		for j := i; j < n; j++ {
			v := s.Kernel.eval(distance(rbf.centres[i], rbf.centres[j]), s.Shape)
			if i == j {
				v += s.Nugget
			}
			system.Set(i, j, v)
			system.Set(j, i, v)
		}
		for t, exp := range rbf.exponents {
			v := monomial(rbf.centres[i], exp)
			system.Set(i, n+t, v)
			system.Set(n+t, i, v)
		}
	}
	rhs := mat.NewVecDense(size, nil)
	for i, v := range values {
		rhs.SetVec(i, v)
	}

	coef, err := solve(system, rhs, s.Accuracy)
	if err != nil {
		return nil, err
	}
	rbf.weights = make([]float64, n)
	for i := range n {
		rbf.weights[i] = coef.AtVec(i)
	}
	if m > 0 {
		rbf.poly = make([]float64, m)
		for t := range m {
			rbf.poly[t] = coef.AtVec(n + t)
		}
	}
	return rbf, nil
}

// solve は QR 分解で連立方程式を解き、残差が accuracy 以下になるまで反復改良する。
func solve(a *mat.Dense, b *mat.VecDense, accuracy float64) (*mat.VecDense, error) {
	var qr mat.QR
	qr.Factorize(a)

	x := mat.NewVecDense(b.Len(), nil)
	if err := qr.SolveVecTo(x, false, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularSystem, err)
	}

	residual := mat.NewVecDense(b.Len(), nil)
	delta := mat.NewVecDense(b.Len(), nil)
	for pass := 0; ; pass++ {
		residual.MulVec(a, x)
		residual.SubVec(b, residual)
		worst := mat.Norm(residual, math.Inf(1))
		if math.IsNaN(worst) {
			return nil, fmt.Errorf("%w: residual is NaN", ErrSingularSystem)
		}
		if worst <= accuracy {
			return x, nil
		}
		if pass == maxRefinements {
			return nil, fmt.Errorf("%w: max residual %g exceeds %g", ErrAccuracyNotReached, worst, accuracy)
		}
		if err := qr.SolveVecTo(delta, false, residual); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSingularSystem, err)
		}
		x.AddVec(x, delta)
	}
}

// Evaluate は各点における補間値を入力順に返す。
func (r *Interpolator) Evaluate(points [][]float64) ([]float64, error) {
	if _, err := checkPoints(points, r.dim); err != nil {
		return nil, err
	}
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = r.at(r.normalize(p))
	}
	return out, nil
}

func (r *Interpolator) at(x []float64) float64 {
	var v float64
	for i, c := range r.centres {
		v += r.weights[i] * r.settings.Kernel.eval(distance(x, c), r.settings.Shape)
	}
	for t, exp := range r.exponents {
		v += r.poly[t] * monomial(x, exp)
	}
	return v
}

// Settings はモデル構築に使用した設定を返す。
func (r *Interpolator) Settings() Settings { return r.settings }

// Dimension は入力点の次元を返す。
func (r *Interpolator) Dimension() int { return r.dim }

// Len は学習点の数を返す。
func (r *Interpolator) Len() int { return len(r.centres) }

func (r *Interpolator) normalize(p []float64) []float64 {
	x := make([]float64, len(p))
	for k, v := range p {
		x[k] = (v - r.translation[k]) * r.scale[k]
	}
	return x
}

// normalization はバウンディングボックスの中心を平行移動量、
// 最大軸長の半分の逆数を全軸共通の拡大率として返す。
func normalization(points [][]float64, dim int) (translation, scale []float64) {
	lo := append([]float64(nil), points[0]...)
	hi := append([]float64(nil), points[0]...)
	for _, p := range points[1:] {
		for k, v := range p {
			lo[k] = math.Min(lo[k], v)
			hi[k] = math.Max(hi[k], v)
		}
	}
	translation = make([]float64, dim)
	var span float64
	for k := range dim {
		translation[k] = (lo[k] + hi[k]) / 2
		span = math.Max(span, hi[k]-lo[k])
	}
	s := 1.0
	if span > 0 {
		s = 2 / span
	}
	scale = make([]float64, dim)
	for k := range scale {
		scale[k] = s
	}
	return translation, scale
}

// checkPoints は全点が同じ次元で有限値であることを検証し、次元を返す。
// want が 0 の場合は先頭の点の次元を基準とする。
func checkPoints(points [][]float64, want int) (int, error) {
	if len(points) == 0 {
		return 0, fmt.Errorf("%w: no points", ErrInsufficientData)
	}
	dim := want
	if dim == 0 {
		dim = len(points[0])
	}
	if dim == 0 {
		return 0, fmt.Errorf("%w: points have no coordinates", ErrShapeMismatch)
	}
	for i, p := range points {
		if len(p) != dim {
			return 0, fmt.Errorf("%w: point %d has %d coordinates, want %d", ErrShapeMismatch, i, len(p), dim)
		}
		for _, v := range p {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("%w: point %d", ErrNonFinite, i)
			}
		}
	}
	return dim, nil
}

func distance(a, b []float64) float64 {
	var sum float64
	for k := range a {
		d := a[k] - b[k]
		sum += d * d
	}
	return math.Sqrt(sum)
}
