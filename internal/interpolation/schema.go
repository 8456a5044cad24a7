package interpolation

import "github.com/nao1215/geology-engine/pkg/rbf"

// SpatialInterval は学習点1つ分の座標と値。
// 座標はUTM（メートル）を想定し、value は鉱種の値（符号付き距離）を表す。
// 0を有効な値として扱うため、各フィールドの有無はポインタで判定する。
type SpatialInterval struct {
	// X は東距。
	X *float64 `json:"x" binding:"required"`
	// Y は北距。
	Y *float64 `json:"y" binding:"required"`
	// Z は標高。
	Z *float64 `json:"z" binding:"required"`
	// Value は学習値。
	Value *float64 `json:"value" binding:"required"`
}

// QueryPoint は評価点の座標。
type QueryPoint struct {
	X *float64 `json:"x" binding:"required"`
	Y *float64 `json:"y" binding:"required"`
	Z *float64 `json:"z" binding:"required"`
}

// NewInterval は座標と値から SpatialInterval を生成する。
func NewInterval(x, y, z, value float64) SpatialInterval {
	return SpatialInterval{X: &x, Y: &y, Z: &z, Value: &value}
}

// NewQueryPoint は座標から QueryPoint を生成する。
func NewQueryPoint(x, y, z float64) QueryPoint {
	return QueryPoint{X: &x, Y: &y, Z: &z}
}

// CoefficientsRequest は /rbf/coefficients のリクエスト。
type CoefficientsRequest struct {
	// Intervals は学習点。
	Intervals []SpatialInterval `json:"intervals" binding:"required,min=1,dive"`
	// FittingAccuracy は許容残差（絶対値）。省略時は設定の既定値。
	FittingAccuracy *float64 `json:"fitting_accuracy,omitempty" binding:"omitempty,gt=0"`
	// Kernel はカーネルの識別子。省略時は設定の既定値。
	Kernel string `json:"kernel,omitempty"`
}

// CoefficientsResponse はクライアント側でモデルを再構築するための係数構造。
type CoefficientsResponse struct {
	// SourcePoints は正規化後の学習点（N × 3）。
	SourcePoints [][]float64 `json:"source_points"`
	// PointCoefficients は学習点ごとの係数（N × 1）。
	PointCoefficients [][]float64 `json:"point_coefficients"`
	// PolyCoefficients は多項式項の係数。多項式項が無い場合は null。
	PolyCoefficients [][]float64 `json:"poly_coefficients"`
	// PolyExponents は多項式項ごとの指数。
	PolyExponents [][]int `json:"poly_exponents,omitempty"`
	// KernelType はカーネルの識別子。
	KernelType string `json:"kernel_type"`
	// PolynomialDegree は多項式項の次数。-1 は多項式項なし。
	PolynomialDegree int `json:"polynomial_degree"`
	// Nugget は平滑化項。
	Nugget float64 `json:"nugget"`
	// TranslationFactor は正規化の平行移動量。
	TranslationFactor []float64 `json:"translation_factor"`
	// ScaleFactor は正規化の拡大率。
	ScaleFactor []float64 `json:"scale_factor"`
	// Extents は学習点の範囲 [min_x, min_y, min_z, max_x, max_y, max_z]。
	Extents []float64 `json:"extents"`
}

// EvaluateRequest は /rbf/evaluate のリクエスト。
type EvaluateRequest struct {
	Intervals       []SpatialInterval `json:"intervals" binding:"required,min=1,dive"`
	QueryPoints     []QueryPoint      `json:"query_points" binding:"required,min=1,dive"`
	FittingAccuracy *float64          `json:"fitting_accuracy,omitempty" binding:"omitempty,gt=0"`
	Kernel          string            `json:"kernel,omitempty"`
}

// EvaluateResponse は /rbf/evaluate のレスポンス。
type EvaluateResponse struct {
	// Values は評価点ごとの値。順序は QueryPoints と一致する。
	Values []float64 `json:"values"`
	// Extents は学習点の範囲 [min_x, min_y, min_z, max_x, max_y, max_z]。
	Extents []float64 `json:"extents"`
}

// InterpolateRequest は任意次元の /rbf/interpolate のリクエスト。
type InterpolateRequest struct {
	TrainingPoints  [][]float64 `json:"training_points" binding:"required,min=1"`
	TrainingValues  []float64   `json:"training_values" binding:"required,min=1"`
	TestPoints      [][]float64 `json:"test_points" binding:"required,min=1"`
	FittingAccuracy *float64    `json:"fitting_accuracy,omitempty" binding:"omitempty,gt=0"`
	Kernel          string      `json:"kernel,omitempty"`
}

// InterpolateResponse は /rbf/interpolate のレスポンス。
type InterpolateResponse struct {
	InterpolatedValues []float64 `json:"interpolated_values"`
}

// coefficientsFrom はライブラリのモデル構造をレスポンス形式に変換する。
func coefficientsFrom(m rbf.Model, extents []float64) *CoefficientsResponse {
	return &CoefficientsResponse{
		SourcePoints:      m.SourcePoints,
		PointCoefficients: m.PointCoefficients,
		PolyCoefficients:  m.PolyCoefficients,
		PolyExponents:     m.PolyExponents,
		KernelType:        string(m.Kernel),
		PolynomialDegree:  m.PolynomialDegree,
		Nugget:            m.Nugget,
		TranslationFactor: m.TranslationFactor,
		ScaleFactor:       m.ScaleFactor,
		Extents:           extents,
	}
}
