package rbf

import (
	"encoding/json"
	"fmt"
	"os"
)

// Model は SaveModel が書き出す JSON 形式のモデル。
// source_points は正規化後の座標で、評価点は x' = (x - translation_factor) * scale_factor
// で同じ座標系に変換してから係数を適用する。
type Model struct {
	// Kernel はカーネルの識別子。
	Kernel Kernel `json:"kernel"`
	// PolynomialDegree は多項式項の次数。-1 は多項式項なし。
	PolynomialDegree int `json:"polynomial_degree"`
	// Nugget は平滑化項。
	Nugget float64 `json:"nugget"`
	// Shape はガウスカーネルの形状パラメータ。
	Shape float64 `json:"shape"`
	// FittingAccuracy はモデル構築時の許容残差。
	FittingAccuracy float64 `json:"fitting_accuracy"`
	// Dimension は入力点の次元。
	Dimension int `json:"dimension"`
	// SourcePoints は正規化後の学習点（N × Dimension）。
	SourcePoints [][]float64 `json:"source_points"`
	// PointCoefficients は学習点ごとの係数（N × 1）。
	PointCoefficients [][]float64 `json:"point_coefficients"`
	// PolyCoefficients は多項式項の係数（M × 1）。多項式項が無い場合は null。
	PolyCoefficients [][]float64 `json:"poly_coefficients"`
	// PolyExponents は多項式項の指数ベクトル（M × Dimension）。
	PolyExponents [][]int `json:"poly_exponents"`
	// TranslationFactor は正規化の平行移動量。
	TranslationFactor []float64 `json:"translation_factor"`
	// ScaleFactor は正規化の拡大率。
	ScaleFactor []float64 `json:"scale_factor"`
}

// Model は補間モデルの係数構造を返す。
func (r *Interpolator) Model() Model {
	m := Model{
		Kernel:            r.settings.Kernel,
		PolynomialDegree:  r.settings.Degree,
		Nugget:            r.settings.Nugget,
		Shape:             r.settings.Shape,
		FittingAccuracy:   r.settings.Accuracy,
		Dimension:         r.dim,
		SourcePoints:      make([][]float64, len(r.centres)),
		PointCoefficients: make([][]float64, len(r.weights)),
		PolyExponents:     r.exponents,
		TranslationFactor: append([]float64(nil), r.translation...),
		ScaleFactor:       append([]float64(nil), r.scale...),
	}
	for i, c := range r.centres {
		m.SourcePoints[i] = append([]float64(nil), c...)
	}
	for i, w := range r.weights {
		m.PointCoefficients[i] = []float64{w}
	}
	if len(r.poly) > 0 {
		m.PolyCoefficients = make([][]float64, len(r.poly))
		for t, c := range r.poly {
			m.PolyCoefficients[t] = []float64{c}
		}
	}
	return m
}

// SaveModel はモデルを JSON として path に書き出す。既存ファイルは上書きする。
func (r *Interpolator) SaveModel(path string) error {
	data, err := json.Marshal(r.Model())
	if err != nil {
		return fmt.Errorf("rbf: encode model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("rbf: write model: %w", err)
	}
	return nil
}

// LoadModel は SaveModel が書き出したファイルから Interpolator を復元する。
func LoadModel(path string) (*Interpolator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rbf: read model: %w", err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	return FromModel(m)
}

// FromModel は係数構造から Interpolator を復元する。
func FromModel(m Model) (*Interpolator, error) {
	s := Settings{
		Kernel:   m.Kernel,
		Degree:   m.PolynomialDegree,
		Nugget:   m.Nugget,
		Shape:    m.Shape,
		Accuracy: m.FittingAccuracy,
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if m.Dimension < 1 || len(m.TranslationFactor) != m.Dimension || len(m.ScaleFactor) != m.Dimension {
		return nil, fmt.Errorf("%w: inconsistent dimension", ErrInvalidModel)
	}
	if len(m.SourcePoints) != len(m.PointCoefficients) {
		return nil, fmt.Errorf("%w: %d points but %d coefficients", ErrInvalidModel,
			len(m.SourcePoints), len(m.PointCoefficients))
	}
	if terms := PolynomialTerms(m.Dimension, m.PolynomialDegree); len(m.PolyCoefficients) != terms {
		return nil, fmt.Errorf("%w: expected %d polynomial coefficients, got %d", ErrInvalidModel,
			terms, len(m.PolyCoefficients))
	}
	exps := monomials(m.Dimension, m.PolynomialDegree)

	r := &Interpolator{
		settings:    s,
		dim:         m.Dimension,
		centres:     make([][]float64, len(m.SourcePoints)),
		weights:     make([]float64, len(m.PointCoefficients)),
		exponents:   exps,
		translation: append([]float64(nil), m.TranslationFactor...),
		scale:       append([]float64(nil), m.ScaleFactor...),
	}
	for i, p := range m.SourcePoints {
		if len(p) != m.Dimension {
			return nil, fmt.Errorf("%w: source point %d", ErrInvalidModel, i)
		}
		r.centres[i] = append([]float64(nil), p...)
	}
	for i, row := range m.PointCoefficients {
		if len(row) != 1 {
			return nil, fmt.Errorf("%w: coefficient row %d", ErrInvalidModel, i)
		}
		r.weights[i] = row[0]
	}
	if len(exps) > 0 {
		r.poly = make([]float64, len(exps))
		for t, row := range m.PolyCoefficients {
			if len(row) != 1 {
				return nil, fmt.Errorf("%w: polynomial row %d", ErrInvalidModel, t)
			}
			r.poly[t] = row[0]
		}
	}
	return r, nil
}
