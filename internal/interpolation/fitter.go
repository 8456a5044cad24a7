package interpolation

import (
	"fmt"

	"github.com/nao1215/geology-engine/pkg/rbf"
)

// Model はフィット済みのモデル。
type Model interface {
	// Evaluate は評価点ごとの値を入力順に返す。
	Evaluate(points [][]float64) ([]float64, error)
	// SaveModel はモデルの係数構造を path にJSONで書き出す。
	SaveModel(path string) error
}

// Fitter は学習点と値からモデルを構築する。
type Fitter interface {
	Fit(points [][]float64, values []float64, s rbf.Settings) (Model, error)
}

// FitterFunc は関数を Fitter として扱うアダプター。
type FitterFunc func(points [][]float64, values []float64, s rbf.Settings) (Model, error)

// Fit は f を呼び出す。
func (f FitterFunc) Fit(points [][]float64, values []float64, s rbf.Settings) (Model, error) {
	return f(points, values, s)
}

// RBFFitter は pkg/rbf でモデルを構築する既定の Fitter。
var RBFFitter Fitter = FitterFunc(func(points [][]float64, values []float64, s rbf.Settings) (Model, error) {
	m, err := rbf.Fit(points, values, s)
	if err != nil {
		return nil, err
	}
	return m, nil
})

// guard はライブラリ呼び出しのパニックを ErrFittingFailed に変換する。
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrFittingFailed, r)
		}
	}()
	return fn()
}
