package rbf

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFit はモデル構築と評価を検証する。
func TestFit(t *testing.T) {
	t.Parallel()

	t.Run("一直線上の2点から中点を線形に補間できること", func(t *testing.T) {
		t.Parallel()

		model, err := Fit(
			[][]float64{{0, 0, 0}, {10, 0, 0}},
			[]float64{0, 10},
			NewSettings(KernelLinear),
		)
		require.NoError(t, err)

		got, err := model.Evaluate([][]float64{{5, 0, 0}})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.InDelta(t, 5.0, got[0], DefaultAccuracy)
	})

	t.Run("学習点では学習値を再現すること", func(t *testing.T) {
		t.Parallel()

		points := [][]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
		values := []float64{0, 1, 1, 2}
		s := NewSettings(KernelLinear)
		s.Accuracy = 1e-9

		model, err := Fit(points, values, s)
		require.NoError(t, err)

		got, err := model.Evaluate(points)
		require.NoError(t, err)
		for i, want := range values {
			assert.InDelta(t, want, got[i], 1e-6, "point %d", i)
		}
	})

	t.Run("平面 z = x + y の中心で1付近の値を返すこと", func(t *testing.T) {
		t.Parallel()

		model, err := Fit(
			[][]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}},
			[]float64{0, 1, 1, 2},
			NewSettings(KernelLinear),
		)
		require.NoError(t, err)

		got, err := model.Evaluate([][]float64{{0.5, 0.5}, {0.25, 0.25}, {0.75, 0.75}})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, got[0], 0.1)
		for _, v := range got {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 2.0)
		}
	})

	t.Run("全ての値が同一でも定数を返すこと", func(t *testing.T) {
		t.Parallel()

		model, err := Fit(
			[][]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
			[]float64{3, 3, 3, 3},
			NewSettings(KernelLinear),
		)
		require.NoError(t, err)

		got, err := model.Evaluate([][]float64{{0.3, 0.3, 0.3}, {5, 5, 5}})
		require.NoError(t, err)
		for _, v := range got {
			assert.InDelta(t, 3.0, v, 1e-6)
		}
	})

	t.Run("UTM座標のような大きな値でも補間できること", func(t *testing.T) {
		t.Parallel()

		model, err := Fit(
			[][]float64{
				{500000, 4500000, 100},
				{501000, 4500000, 100},
				{500000, 4501000, 100},
				{501000, 4501000, 100},
			},
			[]float64{0, 1, 1, 2},
			NewSettings(KernelLinear),
		)
		require.NoError(t, err)

		got, err := model.Evaluate([][]float64{{500500, 4500500, 100}})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, got[0], 0.1)
	})

	t.Run("サンプル数が最小数未満の場合ErrInsufficientDataを返すこと", func(t *testing.T) {
		t.Parallel()

		_, err := Fit([][]float64{{0, 0, 0}}, []float64{1}, NewSettings(KernelLinear))
		assert.ErrorIs(t, err, ErrInsufficientData)

		_, err = Fit(
			[][]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
			[]float64{0, 1, 2, 3},
			NewSettings(KernelThinPlateSpline),
		)
		assert.ErrorIs(t, err, ErrInsufficientData)
	})

	t.Run("点と値の数が異なる場合ErrShapeMismatchを返すこと", func(t *testing.T) {
		t.Parallel()

		_, err := Fit([][]float64{{0, 0}, {1, 0}}, []float64{0, 1, 2}, NewSettings(KernelLinear))
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("次元の異なる点が混在する場合ErrShapeMismatchを返すこと", func(t *testing.T) {
		t.Parallel()

		_, err := Fit([][]float64{{0, 0}, {1, 0, 0}}, []float64{0, 1}, NewSettings(KernelLinear))
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("未知のカーネルや不正な精度はErrInvalidSettingsを返すこと", func(t *testing.T) {
		t.Parallel()

		points := [][]float64{{0}, {1}, {2}}
		values := []float64{0, 1, 2}

		_, err := Fit(points, values, Settings{Kernel: "spline", Accuracy: 0.01})
		assert.ErrorIs(t, err, ErrInvalidSettings)

		s := NewSettings(KernelLinear)
		s.Accuracy = 0
		_, err = Fit(points, values, s)
		assert.ErrorIs(t, err, ErrInvalidSettings)

		s = NewSettings(KernelCubic)
		s.Degree = 0
		_, err = Fit(points, values, s)
		assert.ErrorIs(t, err, ErrInvalidSettings)
	})
}

// TestEvaluate は評価時の入力検証を検証する。
func TestEvaluate(t *testing.T) {
	t.Parallel()

	model, err := Fit([][]float64{{0, 0}, {1, 1}}, []float64{0, 1}, NewSettings(KernelLinear))
	require.NoError(t, err)

	t.Run("次元が異なる評価点はErrShapeMismatchを返すこと", func(t *testing.T) {
		t.Parallel()

		_, err := model.Evaluate([][]float64{{0.5, 0.5, 0.5}})
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("評価結果の順序が入力順と一致すること", func(t *testing.T) {
		t.Parallel()

		got, err := model.Evaluate([][]float64{{1, 1}, {0, 0}})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, got[0], DefaultAccuracy)
		assert.InDelta(t, 0.0, got[1], DefaultAccuracy)
	})
}

// TestMinimumSamples は最小サンプル数の算出を検証する。
func TestMinimumSamples(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		kernel Kernel
		degree int
		dim    int
		want   int
	}{
		{name: "linear 3次元", kernel: KernelLinear, degree: 0, dim: 3, want: 2},
		{name: "thin_plate_spline 3次元", kernel: KernelThinPlateSpline, degree: 1, dim: 3, want: 5},
		{name: "thin_plate_spline 2次元", kernel: KernelThinPlateSpline, degree: 1, dim: 2, want: 4},
		{name: "quintic 3次元", kernel: KernelQuintic, degree: 2, dim: 3, want: 11},
		{name: "gaussian 多項式なし", kernel: KernelGaussian, degree: NoPolynomial, dim: 3, want: 2},
		{name: "最小次数未満は最小次数として扱う", kernel: KernelCubic, degree: 0, dim: 3, want: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, MinimumSamples(tt.kernel, tt.degree, tt.dim))
		})
	}
}

// TestPolynomialTerms は多項式項の数の算出を検証する。
func TestPolynomialTerms(t *testing.T) {
	t.Parallel()

	t.Run("列挙した単項式の数と一致すること", func(t *testing.T) {
		t.Parallel()

		for dim := 1; dim <= 6; dim++ {
			for degree := NoPolynomial; degree <= MaxPolynomialDegree; degree++ {
				assert.Equal(t, len(monomials(dim, degree)), PolynomialTerms(dim, degree),
					"dim=%d degree=%d", dim, degree)
			}
		}
	})

	t.Run("高次元でも単項式を列挙せずに算出できること", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, 20301, PolynomialTerms(200, 2))
		assert.Equal(t, 1001, PolynomialTerms(1000, 1))
		assert.Equal(t, 20302, MinimumSamples(KernelQuintic, 2, 200))
	})

	t.Run("intに収まらない場合はMaxIntを返すこと", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, math.MaxInt, PolynomialTerms(math.MaxInt-1, 2))
		assert.Equal(t, math.MaxInt, MinimumSamples(KernelQuintic, 2, math.MaxInt-1))
	})
}

// TestSaveModel はモデルのファイル書き出しと復元を検証する。
func TestSaveModel(t *testing.T) {
	t.Parallel()

	t.Run("保存したモデルから同じ評価結果が得られること", func(t *testing.T) {
		t.Parallel()

		points := [][]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 1, 1}}
		values := []float64{0, 1, 1, 1, 3}
		model, err := Fit(points, values, NewSettings(KernelCubic))
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "model.json")
		require.NoError(t, model.SaveModel(path))

		restored, err := LoadModel(path)
		require.NoError(t, err)

		query := [][]float64{{0.2, 0.4, 0.6}, {0.9, 0.1, 0.5}}
		want, err := model.Evaluate(query)
		require.NoError(t, err)
		got, err := restored.Evaluate(query)
		require.NoError(t, err)
		assert.InDeltaSlice(t, want, got, 1e-12)
	})

	t.Run("多項式項が無いモデルのpoly_coefficientsはnilであること", func(t *testing.T) {
		t.Parallel()

		model, err := Fit([][]float64{{0, 0}, {1, 0}, {0, 1}}, []float64{1, 2, 3}, NewSettings(KernelGaussian))
		require.NoError(t, err)

		m := model.Model()
		assert.Nil(t, m.PolyCoefficients)
		assert.Equal(t, NoPolynomial, m.PolynomialDegree)
		assert.Len(t, m.PointCoefficients, 3)
	})

	t.Run("存在しないディレクトリへの保存はエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		model, err := Fit([][]float64{{0}, {1}}, []float64{0, 1}, NewSettings(KernelLinear))
		require.NoError(t, err)

		err = model.SaveModel(filepath.Join(t.TempDir(), "missing", "model.json"))
		assert.Error(t, err)
	})

	t.Run("壊れたモデルファイルはErrInvalidModelを返すこと", func(t *testing.T) {
		t.Parallel()

		_, err := FromModel(Model{Kernel: KernelLinear, PolynomialDegree: 0, FittingAccuracy: 0.01, Dimension: 2})
		assert.ErrorIs(t, err, ErrInvalidModel)
	})
}
