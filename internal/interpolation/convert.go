package interpolation

import (
	"fmt"
	"math"
)

// fromIntervals は学習点をライブラリの入力形式（N × 3 の座標と N 個の値）に変換する。
func fromIntervals(intervals []SpatialInterval) ([][]float64, []float64, error) {
	if len(intervals) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one interval is required", ErrValidation)
	}
	points := make([][]float64, len(intervals))
	values := make([]float64, len(intervals))
	for i, iv := range intervals {
		if iv.X == nil || iv.Y == nil || iv.Z == nil || iv.Value == nil {
			return nil, nil, fmt.Errorf("%w: interval %d requires x, y, z and value", ErrValidation, i)
		}
		points[i] = []float64{*iv.X, *iv.Y, *iv.Z}
		values[i] = *iv.Value
	}
	return points, values, nil
}

// fromQueryPoints は評価点をライブラリの入力形式に変換する。
func fromQueryPoints(queries []QueryPoint) ([][]float64, error) {
	if len(queries) == 0 {
		return nil, fmt.Errorf("%w: at least one query point is required", ErrValidation)
	}
	points := make([][]float64, len(queries))
	for i, q := range queries {
		if q.X == nil || q.Y == nil || q.Z == nil {
			return nil, fmt.Errorf("%w: query point %d requires x, y and z", ErrValidation, i)
		}
		points[i] = []float64{*q.X, *q.Y, *q.Z}
	}
	return points, nil
}

// dimension は全ての点が同じ次元であることを確認して次元を返す。
func dimension(points [][]float64) (int, error) {
	if len(points) == 0 {
		return 0, fmt.Errorf("%w: at least one training point is required", ErrValidation)
	}
	dim := len(points[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: training points must have at least one coordinate", ErrValidation)
	}
	for i, p := range points {
		if len(p) != dim {
			return 0, fmt.Errorf("%w: training point %d has dimension %d, want %d", ErrValidation, i, len(p), dim)
		}
	}
	return dim, nil
}

// extents は点群の軸平行な範囲を [min_x, min_y, min_z, max_x, max_y, max_z] の形で返す。
// 最小値は切り捨て、最大値は切り上げる。
func extents(points [][]float64) []float64 {
	if len(points) == 0 {
		return nil
	}
	dim := len(points[0])
	lo := make([]float64, dim)
	hi := make([]float64, dim)
	copy(lo, points[0])
	copy(hi, points[0])
	for _, p := range points[1:] {
		for d, v := range p {
			lo[d] = math.Min(lo[d], v)
			hi[d] = math.Max(hi[d], v)
		}
	}
	out := make([]float64, 0, 2*dim)
	for _, v := range lo {
		out = append(out, math.Floor(v))
	}
	for _, v := range hi {
		out = append(out, math.Ceil(v))
	}
	return out
}
