// Package rbf は散在する多次元サンプルに対する放射基底関数（RBF）補間を提供する。
//
// Fit で学習点と値から Interpolator を構築し、Evaluate で任意の点の値を求める。
// 学習済みモデルの唯一の直列化手段は SaveModel であり、ファイルパスに JSON を書き出す。
// 入力座標はバウンディングボックスの中心と最大軸長で正規化してから係数を求める。
package rbf
