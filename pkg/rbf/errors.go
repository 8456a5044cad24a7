package rbf

import "errors"

var (
	// ErrInsufficientData はカーネルが要求する最小サンプル数に満たない場合に返る。
	ErrInsufficientData = errors.New("rbf: insufficient data")
	// ErrShapeMismatch は点と値の数、または点の次元が一致しない場合に返る。
	ErrShapeMismatch = errors.New("rbf: shape mismatch")
	// ErrNonFinite は入力に NaN または Inf が含まれる場合に返る。
	ErrNonFinite = errors.New("rbf: non-finite input")
	// ErrInvalidSettings は補間設定が不正な場合に返る。
	ErrInvalidSettings = errors.New("rbf: invalid settings")
	// ErrSingularSystem は連立方程式が特異または数値的に解けない場合に返る。
	ErrSingularSystem = errors.New("rbf: singular system")
	// ErrAccuracyNotReached は反復改良後も指定精度に到達しない場合に返る。
	ErrAccuracyNotReached = errors.New("rbf: fitting accuracy not reached")
	// ErrInvalidModel は保存済みモデルの内容が壊れている場合に返る。
	ErrInvalidModel = errors.New("rbf: invalid model")
)
