package interpolation

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation はリクエストの内容が不正であることを表す。
	ErrValidation = errors.New("invalid interpolation request")
	// ErrInsufficientData は学習点がカーネルの要求する最小数に満たないことを表す。
	// ErrValidation をラップしている。
	ErrInsufficientData = fmt.Errorf("%w: insufficient training data", ErrValidation)
	// ErrFittingFailed は検証を通過した入力に対してライブラリが数値的に失敗したことを表す。
	ErrFittingFailed = errors.New("rbf fitting failed")
	// ErrResource は一時ファイルの確保や読み込みに失敗したことを表す。
	ErrResource = errors.New("temporary resource failure")
)

// Outcome はエラーをメトリクスと監査ログ用のラベルに変換する。
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrFittingFailed):
		return "fitting_failed"
	case errors.Is(err, ErrResource):
		return "resource"
	default:
		return "cancelled"
	}
}
