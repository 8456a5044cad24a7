package config

import "errors"

// ErrConfiguration は設定が不正または不足していることを表す。起動時の致命的エラーとして扱う。
var ErrConfiguration = errors.New("configuration error")
