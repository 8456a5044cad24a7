// Package logging はgeology-engineの構造化ロガーを構築する。
//
// log/slog のハンドラーに秘匿情報の伏せ字処理を組み込み、
// JWTの秘密鍵やBearerトークンがログに出力されないようにする。
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// redacted は秘匿情報の代わりに出力する文字列。
const redacted = "[REDACTED]"

// sensitiveKeys はキー名に含まれる場合に値を伏せる語。
var sensitiveKeys = []string{"secret", "token", "authorization", "password"}

// Config はロガーの設定。
type Config struct {
	// Level は出力する最小レベル（debug, info, warn, error）。
	Level string
	// Format は出力形式（json, text）。
	Format string
	// Output は出力先。nilの場合は標準エラー出力。
	Output io.Writer
	// AddSource はソースファイルの位置を出力するかどうか。
	AddSource bool
}

// New は設定からロガーを生成する。
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redact(a)
		},
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text", "console":
		h = slog.NewTextHandler(out, opts)
	default:
		h = slog.NewJSONHandler(out, opts)
	}
	return slog.New(h).With("service", "geology-engine")
}

// ParseLevel は文字列をログレベルに変換する。不明な値はinfoとして扱う。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// redact は秘匿情報を含む属性の値を伏せる。
func redact(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		return a
	}
	key := strings.ToLower(a.Key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return slog.String(a.Key, redacted)
		}
	}
	if a.Value.Kind() == slog.KindString {
		v := a.Value.String()
		if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
			return slog.String(a.Key, "Bearer "+redacted)
		}
	}
	return a
}
