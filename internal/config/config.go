package config

import (
	"log/slog"
	"time"
)

// Settings はプロセス全体で共有する不変の設定値。
// Load で生成した後は変更しない。
type Settings struct {
	// Addr はHTTPサーバーのリッスンアドレス（例: ":8000"）。
	Addr string
	// LogLevel はログの出力レベル（debug, info, warn, error）。
	LogLevel string
	// LogFormat はログの出力形式（json, text）。
	LogFormat string
	// TempDir は係数抽出用の一時ファイルを作成するディレクトリ。空の場合はOSの既定値。
	TempDir string
	// DefaultAccuracy はリクエストで fitting_accuracy が省略された場合の許容誤差。
	DefaultAccuracy float64
	// DefaultKernel はリクエストで kernel が省略された場合のカーネル。
	DefaultKernel string
	// MaxSamples は1リクエストあたりの学習点数の上限。
	MaxSamples int
	// InterpolateMaxSamples は認証不要の /rbf/interpolate における学習点数の上限。
	InterpolateMaxSamples int
	// MaxDimension は /rbf/interpolate が受け付ける点の次元の上限。
	MaxDimension int
	// AllowedOrigins はCORSを許可するオリジン。空の場合はCORSヘッダーを付与しない。
	AllowedOrigins []string
	// AuditDB はフィット履歴を記録するSQLiteファイルのパス。空の場合は記録しない。
	AuditDB string
	// MetricsEnabled は /metrics エンドポイントを公開するかどうか。
	MetricsEnabled bool
	// MetricsNamespace はメトリクス名の名前空間。
	MetricsNamespace string
	// ShutdownTimeout はグレースフルシャットダウンの待機時間。
	ShutdownTimeout time.Duration

	// jwtSecret はJWT署名検証用のHMAC鍵。ログに出力してはならない。
	jwtSecret []byte
}

// fileSettings はkoanfから読み込む生の設定値。
type fileSettings struct {
	JWTSecret        string        `koanf:"jwt_secret"`
	Addr             string        `koanf:"addr"`
	LogLevel         string        `koanf:"log_level"`
	LogFormat        string        `koanf:"log_format"`
	TempDir          string        `koanf:"temp_dir"`
	DefaultAccuracy  float64       `koanf:"default_accuracy"`
	DefaultKernel    string        `koanf:"default_kernel"`
	MaxSamples       int           `koanf:"max_samples"`
	InterpolateMax   int           `koanf:"interpolate_max_samples"`
	MaxDimension     int           `koanf:"max_dimension"`
	AllowedOrigins   []string      `koanf:"allowed_origins"`
	AuditDB          string        `koanf:"audit_db"`
	MetricsEnabled   bool          `koanf:"metrics_enabled"`
	MetricsNamespace string        `koanf:"metrics_namespace"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// defaults は既定値を持つ設定値を返す。
func defaults() fileSettings {
	return fileSettings{
		Addr:             ":8000",
		LogLevel:         "info",
		LogFormat:        "json",
		DefaultAccuracy:  0.01,
		DefaultKernel:    "linear",
		MaxSamples:       5000,
		InterpolateMax:   1000,
		MaxDimension:     16,
		MetricsEnabled:   true,
		MetricsNamespace: "geology_engine",
		ShutdownTimeout:  10 * time.Second,
	}
}

// NewSettings は秘密鍵と既定値から Settings を生成する。
// 主にテストやCLIから設定ファイルを介さずに構築するために使用する。
func NewSettings(secret []byte) *Settings {
	s := defaults()
	s.JWTSecret = string(secret)
	return s.settings()
}

func (f fileSettings) settings() *Settings {
	return &Settings{
		Addr:                  f.Addr,
		LogLevel:              f.LogLevel,
		LogFormat:             f.LogFormat,
		TempDir:               f.TempDir,
		DefaultAccuracy:       f.DefaultAccuracy,
		DefaultKernel:         f.DefaultKernel,
		MaxSamples:            f.MaxSamples,
		InterpolateMaxSamples: f.InterpolateMax,
		MaxDimension:          f.MaxDimension,
		AllowedOrigins:        append([]string(nil), f.AllowedOrigins...),
		AuditDB:               f.AuditDB,
		MetricsEnabled:        f.MetricsEnabled,
		MetricsNamespace:      f.MetricsNamespace,
		ShutdownTimeout:       f.ShutdownTimeout,
		jwtSecret:             []byte(f.JWTSecret),
	}
}

// JWTSecret はJWT署名検証用の鍵のコピーを返す。
func (s *Settings) JWTSecret() []byte {
	return append([]byte(nil), s.jwtSecret...)
}

// LogValue は秘密鍵を含めずに設定値をログ出力する。
func (s *Settings) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("addr", s.Addr),
		slog.String("log_level", s.LogLevel),
		slog.String("log_format", s.LogFormat),
		slog.String("temp_dir", s.TempDir),
		slog.Float64("default_accuracy", s.DefaultAccuracy),
		slog.String("default_kernel", s.DefaultKernel),
		slog.Int("max_samples", s.MaxSamples),
		slog.Int("interpolate_max_samples", s.InterpolateMaxSamples),
		slog.Int("max_dimension", s.MaxDimension),
		slog.Any("allowed_origins", s.AllowedOrigins),
		slog.Bool("audit_enabled", s.AuditDB != ""),
		slog.Bool("metrics_enabled", s.MetricsEnabled),
		slog.String("metrics_namespace", s.MetricsNamespace),
		slog.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
}
