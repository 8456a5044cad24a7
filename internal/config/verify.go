package config

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"

	"github.com/nao1215/geology-engine/pkg/rbf"
)

// metricsNamespacePattern はPrometheusのメトリクス名に使用できる名前空間。
var metricsNamespacePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Verify は設定値を検証する。不正な場合は ErrConfiguration をラップしたエラーを返す。
func Verify(s *Settings) error {
	if s == nil {
		return fmt.Errorf("%w: settings are nil", ErrConfiguration)
	}
	if len(s.jwtSecret) == 0 {
		return fmt.Errorf("%w: %sJWT_SECRET is not set", ErrConfiguration, envPrefix)
	}
	if s.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrConfiguration)
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", ErrConfiguration, s.LogLevel)
	}
	switch strings.ToLower(s.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: unknown log_format %q", ErrConfiguration, s.LogFormat)
	}
	if !(s.DefaultAccuracy > 0) || math.IsInf(s.DefaultAccuracy, 0) {
		return fmt.Errorf("%w: default_accuracy must be positive", ErrConfiguration)
	}
	if _, err := rbf.ParseKernel(s.DefaultKernel); err != nil {
		return fmt.Errorf("%w: default_kernel: %v", ErrConfiguration, err)
	}
	if s.MaxSamples < 2 {
		return fmt.Errorf("%w: max_samples must be at least 2", ErrConfiguration)
	}
	if s.InterpolateMaxSamples < 2 {
		return fmt.Errorf("%w: interpolate_max_samples must be at least 2", ErrConfiguration)
	}
	if s.MaxDimension < 1 {
		return fmt.Errorf("%w: max_dimension must be at least 1", ErrConfiguration)
	}
	if !metricsNamespacePattern.MatchString(s.MetricsNamespace) {
		return fmt.Errorf("%w: invalid metrics_namespace %q", ErrConfiguration, s.MetricsNamespace)
	}
	if s.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: shutdown_timeout must not be negative", ErrConfiguration)
	}
	if s.TempDir != "" {
		info, err := os.Stat(s.TempDir)
		if err != nil {
			return fmt.Errorf("%w: temp_dir: %v", ErrConfiguration, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: temp_dir %s is not a directory", ErrConfiguration, s.TempDir)
		}
	}
	return nil
}
