package geology

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/geology-engine/internal/audit"
	"github.com/nao1215/geology-engine/internal/config"
	"github.com/nao1215/geology-engine/internal/interpolation"
	"github.com/nao1215/geology-engine/pkg/metrics"
	"github.com/nao1215/geology-engine/pkg/middleware"
	"github.com/nao1215/geology-engine/pkg/rbf"
)

// serviceName はレスポンスとログに含めるサービス名。
const serviceName = "geology-engine"

// JobStore はフィット履歴の記録先。
type JobStore interface {
	Record(ctx context.Context, job audit.Job) (audit.Job, error)
	ListBySubject(ctx context.Context, subject string, limit int) ([]audit.Job, error)
}

// Server はgeology-engineのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// settings は起動時に読み込んだ設定。
	settings *config.Settings
	// secrets はJWT署名検証用の鍵の取得元。
	secrets middleware.SecretSource
	// logger は構造化ロガー。
	logger *slog.Logger
	// metrics はPrometheusメトリクス。nilの場合は記録しない。
	metrics *metrics.Manager
	// interp はRBFの補間処理。
	interp *interpolation.Service
	// jobs はフィット履歴の記録先。nilの場合は記録しない。
	jobs JobStore
}

// Option は Server の設定を変更する。
type Option func(*Server)

// WithLogger はロガーを指定する。
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics はメトリクスを指定する。
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Server) { s.metrics = m }
}

// WithJobStore はフィット履歴の記録先を指定する。
func WithJobStore(j JobStore) Option {
	return func(s *Server) { s.jobs = j }
}

// WithSecretSource はJWT署名検証用の鍵の取得元を指定する。
// 省略時は settings の鍵を使用する。
func WithSecretSource(src middleware.SecretSource) Option {
	return func(s *Server) { s.secrets = src }
}

// WithInterpolation は補間処理を指定する。
func WithInterpolation(svc *interpolation.Service) Option {
	return func(s *Server) { s.interp = svc }
}

// NewServer は新しいサーバーを生成する。
func NewServer(settings *config.Settings, opts ...Option) *Server {
	s := &Server{
		settings: settings,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.secrets == nil {
		s.secrets = middleware.StaticSecret(settings.JWTSecret())
	}
	if s.interp == nil {
		kernel, err := rbf.ParseKernel(settings.DefaultKernel)
		if err != nil {
			kernel = rbf.KernelLinear
		}
		s.interp = interpolation.NewService(
			interpolation.WithTempDir(settings.TempDir),
			interpolation.WithLogger(s.logger),
			interpolation.WithMetrics(s.metrics),
			interpolation.WithDefaults(settings.DefaultAccuracy, kernel),
			interpolation.WithMaxSamples(settings.MaxSamples),
			interpolation.WithInterpolateLimits(settings.InterpolateMaxSamples, settings.MaxDimension),
		)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(s.logger))
	router.Use(middleware.Recovery(s.logger))
	if s.metrics != nil {
		router.Use(s.metrics.GinMiddleware())
	}
	if len(settings.AllowedOrigins) > 0 {
		router.Use(middleware.CORS(settings.AllowedOrigins))
	}
	s.router = router
	s.setupRoutes()

	return s
}

// Handler はサーバーのHTTPハンドラーを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctx がキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.settings.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "HTTPサーバーを起動します", "addr", s.settings.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("HTTPサーバーを停止します", "timeout", s.settings.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.settings.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
	}
	return nil
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleRoot())
	s.router.GET("/health", s.handleHealth())
	if s.settings.MetricsEnabled && s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	// 認証不要の任意次元の補間
	s.router.POST("/rbf/interpolate", s.handleInterpolate())

	// 認証必須のエンドポイント
	auth := middleware.JWTAuth(s.secrets,
		middleware.WithAuthLogger(s.logger),
		middleware.WithFailureObserver(s.metrics.RecordAuthFailure),
	)
	protected := s.router.Group("/", auth)
	{
		protected.GET("/health/auth", s.handleHealth())
		protected.GET("/me", s.handleMe())
		protected.POST("/rbf/coefficients", s.handleCoefficients())
		protected.POST("/rbf/evaluate", s.handleEvaluate())
		protected.GET("/rbf/jobs", s.handleListJobs())
	}
}
