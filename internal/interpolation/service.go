package interpolation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/nao1215/geology-engine/pkg/metrics"
	"github.com/nao1215/geology-engine/pkg/middleware"
	"github.com/nao1215/geology-engine/pkg/rbf"
)

// 操作ごとのラベル。
const (
	OperationEvaluate     = "evaluate"
	OperationCoefficients = "coefficients"
	OperationInterpolate  = "interpolate"
)

// tempFilePattern は係数抽出用の一時ファイル名のパターン。
const tempFilePattern = "rbf-model-*.json"

// Service はRBFのフィットと評価を仲介する。
// リクエスト間で共有する可変状態を持たないため、複数ゴルーチンから同時に呼び出してよい。
type Service struct {
	fitter           Fitter
	tempDir          string
	logger           *slog.Logger
	metrics          *metrics.Manager
	defaultAccuracy  float64
	defaultKernel    rbf.Kernel
	maxSamples       int
	publicMaxSamples int
	maxDimension     int
}

// Option は Service の設定を変更する。
type Option func(*Service)

// WithFitter はモデルの構築に使う Fitter を指定する。
func WithFitter(f Fitter) Option {
	return func(s *Service) { s.fitter = f }
}

// WithTempDir は一時ファイルを作成するディレクトリを指定する。空の場合はOSの既定値。
func WithTempDir(dir string) Option {
	return func(s *Service) { s.tempDir = dir }
}

// WithLogger はロガーを指定する。
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics はメトリクスの記録先を指定する。
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Service) { s.metrics = m }
}

// WithDefaults はリクエストで省略された場合の許容残差とカーネルを指定する。
func WithDefaults(accuracy float64, kernel rbf.Kernel) Option {
	return func(s *Service) {
		s.defaultAccuracy = accuracy
		s.defaultKernel = kernel
	}
}

// WithMaxSamples は1リクエストあたりの学習点数の上限を指定する。0以下は無制限。
func WithMaxSamples(n int) Option {
	return func(s *Service) { s.maxSamples = n }
}

// WithInterpolateLimits は Interpolate の学習点数と次元の上限を指定する。
// 学習点数は WithMaxSamples の上限と小さい方を適用する。0以下は制限しない。
func WithInterpolateLimits(maxSamples, maxDimension int) Option {
	return func(s *Service) {
		s.publicMaxSamples = maxSamples
		s.maxDimension = maxDimension
	}
}

// NewService は Service を生成する。
func NewService(opts ...Option) *Service {
	s := &Service{
		fitter:          RBFFitter,
		logger:          slog.Default(),
		defaultAccuracy: rbf.DefaultAccuracy,
		defaultKernel:   rbf.KernelLinear,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate は学習点からモデルを構築し、評価点ごとの値と学習点の範囲を返す。
func (s *Service) Evaluate(ctx context.Context, req EvaluateRequest) (_ *EvaluateResponse, err error) {
	defer s.observe(ctx, OperationEvaluate, len(req.Intervals), time.Now(), &err)

	points, values, err := fromIntervals(req.Intervals)
	if err != nil {
		return nil, err
	}
	queries, err := fromQueryPoints(req.QueryPoints)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings(req.FittingAccuracy, req.Kernel)
	if err != nil {
		return nil, err
	}

	model, err := s.fit(ctx, points, values, settings, s.maxSamples)
	if err != nil {
		return nil, err
	}
	result, err := evaluate(model, queries)
	if err != nil {
		return nil, err
	}
	return &EvaluateResponse{Values: result, Extents: extents(points)}, nil
}

// Coefficients は学習点からモデルを構築し、クライアント側で評価するための係数構造を返す。
func (s *Service) Coefficients(ctx context.Context, req CoefficientsRequest) (_ *CoefficientsResponse, err error) {
	defer s.observe(ctx, OperationCoefficients, len(req.Intervals), time.Now(), &err)

	points, values, err := fromIntervals(req.Intervals)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings(req.FittingAccuracy, req.Kernel)
	if err != nil {
		return nil, err
	}

	model, err := s.fit(ctx, points, values, settings, s.maxSamples)
	if err != nil {
		return nil, err
	}

	var m rbf.Model
	err = s.withTempFile(ctx, func(path string) error {
		if err := guard(func() error { return model.SaveModel(path) }); err != nil {
			var pathErr *fs.PathError
			if errors.As(err, &pathErr) {
				return fmt.Errorf("%w: save model: %v", ErrResource, err)
			}
			return classify(fmt.Errorf("save model: %w", err))
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: read model: %v", ErrResource, err)
		}
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("%w: parse model: %v", ErrFittingFailed, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(m.SourcePoints) != len(points) || len(m.PointCoefficients) != len(points) {
		return nil, fmt.Errorf("%w: model has %d points and %d coefficients for %d samples",
			ErrFittingFailed, len(m.SourcePoints), len(m.PointCoefficients), len(points))
	}
	return coefficientsFrom(m, extents(points)), nil
}

// Interpolate は任意次元の学習点からモデルを構築し、テスト点ごとの値を返す。
func (s *Service) Interpolate(ctx context.Context, req InterpolateRequest) (_ *InterpolateResponse, err error) {
	defer s.observe(ctx, OperationInterpolate, len(req.TrainingPoints), time.Now(), &err)

	if len(req.TrainingPoints) != len(req.TrainingValues) {
		return nil, fmt.Errorf("%w: %d training points but %d training values",
			ErrValidation, len(req.TrainingPoints), len(req.TrainingValues))
	}
	if len(req.TestPoints) == 0 {
		return nil, fmt.Errorf("%w: at least one test point is required", ErrValidation)
	}
	limit := s.maxSamples
	if s.publicMaxSamples > 0 && (limit <= 0 || s.publicMaxSamples < limit) {
		limit = s.publicMaxSamples
	}
	if limit > 0 && len(req.TrainingPoints) > limit {
		return nil, fmt.Errorf("%w: %d training points exceed the limit of %d",
			ErrValidation, len(req.TrainingPoints), limit)
	}
	dim, err := dimension(req.TrainingPoints)
	if err != nil {
		return nil, err
	}
	if s.maxDimension > 0 && dim > s.maxDimension {
		return nil, fmt.Errorf("%w: dimension %d exceeds the limit of %d", ErrValidation, dim, s.maxDimension)
	}
	for i, p := range req.TestPoints {
		if len(p) != dim {
			return nil, fmt.Errorf("%w: test point %d has dimension %d, want %d", ErrValidation, i, len(p), dim)
		}
	}
	settings, err := s.settings(req.FittingAccuracy, req.Kernel)
	if err != nil {
		return nil, err
	}

	model, err := s.fit(ctx, req.TrainingPoints, req.TrainingValues, settings, limit)
	if err != nil {
		return nil, err
	}
	result, err := evaluate(model, req.TestPoints)
	if err != nil {
		return nil, err
	}
	return &InterpolateResponse{InterpolatedValues: result}, nil
}

// settings はリクエストの値と既定値からライブラリの設定を組み立てる。
func (s *Service) settings(accuracy *float64, kernel string) (rbf.Settings, error) {
	k := s.defaultKernel
	if kernel != "" {
		parsed, err := rbf.ParseKernel(kernel)
		if err != nil {
			return rbf.Settings{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		k = parsed
	}
	rs := rbf.NewSettings(k)
	rs.Accuracy = s.defaultAccuracy
	if accuracy != nil {
		rs.Accuracy = *accuracy
	}
	if !(rs.Accuracy > 0) || math.IsInf(rs.Accuracy, 0) {
		return rbf.Settings{}, fmt.Errorf("%w: fitting_accuracy must be positive", ErrValidation)
	}
	return rs, nil
}

// fit は学習点の数を検証してからモデルを構築する。maxSamples が0以下の場合は上限を設けない。
// 重複点の除去などの加工はせず、入力をそのままライブラリに渡す。
func (s *Service) fit(ctx context.Context, points [][]float64, values []float64, rs rbf.Settings, maxSamples int) (Model, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: at least one training point is required", ErrValidation)
	}
	if maxSamples > 0 && len(points) > maxSamples {
		return nil, fmt.Errorf("%w: %d training points exceed the limit of %d",
			ErrValidation, len(points), maxSamples)
	}
	if minimum := rbf.MinimumSamples(rs.Kernel, rs.Degree, len(points[0])); len(points) < minimum {
		return nil, fmt.Errorf("%w: kernel %s needs at least %d points, got %d",
			ErrInsufficientData, rs.Kernel, minimum, len(points))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var model Model
	err := guard(func() error {
		var err error
		model, err = s.fitter.Fit(points, values, rs)
		return err
	})
	if err != nil {
		return nil, classify(err)
	}
	if model == nil {
		return nil, fmt.Errorf("%w: fitter returned no model", ErrFittingFailed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return model, nil
}

// withTempFile は一意な一時ファイルを作成して閉じ、そのパスで fn を呼び出す。
// fn の成否やパニック、コンテキストのキャンセルにかかわらずファイルを削除する。
// 削除の失敗はログとメトリクスに記録し、fn のエラーを置き換えない。
func (s *Service) withTempFile(ctx context.Context, fn func(path string) error) (err error) {
	f, err := os.CreateTemp(s.tempDir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrResource, err)
	}
	path := f.Name()
	s.metrics.TempFileCreated()

	defer func() {
		rmErr := os.Remove(path)
		if rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.metrics.RecordTempFileCleanupFailure()
			s.logger.WarnContext(ctx, "一時ファイルの削除に失敗しました",
				"path", path, "error", rmErr, "primary_error", err)
			return
		}
		s.metrics.TempFileRemoved()
	}()

	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %v", ErrResource, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(path)
}

// observe は操作の結果をログとメトリクスに記録する。
// 失敗の詳細を出力するのはここだけで、HTTP層はレスポンスの変換のみを行う。
func (s *Service) observe(ctx context.Context, op string, samples int, start time.Time, errp *error) {
	elapsed := time.Since(start)
	result := Outcome(*errp)
	s.metrics.ObserveFit(op, result, samples, elapsed)

	requestID := middleware.RequestIDFromContext(ctx)
	switch result {
	case "ok":
		s.logger.InfoContext(ctx, "RBFの処理が完了しました",
			"operation", op, "samples", samples, "duration", elapsed, "request_id", requestID)
	case "validation", "cancelled":
		s.logger.InfoContext(ctx, "RBFのリクエストを処理できませんでした",
			"operation", op, "samples", samples, "outcome", result, "error", *errp, "request_id", requestID)
	default:
		s.logger.ErrorContext(ctx, "RBFの処理に失敗しました",
			"operation", op, "samples", samples, "outcome", result, "error", *errp, "request_id", requestID)
	}
}

// classify はライブラリのエラーを ErrValidation と ErrFittingFailed に分類する。
func classify(err error) error {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrFittingFailed), errors.Is(err, ErrResource):
		return err
	case errors.Is(err, rbf.ErrInsufficientData):
		return fmt.Errorf("%w: %v", ErrInsufficientData, err)
	case errors.Is(err, rbf.ErrShapeMismatch), errors.Is(err, rbf.ErrNonFinite), errors.Is(err, rbf.ErrInvalidSettings):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	default:
		return fmt.Errorf("%w: %v", ErrFittingFailed, err)
	}
}

// evaluate はモデルを評価し、結果の数を検証する。
func evaluate(model Model, points [][]float64) ([]float64, error) {
	var result []float64
	err := guard(func() error {
		var err error
		result, err = model.Evaluate(points)
		return err
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(result) != len(points) {
		return nil, fmt.Errorf("%w: %d values for %d points", ErrFittingFailed, len(result), len(points))
	}
	return result, nil
}
