package geology

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/geology-engine/internal/audit"
	"github.com/nao1215/geology-engine/internal/interpolation"
	"github.com/nao1215/geology-engine/pkg/middleware"
)

// handleRoot はサービス名とドキュメントの場所を返すハンドラを返す。
func (s *Server) handleRoot() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": serviceName, "docs": "/docs"})
	}
}

// handleHealth はヘルスチェックのハンドラを返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	}
}

// meResponse は /me のレスポンス。email と role はトークンに無い場合 null になる。
type meResponse struct {
	UserID string  `json:"user_id"`
	Email  *string `json:"email"`
	Role   *string `json:"role"`
}

// handleMe は認証済みユーザーの情報を返すハンドラを返す。
func (s *Server) handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := middleware.GetIdentity(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.JSON(http.StatusOK, meResponse{
			UserID: id.Subject,
			Email:  optional(id.Email),
			Role:   optional(id.Role),
		})
	}
}

// handleEvaluate は学習点からモデルを構築して評価点の値を返すハンドラを返す。
func (s *Server) handleEvaluate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req interpolation.EvaluateRequest
		if !s.bind(c, &req) {
			return
		}
		start := time.Now()
		resp, err := s.interp.Evaluate(c.Request.Context(), req)
		s.record(c, interpolation.OperationEvaluate, req.Kernel, len(req.Intervals), start, err)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleCoefficients は学習点からモデルを構築して係数構造を返すハンドラを返す。
func (s *Server) handleCoefficients() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req interpolation.CoefficientsRequest
		if !s.bind(c, &req) {
			return
		}
		start := time.Now()
		resp, err := s.interp.Coefficients(c.Request.Context(), req)
		s.record(c, interpolation.OperationCoefficients, req.Kernel, len(req.Intervals), start, err)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleInterpolate は任意次元の学習点からテスト点の値を返すハンドラを返す。
func (s *Server) handleInterpolate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req interpolation.InterpolateRequest
		if !s.bind(c, &req) {
			return
		}
		start := time.Now()
		resp, err := s.interp.Interpolate(c.Request.Context(), req)
		s.record(c, interpolation.OperationInterpolate, req.Kernel, len(req.TrainingPoints), start, err)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleListJobs は認証済みユーザーのフィット履歴を返すハンドラを返す。
func (s *Server) handleListJobs() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.jobs == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "fit history is not enabled"})
			return
		}

		limit := 0
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}

		jobs, err := s.jobs.ListBySubject(c.Request.Context(), middleware.GetUserID(c), limit)
		if err != nil {
			s.logger.ErrorContext(c.Request.Context(), "フィット履歴の取得に失敗しました",
				"request_id", middleware.GetRequestID(c), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": jobs})
	}
}

// bind はリクエストボディを読み込み検証する。失敗した場合は422を返してfalseを返す。
func (s *Server) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "invalid request body",
			"detail": err.Error(),
		})
		return false
	}
	return true
}

// record はフィット履歴を記録する。記録の失敗はレスポンスに影響させない。
// 認証されていないリクエストは /rbf/jobs で参照できないため記録しない。
func (s *Server) record(c *gin.Context, op, kernel string, samples int, start time.Time, err error) {
	subject := middleware.GetUserID(c)
	if s.jobs == nil || subject == "" {
		return
	}
	if kernel == "" {
		kernel = s.settings.DefaultKernel
	}
	_, rerr := s.jobs.Record(c.Request.Context(), audit.Job{
		Subject:   subject,
		Operation: op,
		Kernel:    kernel,
		Samples:   samples,
		Outcome:   interpolation.Outcome(err),
		Duration:  time.Since(start),
		RequestID: middleware.GetRequestID(c),
	})
	if rerr != nil {
		s.logger.WarnContext(c.Request.Context(), "フィット履歴の記録に失敗しました",
			"operation", op, "request_id", middleware.GetRequestID(c), "error", rerr)
	}
}

// writeError は補間処理のエラーをHTTPレスポンスに変換する。
// 失敗の詳細は interpolation.Service がリクエストIDとともにログに出力済みのため、
// ここではレスポンスに含めずログにも出力しない。
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, interpolation.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request cancelled"})
	case errors.Is(err, interpolation.ErrFittingFailed):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "interpolation failed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// optional は空文字列をnilに変換する。
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
