package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
)

// unmatchedRoute はルートに一致しなかったリクエストのラベル。
// パスをそのままラベルにするとカーディナリティが際限なく増える。
const unmatchedRoute = "unmatched"

// GinMiddleware はリクエストごとの件数とレイテンシを記録するGinミドルウェアを返す。
func (m *Manager) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		m.ObserveHTTPRequest(route, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
