// Package geology はgeology-engineのHTTPサーバーを提供する。
//
// 公開エンドポイント（/, /health, /rbf/interpolate, /metrics）と、
// Bearerトークンで保護されたエンドポイント（/health/auth, /me, /rbf/coefficients,
// /rbf/evaluate, /rbf/jobs）をGinのルーターに登録する。
// 認証は pkg/middleware の JWTAuth、補間は internal/interpolation に委譲する。
package geology
