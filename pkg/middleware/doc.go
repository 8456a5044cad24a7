// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// Bearerトークン（HS256のJWT）の検証、リクエストID、構造化アクセスログ、
// パニックリカバリ、CORS設定を含む。
package middleware
