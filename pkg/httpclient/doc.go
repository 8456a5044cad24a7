// Package httpclient はgeology-engineのHTTP APIを呼び出すクライアントを提供する。
//
// Bearerトークンの付与、JSONのシリアライズ、エラーレスポンスの解釈を統一する。
// CLIのヘルスチェックや他サービスからの呼び出しに使用する。
package httpclient
