// Package interpolation はHTTPのペイロードとRBFライブラリの間を仲介する。
//
// 学習点（x, y, z, value）と評価点をライブラリの入力形式に変換してフィットと評価を行い、
// 結果をレスポンス形式に戻す。係数の抽出はライブラリがファイルにしか書き出せないため、
// リクエストごとに一意な一時ファイルを作成し、どの経路で終了しても必ず削除する。
//
// ライブラリが返すエラーは ErrValidation（クライアントの誤り）と
// ErrFittingFailed（数値的な失敗）に分類し、パニックもプロセスを落とさずに ErrFittingFailed として返す。
package interpolation
