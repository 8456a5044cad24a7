// Package config はgeology-engineのプロセス設定を読み込み検証する。
//
// 設定は既定値、YAMLファイル（GEOLOGY_ENGINE_CONFIG）、.envファイル
// （GEOLOGY_ENGINE_ENV_FILE、既定は ".env"）、環境変数（GEOLOGY_ENGINE_ 接頭辞）の
// 順に重ね合わせる。後のものほど優先される。
//
// JWT署名用の秘密鍵は必須であり、未設定または空の場合は ErrConfiguration を返す。
// この場合プロセスはリクエストの受け付けを開始してはならない。
package config
