package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// envPrefix は設定用環境変数の接頭辞。
	envPrefix = "GEOLOGY_ENGINE_"
	// envConfigFile はYAML設定ファイルのパスを指定する環境変数。
	envConfigFile = envPrefix + "CONFIG"
	// envDotEnvFile は.envファイルのパスを指定する環境変数。
	envDotEnvFile = envPrefix + "ENV_FILE"
	// envLegacySecret は旧デプロイ環境で使用していた秘密鍵の環境変数。
	envLegacySecret = "SUPABASE_JWT_SECRET"
	// envPort はホスティング環境が割り当てるポート番号。
	envPort = "PORT"
	// defaultDotEnvFile は既定の.envファイルのパス。
	defaultDotEnvFile = ".env"
)

// Load は設定を読み込み検証する。呼び出すたびに環境を読み直す。
// 優先順位（低 → 高）:
//  1. 既定値
//  2. YAMLファイル（GEOLOGY_ENGINE_CONFIG が設定されている場合）
//  3. .envファイル（存在する場合）
//  4. 環境変数（GEOLOGY_ENGINE_ 接頭辞）
func Load() (*Settings, error) {
	k := koanf.New(".")

	if path := os.Getenv(envConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: load %s: %v", ErrConfiguration, path, err)
		}
	}

	dotEnv, err := loadDotEnv(k)
	if err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("%w: load environment: %v", ErrConfiguration, err)
	}

	raw := defaults()
	if err := k.UnmarshalWithConf("", &raw, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	lookup := func(name string) string {
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return dotEnv[name]
	}
	if !k.Exists("addr") {
		if port := lookup(envPort); port != "" {
			raw.Addr = ":" + port
		}
	}
	if raw.JWTSecret == "" {
		raw.JWTSecret = lookup(envLegacySecret)
	}

	s := raw.settings()
	if err := Verify(s); err != nil {
		return nil, err
	}
	return s, nil
}

// loadDotEnv は.envファイルの GEOLOGY_ENGINE_ 接頭辞付きのキーを k に設定し、
// ファイルの全エントリを返す。ファイルが存在しない場合は何もしない。
func loadDotEnv(k *koanf.Koanf) (map[string]string, error) {
	path := os.Getenv(envDotEnvFile)
	if path == "" {
		path = defaultDotEnvFile
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: stat %s: %v", ErrConfiguration, path, err)
	}

	dk := koanf.New(".")
	if err := dk.Load(file.Provider(path), dotenv.Parser()); err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrConfiguration, path, err)
	}

	entries := make(map[string]string, len(dk.Keys()))
	for _, name := range dk.Keys() {
		value := dk.String(name)
		entries[name] = value
		if !strings.HasPrefix(name, envPrefix) {
			continue
		}
		if err := k.Set(envKey(name), value); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrConfiguration, name, err)
		}
	}
	return entries, nil
}

// envKey は GEOLOGY_ENGINE_JWT_SECRET のような環境変数名を jwt_secret に変換する。
func envKey(name string) string {
	return strings.ToLower(strings.TrimPrefix(name, envPrefix))
}

// Loader は最初に成功した Load の結果をプロセス存続中キャッシュする。
// テストでは Reset でキャッシュを破棄できる。
type Loader struct {
	mu       sync.Mutex
	settings *Settings
	load     func() (*Settings, error)
}

// NewLoader は環境から設定を読み込む Loader を生成する。
func NewLoader() *Loader {
	return &Loader{load: Load}
}

// NewStaticLoader は固定の設定を返す Loader を生成する。
func NewStaticLoader(s *Settings) *Loader {
	return &Loader{load: func() (*Settings, error) {
		if err := Verify(s); err != nil {
			return nil, err
		}
		return s, nil
	}}
}

// Settings はキャッシュ済みの設定を返す。未読み込みの場合は読み込む。
// 失敗した結果はキャッシュしない。
func (l *Loader) Settings() (*Settings, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.settings != nil {
		return l.settings, nil
	}
	s, err := l.load()
	if err != nil {
		return nil, err
	}
	l.settings = s
	return s, nil
}

// Secret はJWT署名検証用の鍵を返す。設定が不正な場合は ErrConfiguration を返す。
func (l *Loader) Secret() ([]byte, error) {
	s, err := l.Settings()
	if err != nil {
		return nil, err
	}
	return s.JWTSecret(), nil
}

// Reset はキャッシュを破棄する。
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settings = nil
}
