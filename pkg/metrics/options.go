package metrics

// Option はManagerの設定を変更する。
type Option func(*Manager)

// WithNamespace はメトリクス名の名前空間を指定する。空の場合は既定値のまま。
func WithNamespace(ns string) Option {
	return func(m *Manager) {
		if ns != "" {
			m.namespace = ns
		}
	}
}
