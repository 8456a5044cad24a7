package audit

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/geology-engine/pkg/migration"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DefaultListLimit は ListBySubject の既定の取得件数。
const DefaultListLimit = 50

// MaxListLimit は ListBySubject で取得できる最大件数。
const MaxListLimit = 500

// timeLayout は created_at の保存形式。文字列の大小と時刻の前後が一致するよう固定長にする。
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrInvalidJob は記録する内容が不正であることを表す。
var ErrInvalidJob = errors.New("invalid fit job")

// Job は1回のフィットの記録。
type Job struct {
	// ID は記録の一意識別子。Record が採番する。
	ID string `json:"id"`
	// Subject はリクエストしたユーザーのID。
	Subject string `json:"subject"`
	// Operation は操作の種類。
	Operation string `json:"operation"`
	// Kernel は使用したカーネル。
	Kernel string `json:"kernel"`
	// Samples は学習点の数。
	Samples int `json:"samples"`
	// Outcome は結果の分類。
	Outcome string `json:"outcome"`
	// Duration は処理時間。
	Duration time.Duration `json:"-"`
	// DurationMS はJSON出力用のミリ秒単位の処理時間。
	DurationMS int64 `json:"duration_ms"`
	// RequestID はリクエストID。
	RequestID string `json:"request_id,omitempty"`
	// CreatedAt は記録日時（UTC）。
	CreatedAt time.Time `json:"created_at"`
}

// Store はフィット履歴の永続化を行う。
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open はSQLiteファイルを開き、マイグレーションを適用した Store を返す。
// path に ":memory:" を指定するとインメモリのデータベースを使用する。
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if _, err := migration.Run(ctx, db, migrations, "migrations", logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Record はフィットの記録を保存し、IDと日時を設定した値を返す。
func (s *Store) Record(ctx context.Context, job Job) (Job, error) {
	if job.Subject == "" {
		return Job{}, fmt.Errorf("%w: subject is required", ErrInvalidJob)
	}
	if job.Operation == "" || job.Outcome == "" || job.Samples < 0 {
		return Job{}, fmt.Errorf("%w: operation and outcome are required", ErrInvalidJob)
	}
	job.ID = uuid.New().String()
	job.CreatedAt = s.now().UTC()
	job.DurationMS = job.Duration.Milliseconds()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fit_jobs (id, subject, operation, kernel, samples, outcome, duration_ms, request_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Subject, job.Operation, job.Kernel, job.Samples, job.Outcome,
		job.DurationMS, job.RequestID, job.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Job{}, fmt.Errorf("フィット履歴の保存に失敗: %w", err)
	}
	return job, nil
}

// ListBySubject はユーザーのフィット履歴を新しい順に最大 limit 件返す。
// limit が0以下の場合は DefaultListLimit、MaxListLimit を超える場合は MaxListLimit とする。
func (s *Store) ListBySubject(ctx context.Context, subject string, limit int) ([]Job, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject, operation, kernel, samples, outcome, duration_ms, request_id, created_at
		FROM fit_jobs
		WHERE subject = ?
		ORDER BY created_at DESC, id
		LIMIT ?`, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("フィット履歴の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]Job, 0)
	for rows.Next() {
		var (
			j       Job
			created string
		)
		if err := rows.Scan(&j.ID, &j.Subject, &j.Operation, &j.Kernel, &j.Samples,
			&j.Outcome, &j.DurationMS, &j.RequestID, &created); err != nil {
			return nil, fmt.Errorf("フィット履歴の読み込みに失敗: %w", err)
		}
		j.Duration = time.Duration(j.DurationMS) * time.Millisecond
		if j.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("作成日時の解析に失敗: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
