package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nao1215/geology-engine/internal/audit"
	"github.com/nao1215/geology-engine/internal/config"
	"github.com/nao1215/geology-engine/internal/geology"
	"github.com/nao1215/geology-engine/internal/interpolation"
	"github.com/nao1215/geology-engine/internal/logging"
	"github.com/nao1215/geology-engine/pkg/httpclient"
	"github.com/nao1215/geology-engine/pkg/metrics"
	"github.com/nao1215/geology-engine/pkg/middleware"
	"github.com/urfave/cli/v2"
)

// newApp はCLIアプリケーションを生成する。コマンドの出力は out に書き込む。
func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "geology-engine",
		Usage:     "RBF interpolation service for geological models",
		Writer:    out,
		ErrWriter: os.Stderr,
		Commands: []*cli.Command{
			serveCommand(),
			tokenCommand(),
			healthcheckCommand(),
			interpolateCommand(),
		},
		DefaultCommand: "serve",
	}
}

// serveCommand はHTTPサーバーを起動するコマンドを返す。
func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP server",
		Action: func(c *cli.Context) error {
			loader := config.NewLoader()
			settings, err := loader.Settings()
			if err != nil {
				return cli.Exit(fmt.Sprintf("設定の読み込みに失敗: %v", err), 2)
			}

			logger := logging.New(logging.Config{Level: settings.LogLevel, Format: settings.LogFormat})
			slog.SetDefault(logger)
			logger.Info("設定を読み込みました", "settings", settings)

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := []geology.Option{
				geology.WithLogger(logger),
				geology.WithSecretSource(loader),
			}
			if settings.MetricsEnabled {
				opts = append(opts, geology.WithMetrics(metrics.NewManager(metrics.WithNamespace(settings.MetricsNamespace))))
			}
			if settings.AuditDB != "" {
				store, err := audit.Open(ctx, settings.AuditDB, logger)
				if err != nil {
					return fmt.Errorf("フィット履歴の初期化に失敗: %w", err)
				}
				defer func() {
					if err := store.Close(); err != nil {
						logger.Warn("フィット履歴のクローズに失敗しました", "error", err)
					}
				}()
				opts = append(opts, geology.WithJobStore(store))
			}

			return geology.NewServer(settings, opts...).Run(ctx)
		},
	}
}

// tokenCommand は開発用のJWTを発行するコマンドを返す。
// 署名には serve と同じ設定の秘密鍵を使用する。
func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue a signed development token",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sub", Usage: "subject (user id)", Required: true},
			&cli.StringFlag{Name: "email", Usage: "email claim"},
			&cli.StringFlag{Name: "role", Usage: "role claim"},
			&cli.DurationFlag{Name: "ttl", Usage: "token lifetime", Value: time.Hour},
		},
		Action: func(c *cli.Context) error {
			secret, err := config.NewLoader().Secret()
			if err != nil {
				return cli.Exit(fmt.Sprintf("設定の読み込みに失敗: %v", err), 2)
			}
			return issueToken(c.App.Writer, secret, middleware.Identity{
				Subject: c.String("sub"),
				Email:   c.String("email"),
				Role:    c.String("role"),
			}, c.Duration("ttl"))
		},
	}
}

// issueToken はトークンを生成して out に1行で書き込む。
func issueToken(out io.Writer, secret []byte, id middleware.Identity, ttl time.Duration) error {
	if id.Subject == "" {
		return errors.New("sub is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %s", ttl)
	}
	token, err := middleware.GenerateJWT(secret, id, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

// clientFlags は起動中のサーバーに接続するコマンドの共通フラグ。
func clientFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "url", Usage: "base URL of the server", Value: "http://localhost:8000", EnvVars: []string{"GEOLOGY_ENGINE_URL"}},
		&cli.StringFlag{Name: "token", Usage: "bearer token", EnvVars: []string{"GEOLOGY_ENGINE_TOKEN"}},
		&cli.DurationFlag{Name: "timeout", Usage: "request timeout", Value: 5 * time.Second},
	}
}

// newClient はフラグの値から httpclient.Client を生成する。
func newClient(c *cli.Context) *httpclient.Client {
	return httpclient.New(c.String("url"),
		httpclient.WithTimeout(c.Duration("timeout")),
		httpclient.WithBearerToken(c.String("token")),
	)
}

// healthcheckCommand は起動中のサーバーのヘルスチェックを行うコマンドを返す。
// コンテナのヘルスチェックから呼び出すことを想定している。
// --token を指定した場合は認証経路 /health/auth も確認する。
func healthcheckCommand() *cli.Command {
	return &cli.Command{
		Name:  "healthcheck",
		Usage: "Check the health of a running server",
		Flags: clientFlags(),
		Action: func(c *cli.Context) error {
			return healthcheck(c.Context, c.App.Writer, newClient(c), c.String("token") != "")
		},
	}
}

// healthcheck は /health を呼び出し、auth が true の場合は /health/auth も呼び出す。
func healthcheck(ctx context.Context, out io.Writer, client *httpclient.Client, auth bool) error {
	if err := client.Health(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("unhealthy: %v", err), 1)
	}
	if auth {
		var resp struct {
			Status string `json:"status"`
		}
		err := client.GetJSON(ctx, "/health/auth", &resp)
		switch {
		case httpclient.IsStatus(err, http.StatusUnauthorized):
			return cli.Exit("unauthorized: token was rejected", 1)
		case err != nil:
			return cli.Exit(fmt.Sprintf("unhealthy: %v", err), 1)
		case resp.Status != "ok":
			return cli.Exit(fmt.Sprintf("unhealthy: status=%q", resp.Status), 1)
		}
	}
	_, err := fmt.Fprintln(out, "ok")
	return err
}

// interpolateCommand はJSONファイルの点群を起動中のサーバーで補間するコマンドを返す。
func interpolateCommand() *cli.Command {
	return &cli.Command{
		Name:      "interpolate",
		Usage:     "Interpolate test points on a running server",
		ArgsUsage: "<request.json | ->",
		Flags:     clientFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("request file is required (use - for stdin)", 2)
			}
			req, err := readInterpolateRequest(c.Args().First(), os.Stdin)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			return interpolate(c.Context, c.App.Writer, newClient(c), req)
		},
	}
}

// readInterpolateRequest は path（"-" の場合は stdin）からリクエストを読み込む。
func readInterpolateRequest(path string, stdin io.Reader) (interpolation.InterpolateRequest, error) {
	var req interpolation.InterpolateRequest
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return req, fmt.Errorf("リクエストファイルを開けません: %w", err)
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return req, fmt.Errorf("リクエストのパースに失敗: %w", err)
	}
	return req, nil
}

// interpolate はリクエストを送信し、補間値を1行に1つずつ out に書き込む。
func interpolate(ctx context.Context, out io.Writer, client *httpclient.Client, req interpolation.InterpolateRequest) error {
	var resp interpolation.InterpolateResponse
	if err := client.PostJSON(ctx, "/rbf/interpolate", req, &resp); err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) {
			return cli.Exit(fmt.Sprintf("interpolation rejected (%d): %s", se.StatusCode, se.Message), 1)
		}
		return cli.Exit(err.Error(), 1)
	}
	for _, v := range resp.InterpolatedValues {
		if _, err := fmt.Fprintln(out, strconv.FormatFloat(v, 'g', -1, 64)); err != nil {
			return err
		}
	}
	return nil
}
