package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// 認証失敗の分類。ワイヤ上では区別せず、ログとメトリクスでのみ使用する。
var (
	// ErrMissingCredential はAuthorizationヘッダーが無いかBearer形式でないことを表す。
	ErrMissingCredential = errors.New("missing bearer credential")
	// ErrMalformedToken はトークンを期待する構造として解釈できないことを表す。
	ErrMalformedToken = errors.New("malformed token")
	// ErrInvalidSignature は署名が秘密鍵と一致しないことを表す。
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrTokenExpired はトークンの有効期間外であることを表す。
	ErrTokenExpired = errors.New("token expired")
)

// contextKeyIdentity は認証済みIDをGinコンテキストに格納するキー。
const contextKeyIdentity = "identity"

// issuer はGenerateJWTが発行するトークンのiss。
const issuer = "geology-engine"

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
// sub に利用者ID、email と role に任意の属性を持つ。
type JWTClaims struct {
	jwt.RegisteredClaims
	// Email はユーザーのメールアドレス。
	Email string `json:"email,omitempty"`
	// Role はユーザーのロール。
	Role string `json:"role,omitempty"`
}

// Identity は検証済みトークンから得た利用者情報。
// リクエスト単位で生成され、他のリクエストと共有しない。
type Identity struct {
	// Subject はsubクレームの値。
	Subject string
	// Email はemailクレームの値。無い場合は空文字列。
	Email string
	// Role はroleクレームの値。無い場合は空文字列。
	Role string
}

// SecretSource はJWT署名検証用の鍵を提供する。
// 設定が不正な場合はエラーを返し、認証ゲートはサーバーエラーとして扱う。
type SecretSource interface {
	Secret() ([]byte, error)
}

// StaticSecret は固定の鍵を返す SecretSource。空の鍵はエラーになる。
type StaticSecret []byte

// Secret は鍵を返す。
func (s StaticSecret) Secret() ([]byte, error) {
	if len(s) == 0 {
		return nil, errors.New("jwt secret is empty")
	}
	return []byte(s), nil
}

// GenerateJWT は利用者情報からHS256で署名したJWTトークンを生成する。
// 開発用トークンの発行とテストに使用する。
func GenerateJWT(secret []byte, id Identity, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("JWTトークンの署名に失敗: 秘密鍵が空です")
	}
	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
		Email: id.Email,
		Role:  id.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// VerifyToken はトークンをsecretで検証し、時刻nowにおける有効期限を確認する。
// 失敗時は ErrMalformedToken、ErrInvalidSignature、ErrTokenExpired のいずれかをラップして返す。
func VerifyToken(tokenString string, secret []byte, now time.Time) (Identity, error) {
	claims := &JWTClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	_, err := parser.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return Identity{}, classify(err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: sub claim is required", ErrMalformedToken)
	}
	return Identity{
		Subject: claims.Subject,
		Email:   claims.Email,
		Role:    claims.Role,
	}, nil
}

// classify はjwtライブラリのエラーを認証失敗の分類に変換する。
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}

// authOptions はJWTAuthの動作設定。
type authOptions struct {
	now     func() time.Time
	logger  *slog.Logger
	observe func(reason string)
}

// AuthOption はJWTAuthの動作を変更する。
type AuthOption func(*authOptions)

// WithClock は有効期限の判定に使う時刻関数を指定する。
func WithClock(now func() time.Time) AuthOption {
	return func(o *authOptions) { o.now = now }
}

// WithAuthLogger は認証失敗の詳細を出力するロガーを指定する。
func WithAuthLogger(l *slog.Logger) AuthOption {
	return func(o *authOptions) { o.logger = l }
}

// WithFailureObserver は認証失敗の理由ごとに呼び出される関数を指定する。
func WithFailureObserver(fn func(reason string)) AuthOption {
	return func(o *authOptions) { o.observe = fn }
}

// JWTAuth はBearerトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに Identity を設定する。
// 失敗理由にかかわらず401と同一のボディを返し、詳細はログにのみ出力する。
// secrets が鍵を返せない場合は認証を通さず500を返す。
func JWTAuth(secrets SecretSource, opts ...AuthOption) gin.HandlerFunc {
	o := authOptions{
		now:     time.Now,
		logger:  slog.Default(),
		observe: func(string) {},
	}
	for _, opt := range opts {
		opt(&o)
	}

	return func(c *gin.Context) {
		secret, err := secrets.Secret()
		if err != nil || len(secret) == 0 {
			o.observe("configuration")
			o.logger.ErrorContext(c.Request.Context(), "認証設定が不正なためリクエストを拒否しました",
				"path", c.Request.URL.Path, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "authentication is not configured",
			})
			return
		}

		id, err := authenticate(c.GetHeader("Authorization"), secret, o.now())
		if err != nil {
			reason := failureReason(err)
			o.observe(reason)
			o.logger.WarnContext(c.Request.Context(), "認証に失敗しました",
				"path", c.Request.URL.Path, "reason", reason, "detail", err.Error())
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		c.Set(contextKeyIdentity, id)
		c.Next()
	}
}

// authenticate はAuthorizationヘッダーからBearerトークンを取り出して検証する。
func authenticate(header string, secret []byte, now time.Time) (Identity, error) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return Identity{}, ErrMissingCredential
	}
	return VerifyToken(token, secret, now)
}

// failureReason は認証失敗の分類をメトリクス用のラベルに変換する。
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	default:
		return "malformed"
	}
}

// GetIdentity はGinコンテキストから認証済みIDを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetIdentity(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(contextKeyIdentity)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// GetUserID はGinコンテキストから利用者ID（sub）を取得する。未認証の場合は空文字列。
func GetUserID(c *gin.Context) string {
	id, _ := GetIdentity(c)
	return id.Subject
}
