package middleware

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testSecret はテスト用のJWTシークレット。
var testSecret = []byte("test-secret-key-for-unit-tests")

// discardLogger はテスト用の出力しないロガー。
var discardLogger = slog.New(slog.DiscardHandler)

// signClaims は任意のクレームをHS256で署名する。
func signClaims(t *testing.T, claims jwt.Claims, secret []byte) string {
	t.Helper()

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("トークンの署名に失敗: %v", err)
	}
	return s
}

// mustGenerate はテスト用の有効なトークンを生成する。
func mustGenerate(t *testing.T, id Identity, ttl time.Duration) string {
	t.Helper()

	s, err := GenerateJWT(testSecret, id, ttl)
	if err != nil {
		t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
	}
	return s
}

// TestGenerateJWT はGenerateJWT関数を検証する。
func TestGenerateJWT(t *testing.T) {
	t.Parallel()

	t.Run("正常にJWTトークンを生成できること", func(t *testing.T) {
		t.Parallel()

		tokenStr := mustGenerate(t, Identity{Subject: "user-123", Email: "test@example.com", Role: "geologist"}, time.Hour)

		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
			return testSecret, nil
		})
		if err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}
		if !token.Valid {
			t.Fatal("トークンが無効")
		}
		if claims.Subject != "user-123" {
			t.Errorf("Subject = %q, want %q", claims.Subject, "user-123")
		}
		if claims.Email != "test@example.com" {
			t.Errorf("Email = %q, want %q", claims.Email, "test@example.com")
		}
		if claims.Role != "geologist" {
			t.Errorf("Role = %q, want %q", claims.Role, "geologist")
		}
		if claims.Issuer != "geology-engine" {
			t.Errorf("Issuer = %q, want %q", claims.Issuer, "geology-engine")
		}
	})

	t.Run("トークンの有効期限がttl後であること", func(t *testing.T) {
		t.Parallel()

		before := time.Now()
		tokenStr := mustGenerate(t, Identity{Subject: "user-exp"}, 30*time.Minute)

		claims := &JWTClaims{}
		if _, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
			return testSecret, nil
		}); err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}

		want := before.Add(30 * time.Minute)
		if d := claims.ExpiresAt.Sub(want); d < -time.Minute || d > time.Minute {
			t.Errorf("ExpiresAt = %v, want about %v", claims.ExpiresAt.Time, want)
		}
	})

	t.Run("秘密鍵が空の場合エラーを返すこと", func(t *testing.T) {
		t.Parallel()

		if _, err := GenerateJWT(nil, Identity{Subject: "user"}, time.Hour); err == nil {
			t.Error("空の秘密鍵でエラーが返るべき")
		}
	})
}

// TestVerifyToken はVerifyToken関数を検証する。
func TestVerifyToken(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンからsubを含むIdentityを返すこと", func(t *testing.T) {
		t.Parallel()

		for _, sub := range []string{"user-1", "7d4c1a52-3f7e-4a8b-9b1e-0c5d2f6a8e31", "日本語の利用者"} {
			tokenStr := mustGenerate(t, Identity{Subject: sub, Email: "a@example.com"}, time.Hour)

			id, err := VerifyToken(tokenStr, testSecret, time.Now())
			if err != nil {
				t.Fatalf("VerifyToken()でエラーが発生: %v", err)
			}
			if id.Subject != sub {
				t.Errorf("Subject = %q, want %q", id.Subject, sub)
			}
			if id.Email != "a@example.com" {
				t.Errorf("Email = %q, want %q", id.Email, "a@example.com")
			}
			if id.Role != "" {
				t.Errorf("Role = %q, want empty", id.Role)
			}
		}
	})

	t.Run("別の秘密鍵で署名されたトークンはErrInvalidSignatureを返すこと", func(t *testing.T) {
		t.Parallel()

		for _, claims := range []JWTClaims{
			{RegisteredClaims: jwt.RegisteredClaims{Subject: "user", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}},
			{RegisteredClaims: jwt.RegisteredClaims{Subject: "user", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}},
			{RegisteredClaims: jwt.RegisteredClaims{}},
			{Role: "admin"},
		} {
			tokenStr := signClaims(t, claims, []byte("another-secret"))

			_, err := VerifyToken(tokenStr, testSecret, time.Now())
			if !errors.Is(err, ErrInvalidSignature) {
				t.Errorf("err = %v, want ErrInvalidSignature (claims %+v)", err, claims)
			}
		}
	})

	t.Run("有効期限を過ぎたトークンはErrTokenExpiredを返すこと", func(t *testing.T) {
		t.Parallel()

		tokenStr := mustGenerate(t, Identity{Subject: "user"}, time.Hour)

		_, err := VerifyToken(tokenStr, testSecret, time.Now().Add(2*time.Hour))
		if !errors.Is(err, ErrTokenExpired) {
			t.Errorf("err = %v, want ErrTokenExpired", err)
		}
	})

	t.Run("nbfが未来のトークンはErrTokenExpiredを返すこと", func(t *testing.T) {
		t.Parallel()

		tokenStr := signClaims(t, JWTClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(2 * time.Hour)),
			NotBefore: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}, testSecret)

		_, err := VerifyToken(tokenStr, testSecret, time.Now())
		if !errors.Is(err, ErrTokenExpired) {
			t.Errorf("err = %v, want ErrTokenExpired", err)
		}
	})

	t.Run("構造が不正なトークンはErrMalformedTokenを返すこと", func(t *testing.T) {
		t.Parallel()

		noSub := signClaims(t, JWTClaims{RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}, testSecret)
		noExp := signClaims(t, JWTClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user",
		}}, testSecret)

		tests := []struct {
			name  string
			token string
		}{
			{name: "セグメント数が不足", token: "header.payload"},
			{name: "セグメント数が過剰", token: "a.b.c.d"},
			{name: "不正なエンコーディング", token: "!!!.@@@.###"},
			{name: "subクレームなし", token: noSub},
			{name: "expクレームなし", token: noExp},
		}
		for _, tt := range tests {
			if _, err := VerifyToken(tt.token, testSecret, time.Now()); !errors.Is(err, ErrMalformedToken) {
				t.Errorf("%s: err = %v, want ErrMalformedToken", tt.name, err)
			}
		}
	})

	t.Run("HS256以外のアルゴリズムはErrInvalidSignatureを返すこと", func(t *testing.T) {
		t.Parallel()

		claims := JWTClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)
		if err != nil {
			t.Fatalf("トークンの署名に失敗: %v", err)
		}
		none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("トークンの署名に失敗: %v", err)
		}

		for _, tokenStr := range []string{hs512, none} {
			if _, err := VerifyToken(tokenStr, testSecret, time.Now()); !errors.Is(err, ErrInvalidSignature) {
				t.Errorf("err = %v, want ErrInvalidSignature", err)
			}
		}
	})
}

// tamper はトークンのペイロードを書き換え、署名はそのまま残す。
func tamper(t *testing.T, tokenStr string) string {
	t.Helper()

	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 {
		t.Fatalf("トークンのセグメント数 = %d", len(parts))
	}
	payload, err := json.Marshal(map[string]any{
		"sub":  "attacker",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("ペイロードの生成に失敗: %v", err)
	}
	parts[1] = base64.RawURLEncoding.EncodeToString(payload)
	return strings.Join(parts, ".")
}

// failingSecret は常にエラーを返す SecretSource。
type failingSecret struct{}

func (failingSecret) Secret() ([]byte, error) {
	return nil, errors.New("secret is not configured")
}

// newAuthRouter はJWTAuthを適用したテスト用ルーターを返す。
func newAuthRouter(secrets SecretSource, opts ...AuthOption) *gin.Engine {
	opts = append([]AuthOption{WithAuthLogger(discardLogger)}, opts...)
	router := gin.New()
	router.Use(JWTAuth(secrets, opts...))
	router.GET("/protected", func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "identity missing"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": id.Subject, "email": id.Email, "role": id.Role})
	})
	return router
}

// TestJWTAuth はJWTAuthミドルウェアを検証する。
func TestJWTAuth(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンで認証が成功しIdentityが設定されること", func(t *testing.T) {
		t.Parallel()

		router := newAuthRouter(StaticSecret(testSecret))
		tokenStr := mustGenerate(t, Identity{Subject: "user-456", Email: "auth@example.com", Role: "admin"}, time.Hour)

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+tokenStr)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if body["user_id"] != "user-456" {
			t.Errorf("user_id = %q, want %q", body["user_id"], "user-456")
		}
		if body["email"] != "auth@example.com" {
			t.Errorf("email = %q, want %q", body["email"], "auth@example.com")
		}
		if body["role"] != "admin" {
			t.Errorf("role = %q, want %q", body["role"], "admin")
		}
	})

	t.Run("Bearerスキームは大文字小文字を区別しないこと", func(t *testing.T) {
		t.Parallel()

		router := newAuthRouter(StaticSecret(testSecret))
		tokenStr := mustGenerate(t, Identity{Subject: "user"}, time.Hour)

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "bearer "+tokenStr)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("認証失敗は理由にかかわらず同一の401レスポンスを返すこと", func(t *testing.T) {
		t.Parallel()

		valid := mustGenerate(t, Identity{Subject: "user"}, time.Hour)
		expired := mustGenerate(t, Identity{Subject: "user"}, -time.Hour)
		wrongSecret := signClaims(t, JWTClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}, []byte("another-secret"))

		tests := []struct {
			name   string
			header string
			reason string
		}{
			{name: "ヘッダーなし", header: "", reason: "missing_credential"},
			{name: "Basicスキーム", header: "Basic dXNlcjpwYXNz", reason: "missing_credential"},
			{name: "トークンなし", header: "Bearer ", reason: "missing_credential"},
			{name: "不正な形式", header: "Bearer invalid-token", reason: "malformed"},
			{name: "期限切れ", header: "Bearer " + expired, reason: "expired"},
			{name: "別の秘密鍵", header: "Bearer " + wrongSecret, reason: "invalid_signature"},
			{name: "ペイロード改ざん", header: "Bearer " + tamper(t, valid), reason: "invalid_signature"},
		}

		var (
			mu      sync.Mutex
			reasons []string
		)
		router := newAuthRouter(StaticSecret(testSecret), WithFailureObserver(func(reason string) {
			mu.Lock()
			defer mu.Unlock()
			reasons = append(reasons, reason)
		}))

		var want string
		for i, tt := range tests {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("%s: ステータスコード = %d, want %d", tt.name, w.Code, http.StatusUnauthorized)
			}
			if got := w.Header().Get("WWW-Authenticate"); got != "Bearer" {
				t.Errorf("%s: WWW-Authenticate = %q, want %q", tt.name, got, "Bearer")
			}
			if i == 0 {
				want = w.Body.String()
			} else if got := w.Body.String(); got != want {
				t.Errorf("%s: body = %s, want %s", tt.name, got, want)
			}
		}
		if want != `{"error":"unauthorized"}` {
			t.Errorf("body = %s, want %s", want, `{"error":"unauthorized"}`)
		}

		mu.Lock()
		defer mu.Unlock()
		if len(reasons) != len(tests) {
			t.Fatalf("通知された理由の数 = %d, want %d", len(reasons), len(tests))
		}
		for i, tt := range tests {
			if reasons[i] != tt.reason {
				t.Errorf("%s: reason = %q, want %q", tt.name, reasons[i], tt.reason)
			}
		}
	})

	t.Run("秘密鍵を取得できない場合は500を返し通過させないこと", func(t *testing.T) {
		t.Parallel()

		tokenStr := mustGenerate(t, Identity{Subject: "user"}, time.Hour)
		for _, secrets := range []SecretSource{failingSecret{}, StaticSecret(nil)} {
			var observed string
			router := newAuthRouter(secrets, WithFailureObserver(func(reason string) { observed = reason }))

			for _, header := range []string{"", "Bearer " + tokenStr} {
				req := httptest.NewRequest(http.MethodGet, "/protected", nil)
				if header != "" {
					req.Header.Set("Authorization", header)
				}
				w := httptest.NewRecorder()
				router.ServeHTTP(w, req)

				if w.Code != http.StatusInternalServerError {
					t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusInternalServerError)
				}
				if strings.Contains(w.Body.String(), "user_id") {
					t.Errorf("保護されたハンドラが実行された: %s", w.Body.String())
				}
			}
			if observed != "configuration" {
				t.Errorf("reason = %q, want %q", observed, "configuration")
			}
		}
	})

	t.Run("注入した時刻で有効期限を判定すること", func(t *testing.T) {
		t.Parallel()

		tokenStr := mustGenerate(t, Identity{Subject: "user"}, time.Hour)
		router := newAuthRouter(StaticSecret(testSecret), WithClock(func() time.Time {
			return time.Now().Add(3 * time.Hour)
		}))

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+tokenStr)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

// TestGetIdentity はGetIdentityとGetUserIDを検証する。
func TestGetIdentity(t *testing.T) {
	t.Parallel()

	t.Run("未認証のコンテキストでは空の値を返すこと", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		if _, ok := GetIdentity(c); ok {
			t.Error("未認証でIdentityが取得できるべきではない")
		}
		if got := GetUserID(c); got != "" {
			t.Errorf("GetUserID() = %q, want empty", got)
		}
	})
}
