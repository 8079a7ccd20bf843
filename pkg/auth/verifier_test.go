package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// testKid はテスト用の鍵識別子。
const testKid = "test-key-1"

// testAudience はテスト用のAPI識別子。
const testAudience = "casting-api"

// generateTestKey はテスト用のRSA鍵ペアを生成する。
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("RSA鍵の生成に失敗: %v", err)
	}
	return key
}

// newJWKSServer は指定した公開鍵を返すJWKSエンドポイントのモックサーバーを生成する。
// 返すカウンタはJWKSエンドポイントへのアクセス回数を記録する。
func newJWKSServer(t *testing.T, pub *rsa.PublicKey, kid string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)

		doc := map[string]any{
			"keys": []map[string]any{
				{
					"kty": "RSA",
					"kid": kid,
					"use": "sig",
					"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
					"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(doc); err != nil {
			t.Errorf("JWKSレスポンスのエンコードに失敗: %v", err)
		}
	}))
	t.Cleanup(ts.Close)
	return ts, &hits
}

// setupVerifier はJWKSモックサーバーと、それを参照する検証器を構築する。
func setupVerifier(t *testing.T) (*Verifier, *rsa.PrivateKey, *atomic.Int32) {
	t.Helper()
	key := generateTestKey(t)
	ts, hits := newJWKSServer(t, &key.PublicKey, testKid)
	return NewVerifier(ts.URL, testAudience), key, hits
}

// signTestToken はRS256でテストトークンに署名する。
func signTestToken(t *testing.T, priv *rsa.PrivateKey, kid string, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(priv)
	if err != nil {
		t.Fatalf("トークンの署名に失敗: %v", err)
	}
	return signed
}

// validClaims は検証を通過するクレームのセットを生成する。
func validClaims(v *Verifier, scope *string) *tokenClaims {
	return &tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "auth0|test-user",
			Issuer:    v.issuer,
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Scope: scope,
	}
}

// strPtr は文字列リテラルへのポインタを返すヘルパー。
func strPtr(s string) *string { return &s }

// TestExtractToken はAuthorizationヘッダーの解析を検証する。
func TestExtractToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
	}{
		{name: "ヘッダーが空の場合", header: ""},
		{name: "スキームが大文字Bearerの場合", header: "Bearer abc.def.ghi"},
		{name: "スキームのみの場合", header: "bearer"},
		{name: "3つ以上の部分がある場合", header: "bearer abc def"},
		{name: "トークン部分が空の場合", header: "bearer "},
		{name: "スキームが別物の場合", header: "basic abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name+"invalid_headerが返ること", func(t *testing.T) {
			t.Parallel()

			_, authErr := extractToken(tt.header)
			if authErr == nil {
				t.Fatalf("extractToken(%q)がエラーを返すべき", tt.header)
			}
			if authErr.Code != CodeInvalidHeader {
				t.Errorf("Code = %q, want %q", authErr.Code, CodeInvalidHeader)
			}
			if authErr.Status != http.StatusUnauthorized {
				t.Errorf("Status = %d, want %d", authErr.Status, http.StatusUnauthorized)
			}
		})
	}

	t.Run("正しい形式のヘッダーからトークンが取り出せること", func(t *testing.T) {
		t.Parallel()

		raw, authErr := extractToken("bearer abc.def.ghi")
		if authErr != nil {
			t.Fatalf("extractToken()でエラーが発生: %v", authErr)
		}
		if raw != "abc.def.ghi" {
			t.Errorf("token = %q, want %q", raw, "abc.def.ghi")
		}
	})
}

// TestVerifyHeader はトークン検証の全経路を検証する。
func TestVerifyHeader(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンからクレームが抽出できること", func(t *testing.T) {
		t.Parallel()

		v, key, _ := setupVerifier(t)
		tokenStr := signTestToken(t, key, testKid, validClaims(v, strPtr("read:movies create:movies")))

		claims, authErr := v.VerifyHeader(context.Background(), "bearer "+tokenStr)
		if authErr != nil {
			t.Fatalf("VerifyHeader()でエラーが発生: %v", authErr)
		}

		if claims.Subject != "auth0|test-user" {
			t.Errorf("Subject = %q, want %q", claims.Subject, "auth0|test-user")
		}
		if len(claims.Scopes) != 2 || claims.Scopes[0] != "read:movies" || claims.Scopes[1] != "create:movies" {
			t.Errorf("Scopes = %v, want [read:movies create:movies]", claims.Scopes)
		}
		if claims.ExpiresAt.IsZero() {
			t.Error("ExpiresAtが設定されていない")
		}
	})

	t.Run("scopeクレームが無いトークンではScopesがnilになること", func(t *testing.T) {
		t.Parallel()

		v, key, _ := setupVerifier(t)
		tokenStr := signTestToken(t, key, testKid, validClaims(v, nil))

		claims, authErr := v.VerifyHeader(context.Background(), "bearer "+tokenStr)
		if authErr != nil {
			t.Fatalf("VerifyHeader()でエラーが発生: %v", authErr)
		}
		if claims.Scopes != nil {
			t.Errorf("Scopes = %v, want nil", claims.Scopes)
		}
	})

	t.Run("空のscopeクレームではScopesが空の非nilスライスになること", func(t *testing.T) {
		t.Parallel()

		v, key, _ := setupVerifier(t)
		tokenStr := signTestToken(t, key, testKid, validClaims(v, strPtr("")))

		claims, authErr := v.VerifyHeader(context.Background(), "bearer "+tokenStr)
		if authErr != nil {
			t.Fatalf("VerifyHeader()でエラーが発生: %v", authErr)
		}
		if claims.Scopes == nil {
			t.Fatal("Scopesがnil、空スライスであるべき")
		}
		if len(claims.Scopes) != 0 {
			t.Errorf("Scopes = %v, want 空スライス", claims.Scopes)
		}
	})

	t.Run("期限切れトークンでtoken_expiredが返ること", func(t *testing.T) {
		t.Parallel()

		v, key, _ := setupVerifier(t)
		claims := validClaims(v, strPtr("read:movies"))
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		tokenStr := signTestToken(t, key, testKid, claims)

		_, authErr := v.VerifyHeader(context.Background(), "bearer "+tokenStr)
		if authErr == nil {
			t.Fatal("VerifyHeader()がエラーを返すべき")
		}
		if authErr.Code != CodeTokenExpired {
			t.Errorf("Code = %q, want %q", authErr.Code, CodeTokenExpired)
		}
		if authErr.Status != http.StatusUnauthorized {
			t.Errorf("Status = %d, want %d", authErr.Status, http.StatusUnauthorized)
		}
	})

	t.Run("audienceが一致しないトークンでinvalid_claimsが返ること", func(t *testing.T) {
		t.Parallel()

		v, key, _ := setupVerifier(t)
		claims := validClaims(v, strPtr("read:movies"))
		claims.Audience = jwt.ClaimStrings{"other-api"}
		tokenStr := signTestToken(t, key, testKid, claims)

		_, authErr := v.VerifyHeader(context.Background(), "bearer "+tokenStr)
		if authErr == nil {
			t.Fatal("VerifyHeader()がエラーを返すべき")
		}
		if authErr.Code != CodeInvalidClaims {
			t.Errorf("Code = %q, want %q", authErr.Code, CodeInvalidClaims)
		}
	})

	t.Run("issuerが一致しないトークンでinvalid_claimsが返ること", func(t *testing.T) {
		t.Parallel()

		v, key, _ := setupVerifier(t)
		claims := validClaims(v, strPtr("read:movies"))
		claims.Issuer = "https://evil.example.com/"
		tokenStr := signTestToken(t, key, testKid, claims)

		_, authErr := v.VerifyHeader(context.Background(), "bearer "+tokenStr)
		if authErr == nil {
			t.Fatal("VerifyHeader()がエラーを返すべき")
		}
		if authErr.Code != CodeInvalidClaims {
			t.Errorf("Code = %q, want %q", authErr.Code, CodeInvalidClaims)
		}
	})

	t.Run("expクレームが無いトークンでinvalid_claimsが返ること", func(t *testing.T) {
		t.Parallel()

		v, key, _ := setupVerifier(t)
		claims := validClaims(v, strPtr("read:movies"))
		claims.ExpiresAt = nil
		tokenStr := signTestToken(t, key, testKid, claims)

		_, authErr := v.VerifyHeader(context.Background(), "bearer "+tokenStr)
		if authErr == nil {
			t.Fatal("VerifyHeader()がエラーを返すべき")
		}
		if authErr.Code != CodeInvalidClaims {
			t.Errorf("Code = %q, want %q", authErr.Code, CodeInvalidClaims)
		}
	})

	t.Run("未知のkidを持つトークンでinvalid_headerが返ること", func(t *testing.T) {
		t.Parallel()

		v, key, _ := setupVerifier(t)
		tokenStr := signTestToken(t, key, "unknown-kid", validClaims(v, strPtr("read:movies")))

		_, authErr := v.VerifyHeader(context.Background(), "bearer "+tokenStr)
		if authErr == nil {
			t.Fatal("VerifyHeader()がエラーを返すべき")
		}
		if authErr.Code != CodeInvalidHeader {
			t.Errorf("Code = %q, want %q", authErr.Code, CodeInvalidHeader)
		}
	})

	t.Run("kidヘッダーが無いトークンでinvalid_headerが返ること", func(t *testing.T) {
		t.Parallel()

		v, key, _ := setupVerifier(t)
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims(v, strPtr("read:movies")))
		tokenStr, err := token.SignedString(key)
		if err != nil {
			t.Fatalf("トークンの署名に失敗: %v", err)
		}

		_, authErr := v.VerifyHeader(context.Background(), "bearer "+tokenStr)
		if authErr == nil {
			t.Fatal("VerifyHeader()がエラーを返すべき")
		}
		if authErr.Code != CodeInvalidHeader {
			t.Errorf("Code = %q, want %q", authErr.Code, CodeInvalidHeader)
		}
	})

	t.Run("許可外アルゴリズム（HS256）のトークンでinvalid_headerが返ること", func(t *testing.T) {
		t.Parallel()

		v, _, _ := setupVerifier(t)
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims(v, strPtr("read:movies")))
		token.Header["kid"] = testKid
		tokenStr, err := token.SignedString([]byte("shared-secret"))
		if err != nil {
			t.Fatalf("トークンの署名に失敗: %v", err)
		}

		_, authErr := v.VerifyHeader(context.Background(), "bearer "+tokenStr)
		if authErr == nil {
			t.Fatal("VerifyHeader()がエラーを返すべき")
		}
		if authErr.Code != CodeInvalidHeader {
			t.Errorf("Code = %q, want %q", authErr.Code, CodeInvalidHeader)
		}
	})

	t.Run("別の鍵で署名されたトークンでinvalid_headerが返ること", func(t *testing.T) {
		t.Parallel()

		v, _, _ := setupVerifier(t)
		otherKey := generateTestKey(t)
		tokenStr := signTestToken(t, otherKey, testKid, validClaims(v, strPtr("read:movies")))

		_, authErr := v.VerifyHeader(context.Background(), "bearer "+tokenStr)
		if authErr == nil {
			t.Fatal("VerifyHeader()がエラーを返すべき")
		}
		if authErr.Code != CodeInvalidHeader {
			t.Errorf("Code = %q, want %q", authErr.Code, CodeInvalidHeader)
		}
	})

	t.Run("トークンとして解釈できない文字列でinvalid_headerが返ること", func(t *testing.T) {
		t.Parallel()

		v, _, _ := setupVerifier(t)
		_, authErr := v.VerifyHeader(context.Background(), "bearer not-a-jwt")
		if authErr == nil {
			t.Fatal("VerifyHeader()がエラーを返すべき")
		}
		if authErr.Code != CodeInvalidHeader {
			t.Errorf("Code = %q, want %q", authErr.Code, CodeInvalidHeader)
		}
	})
}

// TestSigningKeyCache は署名鍵キャッシュのライフサイクルを検証する。
func TestSigningKeyCache(t *testing.T) {
	t.Parallel()

	t.Run("JWKSは最初の検証時に一度だけ取得されること", func(t *testing.T) {
		t.Parallel()

		v, key, hits := setupVerifier(t)
		if got := hits.Load(); got != 0 {
			t.Fatalf("起動直後のJWKSアクセス回数 = %d, want 0", got)
		}

		for range 3 {
			tokenStr := signTestToken(t, key, testKid, validClaims(v, strPtr("read:movies")))
			if _, authErr := v.VerifyHeader(context.Background(), "bearer "+tokenStr); authErr != nil {
				t.Fatalf("VerifyHeader()でエラーが発生: %v", authErr)
			}
		}

		if got := hits.Load(); got != 1 {
			t.Errorf("JWKSアクセス回数 = %d, want 1", got)
		}
	})

	t.Run("キャッシュ取得済み後は未知のkidでも再取得しないこと", func(t *testing.T) {
		t.Parallel()

		v, key, hits := setupVerifier(t)

		tokenStr := signTestToken(t, key, testKid, validClaims(v, strPtr("read:movies")))
		if _, authErr := v.VerifyHeader(context.Background(), "bearer "+tokenStr); authErr != nil {
			t.Fatalf("VerifyHeader()でエラーが発生: %v", authErr)
		}

		rotated := signTestToken(t, key, "rotated-kid", validClaims(v, strPtr("read:movies")))
		if _, authErr := v.VerifyHeader(context.Background(), "bearer "+rotated); authErr == nil {
			t.Fatal("未知のkidのトークンがエラーを返すべき")
		}

		if got := hits.Load(); got != 1 {
			t.Errorf("JWKSアクセス回数 = %d, want 1", got)
		}
	})

	t.Run("JWKS取得に失敗した場合invalid_headerが返ること", func(t *testing.T) {
		t.Parallel()

		key := generateTestKey(t)
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		t.Cleanup(ts.Close)

		v := NewVerifier(ts.URL, testAudience)
		tokenStr := signTestToken(t, key, testKid, validClaims(v, strPtr("read:movies")))

		_, authErr := v.VerifyHeader(context.Background(), "bearer "+tokenStr)
		if authErr == nil {
			t.Fatal("VerifyHeader()がエラーを返すべき")
		}
		if authErr.Code != CodeInvalidHeader {
			t.Errorf("Code = %q, want %q", authErr.Code, CodeInvalidHeader)
		}
	})
}
