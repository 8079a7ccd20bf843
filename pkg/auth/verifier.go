package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nao1215/casting/pkg/httpclient"
)

// Verifier は認証プロバイダーが発行したBearerトークンを検証する。
// 公開鍵セットはプロセス全体でキャッシュされ、最初の検証時に一度だけ取得する。
type Verifier struct {
	// issuer はトークンのissクレームとして期待する発行者URL（末尾スラッシュ付き）。
	issuer string
	// audience はトークンのaudクレームとして期待するAPI識別子。
	audience string
	// client はJWKSエンドポイントへのHTTPクライアント。
	client *httpclient.Client

	// mu はkeysへのアクセスを保護する。
	mu sync.Mutex
	// keys はkidをキーとする公開鍵のキャッシュ。nilは未取得を表す。
	keys map[string]*rsa.PublicKey
}

// NewVerifier は新しいトークン検証器を生成する。
// issuerURLには認証プロバイダーのベースURL（例: "https://tenant.auth0.com"）、
// audienceにはAPI識別子を指定する。
func NewVerifier(issuerURL, audience string) *Verifier {
	base := strings.TrimSuffix(issuerURL, "/")
	return &Verifier{
		issuer:   base + "/",
		audience: audience,
		client:   httpclient.New(base),
	}
}

// tokenClaims はトークンのペイロードをデコードするための内部型。
type tokenClaims struct {
	jwt.RegisteredClaims
	// Scope はスペース区切りの権限リスト。クレーム欠落と空文字列を区別するためポインタ。
	Scope *string `json:"scope"`
}

// VerifyHeader はAuthorizationヘッダーの値を解析・検証し、クレームセットを返す。
// ヘッダーは「bearer <token>」形式（小文字のbearer）でなければならない。
func (v *Verifier) VerifyHeader(ctx context.Context, header string) (*Claims, *Error) {
	raw, authErr := extractToken(header)
	if authErr != nil {
		return nil, authErr
	}

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, v.keyfunc(ctx),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, classifyParseError(err)
	}
	if !token.Valid {
		return nil, newError(CodeInvalidHeader, http.StatusUnauthorized, "Unable to parse authentication token.")
	}

	out := &Claims{
		Subject:  claims.Subject,
		Issuer:   claims.Issuer,
		Audience: []string(claims.Audience),
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.Scope != nil {
		out.Scopes = splitScopes(*claims.Scope)
	}
	return out, nil
}

// extractToken はAuthorizationヘッダーからトークン部分を取り出す。
// スキームは大文字小文字を区別して「bearer」でなければならない。
func extractToken(header string) (string, *Error) {
	if header == "" {
		return "", newError(CodeInvalidHeader, http.StatusUnauthorized, "Authorization header is expected.")
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "bearer" || parts[1] == "" {
		return "", newError(CodeInvalidHeader, http.StatusUnauthorized,
			"Authorization header must be in the format 'bearer <token>'.")
	}
	return parts[1], nil
}

// keyfunc はトークンヘッダーのkidに対応する検証鍵を解決するコールバックを返す。
func (v *Verifier) keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, newError(CodeInvalidHeader, http.StatusUnauthorized, "Token header must contain a key id.")
		}
		return v.signingKey(ctx, kid)
	}
}

// signingKey はkidに対応する公開鍵をキャッシュから返す。
// キャッシュが未取得の場合のみJWKSを取得する。取得済みキャッシュに
// kidが存在しない場合は再取得せずにエラーを返す。
func (v *Verifier) signingKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys == nil {
		keys, err := v.fetchKeys(ctx)
		if err != nil {
			log.Printf("[auth] 署名鍵の取得に失敗: %v", err)
			return nil, newError(CodeInvalidHeader, http.StatusUnauthorized, "Unable to fetch the signing keys.")
		}
		v.keys = keys
	}

	key, ok := v.keys[kid]
	if !ok {
		return nil, newError(CodeInvalidHeader, http.StatusUnauthorized, "Unable to find the appropriate key.")
	}
	return key, nil
}

// classifyParseError はトークン解析・検証エラーを型付きの認証エラーに分類する。
// 有効期限切れはtoken_expired、audience/issuerの不一致はinvalid_claims、
// それ以外（署名不正・形式不正・鍵解決失敗）はinvalid_headerとなる。
func classifyParseError(err error) *Error {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr
	}
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return newError(CodeTokenExpired, http.StatusUnauthorized, "Token expired.")
	case errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return newError(CodeInvalidClaims, http.StatusUnauthorized,
			"Incorrect claims. Please, check the audience and issuer.")
	default:
		return newError(CodeInvalidHeader, http.StatusUnauthorized, "Unable to parse authentication token.")
	}
}
