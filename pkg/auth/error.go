package auth

import "fmt"

// 認証・認可エラーのコード。
const (
	// CodeInvalidHeader はAuthorizationヘッダーまたはトークン自体が不正な場合のコード。
	CodeInvalidHeader = "invalid_header"
	// CodeTokenExpired はトークンの有効期限が切れている場合のコード。
	CodeTokenExpired = "token_expired"
	// CodeInvalidClaims はクレーム（audience・issuer・権限クレームの欠落）が不正な場合のコード。
	CodeInvalidClaims = "invalid_claims"
	// CodeUnauthorized は必要な権限がトークンに含まれていない場合のコード。
	CodeUnauthorized = "unauthorized"
)

// Error は認証・認可の失敗を表す型付きエラー。
// StatusはHTTPレスポンスに変換する際のステータスコード（401または403）。
type Error struct {
	// Code はエラー種別を表すコード。
	Code string
	// Status はHTTPステータスコード。
	Status int
	// Message は利用者向けのエラーメッセージ。
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// newError は新しい認証エラーを生成する。
func newError(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}
