package auth

import (
	"net/http"
	"slices"
	"strings"
	"time"
)

// Claims は検証済みトークンから抽出したクレームのセット。
type Claims struct {
	// Subject はトークンの主体（ユーザー識別子）。
	Subject string
	// Issuer はトークンの発行者。
	Issuer string
	// Audience はトークンの対象オーディエンス。
	Audience []string
	// ExpiresAt はトークンの有効期限。
	ExpiresAt time.Time
	// Scopes はscopeクレームから抽出した権限のセット。
	// scopeクレーム自体がトークンに存在しない場合はnil。
	Scopes []string
}

// CheckPermission は指定された権限がクレームに含まれるかを検証する。
// scopeクレーム自体が存在しない場合は401のinvalid_claims、
// 存在するが権限が含まれない場合は403のunauthorizedを返す。
func (c *Claims) CheckPermission(permission string) *Error {
	if c.Scopes == nil {
		return newError(CodeInvalidClaims, http.StatusUnauthorized, "Permissions not included in token.")
	}
	if !slices.Contains(c.Scopes, permission) {
		return newError(CodeUnauthorized, http.StatusForbidden, "Permission not found.")
	}
	return nil
}

// splitScopes はスペース区切りのscopeクレームを権限のスライスに分解する。
// 空文字列のクレームは空（非nil）のスライスになる。
func splitScopes(scope string) []string {
	return append([]string{}, strings.Fields(scope)...)
}
