package auth

import (
	"log"

	"github.com/gin-gonic/gin"
)

// contextKeyClaims はGinコンテキストに検証済みクレームを格納するためのキー。
const contextKeyClaims = "auth_claims"

// RequireScope はトークン検証と権限チェックを行うGinミドルウェアを返す。
// 検証に成功した場合、検証済みクレームをコンテキストに設定してハンドラ本体へ進む。
// 失敗した場合はハンドラ本体を実行せず、統一エラーボディで401または403を返す。
func RequireScope(v *Verifier, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, authErr := v.VerifyHeader(c.Request.Context(), c.GetHeader("Authorization"))
		if authErr != nil {
			abortWithAuthError(c, authErr)
			return
		}

		if permErr := claims.CheckPermission(permission); permErr != nil {
			abortWithAuthError(c, permErr)
			return
		}

		c.Set(contextKeyClaims, claims)
		c.Next()
	}
}

// ClaimsFrom はGinコンテキストから検証済みクレームを取得する。
// RequireScopeミドルウェアが事前に適用されている必要がある。
func ClaimsFrom(c *gin.Context) *Claims {
	v, ok := c.Get(contextKeyClaims)
	if !ok {
		return nil
	}
	claims, ok := v.(*Claims)
	if !ok {
		return nil
	}
	return claims
}

// abortWithAuthError は認証エラーをログに記録し、統一エラーボディでリクエストを打ち切る。
func abortWithAuthError(c *gin.Context, authErr *Error) {
	log.Printf("[auth] %s %s: %v", c.Request.Method, c.Request.URL.Path, authErr)
	c.AbortWithStatusJSON(authErr.Status, gin.H{
		"success": false,
		"error":   authErr.Status,
		"message": authErr.Message,
	})
}
