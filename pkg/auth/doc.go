// Package auth は外部認証プロバイダーが発行したBearerトークンの検証を提供する。
//
// Authorizationヘッダーの解析、プロバイダーのJWKSエンドポイントから取得した
// 公開鍵によるRS256署名検証、クレーム（有効期限・audience・issuer）の検証、
// scopeクレームから抽出した権限セットによる認可チェックを行う。
//
// 公開鍵セットはプロセス全体で共有され、最初の検証時に一度だけ取得し、
// プロセス再起動までキャッシュされる。
package auth
