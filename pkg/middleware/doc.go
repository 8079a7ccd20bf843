// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// パニックリカバリ、CORS設定、リクエスト相関ID付与など、
// ルーター全体に適用するミドルウェアを含む。
// 認証・認可のガードはpkg/authが提供する。
package middleware
