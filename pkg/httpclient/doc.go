// Package httpclient は外部サービスからJSONを取得するHTTPクライアントを提供する。
//
// タイムアウト付きのシンプルなGETクライアントで、
// 認証プロバイダーのJWKSエンドポイントへのアクセスに使用する。
package httpclient
