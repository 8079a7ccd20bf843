// Package casting はキャスティングエージェンシーAPIの内部実装を提供する。
//
// 映画（Movie）と俳優（Actor）のCRUD操作、および両者の多対多の関連付けを
// 管理する。すべての保護されたルートは認証プロバイダーが発行した
// Bearerトークンと操作ごとの権限スコープ（例: read:movies）を要求する。
package casting
