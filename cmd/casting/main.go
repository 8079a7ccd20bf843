// キャスティングエージェンシーAPIのエントリポイント。
// 映画と俳優のCRUDと両者の関連付けを、権限スコープ付きの
// Bearerトークン認証で保護して提供する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/casting/internal/casting"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server, err := casting.NewServer(port)
	if err != nil {
		log.Fatalf("キャスティングサーバーの初期化に失敗: %v", err)
	}

	log.Printf("キャスティングAPIを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("キャスティングAPIの起動に失敗: %v", err)
	}
}
