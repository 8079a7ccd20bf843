package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"log"
	"math/big"
)

// jwksPath はプロバイダーの公開鍵セットを公開する標準パス。
const jwksPath = "/.well-known/jwks.json"

// jwksDocument はJWKSエンドポイントが返すJSONドキュメント。
type jwksDocument struct {
	// Keys は公開鍵のリスト。
	Keys []jsonWebKey `json:"keys"`
}

// jsonWebKey はJWKS内の1つの公開鍵を表す。
type jsonWebKey struct {
	// Kty は鍵の種別（"RSA"のみ受け付ける）。
	Kty string `json:"kty"`
	// Kid は鍵の識別子。トークンヘッダーのkidと照合する。
	Kid string `json:"kid"`
	// Use は鍵の用途。
	Use string `json:"use"`
	// N はRSA公開鍵のモジュラス（base64url）。
	N string `json:"n"`
	// E はRSA公開鍵の指数（base64url）。
	E string `json:"e"`
}

// publicKey はJWKのモジュラスと指数からRSA公開鍵を構築する。
func (k jsonWebKey) publicKey() (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("モジュラスのデコードに失敗: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("指数のデコードに失敗: %w", err)
	}

	e := 0
	for _, b := range eb {
		e = e<<8 | int(b)
	}
	if e <= 0 {
		return nil, fmt.Errorf("不正な公開指数: %d", e)
	}

	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}

// fetchKeys はJWKSエンドポイントから公開鍵セットを取得し、kidをキーとするマップに変換する。
func (v *Verifier) fetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	var doc jwksDocument
	if err := v.client.GetJSON(ctx, jwksPath, &doc); err != nil {
		return nil, fmt.Errorf("JWKSの取得に失敗: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			log.Printf("[auth] JWKS鍵 %s のデコードに失敗: %v", k.Kid, err)
			continue
		}
		keys[k.Kid] = pub
	}
	return keys, nil
}
