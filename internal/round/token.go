// Package round はラウンドの作成・参照・終了とシェアリンクを提供する。
package round

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// ShareTokenLength はシェアトークンの文字数。
const ShareTokenLength = 32

const shareTokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewShareToken は英数字32文字の暗号論的乱数トークンを生成する。
func NewShareToken() (string, error) {
	alphabetLen := big.NewInt(int64(len(shareTokenAlphabet)))
	b := make([]byte, ShareTokenLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate share token: %w", err)
		}
		b[i] = shareTokenAlphabet[n.Int64()]
	}
	return string(b), nil
}
