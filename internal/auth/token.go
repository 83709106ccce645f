package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	sessionTokenBytes = 32
	otpDigits         = 6
)

// TokenHasher はシークレットを用いたHMAC-SHA256でトークンをハッシュ化する。
// サーバーはトークンそのものを保存せず、このハッシュのみを保持する。
type TokenHasher struct {
	secret []byte
}

// NewTokenHasher はTokenHasherを生成する。
func NewTokenHasher(secret string) *TokenHasher {
	return &TokenHasher{secret: []byte(secret)}
}

// Hash は値のHMAC-SHA256を16進文字列で返す。
func (h *TokenHasher) Hash(value string) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashOTP はチャレンジIDに束縛したOTPコードのハッシュを返す。
// 同じコードでも別チャレンジでは一致しない。
func (h *TokenHasher) HashOTP(challengeID, code string) string {
	return h.Hash("otp:" + challengeID + ":" + code)
}

// EqualOTP はOTPコードがチャレンジのハッシュと一致するかを固定時間で比較する。
func (h *TokenHasher) EqualOTP(challengeID, code, expectedHash string) bool {
	return hmac.Equal([]byte(h.HashOTP(challengeID, code)), []byte(expectedHash))
}

// NewSessionToken は暗号的に安全なセッショントークンを生成する。
func NewSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewOTPCode は6桁の数字コードを生成する。
func NewOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp code: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}
