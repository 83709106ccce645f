package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultPasswordIterations は新規ハッシュ生成時のPBKDF2反復回数。
	DefaultPasswordIterations = 260000
	passwordSaltBytes         = 16
	passwordKeyBytes          = 32
)

// HashPassword はPBKDF2-HMAC-SHA256でパスワードをハッシュ化し、
// base64エンコードしたソルトとハッシュを返す。
func HashPassword(password string, iterations int) (saltB64, hashB64 string, err error) {
	if iterations <= 0 {
		return "", "", fmt.Errorf("iterations must be positive: %d", iterations)
	}
	salt := make([]byte, passwordSaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", "", fmt.Errorf("failed to generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, passwordKeyBytes, sha256.New)
	return base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(key), nil
}

// VerifyPassword は保存済みのソルト・ハッシュ・反復回数でパスワードを照合する。
// 比較は固定時間で行う。保存値が不正な場合はfalseを返す。
func VerifyPassword(password, saltB64, hashB64 string, iterations int) bool {
	if iterations <= 0 || saltB64 == "" || hashB64 == "" {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return false
	}
	want, err := base64.StdEncoding.DecodeString(hashB64)
	if err != nil || len(want) == 0 {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// dummyPasswordCheck は該当アカウントがない場合にも同程度の計算を行う。
func dummyPasswordCheck(password string) {
	pbkdf2.Key([]byte(password), []byte("wordcloud-dummy-salt"), DefaultPasswordIterations, passwordKeyBytes, sha256.New)
}
