// Package model はドメインモデルを定義する。
package model

import "time"

// Account はチーム単位のアカウントを表す。
// パスワードはソルト付きPBKDF2ハッシュとして保持し、平文は保存しない。
type Account struct {
	ID                 string
	Username           string
	TeamNo             *int
	Email              string
	Phone              string
	PasswordSaltB64    string
	PasswordHashB64    string
	PasswordIterations int
	IsActive           bool
	Points             int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Member はアカウントに所属する参加者を表す。
// 電話番号はアカウント内で一意。
type Member struct {
	ID         string
	AccountID  string
	MemberCode string
	Name       string
	Email      string
	Phone      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MemberWithAccount はメンバーと所属アカウントを結合したモデル。
// ログインやOTP送信先の解決で使用する。
type MemberWithAccount struct {
	Member
	Account Account
}

// Session はログインセッションを表す。
// トークンそのものは保存せず、HMACハッシュのみを保持する。
type Session struct {
	ID        string
	AccountID string
	MemberID  string // メンバー未確定のセッションでは空
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// IsValid はセッションが有効かを返す。
// 失効していない、かつ有効期限内であれば有効。
func (s *Session) IsValid(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}

// OTPChannel はOTPの送信チャネル。
type OTPChannel string

const (
	// OTPChannelWhatsApp は電話番号宛てのWhatsApp送信。
	OTPChannelWhatsApp OTPChannel = "whatsapp"
	// OTPChannelEmail はメール送信。
	OTPChannelEmail OTPChannel = "email"
)

// OTPChallenge はワンタイムコードによる認証チャレンジを表す。
type OTPChallenge struct {
	ID         string
	Identifier string
	Channel    OTPChannel
	MemberID   string
	CodeHash   string
	Attempts   int
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// IsValid はチャレンジがまだ利用可能かを返す。
// 未消費かつ有効期限内で、試行回数が上限未満であること。
func (c *OTPChallenge) IsValid(now time.Time, maxAttempts int) bool {
	return c.ConsumedAt == nil && c.ExpiresAt.After(now) && c.Attempts < maxAttempts
}
