// Package auth はパスワード・OTPによる認証とセッション管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/wordcloud/internal/metrics"
	"github.com/hitoshi/wordcloud/internal/model"
	"github.com/hitoshi/wordcloud/internal/repository"
)

// Dispatcher はOTPコードを外部ゲートウェイへ送信するインターフェース。
// 実装側でタイムアウトと有限回のリトライを行い、失敗時はエラーを返す。
type Dispatcher interface {
	Dispatch(ctx context.Context, channel model.OTPChannel, identifier, displayName, code string) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge  int // セッション有効期間（秒）
	OTPTTL         time.Duration
	OTPMaxAttempts int
}

// LoginResult はログイン成功時に返すセッション情報。
// Tokenは発行時にのみ平文で返し、サーバーにはハッシュのみが残る。
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Account   model.Account
	MemberID  string
}

// OTPRequest はOTP発行リクエストの入力値。
type OTPRequest struct {
	Channel string
	Phone   string
	Email   string
	TeamNo  *int
}

// OTPChallengeResult はOTP発行結果。
type OTPChallengeResult struct {
	ChallengeID string
	ExpiresAt   time.Time
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	accounts   repository.AccountRepository
	sessions   repository.SessionRepository
	otps       repository.OTPRepository
	dispatcher Dispatcher
	hasher     *TokenHasher
	metrics    metrics.MetricsCollector
	config     ServiceConfig
	now        func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	accounts repository.AccountRepository,
	sessions repository.SessionRepository,
	otps repository.OTPRepository,
	dispatcher Dispatcher,
	hasher *TokenHasher,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if config.OTPTTL <= 0 {
		config.OTPTTL = 5 * time.Minute
	}
	if config.OTPMaxAttempts <= 0 {
		config.OTPMaxAttempts = 5
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		accounts:   accounts,
		sessions:   sessions,
		otps:       otps,
		dispatcher: dispatcher,
		hasher:     hasher,
		metrics:    collector,
		config:     config,
		now:        time.Now,
	}
}

// Login はユーザー名・電話番号・メールアドレスとパスワードで認証し、セッションを発行する。
// '@'を含む場合はメンバーのメールアドレス、それ以外はアカウントのユーザー名、
// 該当がなければ正規化した電話番号で候補を探す。
func (s *Service) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	password = strings.TrimSpace(password)
	if identifier == "" || password == "" {
		return nil, model.NewValidationError("ユーザー名とパスワードを入力してください。")
	}

	candidates, err := s.loginCandidates(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		dummyPasswordCheck(password)
		return nil, model.NewInvalidCredentialsError()
	}

	for _, c := range candidates {
		if !c.Account.IsActive {
			continue
		}
		if VerifyPassword(password, c.Account.PasswordSaltB64, c.Account.PasswordHashB64, c.Account.PasswordIterations) {
			result, err := s.issueSession(ctx, c.Account, c.ID)
			if err != nil {
				return nil, err
			}
			slog.Info("account logged in",
				slog.String("account_id", c.Account.ID),
				slog.String("member_id", c.ID),
			)
			return result, nil
		}
	}

	return nil, model.NewInvalidCredentialsError()
}

func (s *Service) loginCandidates(ctx context.Context, identifier string) ([]model.MemberWithAccount, error) {
	if strings.Contains(identifier, "@") {
		members, err := s.accounts.FindMembersByEmail(ctx, identifier)
		if err != nil {
			return nil, fmt.Errorf("failed to find members by email: %w", err)
		}
		return members, nil
	}

	members, err := s.accounts.FindMembersByUsername(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to find members by username: %w", err)
	}
	if len(members) > 0 {
		return members, nil
	}

	phone := NormalizePhone(identifier)
	if phone == "" {
		return nil, nil
	}
	members, err = s.accounts.FindMembersByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to find members by phone: %w", err)
	}
	return members, nil
}

// Authenticate はトークンから有効なセッションを取得する。
// トークンが空・未登録・失効済み・期限切れの場合はnilを返す。
func (s *Service) Authenticate(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, nil
	}
	session, err := s.sessions.FindValidByTokenHash(ctx, s.hasher.Hash(token))
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return session, nil
}

// Logout はセッションを失効させる。セッションがない場合は何もしない。
func (s *Service) Logout(ctx context.Context, session *model.Session) error {
	if session == nil {
		return nil
	}
	if err := s.sessions.Revoke(ctx, session.ID, s.now()); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	slog.Info("session revoked", slog.String("account_id", session.AccountID))
	return nil
}

// Me はセッションに紐づくアカウントとメンバーを返す。
// メンバー未確定のセッションや無効化されたアカウントは未認証として扱う。
func (s *Service) Me(ctx context.Context, session *model.Session) (*model.MemberWithAccount, error) {
	if session == nil || session.MemberID == "" {
		return nil, model.NewUnauthorizedError()
	}
	member, err := s.accounts.FindMemberByID(ctx, session.MemberID)
	if err != nil {
		return nil, fmt.Errorf("failed to find member: %w", err)
	}
	if member == nil || !member.Account.IsActive {
		return nil, model.NewUnauthorizedError()
	}
	return member, nil
}

// RequestOTP は連絡先に該当するメンバーを特定し、OTPを送信してチャレンジを作成する。
// 送信に失敗した場合はチャレンジを作成せずOTP_DISPATCH_FAILEDを返す。
func (s *Service) RequestOTP(ctx context.Context, req OTPRequest) (*OTPChallengeResult, error) {
	channel := model.OTPChannel(strings.ToLower(strings.TrimSpace(req.Channel)))
	phone := NormalizePhone(req.Phone)
	email := strings.TrimSpace(req.Email)

	var members []model.MemberWithAccount
	var err error
	switch channel {
	case model.OTPChannelWhatsApp:
		if phone == "" {
			return nil, model.NewValidationError("携帯電話番号を入力してください。")
		}
		members, err = s.accounts.FindMembersByPhone(ctx, phone)
	case model.OTPChannelEmail:
		if email == "" {
			return nil, model.NewValidationError("メールアドレスを入力してください。")
		}
		members, err = s.accounts.FindMembersByEmail(ctx, email)
	default:
		return nil, model.NewValidationError("OTPの送信チャネルが不正です。")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find members: %w", err)
	}

	members = filterActive(members)
	if req.TeamNo != nil {
		members = filterTeam(members, *req.TeamNo)
	}
	if len(members) == 0 {
		return nil, model.NewMemberNotFoundError(channel)
	}
	if len(members) > 1 {
		return nil, model.NewMultipleAccountsError(teamChoices(members))
	}

	member := members[0]
	identifier := phone
	if channel == model.OTPChannelEmail {
		identifier = member.Email
		if identifier == "" {
			identifier = email
		}
	}

	code, err := NewOTPCode()
	if err != nil {
		return nil, err
	}

	if err := s.dispatcher.Dispatch(ctx, channel, identifier, member.Name, code); err != nil {
		s.metrics.RecordOTPDispatch(string(channel), false)
		slog.Error("otp dispatch failed",
			slog.String("member_id", member.ID),
			slog.String("channel", string(channel)),
			slog.String("error", err.Error()),
		)
		return nil, model.NewOTPDispatchFailedError()
	}
	s.metrics.RecordOTPDispatch(string(channel), true)

	now := s.now()
	challenge := &model.OTPChallenge{
		ID:         uuid.New().String(),
		Identifier: identifier,
		Channel:    channel,
		MemberID:   member.ID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.config.OTPTTL),
	}
	challenge.CodeHash = s.hasher.HashOTP(challenge.ID, code)

	if err := s.otps.ReplaceActive(ctx, challenge); err != nil {
		return nil, fmt.Errorf("failed to save otp challenge: %w", err)
	}

	slog.Info("otp challenge issued",
		slog.String("challenge_id", challenge.ID),
		slog.String("member_id", member.ID),
		slog.String("channel", string(channel)),
	)
	return &OTPChallengeResult{ChallengeID: challenge.ID, ExpiresAt: challenge.ExpiresAt}, nil
}

// VerifyOTP はOTPコードを検証し、チャレンジを消費してセッションを発行する。
// 同じチャレンジへの同時検証では、条件付き更新に成功した1件だけがセッションを得る。
func (s *Service) VerifyOTP(ctx context.Context, challengeID, code string) (*LoginResult, error) {
	challengeID = strings.TrimSpace(challengeID)
	code = strings.TrimSpace(code)
	if challengeID == "" || code == "" {
		return nil, model.NewValidationError("OTPを入力してください。")
	}
	if _, err := uuid.Parse(challengeID); err != nil {
		return nil, model.NewValidationError("OTPリクエストが不正です。")
	}

	challenge, err := s.otps.FindByID(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to find otp challenge: %w", err)
	}
	now := s.now()
	if challenge == nil || !challenge.IsValid(now, s.config.OTPMaxAttempts) {
		return nil, model.NewInvalidOTPError()
	}

	if !s.hasher.EqualOTP(challenge.ID, code, challenge.CodeHash) {
		if _, err := s.otps.IncrementAttempts(ctx, challenge.ID); err != nil {
			return nil, fmt.Errorf("failed to record otp attempt: %w", err)
		}
		return nil, model.NewInvalidOTPError()
	}

	member, err := s.accounts.FindMemberByID(ctx, challenge.MemberID)
	if err != nil {
		return nil, fmt.Errorf("failed to find member: %w", err)
	}
	if member == nil || !member.Account.IsActive {
		return nil, model.NewInvalidOTPError()
	}

	token, session, err := s.newSession(member.Account.ID, member.ID, now)
	if err != nil {
		return nil, err
	}
	err = s.otps.ClaimAndCreateSession(ctx, challenge.ID, now, session)
	if errors.Is(err, repository.ErrChallengeNotClaimable) {
		return nil, model.NewInvalidOTPError()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim otp challenge: %w", err)
	}

	slog.Info("otp verified",
		slog.String("challenge_id", challenge.ID),
		slog.String("member_id", member.ID),
	)
	return &LoginResult{Token: token, ExpiresAt: session.ExpiresAt, Account: member.Account, MemberID: member.ID}, nil
}

// issueSession はセッションを作成し永続化する。
func (s *Service) issueSession(ctx context.Context, account model.Account, memberID string) (*LoginResult, error) {
	token, session, err := s.newSession(account.ID, memberID, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return &LoginResult{Token: token, ExpiresAt: session.ExpiresAt, Account: account, MemberID: memberID}, nil
}

func (s *Service) newSession(accountID, memberID string, now time.Time) (string, *model.Session, error) {
	token, err := NewSessionToken()
	if err != nil {
		return "", nil, err
	}
	session := &model.Session{
		ID:        uuid.New().String(),
		AccountID: accountID,
		MemberID:  memberID,
		TokenHash: s.hasher.Hash(token),
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
	}
	return token, session, nil
}

// NormalizePhone は電話番号からASCII数字以外を除去する。
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func filterActive(members []model.MemberWithAccount) []model.MemberWithAccount {
	out := members[:0:0]
	for _, m := range members {
		if m.Account.IsActive {
			out = append(out, m)
		}
	}
	return out
}

func filterTeam(members []model.MemberWithAccount, teamNo int) []model.MemberWithAccount {
	out := members[:0:0]
	for _, m := range members {
		if m.Account.TeamNo != nil && *m.Account.TeamNo == teamNo {
			out = append(out, m)
		}
	}
	return out
}

// teamChoices はチーム番号の昇順（未設定は末尾）で選択肢を返す。
func teamChoices(members []model.MemberWithAccount) []model.TeamChoice {
	teams := make([]model.TeamChoice, 0, len(members))
	for _, m := range members {
		teams = append(teams, model.TeamChoice{TeamNo: m.Account.TeamNo, Username: m.Account.Username})
	}
	sort.SliceStable(teams, func(i, j int) bool {
		a, b := teams[i].TeamNo, teams[j].TeamNo
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
	return teams
}
