// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/wordcloud/internal/model"
)

// トランザクション内で検出される業務上の競合。
// サービス層でAPIErrorに変換する。
var (
	// ErrDuplicateResponse は同一ラウンド・同一参加者の正規回答が既に存在することを示す。
	ErrDuplicateResponse = errors.New("response already exists for participant in round")
	// ErrRoundNotActive はラウンドが終了済みであることを示す。
	ErrRoundNotActive = errors.New("round is not active")
	// ErrRoundNotFound はトランザクション内でラウンドが見つからないことを示す。
	ErrRoundNotFound = errors.New("round not found")
	// ErrDuplicateShareToken はシェアトークンが衝突したことを示す。
	ErrDuplicateShareToken = errors.New("share token already exists")
	// ErrChallengeNotClaimable はOTPチャレンジが既に消費済みまたは期限切れであることを示す。
	ErrChallengeNotClaimable = errors.New("otp challenge is not claimable")
)

// AccountRepository はアカウントとメンバーの参照インターフェース。
// 登録処理は対象外のため読み取りとポイント加算のみを提供する。
type AccountRepository interface {
	// FindMembersByEmail はメールアドレス（大文字小文字を区別しない）で有効なメンバーを検索する。
	FindMembersByEmail(ctx context.Context, email string) ([]model.MemberWithAccount, error)
	// FindMembersByPhone は正規化済み電話番号で有効なメンバーを検索する。
	FindMembersByPhone(ctx context.Context, phone string) ([]model.MemberWithAccount, error)
	// FindMembersByUsername はアカウントのユーザー名で有効なメンバーを検索する。
	// メンバーが存在しないアカウントはMemberが空の要素として返す。
	FindMembersByUsername(ctx context.Context, username string) ([]model.MemberWithAccount, error)
	// FindMemberByID は指定IDのメンバーを取得する。見つからない場合はnilを返す。
	FindMemberByID(ctx context.Context, id string) (*model.MemberWithAccount, error)
	// FindAccountByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindAccountByID(ctx context.Context, id string) (*model.Account, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindValidByTokenHash はトークンハッシュで有効なセッションを取得する。
	// 失効済み・期限切れ・未登録の場合はnilを返す。
	FindValidByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error)
	// Revoke はセッションを失効させる。既に失効済みの場合は何もしない。
	Revoke(ctx context.Context, id string, at time.Time) error
}

// OTPRepository はOTPチャレンジの永続化インターフェース。
type OTPRepository interface {
	// ReplaceActive は同一メンバー・同一宛先の有効なチャレンジを消費済みにし、
	// 新しいチャレンジを作成する。両操作は同一トランザクションで実行する。
	ReplaceActive(ctx context.Context, challenge *model.OTPChallenge) error
	// FindByID は指定IDのチャレンジを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.OTPChallenge, error)
	// IncrementAttempts は試行回数を1増やし、更新後の値を返す。
	IncrementAttempts(ctx context.Context, id string) (int, error)
	// ClaimAndCreateSession はチャレンジを条件付き更新で消費し、セッションを作成する。
	// 既に消費済み・期限切れの場合はErrChallengeNotClaimableを返す。
	ClaimAndCreateSession(ctx context.Context, challengeID string, at time.Time, session *model.Session) error
}

// QuestionRepository はお題の永続化インターフェース。
type QuestionRepository interface {
	// FindByID は指定IDのお題を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Question, error)
	// FindOrCreateByText は同一本文のお題があれば返し、なければ作成する。
	FindOrCreateByText(ctx context.Context, text string, source model.QuestionSource) (*model.Question, error)
	// CreateIfAbsent はお題を作成する。同一本文が存在する場合は作成せずfalseを返す。
	CreateIfAbsent(ctx context.Context, question *model.Question) (bool, error)
	// List は新しい順にお題を返す。
	List(ctx context.Context, limit int) ([]*model.Question, error)
}

// RoundRepository はラウンドの永続化インターフェース。
type RoundRepository interface {
	// Create はラウンドを作成する。シェアトークン衝突時はErrDuplicateShareTokenを返す。
	Create(ctx context.Context, round *model.Round) error
	// FindByID は指定IDのラウンドをお題本文付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Round, error)
	// FindByShareToken はシェアトークンでラウンドを取得する。見つからない場合はnilを返す。
	FindByShareToken(ctx context.Context, token string) (*model.Round, error)
	// End はactiveなラウンドをendedに遷移させ、更新後のラウンドを返す。
	// 既にendedの場合は変更せずそのまま返す。見つからない場合はnilを返す。
	End(ctx context.Context, id string, at time.Time) (*model.Round, error)
}

// SubmitParams は回答登録に必要な値をまとめた構造体。
type SubmitParams struct {
	Response    model.Response
	Augmented   []model.Response
	DisplayName string
	// GlobalScope が空でない場合、正規回答をグローバル集計にも加算する。
	GlobalScope string
	// RoundScope はラウンド単位の単語頻度スコープ。
	RoundScope string
}

// SubmitResult は回答登録の結果。
type SubmitResult struct {
	Response  model.Response
	WordCount int
	Score     model.ScoreRecord
}

// ResponseRepository は回答の永続化インターフェース。
type ResponseRepository interface {
	// Submit は回答の登録、単語頻度の加算、スコア更新、アカウントポイント加算を
	// 単一トランザクションで実行する。
	// ラウンドが終了済みの場合はErrRoundNotActive、
	// 同一参加者の正規回答が既にある場合はErrDuplicateResponseを返す。
	Submit(ctx context.Context, params SubmitParams) (*SubmitResult, error)
	// CountByRound はラウンドの正規回答数と補完回答数を返す。
	CountByRound(ctx context.Context, roundID string) (genuine int, augmented int, err error)
}

// WordFrequencyRepository は単語頻度の永続化インターフェース。
type WordFrequencyRepository interface {
	// Increment は単語の出現回数をUPSERTで1加算し、加算後の回数を返す。
	Increment(ctx context.Context, scope, word string) (int, error)
	// Top は出現回数の降順、同数の場合は単語の昇順で上位limit件を返す。
	Top(ctx context.Context, scope string, limit int) ([]model.WordCount, error)
}

// ShareParams はシェア記録に必要な値をまとめた構造体。
type ShareParams struct {
	Event       model.ShareEvent
	DisplayName string
}

// ScoreRepository はラウンドスコアの永続化インターフェース。
type ScoreRepository interface {
	// RecordShare はシェアイベントを追記し、share_countを1加算してtotal_scoreを再計算する。
	// ラウンドが終了済みの場合はErrRoundNotActiveを返す。
	RecordShare(ctx context.Context, params ShareParams) (*model.ScoreRecord, error)
	// RecordResponse はresponse_scoreを1に設定してtotal_scoreを再計算する。
	// 何度呼び出しても1を超えない。
	RecordResponse(ctx context.Context, roundID, participantID, displayName string) (*model.ScoreRecord, error)
	// ListByRound はラウンドのスコアをtotal_score降順、作成日時昇順で返す。
	ListByRound(ctx context.Context, roundID string) ([]model.ScoreRecord, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
