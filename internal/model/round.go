package model

import "time"

// Question はラウンドで出題するお題を表す。
type Question struct {
	ID        string
	Text      string
	Source    QuestionSource
	CreatedAt time.Time
}

// QuestionSource はお題の登録元。
type QuestionSource string

const (
	// QuestionSourceManual はラウンド作成時などに手入力されたお題。
	QuestionSourceManual QuestionSource = "manual"
	// QuestionSourceFeed はRSS/Atomフィードから取り込んだお題。
	QuestionSourceFeed QuestionSource = "feed"
)

// RoundStatus はラウンドの状態を表す。
// active -> ended の一方向のみ遷移する。
type RoundStatus string

const (
	// RoundStatusActive は回答・シェアを受け付けている状態。
	RoundStatusActive RoundStatus = "active"
	// RoundStatusEnded は終了済みの状態（終端）。
	RoundStatusEnded RoundStatus = "ended"
)

// Round はお題に紐づくワードクラウドの1回分を表す。
type Round struct {
	ID           string
	QuestionID   string
	QuestionText string
	CreatedBy    string // 作成者のメンバーID。匿名作成の場合は空
	ShareToken   string
	Status       RoundStatus
	Augment      bool
	CreatedAt    time.Time
	EndedAt      *time.Time
}

// IsActive はラウンドが回答受付中かを返す。
func (r *Round) IsActive() bool {
	return r.Status == RoundStatusActive
}

// Response はラウンドへの1語の回答を表す。
// IsAugmentedがtrueの回答は表示用のフィラーで、スコアには含めない。
type Response struct {
	ID            string
	RoundID       string
	ParticipantID string
	MemberID      string
	Word          string
	IsAugmented   bool
	CreatedAt     time.Time
}

// WordCount は単語と出現回数の組。
type WordCount struct {
	Word      string
	Count     int
	CreatedAt time.Time
}

// ScoreRecord はラウンド内の参加者ごとのスコア集計。
// TotalScore は常に ResponseScore + ShareCount に等しい。
type ScoreRecord struct {
	RoundID       string
	ParticipantID string
	DisplayName   string
	ResponseScore int
	ShareCount    int
	TotalScore    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ShareEvent はラウンドのシェア記録（追記のみ）。
type ShareEvent struct {
	ID            string
	RoundID       string
	ParticipantID string
	Platform      string
	CreatedAt     time.Time
}
