package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/wordcloud/internal/model"
)

// shareTokenConstraint はrounds.share_tokenの一意制約名。
const shareTokenConstraint = "rounds_share_token_key"

// PostgresRoundRepo はPostgreSQLを使用したラウンドリポジトリ。
type PostgresRoundRepo struct {
	db *sql.DB
}

// NewPostgresRoundRepo はPostgresRoundRepoを生成する。
func NewPostgresRoundRepo(db *sql.DB) *PostgresRoundRepo {
	return &PostgresRoundRepo{db: db}
}

const roundSelect = `SELECT r.id, r.question_id, q.text, COALESCE(r.created_by::text, ''),
	  r.share_token, r.status, r.augment, r.created_at, r.ended_at
	 FROM rounds r
	 JOIN questions q ON q.id = r.question_id`

// Create はラウンドを作成する。
func (r *PostgresRoundRepo) Create(ctx context.Context, round *model.Round) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rounds (id, question_id, created_by, share_token, status, augment, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		round.ID, round.QuestionID, nullString(round.CreatedBy), round.ShareToken,
		string(round.Status), round.Augment, round.CreatedAt,
	)
	if isUniqueViolation(err, shareTokenConstraint) {
		return ErrDuplicateShareToken
	}
	if err != nil {
		return fmt.Errorf("failed to create round: %w", err)
	}
	return nil
}

// FindByID は指定IDのラウンドを取得する。見つからない場合はnilを返す。
func (r *PostgresRoundRepo) FindByID(ctx context.Context, id string) (*model.Round, error) {
	return r.findOne(ctx, roundSelect+` WHERE r.id = $1`, id)
}

// FindByShareToken はシェアトークンでラウンドを取得する。見つからない場合はnilを返す。
func (r *PostgresRoundRepo) FindByShareToken(ctx context.Context, token string) (*model.Round, error) {
	return r.findOne(ctx, roundSelect+` WHERE r.share_token = $1`, token)
}

// End はactiveなラウンドを終了させ、更新後のラウンドを返す。
// 回答・シェアのトランザクションが保持する共有ロックの解放を待ってから更新される。
func (r *PostgresRoundRepo) End(ctx context.Context, id string, at time.Time) (*model.Round, error) {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rounds SET status = 'ended', ended_at = $2
		 WHERE id = $1 AND status = 'active'`,
		id, at,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to end round: %w", err)
	}
	return r.FindByID(ctx, id)
}

func (r *PostgresRoundRepo) findOne(ctx context.Context, query string, arg string) (*model.Round, error) {
	round := &model.Round{}
	var status string
	var endedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&round.ID, &round.QuestionID, &round.QuestionText, &round.CreatedBy,
		&round.ShareToken, &status, &round.Augment, &round.CreatedAt, &endedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find round: %w", err)
	}
	round.Status = model.RoundStatus(status)
	if endedAt.Valid {
		round.EndedAt = &endedAt.Time
	}
	return round, nil
}

// compile-time interface check
var _ RoundRepository = (*PostgresRoundRepo)(nil)
