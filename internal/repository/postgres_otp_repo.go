package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/wordcloud/internal/model"
)

// PostgresOTPRepo はPostgreSQLを使用したOTPチャレンジリポジトリ。
type PostgresOTPRepo struct {
	db *sql.DB
}

// NewPostgresOTPRepo はPostgresOTPRepoを生成する。
func NewPostgresOTPRepo(db *sql.DB) *PostgresOTPRepo {
	return &PostgresOTPRepo{db: db}
}

// ReplaceActive は有効なチャレンジを消費済みにして新しいチャレンジを作成する。
func (r *PostgresOTPRepo) ReplaceActive(ctx context.Context, c *model.OTPChallenge) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 同一メンバー・同一宛先の未消費チャレンジを無効化
	_, err = tx.ExecContext(ctx,
		`UPDATE otp_challenges SET consumed_at = $3
		 WHERE member_id = $1 AND identifier = $2 AND consumed_at IS NULL`,
		c.MemberID, c.Identifier, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to consume previous challenges: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO otp_challenges (id, identifier, channel, member_id, code_hash, attempts, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, $7)`,
		c.ID, c.Identifier, string(c.Channel), c.MemberID, c.CodeHash, c.CreatedAt, c.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert otp challenge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindByID は指定IDのチャレンジを取得する。見つからない場合はnilを返す。
func (r *PostgresOTPRepo) FindByID(ctx context.Context, id string) (*model.OTPChallenge, error) {
	c := &model.OTPChallenge{}
	var channel string
	var consumedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, identifier, channel, member_id, code_hash, attempts, created_at, expires_at, consumed_at
		 FROM otp_challenges
		 WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Identifier, &channel, &c.MemberID, &c.CodeHash, &c.Attempts, &c.CreatedAt, &c.ExpiresAt, &consumedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find otp challenge: %w", err)
	}
	c.Channel = model.OTPChannel(channel)
	if consumedAt.Valid {
		c.ConsumedAt = &consumedAt.Time
	}
	return c, nil
}

// IncrementAttempts は試行回数を1増やし、更新後の値を返す。
func (r *PostgresOTPRepo) IncrementAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx,
		`UPDATE otp_challenges SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`,
		id,
	).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("failed to increment otp attempts: %w", err)
	}
	return attempts, nil
}

// ClaimAndCreateSession はチャレンジを消費してセッションを作成する。
// 条件付きUPDATEの影響行数が0の場合は同時検証に負けたものとして扱う。
func (r *PostgresOTPRepo) ClaimAndCreateSession(ctx context.Context, challengeID string, at time.Time, session *model.Session) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE otp_challenges SET consumed_at = $2
		 WHERE id = $1 AND consumed_at IS NULL AND expires_at > $2`,
		challengeID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to claim otp challenge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrChallengeNotClaimable
	}

	if err := insertSession(ctx, tx, session); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var _ OTPRepository = (*PostgresOTPRepo)(nil)
