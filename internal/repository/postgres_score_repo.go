package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/wordcloud/internal/model"
)

// PostgresScoreRepo はPostgreSQLを使用したスコアリポジトリ。
type PostgresScoreRepo struct {
	db *sql.DB
}

// NewPostgresScoreRepo はPostgresScoreRepoを生成する。
func NewPostgresScoreRepo(db *sql.DB) *PostgresScoreRepo {
	return &PostgresScoreRepo{db: db}
}

// RecordShare はシェアイベントの追記とshare_countの加算を同一トランザクションで実行する。
func (r *PostgresScoreRepo) RecordShare(ctx context.Context, p ShareParams) (*model.ScoreRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ev := p.Event
	if err := lockRoundForWrite(ctx, tx, ev.RoundID); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO share_events (id, round_id, participant_id, platform, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.RoundID, ev.ParticipantID, ev.Platform, ev.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert share event: %w", err)
	}

	score, err := upsertShareScore(ctx, tx, ev.RoundID, ev.ParticipantID, p.DisplayName)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return score, nil
}

// RecordResponse はresponse_scoreを1に設定する。
func (r *PostgresScoreRepo) RecordResponse(ctx context.Context, roundID, participantID, displayName string) (*model.ScoreRecord, error) {
	return upsertResponseScore(ctx, r.db, roundID, participantID, displayName)
}

// ListByRound はラウンドのスコアを順位順に返す。
func (r *PostgresScoreRepo) ListByRound(ctx context.Context, roundID string) ([]model.ScoreRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+scoreColumns+`
		 FROM round_scores
		 WHERE round_id = $1
		 ORDER BY total_score DESC, created_at ASC, participant_id ASC`,
		roundID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list scores: %w", err)
	}
	defer rows.Close()

	var scores []model.ScoreRecord
	for rows.Next() {
		var s model.ScoreRecord
		if err := scanScore(rows, &s); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scores: %w", err)
	}
	return scores, nil
}

// compile-time interface check
var _ ScoreRepository = (*PostgresScoreRepo)(nil)
