package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/wordcloud/internal/model"
)

// pgUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const pgUniqueViolation = "23505"

// querier は*sql.DBと*sql.Txの共通部分。
// 単体のリポジトリ操作とトランザクション内の操作で同じSQLを共有するために使う。
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// isUniqueViolation はerrが指定制約の一意制約違反かを判定する。
// constraintが空の場合は制約名を問わない。
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// nullString は空文字列をNULLとして扱う。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// lockRoundForWrite はラウンド行を共有ロックし、回答・シェアを受け付けられるかを確認する。
// 終了処理（UPDATE）とはロックが競合するため、終了と同時に受け付けられることはない。
func lockRoundForWrite(ctx context.Context, q querier, roundID string) error {
	var status string
	err := q.QueryRowContext(ctx,
		`SELECT status FROM rounds WHERE id = $1 FOR SHARE`,
		roundID,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrRoundNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock round: %w", err)
	}
	if model.RoundStatus(status) != model.RoundStatusActive {
		return ErrRoundNotActive
	}
	return nil
}

// incrementWordFrequency は単語頻度をUPSERTで1加算し、加算後の回数を返す。
func incrementWordFrequency(ctx context.Context, q querier, scope, word string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`INSERT INTO word_frequencies (scope, word, count, created_at, updated_at)
		 VALUES ($1, $2, 1, now(), now())
		 ON CONFLICT (scope, word) DO UPDATE SET
		   count = word_frequencies.count + 1,
		   updated_at = now()
		 RETURNING count`,
		scope, word,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment word frequency: %w", err)
	}
	return count, nil
}

const scoreColumns = `round_id, participant_id, display_name, response_score, share_count, total_score, created_at, updated_at`

// scanScore はround_scoresの1行を読み取る。
func scanScore(row interface{ Scan(...any) error }, s *model.ScoreRecord) error {
	return row.Scan(
		&s.RoundID, &s.ParticipantID, &s.DisplayName,
		&s.ResponseScore, &s.ShareCount, &s.TotalScore,
		&s.CreatedAt, &s.UpdatedAt,
	)
}

// upsertResponseScore はresponse_scoreを1に設定し、total_scoreを再計算する。
// display_nameは空でない値が渡された場合のみ更新する。
func upsertResponseScore(ctx context.Context, q querier, roundID, participantID, displayName string) (*model.ScoreRecord, error) {
	s := &model.ScoreRecord{}
	err := scanScore(q.QueryRowContext(ctx,
		`INSERT INTO round_scores (round_id, participant_id, display_name, response_score, share_count, total_score, updated_at)
		 VALUES ($1, $2, $3, 1, 0, 1, now())
		 ON CONFLICT (round_id, participant_id) DO UPDATE SET
		   response_score = 1,
		   total_score = 1 + round_scores.share_count,
		   display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), round_scores.display_name),
		   updated_at = now()
		 RETURNING `+scoreColumns,
		roundID, participantID, displayName,
	), s)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert response score: %w", err)
	}
	return s, nil
}

// upsertShareScore はshare_countを1加算し、total_scoreを再計算する。
func upsertShareScore(ctx context.Context, q querier, roundID, participantID, displayName string) (*model.ScoreRecord, error) {
	s := &model.ScoreRecord{}
	err := scanScore(q.QueryRowContext(ctx,
		`INSERT INTO round_scores (round_id, participant_id, display_name, response_score, share_count, total_score, updated_at)
		 VALUES ($1, $2, $3, 0, 1, 1, now())
		 ON CONFLICT (round_id, participant_id) DO UPDATE SET
		   share_count = round_scores.share_count + 1,
		   total_score = round_scores.response_score + round_scores.share_count + 1,
		   display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), round_scores.display_name),
		   updated_at = now()
		 RETURNING `+scoreColumns,
		roundID, participantID, displayName,
	), s)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert share score: %w", err)
	}
	return s, nil
}
