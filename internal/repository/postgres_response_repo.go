package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/wordcloud/internal/model"
)

// genuineResponseConstraint は正規回答の部分一意インデックス名。
const genuineResponseConstraint = "responses_round_participant_genuine_key"

// PostgresResponseRepo はPostgreSQLを使用した回答リポジトリ。
type PostgresResponseRepo struct {
	db *sql.DB
}

// NewPostgresResponseRepo はPostgresResponseRepoを生成する。
func NewPostgresResponseRepo(db *sql.DB) *PostgresResponseRepo {
	return &PostgresResponseRepo{db: db}
}

// Submit は回答登録と関連する集計更新を単一トランザクションで実行する。
// 途中で失敗した場合はすべてロールバックされ、部分的な加算は残らない。
func (r *PostgresResponseRepo) Submit(ctx context.Context, p SubmitParams) (*SubmitResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	resp := p.Response
	if err := lockRoundForWrite(ctx, tx, resp.RoundID); err != nil {
		return nil, err
	}

	if err := insertResponse(ctx, tx, &resp); err != nil {
		if isUniqueViolation(err, genuineResponseConstraint) {
			return nil, ErrDuplicateResponse
		}
		return nil, err
	}

	count, err := incrementWordFrequency(ctx, tx, p.RoundScope, resp.Word)
	if err != nil {
		return nil, err
	}
	if p.GlobalScope != "" {
		if _, err := incrementWordFrequency(ctx, tx, p.GlobalScope, resp.Word); err != nil {
			return nil, err
		}
	}

	// 補完回答はラウンドの単語頻度にのみ反映し、スコアには含めない
	for i := range p.Augmented {
		aug := p.Augmented[i]
		if err := insertResponse(ctx, tx, &aug); err != nil {
			return nil, err
		}
		if _, err := incrementWordFrequency(ctx, tx, p.RoundScope, aug.Word); err != nil {
			return nil, err
		}
	}

	score, err := upsertResponseScore(ctx, tx, resp.RoundID, resp.ParticipantID, p.DisplayName)
	if err != nil {
		return nil, err
	}

	if resp.MemberID != "" {
		_, err = tx.ExecContext(ctx,
			`UPDATE accounts SET points = points + 1, updated_at = now()
			 FROM members
			 WHERE members.id = $1 AND accounts.id = members.account_id`,
			resp.MemberID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to add account points: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &SubmitResult{Response: resp, WordCount: count, Score: *score}, nil
}

// CountByRound はラウンドの正規回答数と補完回答数を返す。
func (r *PostgresResponseRepo) CountByRound(ctx context.Context, roundID string) (int, int, error) {
	var genuine, augmented int
	err := r.db.QueryRowContext(ctx,
		`SELECT
		   COUNT(*) FILTER (WHERE NOT is_augmented),
		   COUNT(*) FILTER (WHERE is_augmented)
		 FROM responses
		 WHERE round_id = $1`,
		roundID,
	).Scan(&genuine, &augmented)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count responses: %w", err)
	}
	return genuine, augmented, nil
}

func insertResponse(ctx context.Context, q querier, resp *model.Response) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO responses (id, round_id, participant_id, member_id, word, is_augmented, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		resp.ID, resp.RoundID, resp.ParticipantID, nullString(resp.MemberID),
		resp.Word, resp.IsAugmented, resp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ResponseRepository = (*PostgresResponseRepo)(nil)
