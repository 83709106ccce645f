package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/wordcloud/internal/model"
)

// PostgresWordFrequencyRepo はPostgreSQLを使用した単語頻度リポジトリ。
type PostgresWordFrequencyRepo struct {
	db *sql.DB
}

// NewPostgresWordFrequencyRepo はPostgresWordFrequencyRepoを生成する。
func NewPostgresWordFrequencyRepo(db *sql.DB) *PostgresWordFrequencyRepo {
	return &PostgresWordFrequencyRepo{db: db}
}

// Increment は単語の出現回数を1加算し、加算後の回数を返す。
func (r *PostgresWordFrequencyRepo) Increment(ctx context.Context, scope, word string) (int, error) {
	return incrementWordFrequency(ctx, r.db, scope, word)
}

// Top は出現回数の降順、同数の場合は単語の昇順で上位limit件を返す。
func (r *PostgresWordFrequencyRepo) Top(ctx context.Context, scope string, limit int) ([]model.WordCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT word, count, created_at
		 FROM word_frequencies
		 WHERE scope = $1 AND count > 0
		 ORDER BY count DESC, word ASC
		 LIMIT $2`,
		scope, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query top words: %w", err)
	}
	defer rows.Close()

	words := make([]model.WordCount, 0, limit)
	for rows.Next() {
		var wc model.WordCount
		if err := rows.Scan(&wc.Word, &wc.Count, &wc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan word count: %w", err)
		}
		words = append(words, wc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate word counts: %w", err)
	}
	return words, nil
}

// compile-time interface check
var _ WordFrequencyRepository = (*PostgresWordFrequencyRepo)(nil)
