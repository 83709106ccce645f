package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/wordcloud/internal/model"
)

// PostgresQuestionRepo はPostgreSQLを使用したお題リポジトリ。
type PostgresQuestionRepo struct {
	db *sql.DB
}

// NewPostgresQuestionRepo はPostgresQuestionRepoを生成する。
func NewPostgresQuestionRepo(db *sql.DB) *PostgresQuestionRepo {
	return &PostgresQuestionRepo{db: db}
}

// FindByID は指定IDのお題を取得する。見つからない場合はnilを返す。
func (r *PostgresQuestionRepo) FindByID(ctx context.Context, id string) (*model.Question, error) {
	q := &model.Question{}
	var source string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, text, source, created_at FROM questions WHERE id = $1`,
		id,
	).Scan(&q.ID, &q.Text, &source, &q.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find question by ID: %w", err)
	}
	q.Source = model.QuestionSource(source)
	return q, nil
}

// FindOrCreateByText は同一本文のお題があれば返し、なければ作成する。
// 同時作成された場合もON CONFLICTで既存行を返す。
func (r *PostgresQuestionRepo) FindOrCreateByText(ctx context.Context, text string, source model.QuestionSource) (*model.Question, error) {
	q := &model.Question{}
	var src string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO questions (id, text, source, created_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (text) DO UPDATE SET text = EXCLUDED.text
		 RETURNING id, text, source, created_at`,
		uuid.New().String(), text, string(source),
	).Scan(&q.ID, &q.Text, &src, &q.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to find or create question: %w", err)
	}
	q.Source = model.QuestionSource(src)
	return q, nil
}

// CreateIfAbsent はお題を作成する。同一本文が存在する場合はfalseを返す。
func (r *PostgresQuestionRepo) CreateIfAbsent(ctx context.Context, q *model.Question) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO questions (id, text, source, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (text) DO NOTHING`,
		q.ID, q.Text, string(q.Source), q.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert question: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// List は新しい順にお題を返す。
func (r *PostgresQuestionRepo) List(ctx context.Context, limit int) ([]*model.Question, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, text, source, created_at
		 FROM questions
		 ORDER BY created_at DESC, id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	var questions []*model.Question
	for rows.Next() {
		q := &model.Question{}
		var source string
		if err := rows.Scan(&q.ID, &q.Text, &source, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		q.Source = model.QuestionSource(source)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate questions: %w", err)
	}
	return questions, nil
}

// compile-time interface check
var _ QuestionRepository = (*PostgresQuestionRepo)(nil)
