package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/wordcloud/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウント・メンバーリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

const memberWithAccountSelect = `SELECT
	  COALESCE(m.id::text, ''), a.id, COALESCE(m.member_code, ''), COALESCE(m.name, ''),
	  COALESCE(m.email, ''), COALESCE(m.phone, ''),
	  a.username, a.team_no, COALESCE(a.email, ''), COALESCE(a.phone, ''),
	  a.password_salt_b64, a.password_hash_b64, a.password_iterations,
	  a.is_active, a.points, a.created_at, a.updated_at`

// FindMembersByEmail はメールアドレスで有効なメンバーを検索する。
func (r *PostgresAccountRepo) FindMembersByEmail(ctx context.Context, email string) ([]model.MemberWithAccount, error) {
	return r.queryMembers(ctx,
		memberWithAccountSelect+`
		 FROM members m
		 JOIN accounts a ON a.id = m.account_id
		 WHERE lower(m.email) = lower($1) AND a.is_active
		 ORDER BY a.team_no NULLS LAST, a.username`,
		email,
	)
}

// FindMembersByPhone は正規化済み電話番号で有効なメンバーを検索する。
func (r *PostgresAccountRepo) FindMembersByPhone(ctx context.Context, phone string) ([]model.MemberWithAccount, error) {
	return r.queryMembers(ctx,
		memberWithAccountSelect+`
		 FROM members m
		 JOIN accounts a ON a.id = m.account_id
		 WHERE m.phone = $1 AND a.is_active
		 ORDER BY a.team_no NULLS LAST, a.username`,
		phone,
	)
}

// FindMembersByUsername はアカウントのユーザー名で有効なメンバーを検索する。
func (r *PostgresAccountRepo) FindMembersByUsername(ctx context.Context, username string) ([]model.MemberWithAccount, error) {
	return r.queryMembers(ctx,
		memberWithAccountSelect+`
		 FROM accounts a
		 LEFT JOIN members m ON m.account_id = a.id
		 WHERE a.username = $1 AND a.is_active
		 ORDER BY m.created_at NULLS LAST`,
		username,
	)
}

// FindMemberByID は指定IDのメンバーを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindMemberByID(ctx context.Context, id string) (*model.MemberWithAccount, error) {
	members, err := r.queryMembers(ctx,
		memberWithAccountSelect+`
		 FROM members m
		 JOIN accounts a ON a.id = m.account_id
		 WHERE m.id = $1`,
		id,
	)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	return &members[0], nil
}

// FindAccountByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindAccountByID(ctx context.Context, id string) (*model.Account, error) {
	a := &model.Account{}
	var teamNo sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, team_no, COALESCE(email, ''), COALESCE(phone, ''),
		        password_salt_b64, password_hash_b64, password_iterations,
		        is_active, points, created_at, updated_at
		 FROM accounts
		 WHERE id = $1`,
		id,
	).Scan(
		&a.ID, &a.Username, &teamNo, &a.Email, &a.Phone,
		&a.PasswordSaltB64, &a.PasswordHashB64, &a.PasswordIterations,
		&a.IsActive, &a.Points, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	a.TeamNo = intPtr(teamNo)
	return a, nil
}

func (r *PostgresAccountRepo) queryMembers(ctx context.Context, query string, args ...any) ([]model.MemberWithAccount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []model.MemberWithAccount
	for rows.Next() {
		var m model.MemberWithAccount
		var teamNo sql.NullInt64
		if err := rows.Scan(
			&m.ID, &m.Account.ID, &m.MemberCode, &m.Name, &m.Email, &m.Phone,
			&m.Account.Username, &teamNo, &m.Account.Email, &m.Account.Phone,
			&m.Account.PasswordSaltB64, &m.Account.PasswordHashB64, &m.Account.PasswordIterations,
			&m.Account.IsActive, &m.Account.Points, &m.Account.CreatedAt, &m.Account.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.AccountID = m.Account.ID
		m.Account.TeamNo = intPtr(teamNo)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
