// Package cleanup は期限切れの認証データを削除するジョブを提供する。
// 有効期限または失効から保持期間（デフォルト7日）を超えたセッションと
// OTPチャレンジを日次バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// target は削除対象のテーブルとクエリ。
type target struct {
	name  string
	query string
}

var targets = []target{
	{
		name: "sessions",
		query: `DELETE FROM sessions
			WHERE expires_at < now() - $1::interval
			   OR revoked_at < now() - $1::interval`,
	},
	{
		name: "otp_challenges",
		query: `DELETE FROM otp_challenges
			WHERE expires_at < now() - $1::interval`,
	},
}

// CleanupJob は期限切れのセッションとOTPチャレンジの削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	db            Executor
	logger        *slog.Logger
	RetentionDays int // 期限切れ後の保持日数（デフォルト: 7）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:            db,
		logger:        logger,
		RetentionDays: 7,
	}
}

// Run は保持期間を超過したセッションとOTPチャレンジを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
// 途中のテーブルで失敗した場合は以降のテーブルを処理せずエラーを返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	interval := fmt.Sprintf("%d days", j.RetentionDays)

	attrs := []any{slog.Int("retention_days", j.RetentionDays)}
	for _, t := range targets {
		result, err := j.db.ExecContext(ctx, t.query, interval)
		if err != nil {
			j.logger.Error("認証データのクリーンアップに失敗しました",
				slog.String("table", t.name),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("%sのクリーンアップに失敗: %w", t.name, err)
		}
		deleted, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("削除件数の取得に失敗: %w", err)
		}
		attrs = append(attrs, slog.Int64(t.name+"_deleted", deleted))
	}

	attrs = append(attrs, slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())))
	j.logger.Info("認証データのクリーンアップが完了しました", attrs...)
	return nil
}

// Start はintervalごとにRunを実行する。ctxがキャンセルされると戻る。
// 起動直後に1回実行する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Warn("初回クリーンアップに失敗しました", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil && ctx.Err() == nil {
				j.logger.Warn("定期クリーンアップに失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}
