package otp

import (
	"context"
	"log/slog"

	"github.com/hitoshi/wordcloud/internal/model"
)

// LogDispatcher はゲートウェイ未設定の開発環境向けに、コードをログへ出力するだけの送信器。
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher はLogDispatcherを生成する。
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Dispatch はOTPコードをWARNレベルでログに出力する。
func (d *LogDispatcher) Dispatch(_ context.Context, channel model.OTPChannel, identifier, _ string, code string) error {
	d.logger.Warn("OTPゲートウェイ未設定のためコードをログに出力します",
		slog.String("channel", string(channel)),
		slog.String("to", identifier),
		slog.String("code", code),
	)
	return nil
}
