// Package otp はOTPコードを外部ゲートウェイへ送信するクライアントを提供する。
package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/wordcloud/internal/model"
)

// ErrDispatch はゲートウェイへの送信が最終的に失敗したことを示す。
var ErrDispatch = errors.New("otp dispatch failed")

// Config はゲートウェイクライアントの設定。
type Config struct {
	Endpoint       string
	APIKey         string
	MaxAttempts    int           // 初回を含む最大試行回数
	AttemptTimeout time.Duration // 1回あたりのタイムアウト
	RetryDelay     time.Duration // 再試行までの待機時間
}

// Client はOTPゲートウェイのHTTPクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     Config
}

// NewClient はClientを生成する。未設定の値は既定値で補う。
func NewClient(httpClient *http.Client, logger *slog.Logger, config Config) *Client {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 2
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = 5 * time.Second
	}
	if config.RetryDelay < 0 {
		config.RetryDelay = 0
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		config:     config,
	}
}

type dispatchRequest struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Name    string `json:"name,omitempty"`
	Code    string `json:"code"`
}

// Dispatch はOTPコードをゲートウェイへ送信する。
// 429/5xx/通信エラーはMaxAttemptsまで再試行し、それ以外の4xxは即座に失敗とする。
func (c *Client) Dispatch(ctx context.Context, channel model.OTPChannel, identifier, displayName, code string) error {
	body, err := json.Marshal(dispatchRequest{
		Channel: string(channel),
		To:      identifier,
		Name:    displayName,
		Code:    code,
	})
	if err != nil {
		return fmt.Errorf("リクエストJSONの生成に失敗しました: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if attempt > 1 && c.config.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrDispatch, ctx.Err())
			case <-time.After(c.config.RetryDelay):
			}
		}

		result, err := c.send(ctx, body)
		if result == resultOK {
			return nil
		}
		lastErr = err
		c.logger.Warn("OTPゲートウェイへの送信に失敗しました",
			slog.Int("attempt", attempt),
			slog.String("channel", string(channel)),
			slog.String("error", err.Error()),
		)
		if result == resultPermanent || ctx.Err() != nil {
			break
		}
	}

	return fmt.Errorf("%w: %v", ErrDispatch, lastErr)
}

// send は1回分の送信を行い、結果の分類を返す。
func (c *Client) send(ctx context.Context, body []byte) (sendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return resultPermanent, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "WordCloud/1.0 OTP")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return resultRetry, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	result := classifyStatus(resp.StatusCode)
	if result == resultOK {
		return resultOK, nil
	}
	return result, fmt.Errorf("OTPゲートウェイがステータス %d を返しました", resp.StatusCode)
}
