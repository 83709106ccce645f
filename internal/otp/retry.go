package otp

import "net/http"

// sendResult はゲートウェイ応答の分類。
type sendResult int

const (
	resultOK sendResult = iota
	// resultRetry は再試行で成功し得る失敗（429/5xx/通信エラー）。
	resultRetry
	// resultPermanent は再試行しても成功しない失敗（その他の4xxなど）。
	resultPermanent
)

// classifyStatus はHTTPステータスコードを送信結果に分類する。
func classifyStatus(statusCode int) sendResult {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return resultOK
	case statusCode == http.StatusTooManyRequests:
		return resultRetry
	case statusCode >= 500:
		return resultRetry
	default:
		return resultPermanent
	}
}
