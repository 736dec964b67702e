package authadmin

import (
	"net/http"
	"time"
)

// StatusClass はHTTPステータスコードに基づく応答の分類。
type StatusClass int

const (
	// StatusClassDone は呼び出し側で解釈する応答（2xx/4xx）。
	StatusClassDone StatusClass = iota
	// StatusClassRetry は待機して再送する応答（429/5xx）。
	StatusClassRetry
)

const (
	// defaultMaxAttempts は1リクエストあたりの最大送信回数。
	defaultMaxAttempts = 3
	// defaultInitialBackoff は指数バックオフの初回遅延。
	defaultInitialBackoff = 500 * time.Millisecond
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 8 * time.Second
)

// ClassifyStatus はHTTPステータスコードを再送要否で分類する。
func ClassifyStatus(statusCode int) StatusClass {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return StatusClassRetry
	case statusCode >= 500:
		return StatusClassRetry
	default:
		return StatusClassDone
	}
}

// Retryable は応答を再送してよいかを返す。
// 429はリクエストが処理されていないため常に再送する。5xxは冪等なリクエストだけを再送する。
func Retryable(statusCode int, idempotent bool) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return idempotent && ClassifyStatus(statusCode) == StatusClassRetry
}

// CalculateBackoff は再送回数に基づいて指数バックオフ遅延を計算する。
// 初回initial、2倍ずつ増加、最大maxBackoff。
func CalculateBackoff(initial time.Duration, retries int) time.Duration {
	delay := initial
	for i := 0; i < retries; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
