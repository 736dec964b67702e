// Package authadmin はSupabase認証サブシステム（GoTrue）の管理APIクライアントを提供する。
// サービスロールキーで認証し、移行ユーザーの認証IDの作成と削除を行う。
package authadmin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/castmigrate/internal/model"
)

// maxErrorBody はエラーレスポンスから読み取る最大バイト数。
const maxErrorBody = 4096

// CreateUserRequest は認証ID作成リクエスト。
type CreateUserRequest struct {
	Email        string                 `json:"email"`
	Password     string                 `json:"password"`
	EmailConfirm bool                   `json:"email_confirm"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
}

// User は管理APIが返すユーザー。
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Client はSupabase認証管理APIのクライアント。
// 全リクエストをレートリミッタで間引き、429は常に、5xxと通信エラーは冪等なリクエストだけ指数バックオフで再送する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	serviceKey string
	limiter    *rate.Limiter

	maxAttempts    int
	initialBackoff time.Duration
}

// NewClient はClientの新しいインスタンスを生成する。
// ratePerSecondが0以下の場合は間引かない。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, serviceKey string, ratePerSecond float64) *Client {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		limiter:    rate.NewLimiter(limit, 1),

		maxAttempts:    defaultMaxAttempts,
		initialBackoff: defaultInitialBackoff,
	}
}

// CreateUser は認証IDを作成し、採番されたユーザーを返す。
// メールアドレスが既に登録済みの場合はmodel.ErrIdentityExistsをラップして返す。
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	// 作成は冪等でないため、サーバーが処理していないことが確実な429だけを再送する
	resp, err := c.do(ctx, http.MethodPost, "/auth/v1/admin/users", body, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusConflict {
		msg := readErrorBody(resp.Body)
		if isAlreadyRegistered(msg) {
			return nil, fmt.Errorf("%w: %s", model.ErrIdentityExists, req.Email)
		}
		return nil, fmt.Errorf("認証APIがステータス %d を返しました: %s", resp.StatusCode, msg)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("認証APIがステータス %d を返しました: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("認証APIのレスポンスにユーザーIDがありません")
	}

	return &user, nil
}

// DeleteUser は認証IDを削除する。存在しない場合もエラーにしない。
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/auth/v1/admin/users/"+url.PathEscape(id), nil, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("認証APIがステータス %d を返しました: %s", resp.StatusCode, readErrorBody(resp.Body))
	}
	return nil
}

// Health は認証APIのヘルスエンドポイントを呼び出し、到達性を確認する。
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/auth/v1/health", nil, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("認証APIのヘルスチェックがステータス %d を返しました", resp.StatusCode)
	}
	return nil
}

// do はリクエストを送信する。再送対象の応答は最大maxAttempts回まで送り直し、
// 最後の応答またはエラーを返す。
// idempotentがfalseの場合、通信エラーと5xxはサーバー側で処理済みの可能性があるため再送しない。
func (c *Client) do(ctx context.Context, method, path string, body []byte, idempotent bool) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(c.initialBackoff, attempt-1)
			select {
			case <-ctx.Done():
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.send(ctx, method, path, body)
		if err != nil {
			if ctx.Err() != nil || !idempotent {
				return nil, err
			}
			lastErr = err
			continue
		}
		if !Retryable(resp.StatusCode, idempotent) || attempt == c.maxAttempts-1 {
			return resp, nil
		}

		c.logger.Warn("認証APIが再送対象のステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.Int("attempt", attempt+1),
		)
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		lastErr = fmt.Errorf("認証APIがステータス %d を返しました", resp.StatusCode)
	}
	return nil, lastErr
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("レートリミッタの待機に失敗しました: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("User-Agent", "castmigrate/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("認証APIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("認証APIの呼び出しに失敗しました: %w", err)
	}
	return resp, nil
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(b))
}

func isAlreadyRegistered(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "email_exists") || strings.Contains(m, "already been registered")
}
