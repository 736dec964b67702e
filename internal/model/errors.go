// Package model はソースドキュメントと移行先行のドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// 定義済みエラー
var (
	// ErrMissingField は必須フィールドが欠落しておりデフォルト値でも補えないことを示す。
	ErrMissingField = errors.New("required field is missing")
	// ErrInvalidObjectID はオブジェクトIDが24桁の16進文字列でないことを示す。
	ErrInvalidObjectID = errors.New("invalid object id")
	// ErrUserNotMigrated は参照先ユーザーが移行先に存在しないことを示す。
	ErrUserNotMigrated = errors.New("referenced user has not been migrated")
	// ErrIdentityExists は認証IDが既に存在することを示す。
	ErrIdentityExists = errors.New("auth identity already exists")
)

// RowError は1ドキュメント分の変換・書き込み失敗を表す。
// ログやレポートに出す識別ラベル（タイトルやメールアドレス）を保持する。
type RowError struct {
	Entity   string
	SourceID string
	Label    string
	Err      error
}

// Error はerrorインターフェースを実装する。
func (e *RowError) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", e.Entity, e.SourceID, e.Label, e.Err)
}

// Unwrap は原因エラーを返す。
func (e *RowError) Unwrap() error {
	return e.Err
}

// MissingField は欠落フィールド名付きのErrMissingFieldを返す。
func MissingField(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, name)
}
