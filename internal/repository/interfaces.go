// Package repository は移行先（SupabaseのPostgreSQL）への永続化インターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/castmigrate/internal/model"
)

// DBTX はリポジトリが使うSQL実行のインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// WriteMode は行の書き込み方式を表す。
type WriteMode string

const (
	// WriteAppend は単純なINSERT。再実行すると行が重複する（emotionsを除く）。
	WriteAppend WriteMode = "append"
	// WriteUpsert はlegacy_idをキーにしたINSERT ON CONFLICT。
	// legacy_idの一意制約（スキーマバージョン2）が必要。
	WriteUpsert WriteMode = "upsert"
)

// ParseWriteMode は設定値から書き込み方式を選択する。
func ParseWriteMode(s string) (WriteMode, error) {
	switch WriteMode(s) {
	case WriteAppend, "":
		return WriteAppend, nil
	case WriteUpsert:
		return WriteUpsert, nil
	default:
		return "", fmt.Errorf("unknown write mode: %q", s)
	}
}

// Counter は移行先テーブルの行数を返す。
type Counter interface {
	// Count はテーブルの行数を返す。
	Count(ctx context.Context) (int, error)
}

// ProfileRepository はprofilesテーブルの永続化インターフェース。
type ProfileRepository interface {
	Counter

	// Save はプロフィールを書き込む。IDは認証IDと同じ値を使う。
	Save(ctx context.Context, profile *model.Profile) error

	// FindIDByEmail はメールアドレス（大文字小文字を区別しない）でプロフィールIDを検索する。
	// 見つからない場合は空文字列を返す。
	FindIDByEmail(ctx context.Context, email string) (string, error)
}

// EmotionRepository はemotionsテーブルの永続化インターフェース。
type EmotionRepository interface {
	Counter

	// DeleteAll は全行を削除し、削除件数を返す。
	DeleteAll(ctx context.Context) (int64, error)

	// Save は感情を書き込む。
	Save(ctx context.Context, emotion *model.Emotion) error
}

// ScriptRepository はscriptsテーブルの永続化インターフェース。
type ScriptRepository interface {
	Counter

	// Save は台本を書き込む。
	Save(ctx context.Context, script *model.Script) error
}

// AIScriptRepository はai_scriptsテーブルの永続化インターフェース。
type AIScriptRepository interface {
	Counter

	// Save はAI台本を書き込む。UserIDはprofiles.idへの外部キー。
	Save(ctx context.Context, script *model.AIScript) error
}

// ReactionRepository はlikes / bookmarksテーブルの永続化インターフェース。
type ReactionRepository interface {
	Counter

	// Table は書き込み先テーブル名を返す。
	Table() string

	// Save はいいね・ブックマークを書き込む。
	Save(ctx context.Context, reaction *model.Reaction) error
}

// CheckpointRepository はエンティティ種別ごとの再開位置の永続化インターフェース。
type CheckpointRepository interface {
	// Find はエンティティの再開位置を取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, entity string) (*model.Checkpoint, error)

	// Save は再開位置を冪等にUPSERTする。
	Save(ctx context.Context, checkpoint *model.Checkpoint) error

	// List は全エンティティの再開位置をエンティティ名順に返す。
	List(ctx context.Context) ([]*model.Checkpoint, error)
}

// Prober は移行先への到達性を確認する。
type Prober interface {
	// Probe は軽量な読み取りで移行先が利用可能かを確認する。
	Probe(ctx context.Context) error
}
