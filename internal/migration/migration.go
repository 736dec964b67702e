// Package migration はドキュメントストアからSupabaseへのコレクション単位の移行と、
// その実行順序・集計・レポートを扱う。
//
// 各Migratorは1ドキュメントの変換と書き込みだけを担い、走査・集計・チェックポイント・
// ログ出力はOrchestratorの共通ループが行う。1件の失敗でループを止めない。
package migration

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hitoshi/castmigrate/internal/authadmin"
	"github.com/hitoshi/castmigrate/internal/idmap"
	"github.com/hitoshi/castmigrate/internal/model"
)

// エンティティ名。レポートのキーとチェックポイントのキーに使う。
const (
	EntityUsers     = "users"
	EntityEmotions  = "emotions"
	EntityScripts   = "scripts"
	EntityAIScripts = "ai_scripts"
	EntityLikes     = "likes"
	EntityBookmarks = "bookmarks"
)

// Source は移行元ドキュメントストアの読み取りインターフェース。
type Source interface {
	// Ping は到達性を確認する。
	Ping(ctx context.Context) error
	// Each はコレクションを_id昇順に走査する。afterより大きい_idのみを対象にする。
	Each(ctx context.Context, collection string, after primitive.ObjectID, fn func(bson.Raw) error) error
	// FindUserEmail はユーザーのメールアドレスを返す。見つからない場合は空文字列。
	FindUserEmail(ctx context.Context, id primitive.ObjectID) (string, error)
}

// IdentityProvider は移行先の認証サブシステム。
type IdentityProvider interface {
	CreateUser(ctx context.Context, req authadmin.CreateUserRequest) (*authadmin.User, error)
	DeleteUser(ctx context.Context, id string) error
	Health(ctx context.Context) error
}

// Migrator は1コレクション分の移行処理。
type Migrator interface {
	// Entity はレポート上のエンティティ名を返す。
	Entity() string
	// Collection は移行元のコレクション名を返す。
	Collection() string
	// DependsOn は先に移行されている必要があるエンティティを返す。
	DependsOn() []string
	// Resumable はチェックポイントからの再開に対応するかを返す。
	Resumable() bool
	// Prepare は走査の前に1回呼ばれる。startedAtは欠落タイムスタンプの補完値。
	Prepare(ctx context.Context, startedAt time.Time) error
	// MigrateDocument は1ドキュメントを変換して書き込む。
	// 戻り値のlabelはログに出す識別子（タイトルやメールアドレス）。
	MigrateDocument(ctx context.Context, raw bson.Raw) (label string, err error)
}

// IdentityJournal は補償処理の結果を報告するMigratorが実装する。
type IdentityJournal interface {
	// CompensatedIdentities は補償削除に成功した認証IDを返す。
	CompensatedIdentities() []string
	// OrphanedIdentities はプロフィールを持たずに残った認証IDを返す。
	OrphanedIdentities() []string
}

// Recorder は移行メトリクスの記録先。
type Recorder interface {
	RecordRow(entity, result string)
	ObserveEntityDuration(entity string, d time.Duration)
	RecordCompensation(result string)
}

// 行単位の結果ラベル
const (
	ResultMigrated = "migrated"
	ResultError    = "error"
)

// 補償処理の結果ラベル
const (
	CompensationSucceeded = "succeeded"
	CompensationFailed    = "failed"
)

type nopRecorder struct{}

func (nopRecorder) RecordRow(string, string)                    {}
func (nopRecorder) ObserveEntityDuration(string, time.Duration) {}
func (nopRecorder) RecordCompensation(string)                   {}

// mapDocumentID はドキュメントの_idを移行先のIDに変換する。_idが欠落している場合は失敗する。
func mapDocumentID(mapper idmap.Mapper, id primitive.ObjectID) (string, error) {
	if id.IsZero() {
		return "", model.MissingField("_id")
	}
	return mapper.Map(id.Hex())
}
