package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/castmigrate/internal/model"
)

// リアクションテーブル名
const (
	TableLikes     = "likes"
	TableBookmarks = "bookmarks"
)

// PostgresReactionRepo はPostgreSQLを使用したいいね・ブックマークリポジトリ。
// テーブル名はlikesとbookmarksのみ受け付ける。
type PostgresReactionRepo struct {
	db    DBTX
	table string
	query string
}

// NewPostgresReactionRepo はPostgresReactionRepoを生成する。
func NewPostgresReactionRepo(db DBTX, table string, mode WriteMode) (*PostgresReactionRepo, error) {
	if table != TableLikes && table != TableBookmarks {
		return nil, fmt.Errorf("unsupported reaction table: %q", table)
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (legacy_id, user_id, target_type, target_id, created_at) VALUES ($1, $2, $3, $4, $5::timestamptz)`,
		table,
	)
	if mode == WriteUpsert {
		query += ` ON CONFLICT (legacy_id) DO UPDATE SET user_id = EXCLUDED.user_id, target_type = EXCLUDED.target_type, target_id = EXCLUDED.target_id`
	}

	return &PostgresReactionRepo{db: db, table: table, query: query}, nil
}

// Table は書き込み先テーブル名を返す。
func (r *PostgresReactionRepo) Table() string {
	return r.table
}

// Save はいいね・ブックマークを書き込む。
func (r *PostgresReactionRepo) Save(ctx context.Context, re *model.Reaction) error {
	_, err := r.db.ExecContext(ctx, r.query, re.LegacyID, re.UserID, re.TargetType, re.TargetID, re.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert %s row: %w", r.table, err)
	}
	return nil
}

// Count はテーブルの行数を返す。
func (r *PostgresReactionRepo) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, r.table)
}

// compile-time interface check
var _ ReactionRepository = (*PostgresReactionRepo)(nil)
