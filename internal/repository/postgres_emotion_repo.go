package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/castmigrate/internal/model"
)

// PostgresEmotionRepo はPostgreSQLを使用した感情リポジトリ。
type PostgresEmotionRepo struct {
	db   DBTX
	mode WriteMode
}

// NewPostgresEmotionRepo はPostgresEmotionRepoを生成する。
func NewPostgresEmotionRepo(db DBTX, mode WriteMode) *PostgresEmotionRepo {
	return &PostgresEmotionRepo{db: db, mode: mode}
}

// DeleteAll は全行を削除し、削除件数を返す。
// 削除対象がない場合でもエラーにならない。
func (r *PostgresEmotionRepo) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM emotions`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete emotions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// Save は感情を書き込む。
func (r *PostgresEmotionRepo) Save(ctx context.Context, e *model.Emotion) error {
	query := `INSERT INTO emotions (legacy_id, name, created_at) VALUES ($1, $2, $3::timestamptz)`
	if r.mode == WriteUpsert {
		query += ` ON CONFLICT (legacy_id) DO UPDATE SET name = EXCLUDED.name`
	}

	if _, err := r.db.ExecContext(ctx, query, e.LegacyID, e.Name, e.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert emotion: %w", err)
	}
	return nil
}

// Count はemotionsの行数を返す。
func (r *PostgresEmotionRepo) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, "emotions")
}

// compile-time interface check
var _ EmotionRepository = (*PostgresEmotionRepo)(nil)
