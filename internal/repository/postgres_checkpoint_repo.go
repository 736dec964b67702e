package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/castmigrate/internal/model"
)

// PostgresCheckpointRepo はPostgreSQLを使用した再開位置リポジトリ。
type PostgresCheckpointRepo struct {
	db DBTX
}

// NewPostgresCheckpointRepo はPostgresCheckpointRepoを生成する。
func NewPostgresCheckpointRepo(db DBTX) *PostgresCheckpointRepo {
	return &PostgresCheckpointRepo{db: db}
}

// Find はエンティティの再開位置を取得する。見つからない場合はnilを返す。
func (r *PostgresCheckpointRepo) Find(ctx context.Context, entity string) (*model.Checkpoint, error) {
	cp := &model.Checkpoint{}
	err := r.db.QueryRowContext(ctx,
		`SELECT entity, last_source_id, updated_at FROM migration_checkpoints WHERE entity = $1`,
		entity,
	).Scan(&cp.Entity, &cp.LastSourceID, &cp.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find checkpoint: %w", err)
	}
	return cp, nil
}

// Save は再開位置を冪等にUPSERTする。
func (r *PostgresCheckpointRepo) Save(ctx context.Context, cp *model.Checkpoint) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO migration_checkpoints (entity, last_source_id, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (entity) DO UPDATE SET last_source_id = EXCLUDED.last_source_id, updated_at = now()`,
		cp.Entity, cp.LastSourceID,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// List は全エンティティの再開位置をエンティティ名順に返す。
func (r *PostgresCheckpointRepo) List(ctx context.Context) ([]*model.Checkpoint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT entity, last_source_id, updated_at FROM migration_checkpoints ORDER BY entity`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*model.Checkpoint
	for rows.Next() {
		cp := &model.Checkpoint{}
		if err := rows.Scan(&cp.Entity, &cp.LastSourceID, &cp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkpoints: %w", err)
	}
	return checkpoints, nil
}

// compile-time interface check
var _ CheckpointRepository = (*PostgresCheckpointRepo)(nil)
