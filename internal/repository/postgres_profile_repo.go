package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/castmigrate/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db   DBTX
	mode WriteMode
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db DBTX, mode WriteMode) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db, mode: mode}
}

const insertProfileSQL = `INSERT INTO profiles (id, legacy_id, email, username, name, role, subscription, usage, created_at, updated_at)
 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9::timestamptz, $10::timestamptz)`

const upsertProfileSuffix = `
 ON CONFLICT (id) DO UPDATE SET
   legacy_id = EXCLUDED.legacy_id,
   email = EXCLUDED.email,
   username = EXCLUDED.username,
   name = EXCLUDED.name,
   role = EXCLUDED.role,
   subscription = EXCLUDED.subscription,
   usage = EXCLUDED.usage,
   updated_at = EXCLUDED.updated_at`

// Save はプロフィールを書き込む。
// upsertモードでは同じIDの既存行を上書きする。
func (r *PostgresProfileRepo) Save(ctx context.Context, p *model.Profile) error {
	subscription, err := json.Marshal(p.Subscription)
	if err != nil {
		return fmt.Errorf("failed to encode subscription: %w", err)
	}
	usage, err := json.Marshal(p.Usage)
	if err != nil {
		return fmt.Errorf("failed to encode usage: %w", err)
	}

	query := insertProfileSQL
	if r.mode == WriteUpsert {
		query += upsertProfileSuffix
	}

	_, err = r.db.ExecContext(ctx, query,
		p.ID, p.LegacyID, p.Email, p.Username, p.Name, p.Role,
		string(subscription), string(usage), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

// FindIDByEmail はメールアドレスでプロフィールIDを検索する。見つからない場合は空文字列を返す。
func (r *PostgresProfileRepo) FindIDByEmail(ctx context.Context, email string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM profiles WHERE lower(email) = lower($1) ORDER BY created_at LIMIT 1`,
		email,
	).Scan(&id)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find profile by email: %w", err)
	}
	return id, nil
}

// Count はprofilesの行数を返す。
func (r *PostgresProfileRepo) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, "profiles")
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
