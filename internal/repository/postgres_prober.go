package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresProber はPostgreSQLへの到達性とスキーマの有無を確認する。
type PostgresProber struct {
	db *sql.DB
}

// NewPostgresProber はPostgresProberを生成する。
func NewPostgresProber(db *sql.DB) *PostgresProber {
	return &PostgresProber{db: db}
}

// Probe はPingとprofilesテーブルへの軽量な読み取りを行う。
// スキーマ未適用の場合もエラーを返す。
func (p *PostgresProber) Probe(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	var one int
	err := p.db.QueryRowContext(ctx, `SELECT 1 FROM profiles LIMIT 1`).Scan(&one)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("destination probe failed (is the schema applied?): %w", err)
	}
	return nil
}

// countRows はテーブルの行数を返す。tableは定数のみを渡すこと。
func countRows(ctx context.Context, db DBTX, table string) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// compile-time interface check
var _ Prober = (*PostgresProber)(nil)
