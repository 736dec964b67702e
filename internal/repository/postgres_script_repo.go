package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/castmigrate/internal/model"
)

// scriptColumns はscriptsとai_scriptsに共通するカラム。
var scriptColumns = []string{
	"legacy_id", "title", "character_count", "situation", "content", "emotions",
	"views", "mood", "duration", "age_group", "purpose", "gender", "author",
	"is_public", "created_at", "updated_at",
}

// scriptCasts はプレースホルダに付ける型キャスト。
var scriptCasts = map[string]string{
	"author":     "::jsonb",
	"generation": "::jsonb",
	"created_at": "::timestamptz",
	"updated_at": "::timestamptz",
}

// buildInsert はINSERT文を組み立てる。upsertの場合はlegacy_idの衝突時に全カラムを上書きする。
func buildInsert(table string, columns []string, mode WriteMode) string {
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		placeholders[i] = fmt.Sprintf("$%d%s", i+1, scriptCasts[c])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	if mode == WriteUpsert {
		var sets []string
		for _, c := range columns {
			if c == "legacy_id" || c == "created_at" {
				continue
			}
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
		fmt.Fprintf(&b, " ON CONFLICT (legacy_id) DO UPDATE SET %s", strings.Join(sets, ", "))
	}
	return b.String()
}

// scriptArgs はscriptColumnsの順にパラメータを並べる。
func scriptArgs(s *model.Script) ([]interface{}, error) {
	author, err := json.Marshal(s.Author)
	if err != nil {
		return nil, fmt.Errorf("failed to encode author: %w", err)
	}
	emotions := s.Emotions
	if emotions == nil {
		emotions = []string{}
	}
	return []interface{}{
		s.LegacyID, s.Title, s.CharacterCount, s.Situation, s.Content, pq.Array(emotions),
		s.Views, s.Mood, s.Duration, s.AgeGroup, s.Purpose, s.Gender, string(author),
		s.IsPublic, s.CreatedAt, s.UpdatedAt,
	}, nil
}

// PostgresScriptRepo はPostgreSQLを使用した台本リポジトリ。
type PostgresScriptRepo struct {
	db    DBTX
	query string
}

// NewPostgresScriptRepo はPostgresScriptRepoを生成する。
func NewPostgresScriptRepo(db DBTX, mode WriteMode) *PostgresScriptRepo {
	return &PostgresScriptRepo{
		db:    db,
		query: buildInsert("scripts", scriptColumns, mode),
	}
}

// Save は台本を書き込む。
func (r *PostgresScriptRepo) Save(ctx context.Context, s *model.Script) error {
	args, err := scriptArgs(s)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, r.query, args...); err != nil {
		return fmt.Errorf("failed to insert script: %w", err)
	}
	return nil
}

// Count はscriptsの行数を返す。
func (r *PostgresScriptRepo) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, "scripts")
}

// PostgresAIScriptRepo はPostgreSQLを使用したAI台本リポジトリ。
type PostgresAIScriptRepo struct {
	db    DBTX
	query string
}

// NewPostgresAIScriptRepo はPostgresAIScriptRepoを生成する。
func NewPostgresAIScriptRepo(db DBTX, mode WriteMode) *PostgresAIScriptRepo {
	columns := append(append([]string{}, scriptColumns...), "user_id", "generation", "is_saved")
	return &PostgresAIScriptRepo{
		db:    db,
		query: buildInsert("ai_scripts", columns, mode),
	}
}

// Save はAI台本を書き込む。
func (r *PostgresAIScriptRepo) Save(ctx context.Context, s *model.AIScript) error {
	args, err := scriptArgs(&s.Script)
	if err != nil {
		return err
	}
	generation, err := json.Marshal(s.Generation)
	if err != nil {
		return fmt.Errorf("failed to encode generation: %w", err)
	}
	args = append(args, s.UserID, string(generation), s.IsSaved)

	if _, err := r.db.ExecContext(ctx, r.query, args...); err != nil {
		return fmt.Errorf("failed to insert ai script: %w", err)
	}
	return nil
}

// Count はai_scriptsの行数を返す。
func (r *PostgresAIScriptRepo) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, "ai_scripts")
}

// compile-time interface check
var (
	_ ScriptRepository   = (*PostgresScriptRepo)(nil)
	_ AIScriptRepository = (*PostgresAIScriptRepo)(nil)
)
