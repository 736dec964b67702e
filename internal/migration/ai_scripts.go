package migration

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hitoshi/castmigrate/internal/idmap"
	"github.com/hitoshi/castmigrate/internal/model"
	"github.com/hitoshi/castmigrate/internal/repository"
	"github.com/hitoshi/castmigrate/internal/security"
	"github.com/hitoshi/castmigrate/internal/source"
)

// AIScriptMigrator はaiscriptsを移行する。
// 所有ユーザーはDirectoryを通してメールアドレスで解決する。
type AIScriptMigrator struct {
	repo      repository.AIScriptRepository
	mapper    idmap.Mapper
	sanitizer security.TextSanitizer
	directory *Directory
	startedAt time.Time
}

// NewAIScriptMigrator はAIScriptMigratorを生成する。
func NewAIScriptMigrator(repo repository.AIScriptRepository, mapper idmap.Mapper, sanitizer security.TextSanitizer, directory *Directory) *AIScriptMigrator {
	return &AIScriptMigrator{repo: repo, mapper: mapper, sanitizer: sanitizer, directory: directory}
}

func (m *AIScriptMigrator) Entity() string      { return EntityAIScripts }
func (m *AIScriptMigrator) Collection() string  { return source.CollectionAIScripts }
func (m *AIScriptMigrator) DependsOn() []string { return []string{EntityUsers} }
func (m *AIScriptMigrator) Resumable() bool     { return true }

func (m *AIScriptMigrator) Prepare(_ context.Context, startedAt time.Time) error {
	m.startedAt = startedAt
	return nil
}

// MigrateDocument は1件のAI台本を書き込む。所有ユーザーが未移行の場合は失敗する。
func (m *AIScriptMigrator) MigrateDocument(ctx context.Context, raw bson.Raw) (string, error) {
	var s model.SourceAIScript
	if err := bson.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("failed to decode ai script: %w", err)
	}
	label := labelOf(&s.SourceScript)

	script, err := BuildScript(&s.SourceScript, m.mapper, m.sanitizer, m.startedAt)
	if err != nil {
		return label, err
	}

	userID, err := m.directory.Resolve(ctx, s.UserID)
	if err != nil {
		return label, err
	}

	var gen model.Generation
	if md := s.Metadata; md != nil {
		gen = model.Generation{
			Model:            md.Model,
			PromptTokens:     md.PromptTokens,
			CompletionTokens: md.CompletionTokens,
			TotalTokens:      md.TotalTokens,
			GeneratedAt:      model.FormatOptionalTimestamp(md.GeneratedAt),
		}
	}

	return label, m.repo.Save(ctx, &model.AIScript{
		Script:     *script,
		UserID:     userID,
		Generation: gen,
		IsSaved:    s.IsSaved,
	})
}

// compile-time interface check
var _ Migrator = (*AIScriptMigrator)(nil)
