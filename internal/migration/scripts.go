package migration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hitoshi/castmigrate/internal/idmap"
	"github.com/hitoshi/castmigrate/internal/model"
	"github.com/hitoshi/castmigrate/internal/repository"
	"github.com/hitoshi/castmigrate/internal/security"
	"github.com/hitoshi/castmigrate/internal/source"
)

// ScriptMigrator はscriptsを移行する。
// appendモードでは再実行すると行が重複し、upsertモードではlegacy_idで上書きする。
type ScriptMigrator struct {
	repo      repository.ScriptRepository
	mapper    idmap.Mapper
	sanitizer security.TextSanitizer
	startedAt time.Time
}

// NewScriptMigrator はScriptMigratorを生成する。
func NewScriptMigrator(repo repository.ScriptRepository, mapper idmap.Mapper, sanitizer security.TextSanitizer) *ScriptMigrator {
	return &ScriptMigrator{repo: repo, mapper: mapper, sanitizer: sanitizer}
}

func (m *ScriptMigrator) Entity() string     { return EntityScripts }
func (m *ScriptMigrator) Collection() string { return source.CollectionScripts }

// DependsOn はemotionsを返す。感情タグは名前で参照するため外部キーではない。
func (m *ScriptMigrator) DependsOn() []string { return []string{EntityEmotions} }
func (m *ScriptMigrator) Resumable() bool     { return true }

func (m *ScriptMigrator) Prepare(_ context.Context, startedAt time.Time) error {
	m.startedAt = startedAt
	return nil
}

// MigrateDocument は1件の台本を書き込む。
func (m *ScriptMigrator) MigrateDocument(ctx context.Context, raw bson.Raw) (string, error) {
	var s model.SourceScript
	if err := bson.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("failed to decode script: %w", err)
	}

	script, err := BuildScript(&s, m.mapper, m.sanitizer, m.startedAt)
	if err != nil {
		return labelOf(&s), err
	}
	return script.Title, m.repo.Save(ctx, script)
}

// BuildScript は移行元の台本からscripts行を組み立てる。
// 作成者は外部キーではなくスナップショットとしてそのままコピーする。
func BuildScript(s *model.SourceScript, mapper idmap.Mapper, sanitizer security.TextSanitizer, startedAt time.Time) (*model.Script, error) {
	title := strings.TrimSpace(s.Title)
	if title == "" {
		return nil, model.MissingField("title")
	}

	id, err := mapDocumentID(mapper, s.ID)
	if err != nil {
		return nil, err
	}

	emotions := make([]string, 0, len(s.Emotions))
	for _, e := range s.Emotions {
		if e = strings.TrimSpace(e); e != "" {
			emotions = append(emotions, e)
		}
	}

	var author model.Author
	if s.Author != nil {
		author = model.Author{Name: s.Author.Name, Username: s.Author.Username}
	}

	isPublic := true
	if s.IsPublic != nil {
		isPublic = *s.IsPublic
	}

	createdAt := startedAt
	if s.CreatedAt != nil && !s.CreatedAt.IsZero() {
		createdAt = *s.CreatedAt
	}

	return &model.Script{
		LegacyID:       id,
		Title:          title,
		CharacterCount: s.CharacterCount,
		Situation:      sanitizer.Sanitize(s.Situation),
		Content:        sanitizer.Sanitize(s.Content),
		Emotions:       emotions,
		Views:          s.Views,
		Mood:           s.Mood,
		Duration:       s.Duration,
		AgeGroup:       s.AgeGroup,
		Purpose:        s.Purpose,
		Gender:         s.Gender,
		Author:         author,
		IsPublic:       isPublic,
		CreatedAt:      model.FormatTimestamp(s.CreatedAt, startedAt),
		UpdatedAt:      model.FormatTimestamp(s.UpdatedAt, createdAt),
	}, nil
}

// labelOf はログ用のラベルを返す。タイトルがなければIDを使う。
func labelOf(s *model.SourceScript) string {
	if t := strings.TrimSpace(s.Title); t != "" {
		return t
	}
	return s.ID.Hex()
}

// compile-time interface check
var _ Migrator = (*ScriptMigrator)(nil)
