package migration

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hitoshi/castmigrate/internal/idmap"
	"github.com/hitoshi/castmigrate/internal/model"
	"github.com/hitoshi/castmigrate/internal/repository"
)

// DefaultTargetType はtargetTypeが欠落したリアクションの対象種別。
const DefaultTargetType = "script"

// ReactionMigrator はlikes / bookmarksを移行する。
// 対象IDはIDマッパーで変換し、ユーザーはDirectoryで解決する。
type ReactionMigrator struct {
	entity     string
	collection string
	repo       repository.ReactionRepository
	mapper     idmap.Mapper
	directory  *Directory
	startedAt  time.Time
}

// NewReactionMigrator はReactionMigratorを生成する。エンティティ名は書き込み先テーブル名と同じ。
func NewReactionMigrator(collection string, repo repository.ReactionRepository, mapper idmap.Mapper, directory *Directory) *ReactionMigrator {
	return &ReactionMigrator{
		entity:     repo.Table(),
		collection: collection,
		repo:       repo,
		mapper:     mapper,
		directory:  directory,
	}
}

func (m *ReactionMigrator) Entity() string      { return m.entity }
func (m *ReactionMigrator) Collection() string  { return m.collection }
func (m *ReactionMigrator) DependsOn() []string { return []string{EntityUsers, EntityScripts} }
func (m *ReactionMigrator) Resumable() bool     { return true }

func (m *ReactionMigrator) Prepare(_ context.Context, startedAt time.Time) error {
	m.startedAt = startedAt
	return nil
}

// MigrateDocument は1件のリアクションを書き込む。
func (m *ReactionMigrator) MigrateDocument(ctx context.Context, raw bson.Raw) (string, error) {
	var r model.SourceReaction
	if err := bson.Unmarshal(raw, &r); err != nil {
		return "", fmt.Errorf("failed to decode %s document: %w", m.entity, err)
	}
	label := r.ID.Hex()

	if r.TargetID.IsZero() {
		return label, model.MissingField("targetId")
	}

	id, err := mapDocumentID(m.mapper, r.ID)
	if err != nil {
		return label, err
	}
	targetID, err := idmap.MapObjectID(m.mapper, r.TargetID)
	if err != nil {
		return label, err
	}
	userID, err := m.directory.Resolve(ctx, r.UserID)
	if err != nil {
		return label, err
	}

	targetType := r.TargetType
	if targetType == "" {
		targetType = DefaultTargetType
	}

	return label, m.repo.Save(ctx, &model.Reaction{
		LegacyID:   id,
		UserID:     userID,
		TargetType: targetType,
		TargetID:   targetID,
		CreatedAt:  model.FormatTimestamp(r.CreatedAt, m.startedAt),
	})
}

// compile-time interface check
var _ Migrator = (*ReactionMigrator)(nil)
