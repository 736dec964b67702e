package migration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hitoshi/castmigrate/internal/idmap"
	"github.com/hitoshi/castmigrate/internal/model"
	"github.com/hitoshi/castmigrate/internal/repository"
	"github.com/hitoshi/castmigrate/internal/source"
)

// EmotionMigrator はemotionsを全件置き換えで移行する。
// 走査前に移行先の全行を削除するため、何度実行しても行数はソースと一致する。
type EmotionMigrator struct {
	repo      repository.EmotionRepository
	mapper    idmap.Mapper
	logger    *slog.Logger
	startedAt time.Time
}

// NewEmotionMigrator はEmotionMigratorを生成する。
func NewEmotionMigrator(repo repository.EmotionRepository, mapper idmap.Mapper, logger *slog.Logger) *EmotionMigrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmotionMigrator{repo: repo, mapper: mapper, logger: logger}
}

func (m *EmotionMigrator) Entity() string      { return EntityEmotions }
func (m *EmotionMigrator) Collection() string  { return source.CollectionEmotions }
func (m *EmotionMigrator) DependsOn() []string { return nil }

// Resumable は常にfalse。全件置き換えのためチェックポイントを使わない。
func (m *EmotionMigrator) Resumable() bool { return false }

// Prepare は移行先の感情を全件削除する。
func (m *EmotionMigrator) Prepare(ctx context.Context, startedAt time.Time) error {
	m.startedAt = startedAt

	deleted, err := m.repo.DeleteAll(ctx)
	if err != nil {
		return err
	}
	m.logger.Info("cleared destination emotions", slog.Int64("deleted_count", deleted))
	return nil
}

// MigrateDocument は1件の感情を書き込む。
func (m *EmotionMigrator) MigrateDocument(ctx context.Context, raw bson.Raw) (string, error) {
	var e model.SourceEmotion
	if err := bson.Unmarshal(raw, &e); err != nil {
		return "", fmt.Errorf("failed to decode emotion: %w", err)
	}

	name := strings.TrimSpace(e.Name)
	if name == "" {
		return e.ID.Hex(), model.MissingField("name")
	}

	id, err := mapDocumentID(m.mapper, e.ID)
	if err != nil {
		return name, err
	}

	err = m.repo.Save(ctx, &model.Emotion{
		LegacyID:  id,
		Name:      name,
		CreatedAt: model.FormatTimestamp(e.CreatedAt, m.startedAt),
	})
	return name, err
}

// compile-time interface check
var _ Migrator = (*EmotionMigrator)(nil)
