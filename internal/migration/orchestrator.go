package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hitoshi/castmigrate/internal/model"
	"github.com/hitoshi/castmigrate/internal/repository"
	"github.com/hitoshi/castmigrate/internal/source"
)

// ErrStoreUnavailable は移行開始前の接続確認に失敗したことを示す。
var ErrStoreUnavailable = errors.New("store is unavailable")

// Probe は移行開始前に実行する接続確認。
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// OrchestratorConfig はOrchestratorの依存関係。
type OrchestratorConfig struct {
	Source    Source
	Probes    []Probe
	Migrators []Migrator
	// Checkpoints がnilの場合は再開位置を記録しない。
	Checkpoints repository.CheckpointRepository
	Resume      bool
	ReportDir   string
	Stats       *Stats
	Recorder    Recorder
	Logger      *slog.Logger
	Out         io.Writer
	Now         func() time.Time
}

// Orchestrator はMigratorを依存順に1つずつ実行し、集計とレポート出力を行う。
type Orchestrator struct {
	source      Source
	probes      []Probe
	migrators   []Migrator
	checkpoints repository.CheckpointRepository
	resume      bool
	reportDir   string
	stats       *Stats
	recorder    Recorder
	logger      *slog.Logger
	out         io.Writer
	now         func() time.Time
}

// NewOrchestrator はOrchestratorを生成する。
// 依存先より前に実行されるMigratorがある場合はエラーを返す。
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if err := ValidateOrder(cfg.Migrators); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		source:      cfg.Source,
		probes:      cfg.Probes,
		migrators:   cfg.Migrators,
		checkpoints: cfg.Checkpoints,
		resume:      cfg.Resume,
		reportDir:   cfg.ReportDir,
		stats:       cfg.Stats,
		recorder:    cfg.Recorder,
		logger:      cfg.Logger,
		out:         cfg.Out,
		now:         cfg.Now,
	}
	if o.stats == nil {
		o.stats = NewStats()
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.out == nil {
		o.out = io.Discard
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.reportDir == "" {
		o.reportDir = "."
	}

	// レポートに全エンティティを実行順で載せるため先に登録する
	for _, m := range o.migrators {
		o.stats.Register(m.Entity())
	}
	return o, nil
}

// ValidateOrder はMigratorの並びが依存関係を満たすかを検証する。
func ValidateOrder(migrators []Migrator) error {
	seen := make(map[string]bool, len(migrators))
	for _, m := range migrators {
		if seen[m.Entity()] {
			return fmt.Errorf("duplicate migrator for %s", m.Entity())
		}
		for _, dep := range m.DependsOn() {
			if !seen[dep] {
				return fmt.Errorf("%s depends on %s, which must run before it", m.Entity(), dep)
			}
		}
		seen[m.Entity()] = true
	}
	return nil
}

// Stats は実行中の件数を返す。進捗サーバーから並行に読まれる。
func (o *Orchestrator) Stats() *Stats {
	return o.stats
}

// Run は接続確認の後に全Migratorを実行し、レポートを書き出して返す。
// 接続確認の失敗はErrStoreUnavailableをラップして返す。
// 中断された場合もレポートは書き出し、エラーを返さない。
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	startedAt := o.now()

	// 疎通確認中の中断は接続障害ではなく、通常の中断として部分レポートを出す
	if err := o.checkStores(ctx); err != nil {
		if ctx.Err() == nil {
			return nil, err
		}
	} else {
		o.logger.Info("stores reachable, starting migration", slog.Int("migrators", len(o.migrators)))
	}

	interrupted := false
	failed := make(map[string]string)

	for _, m := range o.migrators {
		if ctx.Err() != nil {
			interrupted = true
			break
		}

		err := o.runEntity(ctx, m, startedAt)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		// 走査自体の失敗はそのエンティティだけを打ち切り、後続は続行する
		o.logger.Error("entity migration stopped",
			slog.String("entity", m.Entity()),
			slog.String("error", err.Error()),
		)
		failed[m.Entity()] = err.Error()
	}

	if interrupted {
		o.logger.Warn("migration interrupted; partially migrated entities are left as they are")
	}

	report := NewReport(o.now(), o.stats.Snapshot())
	report.Interrupted = interrupted
	if len(failed) > 0 {
		report.FailedEntities = failed
	}
	for _, m := range o.migrators {
		if j, ok := m.(IdentityJournal); ok {
			report.CompensatedIdentities = append(report.CompensatedIdentities, j.CompensatedIdentities()...)
			report.OrphanedIdentities = append(report.OrphanedIdentities, j.OrphanedIdentities()...)
		}
	}

	path, err := WriteReport(o.reportDir, report)
	if err != nil {
		return report, err
	}
	o.logger.Info("migration report written",
		slog.String("path", path),
		slog.Int("total_records", report.TotalRecords),
		slog.Int("total_migrated", report.TotalMigrated),
		slog.Int("total_errors", report.TotalErrors),
	)

	fmt.Fprintf(o.out, "\nReport: %s\n", path)
	if err := RenderTable(o.out, report); err != nil {
		return report, fmt.Errorf("failed to render report: %w", err)
	}
	return report, nil
}

// checkStores は移行元と各移行先への到達性を確認する。
func (o *Orchestrator) checkStores(ctx context.Context) error {
	if err := o.source.Ping(ctx); err != nil {
		return fmt.Errorf("%w: source: %v", ErrStoreUnavailable, err)
	}
	for _, p := range o.probes {
		if err := p.Check(ctx); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, p.Name, err)
		}
	}
	return nil
}

// runEntity は1エンティティ分の共通ループを実行する。
// 1件の失敗はログと集計だけで続行し、走査の失敗だけを返す。
func (o *Orchestrator) runEntity(ctx context.Context, m Migrator, startedAt time.Time) error {
	entity := m.Entity()
	begin := time.Now()
	defer func() {
		o.recorder.ObserveEntityDuration(entity, time.Since(begin))
	}()

	fmt.Fprintf(o.out, "Migrating %s...\n", entity)

	if err := m.Prepare(ctx, startedAt); err != nil {
		return fmt.Errorf("failed to prepare %s: %w", entity, err)
	}

	checkpointing := o.checkpoints != nil && m.Resumable()

	after := primitive.NilObjectID
	if checkpointing && o.resume {
		var err error
		after, err = o.resumePosition(ctx, entity)
		if err != nil {
			return err
		}
	}

	err := o.source.Each(ctx, m.Collection(), after, func(raw bson.Raw) error {
		id := source.DocumentID(raw)
		o.stats.AddTotal(entity)

		label, err := m.MigrateDocument(ctx, raw)
		if err != nil {
			rowErr := &model.RowError{Entity: entity, SourceID: id.Hex(), Label: label, Err: err}
			o.stats.AddError(entity)
			o.recorder.RecordRow(entity, ResultError)
			o.logger.Warn("failed to migrate document",
				slog.String("entity", rowErr.Entity),
				slog.String("source_id", rowErr.SourceID),
				slog.String("label", rowErr.Label),
				slog.String("error", rowErr.Err.Error()),
			)
			return nil
		}

		o.stats.AddMigrated(entity)
		o.recorder.RecordRow(entity, ResultMigrated)

		if checkpointing {
			cp := &model.Checkpoint{Entity: entity, LastSourceID: id.Hex()}
			if err := o.checkpoints.Save(ctx, cp); err != nil {
				o.logger.Warn("failed to save checkpoint",
					slog.String("entity", entity),
					slog.String("source_id", cp.LastSourceID),
					slog.String("error", err.Error()),
				)
			}
		}
		return nil
	})

	s := o.stats.Get(entity)
	fmt.Fprintf(o.out, "  %s: %d/%d migrated, %d errors\n", entity, s.Migrated, s.Total, s.Errors)
	o.logger.Info("entity migration finished",
		slog.String("entity", entity),
		slog.Int("total", s.Total),
		slog.Int("migrated", s.Migrated),
		slog.Int("errors", s.Errors),
		slog.Float64("duration_ms", float64(time.Since(begin).Milliseconds())),
	)
	return err
}

// resumePosition はチェックポイントから再開位置を読み出す。未記録ならNilObjectIDを返す。
func (o *Orchestrator) resumePosition(ctx context.Context, entity string) (primitive.ObjectID, error) {
	cp, err := o.checkpoints.Find(ctx, entity)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if cp == nil || cp.LastSourceID == "" {
		return primitive.NilObjectID, nil
	}

	after, err := primitive.ObjectIDFromHex(cp.LastSourceID)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("invalid checkpoint for %s: %w", entity, err)
	}
	o.logger.Info("resuming from checkpoint",
		slog.String("entity", entity),
		slog.String("after", cp.LastSourceID),
	)
	fmt.Fprintf(o.out, "  resuming after %s\n", cp.LastSourceID)
	return after, nil
}
