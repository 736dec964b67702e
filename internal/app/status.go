package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/hitoshi/castmigrate/internal/config"
	"github.com/hitoshi/castmigrate/internal/database"
	"github.com/hitoshi/castmigrate/internal/migration"
	"github.com/hitoshi/castmigrate/internal/model"
	"github.com/hitoshi/castmigrate/internal/repository"
	"github.com/hitoshi/castmigrate/internal/source"
)

// CollectionCounter は移行元コレクションのドキュメント数を返す。
type CollectionCounter interface {
	Count(ctx context.Context, collection string) (int64, error)
}

// statusEntry はstatus表の1行分の対象。
type statusEntry struct {
	entity     string
	collection string
	dest       repository.Counter
}

var statusHeaders = []string{"Entity", "Source", "Destination", "Checkpoint", "Updated"}

// runStatus はチェックポイントと移行元・移行先の件数を表として表示する。
// 移行元に接続できない場合はSource列を"-"にして続行する。
func runStatus(ctx context.Context, cfg *config.Config, out io.Writer) error {
	mode, err := repository.ParseWriteMode(cfg.WriteMode)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repository.NewPostgresProber(db).Probe(ctx); err != nil {
		return fmt.Errorf("%w: postgres: %v", migration.ErrStoreUnavailable, err)
	}

	dest, err := newDestination(db, mode)
	if err != nil {
		return err
	}

	var counter CollectionCounter
	src, err := source.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoConnectTimeout)
	if err == nil {
		defer src.Close(context.Background())
		if err = src.Ping(ctx); err == nil {
			counter = src
		}
	}
	if err != nil {
		slog.Warn("source store unreachable; source counts are omitted", slog.String("error", err.Error()))
	}

	version, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Schema version: %d", version)
	if dirty {
		fmt.Fprint(out, " (dirty)")
	}
	fmt.Fprintln(out)

	entries := []statusEntry{
		{migration.EntityUsers, source.CollectionUsers, dest.profiles},
		{migration.EntityEmotions, source.CollectionEmotions, dest.emotions},
		{migration.EntityScripts, source.CollectionScripts, dest.scripts},
		{migration.EntityAIScripts, source.CollectionAIScripts, dest.aiScripts},
		{migration.EntityLikes, source.CollectionLikes, dest.likes},
		{migration.EntityBookmarks, source.CollectionBookmarks, dest.bookmarks},
	}

	rows, err := statusRows(ctx, counter, entries, dest.checkpoints)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, migration.NewTable(statusHeaders, rows, false).Render())
	return nil
}

// statusRows はstatus表の行を組み立てる。srcがnilの場合はSource列を"-"にする。
func statusRows(ctx context.Context, src CollectionCounter, entries []statusEntry, checkpoints repository.CheckpointRepository) ([][]string, error) {
	cps, err := checkpoints.List(ctx)
	if err != nil {
		return nil, err
	}
	byEntity := make(map[string]*model.Checkpoint, len(cps))
	for _, cp := range cps {
		byEntity[cp.Entity] = cp
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		sourceCount := "-"
		if src != nil {
			n, err := src.Count(ctx, e.collection)
			if err != nil {
				return nil, err
			}
			sourceCount = strconv.FormatInt(n, 10)
		}

		n, err := e.dest.Count(ctx)
		if err != nil {
			return nil, err
		}

		checkpoint, updated := "-", "-"
		if cp, ok := byEntity[e.entity]; ok {
			checkpoint = cp.LastSourceID
			updated = cp.UpdatedAt.UTC().Format(time.RFC3339)
		}

		rows = append(rows, []string{e.entity, sourceCount, strconv.Itoa(n), checkpoint, updated})
	}
	return rows, nil
}
