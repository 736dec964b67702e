package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/castmigrate/internal/authadmin"
	"github.com/hitoshi/castmigrate/internal/config"
	"github.com/hitoshi/castmigrate/internal/database"
	"github.com/hitoshi/castmigrate/internal/handler"
	"github.com/hitoshi/castmigrate/internal/idmap"
	"github.com/hitoshi/castmigrate/internal/logger"
	"github.com/hitoshi/castmigrate/internal/metrics"
	"github.com/hitoshi/castmigrate/internal/migration"
	"github.com/hitoshi/castmigrate/internal/repository"
	"github.com/hitoshi/castmigrate/internal/security"
	"github.com/hitoshi/castmigrate/internal/source"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELを反映する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで実行する。
// outにはオペレーター向けの進捗と表を、logwにはJSONログを出力する。
// argsにはos.Args[1:]を渡す。
func Run(out, logw io.Writer, args []string) error {
	cmd := ParseCommand(args)

	cfg, err := Init(logw)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting castmigrate",
		slog.String("command", string(cmd)),
		slog.String("mongo_database", cfg.MongoDatabase),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.String("write_mode", cfg.WriteMode),
		slog.String("id_strategy", cfg.IDStrategy),
	)

	// SIGINTまたはSIGTERMで移行ループを止め、部分的なレポートを書き出す
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		// 2回目のシグナルは即時終了させる
		stop()
	}()

	switch cmd {
	case CommandSchema:
		return runSchema(cfg)
	case CommandStatus:
		return runStatus(ctx, cfg, out)
	default:
		return runMigration(ctx, cfg, out)
	}
}

// runMigration は移行元・移行先へ接続し、全Migratorを依存順に実行する。
// 起動時の接続確認に失敗した場合はエラーを返す。
// 行単位のエラーや中断はレポートに記録し、エラーを返さない。
func runMigration(ctx context.Context, cfg *config.Config, out io.Writer) error {
	// 1. 設定値の解釈
	mode, err := repository.ParseWriteMode(cfg.WriteMode)
	if err != nil {
		return err
	}
	mapper, err := idmap.ParseStrategy(cfg.IDStrategy)
	if err != nil {
		return err
	}

	// 2. 移行元（MongoDB）
	src, err := source.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoConnectTimeout)
	if err != nil {
		return fmt.Errorf("%w: %v", migration.ErrStoreUnavailable, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := src.Close(closeCtx); err != nil {
			slog.Warn("failed to disconnect from mongodb", slog.String("error", err.Error()))
		}
	}()

	// 3. 移行先（PostgreSQL）
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	dest, err := newDestination(db, mode)
	if err != nil {
		return err
	}

	// 4. 認証管理APIクライアント
	authClient := authadmin.NewClient(
		&http.Client{Timeout: cfg.AuthTimeout},
		slog.Default(),
		cfg.SupabaseURL,
		cfg.SupabaseServiceRoleKey,
		cfg.AuthRateLimit,
	)

	// 5. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 6. Migratorの構築（依存順）
	password := migration.RandomPassword
	if cfg.TempPassword != "" {
		password = migration.FixedPassword(cfg.TempPassword)
	}
	sanitizer := security.NewTextSanitizer()
	directory := migration.NewDirectory(src, dest.profiles)

	migrators := []migration.Migrator{
		migration.NewUserMigrator(migration.UserMigratorConfig{
			Identities: authClient,
			Profiles:   dest.profiles,
			Directory:  directory,
			Mode:       mode,
			Compensate: cfg.Compensate,
			Password:   password,
			Recorder:   collector,
			Logger:     slog.Default(),
			Out:        out,
		}),
		migration.NewEmotionMigrator(dest.emotions, mapper, slog.Default()),
		migration.NewScriptMigrator(dest.scripts, mapper, sanitizer),
		migration.NewAIScriptMigrator(dest.aiScripts, mapper, sanitizer, directory),
		migration.NewReactionMigrator(source.CollectionLikes, dest.likes, mapper, directory),
		migration.NewReactionMigrator(source.CollectionBookmarks, dest.bookmarks, mapper, directory),
	}

	stats := migration.NewStats()
	prober := repository.NewPostgresProber(db)

	orchestrator, err := migration.NewOrchestrator(migration.OrchestratorConfig{
		Source: src,
		Probes: []migration.Probe{
			{Name: "postgres", Check: prober.Probe},
			{Name: "auth", Check: authClient.Health},
		},
		Migrators:   migrators,
		Checkpoints: dest.checkpoints,
		Resume:      cfg.Resume,
		ReportDir:   cfg.ReportDir,
		Stats:       stats,
		Recorder:    collector,
		Logger:      slog.Default(),
		Out:         out,
	})
	if err != nil {
		return err
	}

	// 7. 進捗サーバー（METRICS_ADDRが設定されている場合のみ）
	if cfg.MetricsAddr != "" {
		server := startProgressServer(cfg.MetricsAddr, stats, reg)
		defer shutdownProgressServer(server)
	}

	// 8. 移行の実行
	report, err := orchestrator.Run(ctx)
	if err != nil {
		return err
	}

	collector.MarkRunFinished(time.Now())
	if cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metrics.Push(pushCtx, cfg.PushgatewayURL, reg); err != nil {
			slog.Warn("failed to push metrics", slog.String("error", err.Error()))
		}
	}

	slog.Info("migration finished",
		slog.Bool("interrupted", report.Interrupted),
		slog.Int("total_records", report.TotalRecords),
		slog.Int("total_migrated", report.TotalMigrated),
		slog.Int("total_errors", report.TotalErrors),
		slog.Int("orphaned_identities", len(report.OrphanedIdentities)),
	)
	return nil
}

// runSchema は移行先スキーマを適用する。
// SCHEMA_VERSIONが0の場合は最新まで適用する。
func runSchema(cfg *config.Config) error {
	slog.Info("applying destination schema",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Uint64("target_version", uint64(cfg.SchemaVersion)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL, cfg.SchemaVersion); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	version, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	slog.Info("destination schema applied",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// destination は移行先テーブルごとのリポジトリをまとめる。
type destination struct {
	profiles    *repository.PostgresProfileRepo
	emotions    *repository.PostgresEmotionRepo
	scripts     *repository.PostgresScriptRepo
	aiScripts   *repository.PostgresAIScriptRepo
	likes       *repository.PostgresReactionRepo
	bookmarks   *repository.PostgresReactionRepo
	checkpoints *repository.PostgresCheckpointRepo
}

func newDestination(db *sql.DB, mode repository.WriteMode) (*destination, error) {
	likes, err := repository.NewPostgresReactionRepo(db, repository.TableLikes, mode)
	if err != nil {
		return nil, err
	}
	bookmarks, err := repository.NewPostgresReactionRepo(db, repository.TableBookmarks, mode)
	if err != nil {
		return nil, err
	}

	return &destination{
		profiles:    repository.NewPostgresProfileRepo(db, mode),
		emotions:    repository.NewPostgresEmotionRepo(db, mode),
		scripts:     repository.NewPostgresScriptRepo(db, mode),
		aiScripts:   repository.NewPostgresAIScriptRepo(db, mode),
		likes:       likes,
		bookmarks:   bookmarks,
		checkpoints: repository.NewPostgresCheckpointRepo(db),
	}, nil
}

// startProgressServer は進捗サーバーをバックグラウンドで起動する。
func startProgressServer(addr string, stats *migration.Stats, gatherer prometheus.Gatherer) *http.Server {
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:    slog.Default(),
		Stats:     stats,
		StartedAt: time.Now(),
		Gatherer:  gatherer,
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("progress server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("progress server listen error", slog.String("error", err.Error()))
		}
	}()
	return server
}

func shutdownProgressServer(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Warn("progress server shutdown failed", slog.String("error", err.Error()))
		return
	}
	slog.Info("progress server stopped")
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

