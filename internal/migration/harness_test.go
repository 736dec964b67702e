package migration

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/castmigrate/internal/idmap"
	"github.com/hitoshi/castmigrate/internal/model"
	"github.com/hitoshi/castmigrate/internal/repository"
	"github.com/hitoshi/castmigrate/internal/security"
	"github.com/hitoshi/castmigrate/internal/source"
)

var testStart = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

// harness は全Migratorをインメモリの依存関係で組み立てる。
type harness struct {
	source      *fakeSource
	identities  *fakeIdentities
	profiles    *fakeProfiles
	emotions    *fakeEmotions
	scripts     *fakeScripts
	aiScripts   *fakeAIScripts
	likes       *fakeReactions
	bookmarks   *fakeReactions
	checkpoints *fakeCheckpoints
	recorder    *fakeRecorder
	directory   *Directory
	users       *UserMigrator
	out         bytes.Buffer
	reportDir   string
	mode        repository.WriteMode
	compensate  bool
}

func newHarness(t *testing.T, mode repository.WriteMode) *harness {
	t.Helper()
	h := &harness{
		source:      newFakeSource(),
		identities:  newFakeIdentities(),
		profiles:    newFakeProfiles(),
		emotions:    &fakeEmotions{},
		scripts:     &fakeScripts{keyedRows: keyedRows[model.Script]{mode: mode}},
		aiScripts:   &fakeAIScripts{keyedRows: keyedRows[model.AIScript]{mode: mode}},
		likes:       &fakeReactions{keyedRows: keyedRows[model.Reaction]{mode: mode}, table: EntityLikes},
		bookmarks:   &fakeReactions{keyedRows: keyedRows[model.Reaction]{mode: mode}, table: EntityBookmarks},
		checkpoints: newFakeCheckpoints(),
		recorder:    newFakeRecorder(),
		reportDir:   t.TempDir(),
		mode:        mode,
		compensate:  true,
	}
	h.directory = NewDirectory(h.source, h.profiles)
	return h
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func (h *harness) migrators() []Migrator {
	mapper := idmap.Positional{}
	sanitizer := security.NewTextSanitizer()

	h.users = NewUserMigrator(UserMigratorConfig{
		Identities: h.identities,
		Profiles:   h.profiles,
		Directory:  h.directory,
		Mode:       h.mode,
		Compensate: h.compensate,
		Password:   FixedPassword("temporary-password"),
		Recorder:   h.recorder,
		Logger:     testLogger(),
		Out:        &h.out,
	})

	return []Migrator{
		h.users,
		NewEmotionMigrator(h.emotions, mapper, testLogger()),
		NewScriptMigrator(h.scripts, mapper, sanitizer),
		NewAIScriptMigrator(h.aiScripts, mapper, sanitizer, h.directory),
		NewReactionMigrator(source.CollectionLikes, h.likes, mapper, h.directory),
		NewReactionMigrator(source.CollectionBookmarks, h.bookmarks, mapper, h.directory),
	}
}

func (h *harness) orchestrator(t *testing.T, resume bool) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(OrchestratorConfig{
		Source:      h.source,
		Probes:      []Probe{{Name: "auth", Check: h.identities.Health}},
		Migrators:   h.migrators(),
		Checkpoints: h.checkpoints,
		Resume:      resume,
		ReportDir:   h.reportDir,
		Recorder:    h.recorder,
		Logger:      testLogger(),
		Out:         &h.out,
		Now:         func() time.Time { return testStart },
	})
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}
	return o
}
