// Package handler は移行中の進捗を公開するHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/castmigrate/internal/migration"
	"github.com/hitoshi/castmigrate/internal/model"
)

// StatsProvider は実行中の件数のスナップショットを返す。
type StatsProvider interface {
	Snapshot() []migration.EntitySnapshot
}

// ProgressResponse はGET /progressのレスポンス。
type ProgressResponse struct {
	StartedAt     string                     `json:"started_at"`
	ElapsedMs     int64                      `json:"elapsed_ms"`
	Entities      []migration.EntitySnapshot `json:"entities"`
	TotalRecords  int                        `json:"total_records"`
	TotalMigrated int                        `json:"total_migrated"`
	TotalErrors   int                        `json:"total_errors"`
}

// ProgressHandler は進捗APIのハンドラー。
type ProgressHandler struct {
	stats     StatsProvider
	startedAt time.Time
	now       func() time.Time
}

// NewProgressHandler はProgressHandlerを生成する。
func NewProgressHandler(stats StatsProvider, startedAt time.Time) *ProgressHandler {
	return &ProgressHandler{stats: stats, startedAt: startedAt, now: time.Now}
}

// Progress はエンティティごとの件数と合計を返す。
func (h *ProgressHandler) Progress(w http.ResponseWriter, r *http.Request) {
	snapshot := h.stats.Snapshot()

	resp := ProgressResponse{
		StartedAt: h.startedAt.UTC().Format(model.TimestampLayout),
		ElapsedMs: h.now().Sub(h.startedAt).Milliseconds(),
		Entities:  snapshot,
	}
	for _, s := range snapshot {
		resp.TotalRecords += s.Total
		resp.TotalMigrated += s.Migrated
		resp.TotalErrors += s.Errors
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health は進捗サーバーが応答可能であることを返す。
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
