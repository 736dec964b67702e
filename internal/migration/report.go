package migration

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/hitoshi/castmigrate/internal/model"
)

// Report は1回の実行結果のサマリー。JSONファイルとして保存される。
type Report struct {
	Timestamp      string                 `json:"timestamp"`
	MigrationStats map[string]EntityStats `json:"migration_stats"`
	TotalRecords   int                    `json:"total_records"`
	TotalMigrated  int                    `json:"total_migrated"`
	TotalErrors    int                    `json:"total_errors"`

	Interrupted           bool              `json:"interrupted,omitempty"`
	CompensatedIdentities []string          `json:"compensated_identities,omitempty"`
	OrphanedIdentities    []string          `json:"orphaned_identities,omitempty"`
	FailedEntities        map[string]string `json:"failed_entities,omitempty"`

	generatedAt time.Time
	order       []string
}

// NewReport は件数のスナップショットからレポートを組み立てる。
func NewReport(at time.Time, snapshot []EntitySnapshot) *Report {
	r := &Report{
		Timestamp:      at.UTC().Format(model.TimestampLayout),
		MigrationStats: make(map[string]EntityStats, len(snapshot)),
		generatedAt:    at,
	}
	for _, s := range snapshot {
		r.MigrationStats[s.Entity] = s.EntityStats
		r.order = append(r.order, s.Entity)
		r.TotalRecords += s.Total
		r.TotalMigrated += s.Migrated
		r.TotalErrors += s.Errors
	}
	return r
}

// ReportFileName は実行時刻からレポートのファイル名を返す。
func ReportFileName(at time.Time) string {
	return "migration-report-" + at.Format("20060102-150405") + ".json"
}

// WriteReport はレポートをdir配下にJSONで書き出し、書き出したパスを返す。
func WriteReport(dir string, r *Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	path := filepath.Join(dir, ReportFileName(r.generatedAt))
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	totalStyle  = cellStyle.Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))
)

// NewTable はコンソール表示用の表を生成する。lastRowBoldが真なら最終行を太字にする。
func NewTable(headers []string, rows [][]string, lastRowBold bool) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case lastRowBold && row == len(rows)-1:
				return totalStyle
			default:
				return cellStyle
			}
		}).
		Headers(headers...).
		Rows(rows...)
}

// RenderTable はレポートを人間向けの表としてwに書き出す。
func RenderTable(w io.Writer, r *Report) error {
	rows := make([][]string, 0, len(r.order)+1)
	for _, entity := range r.order {
		s := r.MigrationStats[entity]
		rows = append(rows, []string{entity, strconv.Itoa(s.Total), strconv.Itoa(s.Migrated), strconv.Itoa(s.Errors)})
	}
	rows = append(rows, []string{
		"TOTAL",
		strconv.Itoa(r.TotalRecords),
		strconv.Itoa(r.TotalMigrated),
		strconv.Itoa(r.TotalErrors),
	})

	t := NewTable([]string{"Entity", "Total", "Migrated", "Errors"}, rows, true)
	if _, err := fmt.Fprintln(w, t.String()); err != nil {
		return err
	}

	if r.Interrupted {
		fmt.Fprintln(w, warnStyle.Render("Migration was interrupted; counts are partial."))
	}
	for _, entity := range r.order {
		if msg, ok := r.FailedEntities[entity]; ok {
			fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("%s stopped early: %s", entity, msg)))
		}
	}
	if len(r.OrphanedIdentities) > 0 {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("%d auth identities have no profile: %v", len(r.OrphanedIdentities), r.OrphanedIdentities)))
	}
	return nil
}
