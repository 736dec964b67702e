// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// JobName はPushgatewayに送るジョブ名。
const JobName = "castmigrate"

// Collector はPrometheusメトリクスを収集する実装。
// migration.Recorderとして移行ループから利用する。
type Collector struct {
	rows          *prometheus.CounterVec
	entityLatency *prometheus.HistogramVec
	compensations *prometheus.CounterVec
	lastRun       prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "castmigrate_rows_total",
			Help: "エンティティ・結果別の処理ドキュメント数",
		}, []string{"entity", "result"}),
		entityLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "castmigrate_entity_duration_seconds",
			Help:    "エンティティ1種類の移行にかかった時間（秒）",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"entity"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "castmigrate_identity_compensations_total",
			Help: "プロフィール書き込み失敗時の認証ID削除の結果別件数",
		}, []string{"result"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "castmigrate_last_run_timestamp_seconds",
			Help: "最後に移行を完了した時刻（UNIX秒）",
		}),
	}

	reg.MustRegister(
		c.rows,
		c.entityLatency,
		c.compensations,
		c.lastRun,
	)

	return c
}

// RecordRow は1ドキュメントの処理結果を記録する。
func (c *Collector) RecordRow(entity, result string) {
	c.rows.WithLabelValues(entity, result).Inc()
}

// ObserveEntityDuration はエンティティの移行時間を記録する。
func (c *Collector) ObserveEntityDuration(entity string, d time.Duration) {
	c.entityLatency.WithLabelValues(entity).Observe(d.Seconds())
}

// RecordCompensation は認証IDの補償削除の結果を記録する。
func (c *Collector) RecordCompensation(result string) {
	c.compensations.WithLabelValues(result).Inc()
}

// MarkRunFinished は実行完了時刻を記録する。
func (c *Collector) MarkRunFinished(at time.Time) {
	c.lastRun.Set(float64(at.Unix()))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Push はgathererの内容をPushgatewayに送る。
// バッチ処理は短命でスクレイプに間に合わないため、終了時にまとめて送る。
func Push(ctx context.Context, url string, gatherer prometheus.Gatherer) error {
	err := push.New(url, JobName).
		Gatherer(gatherer).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
