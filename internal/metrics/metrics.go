// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 回答の処理結果ラベル。
const (
	OutcomeAccepted  = "accepted"
	OutcomeDuplicate = "duplicate"
	OutcomeInactive  = "inactive"
	OutcomeInvalid   = "invalid"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordRoundCreated()
	RecordRoundEnded()
	RecordResponse(outcome string)
	RecordShare(platform string)
	RecordOTPDispatch(channel string, ok bool)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordQuestionsImported(count int)
	SetLiveConnections(n int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	roundsCreated     prometheus.Counter
	roundsEnded       prometheus.Counter
	responses         *prometheus.CounterVec
	shares            *prometheus.CounterVec
	otpDispatch       *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
	requestLatency    prometheus.Histogram
	questionsImported prometheus.Counter
	liveConnections   prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		roundsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wordcloud_rounds_created_total",
			Help: "作成されたラウンドの合計数",
		}),
		roundsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wordcloud_rounds_ended_total",
			Help: "終了したラウンドの合計数",
		}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wordcloud_responses_total",
			Help: "処理結果別の回答数",
		}, []string{"outcome"}),
		shares: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wordcloud_shares_total",
			Help: "プラットフォーム別のシェア数",
		}, []string{"platform"}),
		otpDispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wordcloud_otp_dispatch_total",
			Help: "チャネル・結果別のOTP送信数",
		}, []string{"channel", "result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wordcloud_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wordcloud_request_latency_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		questionsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wordcloud_questions_imported_total",
			Help: "フィードから取り込んだお題の合計数",
		}),
		liveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wordcloud_live_connections",
			Help: "接続中のWebSocketクライアント数",
		}),
	}

	reg.MustRegister(
		c.roundsCreated,
		c.roundsEnded,
		c.responses,
		c.shares,
		c.otpDispatch,
		c.httpStatus,
		c.requestLatency,
		c.questionsImported,
		c.liveConnections,
	)

	return c
}

// RecordRoundCreated はラウンド作成を記録する。
func (c *Collector) RecordRoundCreated() {
	c.roundsCreated.Inc()
}

// RecordRoundEnded はラウンド終了を記録する。
func (c *Collector) RecordRoundEnded() {
	c.roundsEnded.Inc()
}

// RecordResponse は回答の処理結果を記録する。
func (c *Collector) RecordResponse(outcome string) {
	c.responses.WithLabelValues(outcome).Inc()
}

// RecordShare はシェアを記録する。
func (c *Collector) RecordShare(platform string) {
	c.shares.WithLabelValues(platform).Inc()
}

// RecordOTPDispatch はOTP送信結果を記録する。
func (c *Collector) RecordOTPDispatch(channel string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	c.otpDispatch.WithLabelValues(channel, result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordQuestionsImported は取り込んだお題数を記録する。
func (c *Collector) RecordQuestionsImported(count int) {
	c.questionsImported.Add(float64(count))
}

// SetLiveConnections は接続中のWebSocketクライアント数を設定する。
func (c *Collector) SetLiveConnections(n int) {
	c.liveConnections.Set(float64(n))
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordRoundCreated() {}
func (NopCollector) RecordRoundEnded() {}
func (NopCollector) RecordResponse(string) {}
func (NopCollector) RecordShare(string) {}
func (NopCollector) RecordOTPDispatch(string, bool) {}
func (NopCollector) RecordHTTPStatus(int) {}
func (NopCollector) RecordRequestLatency(time.Duration) {}
func (NopCollector) RecordQuestionsImported(int) {}
func (NopCollector) SetLiveConnections(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Middleware はレスポンスのステータスコードと処理時間を記録するミドルウェアを返す。
func Middleware(c MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)
			c.RecordHTTPStatus(rec.statusCode)
			c.RecordRequestLatency(time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack はWebSocketへのアップグレード時に元のResponseWriterへ委譲する。
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
