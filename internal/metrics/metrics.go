// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層・ミドルウェア・ワーカーから利用する。
type MetricsCollector interface {
	RecordAuthAttempt(method, outcome string)
	RecordMembershipTransition(action, outcome string)
	RecordPolicyDenial(action string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordResetsPurged(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authAttempts   *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	policyDenials  *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	resetsPurged   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playnet_auth_attempts_total",
			Help: "認証試行の合計数（方式・結果別）",
		}, []string{"method", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playnet_membership_transitions_total",
			Help: "メンバーシップ状態遷移の合計数（操作・結果別）",
		}, []string{"action", "outcome"}),
		policyDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playnet_policy_denials_total",
			Help: "認可判定で拒否された操作の合計数",
		}, []string{"action"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playnet_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "playnet_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		resetsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playnet_password_resets_purged_total",
			Help: "クリーンアップで削除されたパスワードリセット要求の合計数",
		}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.transitions,
		c.policyDenials,
		c.httpStatus,
		c.requestLatency,
		c.resetsPurged,
	)

	return c
}

// RecordAuthAttempt は認証試行を記録する。methodはregister/login/oauth/reset等。
func (c *Collector) RecordAuthAttempt(method, outcome string) {
	c.authAttempts.WithLabelValues(method, outcome).Inc()
}

// RecordMembershipTransition はメンバーシップ操作の結果を記録する。
func (c *Collector) RecordMembershipTransition(action, outcome string) {
	c.transitions.WithLabelValues(action, outcome).Inc()
}

// RecordPolicyDenial は認可拒否を記録する。
func (c *Collector) RecordPolicyDenial(action string) {
	c.policyDenials.WithLabelValues(action).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordResetsPurged は削除されたリセット要求数を記録する。
func (c *Collector) RecordResetsPurged(count int) {
	c.resetsPurged.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordAuthAttempt(string, string)          {}
func (Nop) RecordMembershipTransition(string, string) {}
func (Nop) RecordPolicyDenial(string)                 {}
func (Nop) RecordHTTPStatus(int)                      {}
func (Nop) RecordRequestLatency(time.Duration)        {}
func (Nop) RecordResetsPurged(int)                    {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute はワーカープロセス用に/metricsと/healthだけを持つハンドラーを返す。
// /healthはhealthcheckサブコマンドがAPIと同じ手順で叩けるようにするためのもの。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler(gatherer))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// compile-time interface checks
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
