package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mailgov"

// Metrics 监控指标
//
// 实现 service.Recorder 和 plesk.Observer。
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 对账指标
	RunsTotal         *prometheus.CounterVec
	RunDuration       prometheus.Histogram
	LastRunTimestamp  *prometheus.GaugeVec
	GovernedMailboxes prometheus.Gauge
	CreationsTotal    *prometheus.CounterVec
	RemovalsTotal     *prometheus.CounterVec
	IssuesTotal       prometheus.Counter

	// 控制面指标
	CommandDuration *prometheus.HistogramVec

	// 通知指标
	NotificationsTotal *prometheus.CounterVec
	DetachedFailures   prometheus.Counter

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标并注册到独立的注册表
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of reconciliation runs by status",
			},
			[]string{"status"},
		),

		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Reconciliation run duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
			},
		),

		LastRunTimestamp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last finished run by status",
			},
			[]string{"status"},
		),

		GovernedMailboxes: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "governed_mailboxes",
				Help:      "Number of governed mailboxes after the last run",
			},
		),

		CreationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mailbox_creations_total",
				Help:      "Mailbox creation attempts by kind and result",
			},
			[]string{"kind", "result"},
		),

		RemovalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mailbox_removals_total",
				Help:      "Mailbox removal attempts by result",
			},
			[]string{"result"},
		),

		IssuesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "issues_total",
				Help:      "Total number of issues recorded by reconciliation runs",
			},
		),

		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "control_plane_command_duration_seconds",
				Help:      "Control plane command duration by operation and outcome",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"op", "outcome"},
		),

		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Owner notifications by result",
			},
			[]string{"result"},
		),

		DetachedFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "detached_task_failures_total",
				Help:      "Background tasks that failed, panicked or were dropped",
			},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "panics_total",
				Help:      "Total number of panics",
			},
		),
	}
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRun 记录一次对账
func (m *Metrics) RecordRun(status string, d time.Duration) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
	m.LastRunTimestamp.WithLabelValues(status).SetToCurrentTime()
}

// SetGovernedMailboxes 更新受管邮箱数
func (m *Metrics) SetGovernedMailboxes(n int) {
	m.GovernedMailboxes.Set(float64(n))
}

// RecordCreation 记录邮箱创建
func (m *Metrics) RecordCreation(kind string, ok bool) {
	m.CreationsTotal.WithLabelValues(kind, result(ok)).Inc()
}

// RecordRemoval 记录邮箱删除
func (m *Metrics) RecordRemoval(ok bool) {
	m.RemovalsTotal.WithLabelValues(result(ok)).Inc()
}

// RecordIssue 记录对账 issue
func (m *Metrics) RecordIssue() {
	m.IssuesTotal.Inc()
}

// RecordNotification 记录通知发送
func (m *Metrics) RecordNotification(ok bool) {
	m.NotificationsTotal.WithLabelValues(result(ok)).Inc()
}

// ObserveCommand 记录控制面调用耗时
func (m *Metrics) ObserveCommand(op, outcome string, d time.Duration) {
	m.CommandDuration.WithLabelValues(op, outcome).Observe(d.Seconds())
}

// RecordDetachedFailure 记录后台任务失败
func (m *Metrics) RecordDetachedFailure() {
	m.DetachedFailures.Inc()
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
