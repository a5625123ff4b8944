// Package metrics 提供预测服务的 Prometheus 指标与独立的指标 HTTP 服务
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/menuforecast/pkg/logger"
)

// Metrics 指标集合。方法对 nil 接收者安全，未启用指标时可直接传 nil。
type Metrics struct {
	// 定时任务运行次数（按任务与结果）
	JobRunsTotal *prometheus.CounterVec
	// 定时任务耗时
	JobDuration *prometheus.HistogramVec
	// 生成的预测数
	PredictionsGenerated prometheus.Counter
	// 生成失败数（按原因）
	PredictionFailures *prometheus.CounterVec
	// 预测准确率分布
	PredictionAccuracy prometheus.Histogram
	// 聚合写入的历史桶数
	BucketsAggregated prometheus.Counter
	// HTTP 请求
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration prometheus.Histogram
}

// New 创建指标实例并注册到 registerer
func New(serviceName string, registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		JobRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forecast",
			Subsystem: serviceName,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job and outcome.",
		}, []string{"job", "status"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "forecast",
			Subsystem: serviceName,
			Name:      "job_duration_seconds",
			Help:      "Scheduled job duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"job"}),
		PredictionsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forecast",
			Subsystem: serviceName,
			Name:      "predictions_generated_total",
			Help:      "Total predictions generated.",
		}),
		PredictionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forecast",
			Subsystem: serviceName,
			Name:      "prediction_failures_total",
			Help:      "Prediction generation failures by reason.",
		}, []string{"reason"}),
		PredictionAccuracy: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "forecast",
			Subsystem: serviceName,
			Name:      "prediction_accuracy",
			Help:      "Accuracy of scored predictions.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		BucketsAggregated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forecast",
			Subsystem: serviceName,
			Name:      "buckets_aggregated_total",
			Help:      "Historical buckets written by aggregation.",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forecast",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by route and status.",
		}, []string{"route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "forecast",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	collectors := []prometheus.Collector{
		m.JobRunsTotal,
		m.JobDuration,
		m.PredictionsGenerated,
		m.PredictionFailures,
		m.PredictionAccuracy,
		m.BucketsAggregated,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return m, nil
}

// RecordJob 记录一次任务运行
func (m *Metrics) RecordJob(job, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
	m.JobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// RecordPrediction 记录一次成功生成
func (m *Metrics) RecordPrediction() {
	if m == nil {
		return
	}
	m.PredictionsGenerated.Inc()
}

// RecordPredictionFailure 记录一次生成失败
func (m *Metrics) RecordPredictionFailure(reason string) {
	if m == nil {
		return
	}
	m.PredictionFailures.WithLabelValues(reason).Inc()
}

// RecordAccuracy 记录一次准确率评分
func (m *Metrics) RecordAccuracy(accuracy float64) {
	if m == nil {
		return
	}
	m.PredictionAccuracy.Observe(accuracy)
}

// RecordBuckets 记录聚合写入的桶数
func (m *Metrics) RecordBuckets(n int) {
	if m == nil {
		return
	}
	m.BucketsAggregated.Add(float64(n))
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, fmt.Sprint(status)).Inc()
	m.HTTPRequestDuration.Observe(d.Seconds())
}

// Server Prometheus 指标 HTTP 服务
type Server struct {
	srv *http.Server
}

// NewServer 创建指标服务
func NewServer(port int, path string, gatherer prometheus.Gatherer) *Server {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &Server{srv: &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start 阻塞运行，正常关闭时返回 nil
func (s *Server) Start() error {
	logger.Info(context.Background(), "Starting Prometheus HTTP server", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
