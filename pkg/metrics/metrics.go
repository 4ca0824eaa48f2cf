// Package metrics 提供 Prometheus 指标定义与注册
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标集合
type Metrics struct {
	// 业务操作计数，按操作与结果区分
	OperationsTotal *prometheus.CounterVec
	// 业务操作耗时
	OperationDuration *prometheus.HistogramVec
	// 成交的兑换次数
	SwapsTotal *prometheus.CounterVec
	// 路径报价失败的候选数
	QuoteFailuresTotal prometheus.Counter
	// 再平衡产生的交易笔数
	RebalanceTradesTotal *prometheus.CounterVec
	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New 创建指标实例并注册到独立的 registry
func New(serviceName string) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "basket",
			Subsystem: serviceName,
			Name:      "operations_total",
			Help:      "Total fund operations by kind and result",
		}, []string{"operation", "result"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "basket",
			Subsystem: serviceName,
			Name:      "operation_duration_seconds",
			Help:      "Fund operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		SwapsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "basket",
			Subsystem: serviceName,
			Name:      "swaps_total",
			Help:      "Total swaps executed against the venue",
		}, []string{"kind"}),
		QuoteFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "basket",
			Subsystem: serviceName,
			Name:      "quote_failures_total",
			Help:      "Candidate paths rejected by the venue while quoting",
		}),
		RebalanceTradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "basket",
			Subsystem: serviceName,
			Name:      "rebalance_trades_total",
			Help:      "Trades executed by rebalance by phase",
		}, []string{"phase"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "basket",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "basket",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.OperationsTotal,
		m.OperationDuration,
		m.SwapsTotal,
		m.QuoteFailuresTotal,
		m.RebalanceTradesTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回底层 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveOperation 记录一次业务操作
func (m *Metrics) ObserveOperation(operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.OperationsTotal.WithLabelValues(operation, result).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordSwap 记录一次兑换
func (m *Metrics) RecordSwap(kind string) {
	if m == nil {
		return
	}
	m.SwapsTotal.WithLabelValues(kind).Inc()
}

// RecordQuoteFailure 记录一次候选路径报价失败
func (m *Metrics) RecordQuoteFailure() {
	if m == nil {
		return
	}
	m.QuoteFailuresTotal.Inc()
}

// RecordRebalanceTrade 记录一笔再平衡交易
func (m *Metrics) RecordRebalanceTrade(phase string) {
	if m == nil {
		return
	}
	m.RebalanceTradesTotal.WithLabelValues(phase).Inc()
}
