// Package metrics 定义控制引擎的Prometheus监控指标与健康检查端点。
package metrics

import (
	"net/http"

	"connectrpc.com/connect"
	syncer "git.fiblab.net/sim/syncer/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "signalet"

	// Pattern Prometheus抓取端点路径
	Pattern = "/metrics"
	// HealthPattern 健康检查端点路径
	HealthPattern = "/healthz"
)

var (
	// EngineCycles 已执行的控制周期数
	EngineCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "cycles_total",
		Help:      "Number of control cycles executed",
	})

	// CycleDuration 单个控制周期的耗时分布
	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "cycle_duration_seconds",
		Help:      "Wall-clock duration of one control cycle",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// CycleOverruns 超过截止时间的控制周期数
	CycleOverruns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "cycle_overruns_total",
		Help:      "Number of control cycles that hit the deadline before finishing",
	})

	// PlansComputed 按结果分类的方案生成数，result取值
	// optimized、fallback、retained
	PlansComputed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "plans_total",
		Help:      "Number of signal plans produced per cycle by result",
	}, []string{"result"})

	// ControlledJunctions 当前受控路口数
	ControlledJunctions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "controlled_junctions",
		Help:      "Number of junctions currently under adaptive control",
	})

	// DegradedJunctions 当前处于降级状态的路口数
	DegradedJunctions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "degraded_junctions",
		Help:      "Number of junctions currently running on fail-safe plans",
	})

	// DispatchOutcomes 按结果分类的下发数，outcome取值
	// acknowledged、rejected、timed_out、skipped
	DispatchOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "commands_total",
		Help:      "Number of dispatched signal plan commands by outcome",
	}, []string{"outcome"})

	// PredictorUnavailable 预测服务不可用的次数
	PredictorUnavailable = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "predictor",
		Name:      "unavailable_total",
		Help:      "Number of prediction requests that failed and fell back to live data",
	})
)

func init() {
	prometheus.MustRegister(
		EngineCycles,
		CycleDuration,
		CycleOverruns,
		PlansComputed,
		ControlledJunctions,
		DegradedJunctions,
		DispatchOutcomes,
		PredictorUnavailable,
	)
}

// RegisterTelemetrySource 将遥测缓存的接收计数暴露为Prometheus指标。
// stats返回累计的accepted、outOfOrder、unknown计数。
func RegisterTelemetrySource(stats func() (accepted, outOfOrder, unknown uint64)) {
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      name,
			Help:      help,
		}
	}
	prometheus.MustRegister(
		prometheus.NewCounterFunc(opts("observations_accepted_total", "Number of observations accepted into the cache"), func() float64 {
			accepted, _, _ := stats()
			return float64(accepted)
		}),
		prometheus.NewCounterFunc(opts("observations_out_of_order_total", "Number of observations dropped for non-increasing timestamps"), func() float64 {
			_, outOfOrder, _ := stats()
			return float64(outOfOrder)
		}),
		prometheus.NewCounterFunc(opts("observations_unknown_total", "Number of observations referencing unknown junctions or approaches"), func() float64 {
			_, _, unknown := stats()
			return float64(unknown)
		}),
	)
}

// Handler 返回Prometheus抓取端点
func Handler() http.Handler {
	return promhttp.Handler()
}

// Register 将监控与健康检查端点挂到sidecar的HTTP服务上
func Register(sidecar *syncer.Sidecar, health http.Handler) {
	sidecar.Register("metrics", func(opts ...connect.HandlerOption) (string, http.Handler) {
		return Pattern, Handler()
	}, syncer.WithNoLock())
	sidecar.Register("health", func(opts ...connect.HandlerOption) (string, http.Handler) {
		return HealthPattern, health
	}, syncer.WithNoLock())
}
