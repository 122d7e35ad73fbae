package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 生成运行的 Prometheus 指标，使用独立的 Registry
type Metrics struct {
	Registry *prometheus.Registry

	tasksTotal         *prometheus.CounterVec
	taskErrors         *prometheus.CounterVec
	taskAttempts       prometheus.Counter
	generationDuration prometheus.Histogram
	tasksInFlight      prometheus.Gauge
	workersCapacity    prometheus.Gauge
	tasksPlanned       prometheus.Gauge
}

// New 创建并注册全部指标
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synthgen_tasks_total",
				Help: "Total number of tasks that reached a terminal outcome",
			},
			[]string{"status"},
		),
		taskErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synthgen_task_errors_total",
				Help: "Total number of rejected tasks by error kind",
			},
			[]string{"kind"},
		),
		taskAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "synthgen_task_attempts_total",
				Help: "Total number of generation attempts including retries",
			},
		),
		generationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "synthgen_task_duration_seconds",
				Help:    "Wall time from task start to terminal outcome",
				Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		tasksInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "synthgen_tasks_in_flight",
				Help: "Number of tasks currently executing",
			},
		),
		workersCapacity: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "synthgen_worker_pool_capacity",
				Help: "Configured worker pool size",
			},
		),
		tasksPlanned: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "synthgen_tasks_planned",
				Help: "Number of tasks in the current run",
			},
		),
	}

	m.Registry.MustRegister(
		m.tasksTotal,
		m.taskErrors,
		m.taskAttempts,
		m.generationDuration,
		m.tasksInFlight,
		m.workersCapacity,
		m.tasksPlanned,
	)
	return m
}

// RunStarted 记录本次运行的规模
func (m *Metrics) RunStarted(tasks, workers int) {
	m.tasksPlanned.Set(float64(tasks))
	m.workersCapacity.Set(float64(workers))
}

// TaskStarted 任务开始执行
func (m *Metrics) TaskStarted() {
	m.tasksInFlight.Inc()
}

// TaskFinished 任务到达终态；kind 为空表示成功
func (m *Metrics) TaskFinished(status, kind string, attempts int, duration time.Duration) {
	m.tasksInFlight.Dec()
	m.tasksTotal.WithLabelValues(status).Inc()
	if kind != "" {
		m.taskErrors.WithLabelValues(kind).Inc()
	}
	m.taskAttempts.Add(float64(attempts))
	m.generationDuration.Observe(duration.Seconds())
}
