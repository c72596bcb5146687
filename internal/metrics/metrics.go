package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"

	"bulkmail/internal/dispatch"
)

type Metrics struct {
	registry            *prometheus.Registry
	DispatchRunsCounter *prometheus.CounterVec
	RecipientsCounter   *prometheus.CounterVec
	OpenSessionsGauge   prometheus.Gauge
	MemoryUsageGauge    prometheus.GaugeFunc
	CpuUsageGauge       prometheus.GaugeFunc
}

// NewMetrics registers every collector on a private registry so that several
// instances can live in the same process.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DispatchRunsCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulkmail_dispatch_runs_total",
				Help: "Total number of bulk dispatch calls by result.",
			},
			[]string{"result"},
		),
		RecipientsCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulkmail_recipients_total",
				Help: "Total number of recipients by outcome.",
			},
			[]string{"status"},
		),
		OpenSessionsGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bulkmail_relay_sessions_open",
				Help: "Number of relay sessions currently open.",
			},
		),
		MemoryUsageGauge: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "bulkmail_host_memory_used_percent",
				Help: "Host memory usage percentage.",
			},
			hostMemoryPercent,
		),
		CpuUsageGauge: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "bulkmail_host_cpu_usage_percent",
				Help: "Host CPU usage percentage since the previous scrape.",
			},
			hostCpuPercent,
		),
	}

	m.registry.MustRegister(
		m.DispatchRunsCounter,
		m.RecipientsCounter,
		m.OpenSessionsGauge,
		m.MemoryUsageGauge,
		m.CpuUsageGauge,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRun(result string) {
	m.DispatchRunsCounter.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveOutcomes(outcomes []dispatch.Outcome) {
	for _, o := range outcomes {
		m.RecipientsCounter.WithLabelValues(string(o.Status)).Inc()
	}
}

func (m *Metrics) SessionOpened() {
	m.OpenSessionsGauge.Inc()
}

func (m *Metrics) SessionClosed() {
	m.OpenSessionsGauge.Dec()
}

func hostMemoryPercent() float64 {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return v.UsedPercent
}

func hostCpuPercent() float64 {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		return 0
	}
	return percents[0]
}
