// Package prometheus exposes the execution tracker's per-capability metrics
// to Prometheus.
package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"goa.design/agentdesk/runtime/tracker"
)

// Source provides metric snapshots. *tracker.Tracker implements it.
type Source interface {
	AllMetrics() []tracker.Metrics
}

// Collector implements prometheus.Collector over a Source. Values are read
// at scrape time so they always match the tracker.
type Collector struct {
	source      Source
	invocations *prometheus.Desc
	successes   *prometheus.Desc
	errors      *prometheus.Desc
	avgResponse *prometheus.Desc
	successRate *prometheus.Desc
	lastSeen    *prometheus.Desc
	running     *prometheus.Desc
	runningFunc func() int
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a Collector reading from source. When source is a
// *tracker.Tracker the number of in-flight executions is exported too.
func NewCollector(source Source) *Collector {
	labels := []string{"capability"}
	c := &Collector{
		source:      source,
		invocations: prometheus.NewDesc("agentdesk_capability_invocations_total", "Executions started per capability.", labels, nil),
		successes:   prometheus.NewDesc("agentdesk_capability_successes_total", "Executions completed per capability.", labels, nil),
		errors:      prometheus.NewDesc("agentdesk_capability_errors_total", "Executions failed per capability.", labels, nil),
		avgResponse: prometheus.NewDesc("agentdesk_capability_response_ms_avg", "Running mean response time in milliseconds.", labels, nil),
		successRate: prometheus.NewDesc("agentdesk_capability_success_ratio", "Completed executions over invocations.", labels, nil),
		lastSeen:    prometheus.NewDesc("agentdesk_capability_last_invocation_seconds", "Unix time of the last terminal execution.", labels, nil),
		running:     prometheus.NewDesc("agentdesk_executions_running", "Executions currently in flight.", nil, nil),
	}
	if t, ok := source.(*tracker.Tracker); ok {
		c.runningFunc = func() int { return len(t.Running()) }
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.invocations
	ch <- c.successes
	ch <- c.errors
	ch <- c.avgResponse
	ch <- c.successRate
	ch <- c.lastSeen
	if c.runningFunc != nil {
		ch <- c.running
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.source.AllMetrics() {
		id := m.CapabilityID
		ch <- prometheus.MustNewConstMetric(c.invocations, prometheus.CounterValue, float64(m.Invocations), id)
		ch <- prometheus.MustNewConstMetric(c.successes, prometheus.CounterValue, float64(m.Successes), id)
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(m.Errors), id)
		ch <- prometheus.MustNewConstMetric(c.avgResponse, prometheus.GaugeValue, m.AvgResponseMs, id)
		ch <- prometheus.MustNewConstMetric(c.successRate, prometheus.GaugeValue, m.SuccessRate(), id)
		if !m.LastInvocation.IsZero() {
			ch <- prometheus.MustNewConstMetric(c.lastSeen, prometheus.GaugeValue, float64(m.LastInvocation.Unix()), id)
		}
	}
	if c.runningFunc != nil {
		ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, float64(c.runningFunc()))
	}
}

// Handler returns an HTTP handler serving the metrics of a registry holding
// the collector.
func Handler(source Source) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(source)); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}), nil
}
