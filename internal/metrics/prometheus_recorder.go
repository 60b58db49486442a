package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once           sync.Once
	stageDuration  *prom.HistogramVec
	deployDuration prom.Histogram
	stageResults   *prom.CounterVec
	deployOutcome  *prom.CounterVec
	uploadBytes    prom.Histogram
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "nekodeploy",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual deployment stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.deployDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "nekodeploy",
			Name:      "deploy_duration_seconds",
			Help:      "Total deployment duration",
			Buckets:   prom.DefBuckets,
		})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "nekodeploy",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.deployOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "nekodeploy",
			Name:      "deploy_outcomes_total",
			Help:      "Deployment outcomes by final status",
		}, []string{"outcome"})
		pr.uploadBytes = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "nekodeploy",
			Name:      "upload_bytes",
			Help:      "Size of uploaded archives in bytes",
			Buckets:   prom.ExponentialBuckets(1024, 4, 10),
		})
		reg.MustRegister(pr.stageDuration, pr.deployDuration, pr.stageResults, pr.deployOutcome, pr.uploadBytes)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveDeployDuration(d time.Duration) {
	if p == nil || p.deployDuration == nil {
		return
	}
	p.deployDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncDeployOutcome(outcome string) {
	if p == nil || p.deployOutcome == nil {
		return
	}
	p.deployOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveUploadBytes(n int64) {
	if p == nil || p.uploadBytes == nil {
		return
	}
	p.uploadBytes.Observe(float64(n))
}
