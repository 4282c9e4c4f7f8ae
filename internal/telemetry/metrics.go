package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cdcreader_fetch_latency_seconds",
		Help:    "Time spent in one fetch call until a non-empty batch arrived.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"task"})
	fetchedEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdcreader_fetched_entries_total",
		Help: "Raw entries fetched from the capture engine.",
	}, []string{"task"})
	payloadBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdcreader_payload_bytes_total",
		Help: "Binlog bytes covered by fetched batches.",
	}, []string{"task"})
	emptyPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdcreader_empty_polls_total",
		Help: "Fetch attempts that returned no batch.",
	}, []string{"task"})
	acks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdcreader_acks_total",
		Help: "Batches acknowledged to the capture engine.",
	}, []string{"task"})
	rollbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdcreader_rollbacks_total",
		Help: "Batches rolled back for redelivery.",
	}, []string{"task"})
	alarms = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdcreader_alarms_total",
		Help: "Alarms raised by capture engine instances.",
	}, []string{"task"})
)

// Reader binds the collectors to one task.
type Reader struct {
	fetchLatency   prometheus.Observer
	fetchedEntries prometheus.Counter
	payloadBytes   prometheus.Counter
	emptyPolls     prometheus.Counter
	acks           prometheus.Counter
	rollbacks      prometheus.Counter
	alarms         prometheus.Counter
}

func ForTask(taskID string) *Reader {
	return &Reader{
		fetchLatency:   fetchLatency.WithLabelValues(taskID),
		fetchedEntries: fetchedEntries.WithLabelValues(taskID),
		payloadBytes:   payloadBytes.WithLabelValues(taskID),
		emptyPolls:     emptyPolls.WithLabelValues(taskID),
		acks:           acks.WithLabelValues(taskID),
		rollbacks:      rollbacks.WithLabelValues(taskID),
		alarms:         alarms.WithLabelValues(taskID),
	}
}

func (r *Reader) ObserveFetch(d time.Duration, entries int, payload int64) {
	r.fetchLatency.Observe(d.Seconds())
	r.fetchedEntries.Add(float64(entries))
	r.payloadBytes.Add(float64(payload))
}

func (r *Reader) EmptyPoll() { r.emptyPolls.Inc() }
func (r *Reader) Ack()       { r.acks.Inc() }
func (r *Reader) Rollback()  { r.rollbacks.Inc() }
func (r *Reader) Alarm()     { r.alarms.Inc() }

func Expose(port int) {
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		_ = http.ListenAndServe(fmt.Sprintf(":%d", port), nil)
	}()
}
