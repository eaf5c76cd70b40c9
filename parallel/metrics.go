package parallel

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	opCompress   = "compress"
	opDecompress = "decompress"
)

// Metrics counts the blocks a Dispatcher processes. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	blocks        *prometheus.CounterVec
	inputBytes    *prometheus.CounterVec
	outputBytes   *prometheus.CounterVec
	blockDuration *prometheus.HistogramVec
}

// NewMetrics creates the dispatcher metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	labels := []string{"operation"}
	m := &Metrics{
		blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goz4hc_blocks_total",
			Help: "Total number of blocks processed",
		}, labels),
		inputBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goz4hc_input_bytes_total",
			Help: "Total number of bytes read by block operations",
		}, labels),
		outputBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goz4hc_output_bytes_total",
			Help: "Total number of bytes produced by block operations",
		}, labels),
		blockDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "goz4hc_block_duration_seconds",
			Help:    "Time spent on a single block",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, labels),
	}

	for _, c := range []prometheus.Collector{m.blocks, m.inputBytes, m.outputBytes, m.blockDuration} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "Failed to register dispatcher metric")
		}
	}
	return m, nil
}

func (m *Metrics) observe(op string, in, out int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.blocks.WithLabelValues(op).Inc()
	m.inputBytes.WithLabelValues(op).Add(float64(in))
	m.outputBytes.WithLabelValues(op).Add(float64(out))
	m.blockDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}
