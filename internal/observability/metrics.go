package observability

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReceiverCollector bundles Prometheus metrics for the receiver pipeline and
// exposes a ready-to-serve /metrics handler. A nil collector is valid and
// records nothing, so the core never has to guard its instrumentation calls.
type ReceiverCollector struct {
	gatherer prometheus.Gatherer

	PacketsProcessed  prometheus.Counter
	Acquisitions      *prometheus.CounterVec
	SolveDurations    prometheus.Histogram
	InputQueueDepth   prometheus.Gauge
	ActiveChannels    prometheus.Gauge
	FullTrackChannels prometheus.Gauge
}

// NewReceiverCollector registers receiver Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry when nil.
func NewReceiverCollector(reg prometheus.Registerer) (*ReceiverCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	packets, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "receiver_packets_processed_total",
		Help: "Total number of 1 ms sample packets dispatched to tracking channels.",
	}), "receiver_packets_processed_total")
	if err != nil {
		return nil, err
	}

	acquisitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "receiver_acquisitions_total",
		Help: "Total number of successful acquisition searches, labeled by PRN.",
	}, []string{"prn"})
	acquisitions, err = registerCounterVec(reg, acquisitions, "receiver_acquisitions_total")
	if err != nil {
		return nil, err
	}

	solves, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "receiver_solve_duration_seconds",
		Help:    "Navigation solve latency in seconds.",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}), "receiver_solve_duration_seconds")
	if err != nil {
		return nil, err
	}

	queueDepth, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "receiver_input_queue_depth",
		Help: "Current number of sample packets waiting in the input queue.",
	}), "receiver_input_queue_depth")
	if err != nil {
		return nil, err
	}
	active, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "receiver_active_channels",
		Help: "Current number of live tracking channels.",
	}), "receiver_active_channels")
	if err != nil {
		return nil, err
	}
	fullTrack, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "receiver_fulltrack_channels",
		Help: "Current number of tracking channels at full track.",
	}), "receiver_fulltrack_channels")
	if err != nil {
		return nil, err
	}

	return &ReceiverCollector{
		gatherer:          gatherer,
		PacketsProcessed:  packets,
		Acquisitions:      acquisitions,
		SolveDurations:    solves,
		InputQueueDepth:   queueDepth,
		ActiveChannels:    active,
		FullTrackChannels: fullTrack,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *ReceiverCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// IncPacketsProcessed counts one dispatched packet.
func (c *ReceiverCollector) IncPacketsProcessed() {
	if c == nil || c.PacketsProcessed == nil {
		return
	}
	c.PacketsProcessed.Inc()
}

// IncAcquired counts one successful acquisition for the PRN.
func (c *ReceiverCollector) IncAcquired(prn int) {
	if c == nil || c.Acquisitions == nil {
		return
	}
	c.Acquisitions.WithLabelValues(strconv.Itoa(prn)).Inc()
}

// ObserveSolveDuration records one navigation solve latency.
func (c *ReceiverCollector) ObserveSolveDuration(seconds float64) {
	if c == nil || c.SolveDurations == nil {
		return
	}
	c.SolveDurations.Observe(seconds)
}

// SetQueueDepth tracks the input queue depth.
func (c *ReceiverCollector) SetQueueDepth(depth int) {
	if c == nil || c.InputQueueDepth == nil {
		return
	}
	c.InputQueueDepth.Set(float64(depth))
}

// SetChannelCounts tracks the live and full-track channel counts.
func (c *ReceiverCollector) SetChannelCounts(active, fullTrack int) {
	if c == nil {
		return
	}
	if c.ActiveChannels != nil {
		c.ActiveChannels.Set(float64(active))
	}
	if c.FullTrackChannels != nil {
		c.FullTrackChannels.Set(float64(fullTrack))
	}
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
