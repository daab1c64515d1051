package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zhufengGNSS/SDGPSR/internal/logging"
	"github.com/zhufengGNSS/SDGPSR/internal/observability"
	"github.com/zhufengGNSS/SDGPSR/model"
)

// Acquisition and solve policy defaults. The acquisition figures follow
// common L1 C/A practice: ten non-coherent integrations over a +/-5 kHz sweep
// in 500 Hz steps, a grid that always contains the 0 Hz bias hypothesis.
const (
	defaultAcqIntegrations      = 10
	acqFreqHalfBandHz           = 5000.0
	acqFreqStepHz               = 500.0
	defaultMinChannelsForSolve  = 4
	defaultSolveIntervalPackets = 100

	// nominalTransitS is the assumed signal transit time used to anchor
	// the common receive epoch against the latest transmit time.
	nominalTransitS = 0.075
)

// ChannelStatus is one entry of a tracking status snapshot.
type ChannelStatus struct {
	PRN   int
	State model.TrackState
}

// Receiver is a software-defined GPS L1 receiver. It consumes baseband IQ
// data in 1 ms packets through BasebandSignal and launches its own worker
// goroutine for all processing, so the public methods return immediately.
// Roughly 35 seconds of data are needed before a navigation solution is
// possible: each nav frame takes 30 seconds, and some data is consumed by the
// search and tracker bring-up.
type Receiver struct {
	fs            float64
	clockOffsetHz float64

	// Queue of 1 ms input packets. FIFO, unbounded by design: ingestion
	// never blocks and never fails, and the caller is responsible for not
	// outrunning the worker indefinitely.
	input   []model.SamplePacket
	inputMu sync.Mutex

	channels  []*TrackingChannel
	channelMu sync.Mutex

	navPos     model.Vec3
	navTOW     float64
	navStarted bool
	navMu      sync.Mutex

	run        atomic.Bool
	syncedFlag atomic.Bool
	wake       chan struct{}
	stop       chan struct{}
	done       chan struct{}

	corr    *Correlator
	factory TrackerFactory
	solver  Solver

	targetPRNs      []int
	acqIntegrations int
	minChannels     int
	solveInterval   int

	searchBuf        []model.SamplePacket
	acquired         bool
	packetsSinceSolv int

	log     logging.Logger
	metrics *observability.ReceiverCollector
	tracer  trace.Tracer
}

// Option configures a Receiver.
type Option func(*Receiver)

// WithLogger supplies a structured logger; the default drops all logs.
func WithLogger(log logging.Logger) Option {
	return func(r *Receiver) { r.log = log }
}

// WithMetrics attaches a Prometheus collector. A nil collector is valid and
// records nothing.
func WithMetrics(c *observability.ReceiverCollector) Option {
	return func(r *Receiver) { r.metrics = c }
}

// WithTrackerFactory replaces the default loop-tracker factory.
func WithTrackerFactory(f TrackerFactory) Option {
	return func(r *Receiver) { r.factory = f }
}

// WithSolver replaces the default iterative least-squares solver.
func WithSolver(s Solver) Option {
	return func(r *Receiver) { r.solver = s }
}

// WithTargetPRNs restricts the acquisition search to the given PRNs. The
// default searches the full constellation, PRN 1-32.
func WithTargetPRNs(prns []int) Option {
	return func(r *Receiver) { r.targetPRNs = prns }
}

// WithMinChannelsForSolve sets how many full-track channels are required
// before a navigation solve is attempted. The default of 4 is the minimum
// for the 4-unknown position/clock estimate.
func WithMinChannelsForSolve(n int) Option {
	return func(r *Receiver) { r.minChannels = n }
}

// WithSolveInterval sets the solve cadence in packets once enough channels
// are at full track. The default re-solves every 100 packets (10 Hz).
func WithSolveInterval(packets int) Option {
	return func(r *Receiver) { r.solveInterval = packets }
}

// WithAcquisitionIntegrations sets how many 1 ms packets are non-coherently
// combined during the bring-up search.
func WithAcquisitionIntegrations(n int) Option {
	return func(r *Receiver) { r.acqIntegrations = n }
}

// NewReceiver constructs a receiver for the given sample rate and hardware
// clock offset (Hz, applied to all replica generation) and starts its worker
// goroutine.
func NewReceiver(fs, clockOffsetHz float64, opts ...Option) *Receiver {
	r := &Receiver{
		fs:              fs,
		clockOffsetHz:   clockOffsetHz,
		wake:            make(chan struct{}, 1),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
		corr:            NewCorrelator(fs, clockOffsetHz),
		solver:          NewLeastSquaresSolver(),
		acqIntegrations: defaultAcqIntegrations,
		minChannels:     defaultMinChannelsForSolve,
		solveInterval:   defaultSolveIntervalPackets,
		log:             logging.Noop(),
		tracer:          otel.Tracer("sdgpsr/core"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.factory == nil {
		r.factory = NewLoopTrackerFactory(nil)
	}
	if len(r.targetPRNs) == 0 {
		for prn := 1; prn <= 32; prn++ {
			r.targetPRNs = append(r.targetPRNs, prn)
		}
	}
	if r.acqIntegrations < 1 {
		r.acqIntegrations = 1
	}
	if r.solveInterval < 1 {
		r.solveInterval = 1
	}

	r.run.Store(true)
	r.syncedFlag.Store(true) // nothing queued yet
	go r.worker()
	return r
}

// BasebandSignal enqueues one millisecond of baseband IQ data. Ownership of
// the packet transfers to the receiver. The call never blocks on processing;
// packets enqueued after Close are dropped.
func (r *Receiver) BasebandSignal(packet model.SamplePacket) {
	if !r.run.Load() {
		return
	}
	r.inputMu.Lock()
	r.input = append(r.input, packet)
	depth := len(r.input)
	// Clear the drain flag while still holding the queue lock so it cannot
	// race the worker's emptiness check in dequeue.
	r.syncedFlag.Store(false)
	r.inputMu.Unlock()

	r.metrics.SetQueueDepth(depth)

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Synced reports whether all enqueued data has been processed.
func (r *Receiver) Synced() bool {
	return r.syncedFlag.Load()
}

// PositionECEF returns the latest user position estimate in the WGS84 ECEF
// frame (metres).
func (r *Receiver) PositionECEF() model.Vec3 {
	r.navMu.Lock()
	defer r.navMu.Unlock()
	return r.navPos
}

// PositionLLA returns the latest user position as latitude/longitude
// (degrees) and altitude (metres).
func (r *Receiver) PositionLLA() model.LLA {
	return ECEFToLLA(r.PositionECEF())
}

// TimeOfWeek returns the latest GPS time-of-week estimate in seconds.
func (r *Receiver) TimeOfWeek() float64 {
	r.navMu.Lock()
	defer r.navMu.Unlock()
	return r.navTOW
}

// NavSolution reports whether at least one navigation solve has succeeded.
func (r *Receiver) NavSolution() bool {
	r.navMu.Lock()
	defer r.navMu.Unlock()
	return r.navStarted
}

// TrackingStatus returns a snapshot of (PRN, state) for all active channels.
func (r *Receiver) TrackingStatus() []ChannelStatus {
	r.channelMu.Lock()
	defer r.channelMu.Unlock()
	status := make([]ChannelStatus, 0, len(r.channels))
	for _, ch := range r.channels {
		status = append(status, ChannelStatus{PRN: ch.PRN(), State: ch.State()})
	}
	return status
}

// Close stops the worker, joins it, and releases all channels and queued
// data. Closing an already-closed receiver is an invalid call sequence and
// returns an error.
func (r *Receiver) Close() error {
	if !r.run.CompareAndSwap(true, false) {
		return errors.New("receiver: already closed")
	}
	close(r.stop)
	<-r.done

	r.inputMu.Lock()
	r.input = nil
	r.inputMu.Unlock()

	r.channelMu.Lock()
	r.channels = nil
	r.channelMu.Unlock()
	return nil
}

// worker is the single background processing goroutine. Packets are handled
// strictly in enqueue order; every active channel sees packet N before any
// channel sees packet N+1.
func (r *Receiver) worker() {
	defer close(r.done)
	r.log.Debug(context.Background(), "worker started",
		logging.Any("sample_rate_hz", r.fs),
		logging.Any("clock_offset_hz", r.clockOffsetHz),
	)

	for r.run.Load() {
		packet, ok := r.dequeue()
		if !ok {
			select {
			case <-r.wake:
			case <-r.stop:
			}
			continue
		}
		r.processPacket(packet)
	}
}

func (r *Receiver) dequeue() (model.SamplePacket, bool) {
	r.inputMu.Lock()
	defer r.inputMu.Unlock()
	if len(r.input) == 0 {
		// Set the drain flag under the queue lock: an enqueue can then
		// never interleave between the emptiness check and the store,
		// which would leave Synced true with a packet in flight.
		r.syncedFlag.Store(true)
		return nil, false
	}
	packet := r.input[0]
	r.input = r.input[1:]
	r.metrics.SetQueueDepth(len(r.input))
	return packet, true
}

func (r *Receiver) processPacket(packet model.SamplePacket) {
	if !r.acquired {
		r.searchBuf = append(r.searchBuf, packet)
		if len(r.searchBuf) >= r.acqIntegrations {
			r.runAcquisition()
			r.acquired = true
			r.searchBuf = nil
		}
		return
	}
	r.dispatch(packet)
}

// runAcquisition searches every target PRN against the buffered bring-up
// packets and spawns a tracking channel per satellite found.
func (r *Receiver) runAcquisition() {
	ctx, span := r.tracer.Start(context.Background(), "acquisition.search",
		trace.WithAttributes(attribute.Int("packets", len(r.searchBuf))))
	defer span.End()

	spectra := make([][]complex128, len(r.searchBuf))
	for i, p := range r.searchBuf {
		spectra[i] = r.corr.PacketSpectrum(p)
	}

	found := 0
	for _, prn := range r.targetPRNs {
		result := r.corr.Search(spectra, prn, r.acqIntegrations, -acqFreqHalfBandHz, acqFreqHalfBandHz, acqFreqStepHz)
		if !result.Found {
			r.log.Debug(ctx, "satellite not found",
				logging.Int("prn", prn),
				logging.Any("confidence", result.Confidence),
			)
			continue
		}
		found++
		r.metrics.IncAcquired(prn)
		r.log.Info(ctx, "satellite acquired",
			logging.Int("prn", prn),
			logging.Int("code_phase", result.CodePhase),
			logging.Any("freq_offset_hz", result.FreqOffsetHz),
			logging.Any("confidence", result.Confidence),
		)

		channel := NewTrackingChannel(r.fs, prn, result, r.factory, r.log)
		r.channelMu.Lock()
		r.channels = append(r.channels, channel)
		r.channelMu.Unlock()
	}
	span.SetAttributes(attribute.Int("satellites_found", found))
}

// dispatch feeds one packet to every active channel, drops exhausted
// channels, and triggers a navigation solve when enough channels hold full
// lock.
func (r *Receiver) dispatch(packet model.SamplePacket) {
	r.channelMu.Lock()
	kept := r.channels[:0]
	fullTrack := 0
	for _, ch := range r.channels {
		if !ch.ProcessSamples(packet) {
			r.log.Info(context.Background(), "channel exhausted", logging.Int("prn", ch.PRN()))
			continue
		}
		kept = append(kept, ch)
		if ch.State() == model.TrackFullTrack {
			fullTrack++
		}
	}
	r.channels = kept
	active := len(r.channels)
	r.channelMu.Unlock()

	r.metrics.IncPacketsProcessed()
	r.metrics.SetChannelCounts(active, fullTrack)

	r.packetsSinceSolv++
	if fullTrack >= r.minChannels && r.packetsSinceSolv >= r.solveInterval {
		r.packetsSinceSolv = 0
		r.solve()
	}
}

// solve samples transmit times across all full-track channels against a
// common receive epoch, runs the navigation solver, and updates the guarded
// navigation state.
func (r *Receiver) solve() {
	ctx, span := r.tracer.Start(context.Background(), "nav.solve")
	defer span.End()
	start := time.Now()

	r.channelMu.Lock()
	var obs []Observation
	maxTx := 0.0
	var full []*TrackingChannel
	for _, ch := range r.channels {
		if ch.State() != model.TrackFullTrack {
			continue
		}
		ch.Sync()
		full = append(full, ch)
		if tx := ch.TransmitTime(); tx > maxTx {
			maxTx = tx
		}
	}
	receiveEpoch := maxTx + nominalTransitS
	for _, ch := range full {
		tx := ch.TransmitTime()
		obs = append(obs, Observation{
			PRN:         ch.PRN(),
			SatPos:      ch.SatellitePosition(tx),
			Pseudorange: (receiveEpoch - tx) * SpeedOfLightMPS,
		})
	}
	r.channelMu.Unlock()

	solution, err := r.solver.Solve(obs)
	if err != nil {
		span.SetAttributes(attribute.Bool("converged", false))
		r.log.Debug(ctx, "navigation solve failed", logging.String("error", err.Error()))
		return
	}

	r.navMu.Lock()
	r.navPos = solution.Pos
	r.navTOW = receiveEpoch - solution.ClockBiasM/SpeedOfLightMPS
	r.navStarted = true
	r.navMu.Unlock()

	lla := ECEFToLLA(solution.Pos)
	r.log.Debug(ctx, "navigation solution updated",
		logging.Any("lat_deg", lla.LatDeg),
		logging.Any("lon_deg", lla.LonDeg),
		logging.Any("alt_m", lla.AltM),
		logging.Any("clock_bias_m", solution.ClockBiasM),
		logging.Int("iterations", solution.Iterations),
		logging.Int("observations", len(obs)),
	)

	r.metrics.ObserveSolveDuration(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Bool("converged", true),
		attribute.Int("observations", len(obs)),
		attribute.Int("iterations", solution.Iterations),
	)
}
