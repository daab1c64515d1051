package core

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/zhufengGNSS/SDGPSR/model"
)

const (
	// GPSL1Hz is the GPS L1 carrier frequency.
	GPSL1Hz = 1575420000

	// SpeedOfLightMPS is the vacuum speed of light.
	SpeedOfLightMPS = 299792458.0

	// SatFoundThreshold is the minimum peak-to-mean ratio of the
	// correlation surface for a satellite to count as acquired. A sweep
	// that stays below it reports "not found" through the result flag;
	// that is a routine outcome of a noisy search, not a fault.
	SatFoundThreshold = 10.0
)

// Correlator generates baseband replica codes and runs FFT-based circular
// correlation searches over 1 ms packets. It owns a transform sized to one
// packet, so it is not safe for concurrent use; the receiver's single worker
// goroutine is the only caller.
type Correlator struct {
	fs            float64
	clockOffsetHz float64
	samplesPerMs  int
	fft           *fourier.CmplxFFT

	codes map[int][]int8

	// scratch buffers reused across correlation rounds
	prod []complex128
	time []complex128
}

// NewCorrelator builds a correlator for the given sample rate. clockOffsetHz
// is the hardware clock error of the RF front end; it is added to every
// replica's carrier so the swept frequency grid stays centred on 0 Hz bias.
func NewCorrelator(fs, clockOffsetHz float64) *Correlator {
	n := int(math.Round(fs * 1e-3))
	return &Correlator{
		fs:            fs,
		clockOffsetHz: clockOffsetHz,
		samplesPerMs:  n,
		fft:           fourier.NewCmplxFFT(n),
		codes:         make(map[int][]int8),
		prod:          make([]complex128, n),
		time:          make([]complex128, n),
	}
}

// SamplesPerPacket returns the expected length of a 1 ms packet.
func (c *Correlator) SamplesPerPacket() int {
	return c.samplesPerMs
}

// PacketSpectrum computes the forward transform of one packet. Packets
// shorter than one millisecond are zero padded; longer ones are truncated.
func (c *Correlator) PacketSpectrum(p model.SamplePacket) []complex128 {
	seq := make([]complex128, c.samplesPerMs)
	copy(seq, p)
	return c.fft.Coefficients(nil, seq)
}

// Search sweeps carrier-frequency hypotheses from freqStart to freqStop in
// freqStep increments and, for each, circularly correlates corrCount packet
// spectra against the PRN's baseband replica, accumulating magnitudes into a
// code-phase by frequency surface. The strongest bin is returned with a
// peak-to-mean confidence; Found is set only when the confidence clears
// SatFoundThreshold. The reported frequency offset includes the hardware
// clock offset, so it is the apparent baseband carrier rather than the
// swept grid frequency.
//
// The swept range should be symmetric about zero so the 0 Hz bias hypothesis
// is always on the grid. A step that does not divide the range evenly rounds
// the grid down.
func (c *Correlator) Search(searchData [][]complex128, prn, corrCount int, freqStart, freqStop, freqStep float64) model.SearchResult {
	result := model.SearchResult{PRN: prn}
	if corrCount > len(searchData) {
		corrCount = len(searchData)
	}
	if corrCount == 0 || freqStep <= 0 || freqStop < freqStart {
		return result
	}

	n := c.samplesPerMs
	nFreq := int((freqStop-freqStart)/freqStep) + 1
	surface := make([]float64, nFreq*n)

	for fi := 0; fi < nFreq; fi++ {
		freq := freqStart + float64(fi)*freqStep
		replica, err := c.basebandReplica(prn, freq+c.clockOffsetHz)
		if err != nil {
			return result
		}
		replicaFFT := c.fft.Coefficients(nil, replica)
		c.nonCoherentCorrelate(searchData[:corrCount], replicaFFT, surface[fi*n:(fi+1)*n])
	}

	peak, peakIdx, sum := 0.0, 0, 0.0
	for i, v := range surface {
		sum += v
		if v > peak {
			peak = v
			peakIdx = i
		}
	}
	mean := sum / float64(len(surface))
	if mean <= 0 {
		return result
	}

	result.CodePhase = peakIdx % n
	// Report the apparent carrier, clock offset included, so a tracker
	// seeded from the result can run its NCO at the reported frequency
	// directly.
	result.FreqOffsetHz = freqStart + float64(peakIdx/n)*freqStep + c.clockOffsetHz
	result.Confidence = peak / mean
	result.Found = result.Confidence >= SatFoundThreshold
	return result
}

// basebandReplica builds one millisecond of the PRN's C/A code resampled to
// the correlator's rate and mixed to the given carrier offset.
func (c *Correlator) basebandReplica(prn int, freqOffsetHz float64) ([]complex128, error) {
	chips, ok := c.codes[prn]
	if !ok {
		var err error
		chips, err = CACode(prn)
		if err != nil {
			return nil, err
		}
		c.codes[prn] = chips
	}

	n := c.samplesPerMs
	replica := make([]complex128, n)
	chipsPerSample := CACodeRateHz / c.fs
	phaseStep := 2 * math.Pi * freqOffsetHz / c.fs
	for i := 0; i < n; i++ {
		chip := chips[int(float64(i)*chipsPerSample)%CACodeLength]
		replica[i] = complex(float64(chip), 0) * cmplx.Exp(complex(0, phaseStep*float64(i)))
	}
	return replica, nil
}

// nonCoherentCorrelate multiplies each packet spectrum by the conjugated
// replica spectrum, inverse transforms, and accumulates magnitudes into out.
// Summing magnitudes rather than complex values discards carrier phase, so
// the accumulation tolerates unknown phase between repetitions.
func (c *Correlator) nonCoherentCorrelate(spectra [][]complex128, replicaFFT []complex128, out []float64) {
	n := c.samplesPerMs
	scale := 1 / float64(n)
	for _, spectrum := range spectra {
		for j := 0; j < n; j++ {
			c.prod[j] = spectrum[j] * cmplx.Conj(replicaFFT[j])
		}
		c.time = c.fft.Sequence(c.time, c.prod)
		for j := 0; j < n; j++ {
			out[j] += cmplx.Abs(c.time[j]) * scale
		}
	}
}
