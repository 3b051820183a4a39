// Package audiopipe implements a real-time, single-channel audio
// enhancement pipeline: a 10-band parametric equaliser, a scalar
// pre-gain, a recurrent neural noise-reduction stage running in the
// short-time Fourier domain, and a scalar post-gain, composed in
// series and driven one fixed-length hop at a time.
//
// The pipeline owns every buffer it touches and performs no heap
// allocation once constructed; audio capture/playback, the pre-trained
// model file itself, and any foreign-function marshalling belong to
// the host application, not this package.
package audiopipe

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/cwsl/micyou/internal/biquad"
	"github.com/cwsl/micyou/internal/denoise"
	"github.com/cwsl/micyou/internal/ringbuffer"
	"github.com/cwsl/micyou/internal/spectral"
	"github.com/cwsl/micyou/internal/stft"
	"github.com/cwsl/micyou/metrics"
)

// historyWindowSamples is the size of the recent-output ring buffer
// backing RecentOutput: one second of audio at the fixed sample rate,
// enough for a host-side level meter or waveform view without holding
// an unbounded history.
const historyWindowSamples = int(SampleRate)

// SampleRate is the fixed operating sample rate of the pipeline.
const SampleRate = 48000.0

// ErrInvalidConfig is wrapped by errors returned from New when a
// Config's sizes are malformed.
var ErrInvalidConfig = errors.New("audiopipe: invalid pipeline configuration")

// ErrInference is wrapped by errors Process returns when the denoiser's
// inference step fails at runtime. The pipeline's recurrent state is
// left undefined after such a failure; the caller may retry on
// subsequent hops.
var ErrInference = errors.New("audiopipe: denoiser inference failed")

// Config holds the construction parameters for a Pipeline. This
// package never persists a Config; loading and saving one, along with
// audio I/O and model distribution, is the host application's job.
type Config struct {
	// PreGainDB and PostGainDB are the initial gains, in decibels,
	// applied before and after the denoise stage.
	PreGainDB  float64
	PostGainDB float64

	// ModelPath is the filesystem path to the recurrent denoiser's
	// ONNX graph. An empty path runs the denoise stage as a
	// passthrough; the EQ and gain stages stay active regardless.
	ModelPath string

	// FrameSize is N, the STFT analysis frame length. HopLength is H,
	// the number of new samples delivered per Process call. The two
	// must satisfy N == 2*H.
	FrameSize int
	HopLength int

	// Logger receives non-fatal diagnostics, such as a model-load
	// failure falling back to passthrough. A nil Logger uses
	// log.Default().
	Logger *log.Logger

	// Metrics, if non-nil, receives per-hop instrumentation.
	Metrics *metrics.Recorder
}

// Pipeline is a constructed, ready-to-run instance of the enhancement
// pipeline described in the package documentation. It is strictly
// stateful and is not safe for concurrent use: Process and the
// parameter setters must be called from a single goroutine, or
// externally synchronised by the caller. Parameter setters apply on
// the next call to Process; there is no rollback of a hop already in
// flight.
type Pipeline struct {
	id string

	hop, frame int

	eq                *biquad.Chain
	preGain, postGain float64

	framer   *stft.Framer
	denoiser *denoise.Session

	scratch  []float64 // length hop
	packed   []float64 // length frame
	modelBuf []float64 // length freqBins*2, staging between spectral and denoise
	modelIn  []float32 // length freqBins*2
	modelOut []float32 // length freqBins*2
	outHop   []float64 // length hop

	history *ringbuffer.RingBuffer

	logger  *log.Logger
	metrics *metrics.Recorder
}

// New constructs a Pipeline from cfg. Construction fails only when the
// STFT/FFT setup itself cannot be built (malformed frame/hop sizes);
// a model that fails to load instead falls back to passthrough, and
// the failure is reported through cfg.Logger.
func New(cfg Config) (*Pipeline, error) {
	framer, err := stft.NewFramer(cfg.FrameSize, cfg.HopLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	freqBins := framer.FreqBins()

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	denoiser := denoise.New(cfg.ModelPath, freqBins)
	if cfg.ModelPath != "" && denoiser.Passthrough() {
		logger.Printf("audiopipe: failed to load denoise model %q, falling back to passthrough: %v",
			cfg.ModelPath, denoiser.LoadError())
	}

	p := &Pipeline{
		id:       uuid.New().String(),
		hop:      cfg.HopLength,
		frame:    cfg.FrameSize,
		eq:       biquad.NewChain(SampleRate),
		preGain:  dbToLinear(cfg.PreGainDB),
		postGain: dbToLinear(cfg.PostGainDB),
		framer:   framer,
		denoiser: denoiser,
		scratch:  make([]float64, cfg.HopLength),
		packed:   make([]float64, cfg.FrameSize),
		modelBuf: make([]float64, freqBins*2),
		modelIn:  make([]float32, freqBins*2),
		modelOut: make([]float32, freqBins*2),
		outHop:   make([]float64, cfg.HopLength),
		history:  ringbuffer.New(historyWindowSamples),
		logger:   logger,
		metrics:  cfg.Metrics,
	}
	return p, nil
}

func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// ID returns the Pipeline's generated instance identifier, used to
// label its metrics when a Recorder is configured.
func (p *Pipeline) ID() string {
	return p.id
}

// Process runs one hop of audio (length HopLength) through the EQ,
// pre-gain, denoise, and post-gain stages in series, writing the
// result into out (also length HopLength). hop is read but never
// retained or mutated.
//
// If hop or out does not have length HopLength, Process treats the
// call as malformed input: it copies hop into out unchanged (as far as
// out's length allows) without mutating any pipeline state, and
// returns a nil error. A non-nil error indicates the denoiser's
// inference step failed; out's contents are then undefined and the
// pipeline's recurrent state should be treated as unreliable for the
// hop that failed, though processing may resume on the next call.
func (p *Pipeline) Process(hop, out []float64) error {
	if len(hop) != p.hop || len(out) != p.hop {
		copy(out, hop)
		return nil
	}

	var hopStart time.Time
	if p.metrics != nil {
		hopStart = time.Now()
	}

	copy(p.scratch, hop)
	p.eq.ProcessInPlace(p.scratch)
	for i := range p.scratch {
		p.scratch[i] *= p.preGain
	}

	p.framer.Forward(p.scratch, p.packed)
	spectral.ToModel(p.packed, p.modelBuf)
	for i, v := range p.modelBuf {
		p.modelIn[i] = float32(v)
	}

	var inferStart time.Time
	if p.metrics != nil {
		inferStart = time.Now()
	}
	if err := p.denoiser.Step(p.modelIn, p.modelOut); err != nil {
		if p.metrics != nil {
			p.metrics.ObserveInferenceFailure(p.id)
		}
		return fmt.Errorf("%w: %w", ErrInference, err)
	}
	if p.metrics != nil {
		p.metrics.ObserveInferenceDuration(p.id, time.Since(inferStart))
	}

	for i, v := range p.modelOut {
		p.modelBuf[i] = float64(v)
	}
	spectral.ToPacked(p.modelBuf, p.packed)
	p.framer.Inverse(p.packed, p.outHop)

	for i := range p.outHop {
		p.outHop[i] *= p.postGain
	}
	copy(out, p.outHop)
	p.history.Write(p.outHop)

	if p.metrics != nil {
		p.metrics.ObserveHop(p.id, time.Since(hopStart), p.denoiser.Passthrough())
	}
	return nil
}

// RecentOutput fills dest with the most recently produced len(dest)
// output samples, drawn from a rolling one-second window. It is a
// host-facing convenience for level meters or waveform displays and
// has no effect on Process; dest longer than the window is left
// unchanged.
func (p *Pipeline) RecentOutput(dest []float64) {
	p.history.Read(dest)
}

// SetPreGain converts db to a linear amplitude factor and applies it
// starting with the next call to Process.
func (p *Pipeline) SetPreGain(db float64) {
	p.preGain = dbToLinear(db)
}

// SetPostGain converts db to a linear amplitude factor and applies it
// starting with the next call to Process.
func (p *Pipeline) SetPostGain(db float64) {
	p.postGain = dbToLinear(db)
}

// SetEQGains recomputes the 10-band equaliser's coefficients without
// resetting its filter state, to avoid an audible click. gains whose
// length is not 10 is rejected and leaves the EQ unchanged.
func (p *Pipeline) SetEQGains(gains []float64) error {
	return p.eq.SetGains(gains)
}

// Close releases the denoiser's inference session and recurrent state.
func (p *Pipeline) Close() error {
	return p.denoiser.Close()
}
