// Package stft implements the streaming, 50%-overlap-add short-time
// Fourier transform the pipeline's denoise stage runs in. It is built
// on gonum's real-FFT, the same Fourier package the project's other
// spectrum-domain audio extensions use, and exposes forward/inverse
// steps that communicate in the packed real-FFT layout described by
// the spectral repacker: the DC and Nyquist bins are folded as real
// values into the first two slots of an N-length float64 slice.
package stft

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Framer holds the forward/inverse FFT plan, the analysis delay line,
// and the overlap-add accumulator for one streaming channel. It is not
// safe for concurrent use.
type Framer struct {
	n, h     int
	freqBins int

	window []float64 // length n, square-root Hann

	prevHop []float64 // length h, delay line
	frame   []float64 // length n, scratch analysis frame

	ola []float64 // length n, overlap-add accumulator

	fft        *fourier.FFT
	fwdCoeffs  []complex128 // length freqBins, forward-transform scratch
	invCoeffs  []complex128 // length freqBins, inverse-transform scratch
	time       []float64    // length n, scratch synthesis frame
}

// NewFramer builds a Framer for a frame of n samples and a hop of h
// samples, with the fixed 50%-overlap invariant n == 2*h.
func NewFramer(n, h int) (*Framer, error) {
	if n <= 0 || h <= 0 {
		return nil, fmt.Errorf("stft: frame_size and hop_length must be positive, got %d and %d", n, h)
	}
	if n != 2*h {
		return nil, fmt.Errorf("stft: frame_size (%d) must equal 2*hop_length (%d)", n, h)
	}
	if n%2 != 0 {
		return nil, fmt.Errorf("stft: frame_size (%d) must be even", n)
	}

	f := &Framer{
		n:        n,
		h:        h,
		freqBins: n/2 + 1,
		window:   sqrtHann(n),
		prevHop:  make([]float64, h),
		frame:    make([]float64, n),
		ola:      make([]float64, n),
		fft:      fourier.NewFFT(n),
	}
	f.fwdCoeffs = make([]complex128, f.freqBins)
	f.invCoeffs = make([]complex128, f.freqBins)
	f.time = make([]float64, n)
	return f, nil
}

// sqrtHann returns a square-root Hann window of length n. Its power
// applied once on analysis and once on synthesis reproduces a standard
// Hann window, which gives unity overlap-add at a 50% hop.
func sqrtHann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = math.Sqrt(0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n)))
	}
	return w
}

// FreqBins reports N/2+1, the number of unique complex coefficients.
func (f *Framer) FreqBins() int {
	return f.freqBins
}

// Forward windows a fresh hop of h samples against the trailing hop
// held in the delay line, runs the real FFT, and writes the result into
// packed (length n) in the packed real-FFT layout: packed[0] and
// packed[1] hold the real-valued DC and Nyquist bins, and
// packed[2k]/packed[2k+1] hold Re/Im of bin k for 1 <= k < n/2.
func (f *Framer) Forward(hop []float64, packed []float64) {
	copy(f.frame[:f.h], f.prevHop)
	copy(f.frame[f.h:], hop)
	copy(f.prevHop, hop)

	for i := range f.frame {
		f.frame[i] *= f.window[i]
	}

	f.fwdCoeffs = f.fft.Coefficients(f.fwdCoeffs, f.frame)
	toPacked(f.fwdCoeffs, packed)
}

// Inverse takes a packed spectrum (length n, same layout as Forward's
// output), runs the inverse real FFT, scales by 1/n (gonum's transform
// pair is unnormalised), applies the synthesis window, and accumulates
// the result into the overlap-add buffer. It emits the first h samples
// of the accumulator into out and shifts the accumulator left by h
// samples.
func (f *Framer) Inverse(packed []float64, out []float64) {
	fromPacked(packed, f.invCoeffs)
	f.time = f.fft.Sequence(f.time, f.invCoeffs)

	scale := 1 / float64(f.n)
	for i := range f.time {
		f.time[i] *= f.window[i] * scale
	}
	for i := range f.ola {
		f.ola[i] += f.time[i]
	}

	copy(out, f.ola[:f.h])
	copy(f.ola, f.ola[f.h:])
	for i := f.n - f.h; i < f.n; i++ {
		f.ola[i] = 0
	}
}

// toPacked folds a freqBins-length complex spectrum into the packed
// real-FFT layout described on Framer.Forward.
func toPacked(coeffs []complex128, packed []float64) {
	n := len(coeffs)
	packed[0] = real(coeffs[0])
	packed[1] = real(coeffs[n-1])
	for k := 1; k < n-1; k++ {
		packed[2*k] = real(coeffs[k])
		packed[2*k+1] = imag(coeffs[k])
	}
}

// fromPacked is the inverse of toPacked, writing into dst (length
// freqBins).
func fromPacked(packed []float64, dst []complex128) {
	n := len(dst)
	dst[0] = complex(packed[0], 0)
	dst[n-1] = complex(packed[1], 0)
	for k := 1; k < n-1; k++ {
		dst[k] = complex(packed[2*k], packed[2*k+1])
	}
}
