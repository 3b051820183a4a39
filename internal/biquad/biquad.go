// Package biquad implements the cascaded 10-band peaking-EQ used by the
// pipeline's equaliser stage. The single-band filter follows the RBJ
// cookbook direct-form-I peaking design; the struct shape (coefficients
// plus a two-sample input/output history) mirrors the biquad used by
// the project's other single-band audio extensions.
package biquad

import (
	"fmt"
	"math"
)

// NumBands is the fixed number of EQ bands.
const NumBands = 10

// CenterFreqs are the fixed centre frequencies, in Hz, of the 10 bands.
var CenterFreqs = [NumBands]float64{31, 62, 125, 250, 500, 1000, 2000, 4000, 8000, 16000}

// bandQ is the fixed Q factor used to design every band.
const bandQ = 1.0

// band is a single peaking-EQ biquad, direct form I, with its own
// coefficients and sample history. Changing its coefficients never
// resets x1/x2/y1/y2, so re-tuning a band produces no audible click.
type band struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

func (f *band) design(freq, gainDB, q, sampleRate float64) {
	if gainDB == 0 {
		// A 0 dB peaking band is flat: use the exact identity
		// coefficients rather than the cookbook's equal, nonzero
		// numerator and denominator terms.
		f.b0, f.b1, f.b2, f.a1, f.a2 = 1, 0, 0, 0, 0
		return
	}
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sampleRate
	cosW0 := math.Cos(w0)
	sinW0 := math.Sin(w0)
	alpha := sinW0 / (2 * q)

	a0 := 1 + alpha/a
	f.b0 = (1 + alpha*a) / a0
	f.b1 = (-2 * cosW0) / a0
	f.b2 = (1 - alpha*a) / a0
	f.a1 = (-2 * cosW0) / a0
	f.a2 = (1 - alpha/a) / a0
}

func (f *band) process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

// Chain is a 10-band cascade of peaking-EQ biquads sharing a fixed
// sample rate and fixed centre frequencies.
type Chain struct {
	bands      [NumBands]band
	sampleRate float64
}

// NewChain builds a Chain at 0 dB on every band (an identity filter).
func NewChain(sampleRate float64) *Chain {
	c := &Chain{sampleRate: sampleRate}
	var flat [NumBands]float64
	_ = c.SetGains(flat[:])
	return c
}

// SetGains redesigns every band's coefficients for the given gains, in
// dB. It does not reset filter state, to avoid audible clicks. A gains
// slice whose length is not NumBands is rejected and leaves the chain's
// coefficients unchanged.
func (c *Chain) SetGains(gains []float64) error {
	if len(gains) != NumBands {
		return fmt.Errorf("biquad: expected %d gains, got %d", NumBands, len(gains))
	}
	for i, g := range gains {
		c.bands[i].design(CenterFreqs[i], g, bandQ, c.sampleRate)
	}
	return nil
}

// ProcessInPlace runs buf serially through all 10 bands, in place.
func (c *Chain) ProcessInPlace(buf []float64) {
	for n, x := range buf {
		for i := range c.bands {
			x = c.bands[i].process(x)
		}
		buf[n] = x
	}
}
