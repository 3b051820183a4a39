package audiopipe

import (
	"math"
	"testing"
)

const (
	testHop   = 480
	testFrame = 960
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(Config{
		FrameSize: testFrame,
		HopLength: testHop,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func feedHops(t *testing.T, p *Pipeline, hops [][]float64) [][]float64 {
	t.Helper()
	outputs := make([][]float64, len(hops))
	for i, hop := range hops {
		out := make([]float64, testHop)
		if err := p.Process(hop, out); err != nil {
			t.Fatalf("Process hop %d: %v", i, err)
		}
		outputs[i] = out
	}
	return outputs
}

func zeroHops(n int) [][]float64 {
	hops := make([][]float64, n)
	for i := range hops {
		hops[i] = make([]float64, testHop)
	}
	return hops
}

// TestNewRejectsMismatchedFrameAndHop covers the FftSetupFailure
// construction-failure policy: a frame/hop pair that does not satisfy
// N == 2*H must fail New outright, not fall back to anything.
func TestNewRejectsMismatchedFrameAndHop(t *testing.T) {
	_, err := New(Config{FrameSize: 999, HopLength: 480})
	if err == nil {
		t.Fatal("expected New to reject a frame size that isn't 2*hop")
	}
}

// TestSilenceStaysSilence covers property 1: all-zero input through the
// full passthrough pipeline produces all-zero output.
func TestSilenceStaysSilence(t *testing.T) {
	p := newTestPipeline(t)
	outputs := feedHops(t, p, zeroHops(6))
	for i, out := range outputs {
		for j, v := range out {
			if v != 0 {
				t.Fatalf("hop %d sample %d = %v, want 0", i, j, v)
			}
		}
	}
}

// TestMalformedHopLengthIsPassthroughCopy exercises the MalformedInput
// policy: a hop whose length doesn't match HopLength is copied through
// unchanged and Process reports no error, and pipeline state is left
// untouched for the next well-formed hop.
func TestMalformedHopLengthIsPassthroughCopy(t *testing.T) {
	p := newTestPipeline(t)
	bad := make([]float64, testHop-1)
	for i := range bad {
		bad[i] = float64(i + 1)
	}
	out := make([]float64, testHop-1)
	if err := p.Process(bad, out); err != nil {
		t.Fatalf("Process: %v", err)
	}
	for i := range bad {
		if out[i] != bad[i] {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], bad[i])
		}
	}
}

// TestDelayIdentityReconstructsInput exercises scenario S2: with the
// denoise stage in passthrough and no EQ/gain changes, a sinusoid run
// through Forward/Inverse should reappear one hop later, since the
// sqrt-Hann/FFT round trip is lossless and the framer has exactly a
// one-hop analysis/synthesis delay.
func TestDelayIdentityReconstructsInput(t *testing.T) {
	p := newTestPipeline(t)

	const numHops = 8
	hops := make([][]float64, numHops)
	for k := range hops {
		hop := make([]float64, testHop)
		for i := range hop {
			t := float64(k*testHop + i)
			hop[i] = 0.2 * math.Sin(2*math.Pi*440*t/SampleRate)
		}
		hops[k] = hop
	}

	outputs := feedHops(t, p, hops)

	const tol = 1e-6
	for k := 1; k < numHops; k++ {
		prev := hops[k-1]
		got := outputs[k]
		for i := range got {
			if math.Abs(got[i]-prev[i]) > tol {
				t.Fatalf("hop %d sample %d = %v, want %v (delayed input)", k, i, got[i], prev[i])
			}
		}
	}
}

// TestPreGainScalesOutputLinearly covers property: with the denoiser in
// passthrough, doubling the pre-gain (+6.0206 dB) doubles the delayed
// output's amplitude.
func TestPreGainScalesOutputLinearly(t *testing.T) {
	base := newTestPipeline(t)
	doubled := newTestPipeline(t)
	doubled.SetPreGain(20 * math.Log10(2))

	const numHops = 6
	hops := make([][]float64, numHops)
	for k := range hops {
		hop := make([]float64, testHop)
		for i := range hop {
			t := float64(k*testHop + i)
			hop[i] = 0.1 * math.Sin(2*math.Pi*1000*t/SampleRate)
		}
		hops[k] = hop
	}

	baseOut := feedHops(t, base, hops)
	doubledOut := feedHops(t, doubled, hops)

	const tol = 1e-6
	for k := 1; k < numHops; k++ {
		for i := range baseOut[k] {
			want := 2 * baseOut[k][i]
			got := doubledOut[k][i]
			if math.Abs(got-want) > tol {
				t.Fatalf("hop %d sample %d = %v, want %v (2x base)", k, i, got, want)
			}
		}
	}
}

// TestPostGainScalesOutputLinearly mirrors TestPreGainScalesOutputLinearly
// for the post-gain stage.
func TestPostGainScalesOutputLinearly(t *testing.T) {
	base := newTestPipeline(t)
	tripled := newTestPipeline(t)
	tripled.SetPostGain(20 * math.Log10(3))

	const numHops = 6
	hops := make([][]float64, numHops)
	for k := range hops {
		hop := make([]float64, testHop)
		for i := range hop {
			t := float64(k*testHop + i)
			hop[i] = 0.1 * math.Cos(2*math.Pi*2000*t/SampleRate)
		}
		hops[k] = hop
	}

	baseOut := feedHops(t, base, hops)
	tripledOut := feedHops(t, tripled, hops)

	const tol = 1e-6
	for k := 1; k < numHops; k++ {
		for i := range baseOut[k] {
			want := 3 * baseOut[k][i]
			got := tripledOut[k][i]
			if math.Abs(got-want) > tol {
				t.Fatalf("hop %d sample %d = %v, want %v (3x base)", k, i, got, want)
			}
		}
	}
}

// TestFlatEQGainsPreservesDelayIdentity covers scenario S4/property 6:
// applying 0 dB across all 10 bands leaves the pipeline's delayed-input
// identity intact, since a 0 dB peaking filter is itself an identity
// transform.
func TestFlatEQGainsPreservesDelayIdentity(t *testing.T) {
	p := newTestPipeline(t)
	if err := p.SetEQGains(make([]float64, 10)); err != nil {
		t.Fatalf("SetEQGains: %v", err)
	}

	const numHops = 6
	hops := make([][]float64, numHops)
	for k := range hops {
		hop := make([]float64, testHop)
		for i := range hop {
			t := float64(k*testHop + i)
			hop[i] = 0.15 * math.Sin(2*math.Pi*500*t/SampleRate)
		}
		hops[k] = hop
	}

	outputs := feedHops(t, p, hops)

	const tol = 1e-6
	for k := 1; k < numHops; k++ {
		prev := hops[k-1]
		for i := range outputs[k] {
			if math.Abs(outputs[k][i]-prev[i]) > tol {
				t.Fatalf("hop %d sample %d = %v, want %v", k, i, outputs[k][i], prev[i])
			}
		}
	}
}

// TestSetEQGainsRejectsWrongLength covers the MalformedInput policy for
// the EQ gain setter: a wrong-length slice is rejected with an error.
// That the chain's coefficients stay unchanged is checked by the biquad
// package's own tests.
func TestSetEQGainsRejectsWrongLength(t *testing.T) {
	p := newTestPipeline(t)
	if err := p.SetEQGains([]float64{1, 2, 3}); err == nil {
		t.Fatal("expected SetEQGains to reject a slice of the wrong length")
	}
}

// TestDeterministicGivenSameInput covers property 9: running the same
// hop sequence through two freshly constructed pipelines with identical
// configuration produces bit-identical output, since passthrough mode
// carries no hidden randomness.
func TestDeterministicGivenSameInput(t *testing.T) {
	a := newTestPipeline(t)
	b := newTestPipeline(t)

	const numHops = 5
	hops := make([][]float64, numHops)
	for k := range hops {
		hop := make([]float64, testHop)
		for i := range hop {
			t := float64(k*testHop + i)
			hop[i] = 0.3 * math.Sin(2*math.Pi*300*t/SampleRate)
		}
		hops[k] = hop
	}

	outA := feedHops(t, a, hops)
	outB := feedHops(t, b, hops)

	for k := range outA {
		for i := range outA[k] {
			if outA[k][i] != outB[k][i] {
				t.Fatalf("hop %d sample %d diverged: %v vs %v", k, i, outA[k][i], outB[k][i])
			}
		}
	}
}

// TestClosePassthroughPipelineIsNoOp exercises the Close path when no
// model was ever loaded.
func TestClosePassthroughPipelineIsNoOp(t *testing.T) {
	p := newTestPipeline(t)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// TestRecentOutputTracksLastEmittedHop covers the host-facing history
// buffer: after feeding one hop, RecentOutput's most recent samples
// must equal the tail of what Process just emitted.
func TestRecentOutputTracksLastEmittedHop(t *testing.T) {
	p := newTestPipeline(t)

	hop := make([]float64, testHop)
	for i := range hop {
		hop[i] = 0.1 * math.Sin(2*math.Pi*440*float64(i)/SampleRate)
	}
	out := make([]float64, testHop)
	if err := p.Process(hop, out); err != nil {
		t.Fatalf("Process: %v", err)
	}

	recent := make([]float64, testHop)
	p.RecentOutput(recent)
	for i := range out {
		if recent[i] != out[i] {
			t.Fatalf("RecentOutput[%d] = %v, want %v", i, recent[i], out[i])
		}
	}
}

// TestIDIsStableAndUnique covers the instance-identifier contract used
// to label metrics: two pipelines get distinct, non-empty IDs, and a
// pipeline's own ID never changes.
func TestIDIsStableAndUnique(t *testing.T) {
	a := newTestPipeline(t)
	b := newTestPipeline(t)

	if a.ID() == "" || b.ID() == "" {
		t.Fatal("expected non-empty pipeline IDs")
	}
	if a.ID() == b.ID() {
		t.Fatal("expected distinct pipeline IDs")
	}
	if a.ID() != a.ID() {
		t.Fatal("expected a pipeline's ID to be stable across calls")
	}
}
