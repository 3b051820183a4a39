// Package denoise owns the ONNX Runtime inference session for the
// pipeline's recurrent noise-reduction model: the 19 input/19 output
// tensor binding, the 18 recurrent state tensors that carry memory
// between hops, and the load-time fallback to a passthrough identity
// when no model is configured or the model cannot be opened.
package denoise

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// NumStates is the number of recurrent state tensors the model carries
// between invocations of Step.
const NumStates = 18

// StateShapes gives the fixed shape of each of the 18 recurrent state
// tensors, in the model's canonical input/output ordering.
var StateShapes = [NumStates]ort.Shape{
	ort.NewShape(1, 1, 2, 121),
	ort.NewShape(1, 24, 1, 61),
	ort.NewShape(1, 24, 1, 31),
	ort.NewShape(1, 1, 24),
	ort.NewShape(1, 1, 48),
	ort.NewShape(1, 1, 48),
	ort.NewShape(1, 1, 64),
	ort.NewShape(1, 1, 32),
	ort.NewShape(1, 31, 16),
	ort.NewShape(1, 31, 16),
	ort.NewShape(1, 24, 1, 31),
	ort.NewShape(1, 12, 1, 31),
	ort.NewShape(1, 12, 2, 61),
	ort.NewShape(1, 1, 64),
	ort.NewShape(1, 1, 48),
	ort.NewShape(1, 1, 48),
	ort.NewShape(1, 1, 24),
	ort.NewShape(1, 1, 2),
}

var (
	envOnce sync.Once
	envErr  error
)

// ensureEnvironment lazily initialises the process-wide ONNX Runtime
// environment. It is safe to call from multiple Sessions; the runtime
// is only ever initialised once per process.
func ensureEnvironment() error {
	envOnce.Do(func() {
		envErr = ort.InitializeEnvironment()
	})
	return envErr
}

// Session owns the inference graph handle, the 18 recurrent state
// tensors, and the per-step input/output tensor binding. A Session
// with no model loaded (either because modelPath was empty or because
// the model failed to load) runs Step as the identity; LoadError
// reports why, if loading was attempted and failed.
type Session struct {
	session   *ort.DynamicAdvancedSession
	specShape ort.Shape

	inSpec    *ort.Tensor[float32]
	outSpec   *ort.Tensor[float32]
	states    [NumStates]*ort.Tensor[float32]
	outStates [NumStates]*ort.Tensor[float32]
	inputs    []ort.Value
	outputs   []ort.Value

	passthrough bool
	loadErr     error
}

// New builds a Session for a model operating on freqBins frequency
// bins. A modelPath of "" activates passthrough immediately. A
// modelPath that cannot be opened or does not declare the expected
// 19-input/19-output contract also activates passthrough; the reason
// is recorded and retrievable via LoadError, matching the pipeline's
// policy of absorbing model-load failures rather than failing
// construction outright.
func New(modelPath string, freqBins int) *Session {
	s := &Session{specShape: ort.NewShape(1, int64(freqBins), 1, 2)}
	if modelPath == "" {
		s.passthrough = true
		return s
	}
	if err := s.load(modelPath); err != nil {
		s.passthrough = true
		s.loadErr = err
	}
	return s
}

func (s *Session) load(modelPath string) error {
	if err := ensureEnvironment(); err != nil {
		return fmt.Errorf("denoise: failed to initialise onnxruntime environment: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return fmt.Errorf("denoise: failed to open model %q: %w", modelPath, err)
	}
	if len(inputs) != NumStates+1 || len(outputs) != NumStates+1 {
		return fmt.Errorf("denoise: model %q declares %d inputs / %d outputs, want %d/%d",
			modelPath, len(inputs), len(outputs), NumStates+1, NumStates+1)
	}

	inputNames := make([]string, len(inputs))
	for i, in := range inputs {
		inputNames[i] = in.Name
	}
	outputNames := make([]string, len(outputs))
	for i, out := range outputs {
		outputNames[i] = out.Name
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("denoise: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetIntraOpNumThreads(1); err != nil {
		return fmt.Errorf("denoise: failed to set intra-op thread count: %w", err)
	}
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return fmt.Errorf("denoise: failed to set inter-op thread count: %w", err)
	}
	if err := opts.SetExecutionMode(ort.ExecutionModeSequential); err != nil {
		return fmt.Errorf("denoise: failed to set sequential execution mode: %w", err)
	}
	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableBasic); err != nil {
		return fmt.Errorf("denoise: failed to set graph optimisation level: %w", err)
	}

	sess, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, opts)
	if err != nil {
		return fmt.Errorf("denoise: failed to load model %q: %w", modelPath, err)
	}

	// Every tensor Step binds is allocated exactly once, here, and reused
	// for the life of the Session: the inference hot path must not
	// allocate per hop.
	allocated := make([]*ort.Tensor[float32], 0, 2*NumStates+2)
	cleanup := func() {
		for _, t := range allocated {
			t.Destroy()
		}
		sess.Destroy()
	}

	var states, outStates [NumStates]*ort.Tensor[float32]
	for i := range states {
		t, err := ort.NewEmptyTensor[float32](StateShapes[i])
		if err != nil {
			cleanup()
			return fmt.Errorf("denoise: failed to allocate state tensor %d: %w", i, err)
		}
		allocated = append(allocated, t)
		states[i] = t
	}
	for i := range outStates {
		t, err := ort.NewEmptyTensor[float32](StateShapes[i])
		if err != nil {
			cleanup()
			return fmt.Errorf("denoise: failed to allocate output state tensor %d: %w", i, err)
		}
		allocated = append(allocated, t)
		outStates[i] = t
	}

	inSpec, err := ort.NewEmptyTensor[float32](s.specShape)
	if err != nil {
		cleanup()
		return fmt.Errorf("denoise: failed to allocate input spectrum tensor: %w", err)
	}
	allocated = append(allocated, inSpec)

	outSpec, err := ort.NewEmptyTensor[float32](s.specShape)
	if err != nil {
		cleanup()
		return fmt.Errorf("denoise: failed to allocate output spectrum tensor: %w", err)
	}
	allocated = append(allocated, outSpec)

	inputs := make([]ort.Value, NumStates+1)
	outputs := make([]ort.Value, NumStates+1)
	inputs[0] = inSpec
	outputs[0] = outSpec
	for i := range states {
		inputs[i+1] = states[i]
		outputs[i+1] = outStates[i]
	}

	s.session = sess
	s.states = states
	s.outStates = outStates
	s.inSpec = inSpec
	s.outSpec = outSpec
	s.inputs = inputs
	s.outputs = outputs
	return nil
}

// Passthrough reports whether Step currently runs as the identity.
func (s *Session) Passthrough() bool {
	return s.passthrough
}

// LoadError reports the error that caused Session to fall back to
// passthrough, if any. It is nil when no model load was attempted or
// the model loaded successfully.
func (s *Session) LoadError() error {
	return s.loadErr
}

// Step runs one inference step. specIn and specOut must each have
// length freqBins*2, the model's (freq_bins, 1, 2) layout flattened.
// The 18 recurrent state tensors are consumed and replaced in place:
// for each, min(expected_size, actual_size) floats are copied from the
// corresponding model output into the session's retained state, which
// guards against a model whose declared state shapes do not match the
// ones this package expects. When the session has no model loaded,
// Step copies specIn to specOut unchanged.
func (s *Session) Step(specIn, specOut []float32) error {
	if s.passthrough {
		copy(specOut, specIn)
		return nil
	}

	copy(s.inSpec.GetData(), specIn)

	if err := s.session.Run(s.inputs, s.outputs); err != nil {
		return fmt.Errorf("denoise: inference step failed: %w", err)
	}

	copy(specOut, s.outSpec.GetData())

	for i, state := range s.states {
		dst := state.GetData()
		src := s.outStates[i].GetData()
		n := len(dst)
		if len(src) < n {
			n = len(src)
		}
		copy(dst[:n], src[:n])
	}
	return nil
}

// Close releases the inference session and the recurrent state
// tensors. It is a no-op when the session is in passthrough mode.
func (s *Session) Close() error {
	for _, t := range s.states {
		if t != nil {
			t.Destroy()
		}
	}
	for _, t := range s.outStates {
		if t != nil {
			t.Destroy()
		}
	}
	if s.inSpec != nil {
		s.inSpec.Destroy()
	}
	if s.outSpec != nil {
		s.outSpec.Destroy()
	}
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}
