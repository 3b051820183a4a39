package denoise

import "testing"

func TestEmptyModelPathIsPassthrough(t *testing.T) {
	s := New("", 481)
	if !s.Passthrough() {
		t.Fatal("expected passthrough session for empty model path")
	}
	if s.LoadError() != nil {
		t.Fatalf("LoadError() = %v, want nil for an empty model path", s.LoadError())
	}
}

func TestPassthroughStepIsIdentity(t *testing.T) {
	s := New("", 481)
	in := make([]float32, 481*2)
	for i := range in {
		in[i] = float32(i) * 0.5
	}
	out := make([]float32, len(in))

	if err := s.Step(in, out); err != nil {
		t.Fatalf("Step: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestUnopenableModelFallsBackToPassthrough(t *testing.T) {
	s := New("/nonexistent/path/to/model.onnx", 481)
	if !s.Passthrough() {
		t.Fatal("expected passthrough fallback for an unopenable model file")
	}
	if s.LoadError() == nil {
		t.Fatal("expected LoadError to report why the model could not be loaded")
	}
}

func TestClosePassthroughIsNoOp(t *testing.T) {
	s := New("", 481)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
