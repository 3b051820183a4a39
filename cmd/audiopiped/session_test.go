package main

import (
	"log"
	"testing"

	"github.com/cwsl/micyou/metrics"
)

func testSessionConfig() sessionConfig {
	return sessionConfig{
		ModelPath:  "",
		HopLength:  480,
		FrameSize:  960,
		PreGainDB:  0,
		PostGainDB: 0,
		Logger:     log.Default(),
		Metrics:    (*metrics.Recorder)(nil),
	}
}

func TestSessionTableOpensLazilyPerSSRC(t *testing.T) {
	table := newSessionTable(testSessionConfig())

	a, err := table.get(111)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, err := table.get(222)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	again, err := table.get(111)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if a == b {
		t.Fatal("expected distinct sessions for distinct SSRCs")
	}
	if a != again {
		t.Fatal("expected the same session instance for a repeated SSRC")
	}

	table.closeAll()
}

func TestSessionProcessPayloadPassthroughSilence(t *testing.T) {
	s, err := newSession(42, testSessionConfig())
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	defer s.close()

	payload := make([]byte, 480*2)
	wire := make([]byte, 4000)

	n, err := s.processPayload(payload, wire)
	if err != nil {
		t.Fatalf("processPayload: %v", err)
	}
	if n != 480*2 {
		t.Fatalf("wire length = %d, want %d", n, 480*2)
	}
	for i, b := range wire[:n] {
		if b != 0 {
			t.Fatalf("wire[%d] = %v, want 0 for silent input", i, b)
		}
	}
}

func TestWithSessionReportsMissingSSRC(t *testing.T) {
	table := newSessionTable(testSessionConfig())
	found := table.withSession(999, func(s *session) {
		t.Fatal("callback should not run for a missing session")
	})
	if found {
		t.Fatal("expected withSession to report false for an unknown SSRC")
	}
}
