package main

import (
	"fmt"
	"log"
	"sync"

	audiopipe "github.com/cwsl/micyou"
	"github.com/cwsl/micyou/metrics"
)

// sessionConfig carries the construction parameters shared by every
// per-talker session the table creates.
type sessionConfig struct {
	ModelPath  string
	HopLength  int
	FrameSize  int
	PreGainDB  float64
	PostGainDB float64
	Logger     *log.Logger
	Metrics    *metrics.Recorder
}

// session pairs one SSRC's RTP stream with its own Pipeline instance,
// codec, and PCM<->float64 scratch buffers. Mirroring the pipeline it
// wraps, a session is single-threaded: the RTP receive loop is its
// only caller.
type session struct {
	ssrc uint32

	pipeline *audiopipe.Pipeline
	codec    sampleCodec

	pcmIn  []int16
	pcmOut []int16
	hopIn  []float64
	hopOut []float64
}

func newSession(ssrc uint32, cfg sessionConfig) (*session, error) {
	pipeline, err := audiopipe.New(audiopipe.Config{
		PreGainDB:  cfg.PreGainDB,
		PostGainDB: cfg.PostGainDB,
		ModelPath:  cfg.ModelPath,
		FrameSize:  cfg.FrameSize,
		HopLength:  cfg.HopLength,
		Logger:     cfg.Logger,
		Metrics:    cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("session %d: failed to construct pipeline: %w", ssrc, err)
	}

	codec, err := newCodec(int(audiopipe.SampleRate))
	if err != nil {
		return nil, fmt.Errorf("session %d: failed to construct codec: %w", ssrc, err)
	}

	return &session{
		ssrc:     ssrc,
		pipeline: pipeline,
		codec:    codec,
		pcmIn:    make([]int16, cfg.HopLength),
		pcmOut:   make([]int16, cfg.HopLength),
		hopIn:    make([]float64, cfg.HopLength),
		hopOut:   make([]float64, cfg.HopLength),
	}, nil
}

// processPayload decodes payload into a hop, runs it through the
// session's pipeline, re-encodes the result, and returns the wire
// bytes to send back.
func (s *session) processPayload(payload []byte, wire []byte) (int, error) {
	n, err := s.codec.decode(payload, s.pcmIn)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		s.hopIn[i] = float64(s.pcmIn[i]) / 32768.0
	}
	for i := n; i < len(s.hopIn); i++ {
		s.hopIn[i] = 0
	}

	if err := s.pipeline.Process(s.hopIn, s.hopOut); err != nil {
		return 0, fmt.Errorf("session %d: %w", s.ssrc, err)
	}

	for i := range s.hopOut {
		v := s.hopOut[i] * 32768.0
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		s.pcmOut[i] = int16(v)
	}

	return s.codec.encode(s.pcmOut, wire)
}

func (s *session) close() error {
	return s.pipeline.Close()
}

// sessionTable owns the set of active per-SSRC sessions, creating one
// lazily on a talker's first packet.
type sessionTable struct {
	mu  sync.Mutex
	cfg sessionConfig
	m   map[uint32]*session
}

func newSessionTable(cfg sessionConfig) *sessionTable {
	return &sessionTable{cfg: cfg, m: make(map[uint32]*session)}
}

func (t *sessionTable) get(ssrc uint32) (*session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.m[ssrc]; ok {
		return s, nil
	}
	s, err := newSession(ssrc, t.cfg)
	if err != nil {
		return nil, err
	}
	t.m[ssrc] = s
	t.cfg.Logger.Printf("session %d: opened (model=%q codec=%s)", ssrc, t.cfg.ModelPath, s.codec.name())
	return s, nil
}

// withSession runs fn against the live session for ssrc, if any. It is
// used by the control handler to apply parameter changes without
// exposing the session table's internals.
func (t *sessionTable) withSession(ssrc uint32, fn func(*session)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.m[ssrc]
	if !ok {
		return false
	}
	fn(s)
	return true
}

func (t *sessionTable) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for ssrc, s := range t.m {
		if err := s.close(); err != nil {
			t.cfg.Logger.Printf("session %d: error closing: %v", ssrc, err)
		}
	}
}
