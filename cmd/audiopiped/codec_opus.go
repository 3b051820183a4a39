//go:build opus
// +build opus

package main

import (
	"fmt"

	opus "gopkg.in/hraban/opus.v2"
)

// opusCodec encodes and decodes the RTP payload as Opus. It requires
// cgo and libopus at build time (go build -tags opus); codec_pcm.go
// provides the stub used otherwise.
type opusCodec struct {
	enc *opus.Encoder
	dec *opus.Decoder
}

func newCodec(sampleRate int) (sampleCodec, error) {
	enc, err := opus.NewEncoder(sampleRate, 1, opus.Application(2048)) // OPUS_APPLICATION_VOIP
	if err != nil {
		return nil, fmt.Errorf("opus: failed to create encoder: %w", err)
	}
	dec, err := opus.NewDecoder(sampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("opus: failed to create decoder: %w", err)
	}
	return &opusCodec{enc: enc, dec: dec}, nil
}

func (c *opusCodec) decode(payload []byte, pcm []int16) (int, error) {
	n, err := c.dec.Decode(payload, pcm)
	if err != nil {
		return 0, fmt.Errorf("opus: decode failed: %w", err)
	}
	return n, nil
}

func (c *opusCodec) encode(pcm []int16, out []byte) (int, error) {
	n, err := c.enc.Encode(pcm, out)
	if err != nil {
		return 0, fmt.Errorf("opus: encode failed: %w", err)
	}
	return n, nil
}

func (c *opusCodec) name() string { return "opus" }
