//go:build !opus
// +build !opus

package main

import "encoding/binary"

// pcmCodec treats the RTP payload as big-endian signed 16-bit PCM,
// uncompressed.
type pcmCodec struct{}

func newCodec(sampleRate int) (sampleCodec, error) {
	return pcmCodec{}, nil
}

func (pcmCodec) decode(payload []byte, pcm []int16) (int, error) {
	n := len(payload) / 2
	if n > len(pcm) {
		n = len(pcm)
	}
	for i := 0; i < n; i++ {
		pcm[i] = int16(binary.BigEndian.Uint16(payload[i*2 : i*2+2]))
	}
	return n, nil
}

func (pcmCodec) encode(pcm []int16, out []byte) (int, error) {
	n := len(pcm)
	if n*2 > len(out) {
		n = len(out) / 2
	}
	for i := 0; i < n; i++ {
		binary.BigEndian.PutUint16(out[i*2:i*2+2], uint16(pcm[i]))
	}
	return n * 2, nil
}

func (pcmCodec) name() string { return "pcm" }
