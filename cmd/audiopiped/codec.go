package main

// sampleCodec converts between the wire payload carried in an RTP
// packet and int16 PCM samples. codec_opus.go provides an Opus-backed
// implementation behind the "opus" build tag; codec_pcm.go is the
// fallback used when libopus isn't available at build time. Declared
// here, unconstrained, so both tagged variants can implement it and
// so untagged callers like session.go can reference the type.
type sampleCodec interface {
	decode(payload []byte, pcm []int16) (n int, err error)
	encode(pcm []int16, out []byte) (n int, err error)
	name() string
}
