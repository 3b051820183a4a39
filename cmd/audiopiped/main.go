// Command audiopiped is a reference host for the audiopipe library: it
// receives single-channel PCM over RTP/UDP, keyed by SSRC into one
// Pipeline instance per talker, runs each hop through the enhancement
// pipeline, sends the enhanced audio back out over RTP, and exposes a
// WebSocket control channel for live parameter changes plus a
// Prometheus /metrics endpoint.
//
// It is a demonstration harness, not a production broadcast server:
// real deployments are expected to embed the audiopipe package
// directly against their own audio I/O stack.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwsl/micyou/metrics"
)

func main() {
	var (
		listenRTP   = flag.String("rtp-listen", ":5004", "UDP address to receive inbound RTP audio on")
		mcastGroup  = flag.String("rtp-mcast-group", "", "if set, join this multicast group instead of unicast listening on -rtp-listen (e.g. 239.1.2.3:5004)")
		mcastIface  = flag.String("rtp-mcast-iface", "", "network interface to join -rtp-mcast-group on (empty joins on every interface)")
		sendRTPAddr = flag.String("rtp-send", "127.0.0.1:5006", "UDP address to send enhanced RTP audio to")
		httpAddr    = flag.String("http-listen", ":8090", "HTTP address for /metrics and /control")
		modelPath   = flag.String("model", "", "path to the recurrent denoiser ONNX graph (empty disables denoising)")
		preGainDB   = flag.Float64("pre-gain-db", 0, "initial pre-gain, in decibels")
		postGainDB  = flag.Float64("post-gain-db", 0, "initial post-gain, in decibels")
		hopLength   = flag.Int("hop", 480, "samples per hop (10 ms at 48 kHz)")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "audiopiped: ", log.LstdFlags|log.Lmicroseconds)

	registry := prometheus.NewRegistry()
	buildInfo := promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Name: "audiopiped_build_info",
		Help: "Always 1; exists so audiopiped is visible in service discovery.",
	})
	buildInfo.Set(1)
	recorder := metrics.NewRecorder(registry)

	sessions := newSessionTable(sessionConfig{
		ModelPath:  *modelPath,
		HopLength:  *hopLength,
		FrameSize:  2 * *hopLength,
		PreGainDB:  *preGainDB,
		PostGainDB: *postGainDB,
		Logger:     logger,
		Metrics:    recorder,
	})

	var (
		receiver *rtpReceiver
		err      error
	)
	if *mcastGroup != "" {
		receiver, err = newMulticastRTPReceiver(*mcastGroup, *mcastIface, *sendRTPAddr, sessions, logger)
	} else {
		receiver, err = newRTPReceiver(*listenRTP, *sendRTPAddr, sessions, logger)
	}
	if err != nil {
		logger.Fatalf("failed to start RTP receiver: %v", err)
	}
	go receiver.run()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/control", newControlHandler(sessions, logger).serveWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	rtpDesc := *listenRTP
	if *mcastGroup != "" {
		rtpDesc = fmt.Sprintf("multicast %s iface=%q", *mcastGroup, *mcastIface)
	}
	logger.Printf("listening: rtp=%s http=%s model=%q hop=%d", rtpDesc, *httpAddr, *modelPath, *hopLength)
	if err := http.ListenAndServe(*httpAddr, mux); err != nil {
		logger.Fatalf("http server exited: %v", err)
	}
}
