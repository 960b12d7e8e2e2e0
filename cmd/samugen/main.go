// Command samugen streams white-noise audio to a SAM RTP endpoint. It is
// a minimal Go analogue of the original samugen unit-generator client:
// where the original pulled samples from a JACK audio callback, this one
// drives Sender.SendAudio from a ticker, since the real-time audio
// callback glue is out of this repository's scope.
package main

import (
	"flag"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samstream/sam-rtp/pkg/rtp"
)

func main() {
	remoteRTP := flag.String("rtp-addr", "127.0.0.1:7887", "remote RTP host:port to stream to")
	remoteRTCP := flag.String("rtcp-addr", "127.0.0.1:7888", "remote RTCP host:port")
	localRTP := flag.String("local-rtp", "0.0.0.0:0", "local RTP bind address")
	localRTCP := flag.String("local-rtcp", "0.0.0.0:0", "local RTCP bind address")
	channels := flag.Int("channels", 2, "number of channels to stream")
	sampleRate := flag.Uint("sample-rate", 48000, "sample rate in Hz")
	samplesPerPacket := flag.Int("samples", 256, "samples per packet, per channel")
	flag.Parse()

	logger := slog.Default()

	endpoint, err := rtp.NewEndpoint(rtp.EndpointConfig{
		LocalAddr:  *localRTCP,
		RemoteAddr: *remoteRTCP,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("samugen: rtcp endpoint: %v", err)
	}
	if err := endpoint.Start(); err != nil {
		log.Fatalf("samugen: start rtcp endpoint: %v", err)
	}
	defer endpoint.Close()

	sender, err := rtp.NewSender(rtp.SenderConfig{
		LocalRTPAddr:  *localRTP,
		RemoteRTPAddr: *remoteRTP,
		PayloadType:   rtp.PayloadPCM16,
		SampleRate:    uint32(*sampleRate),
		Endpoint:      endpoint,
		Logger:        logger,
		FlowName:      "samugen",
	})
	if err != nil {
		log.Fatalf("samugen: sender: %v", err)
	}
	defer sender.Close()

	planes := make([][]float32, *channels)
	for ch := range planes {
		planes[ch] = make([]float32, *samplesPerPacket)
	}

	packetDuration := time.Duration(*samplesPerPacket) * time.Second / time.Duration(*sampleRate)
	ticker := time.NewTicker(packetDuration)
	defer ticker.Stop()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	logger.Info("samugen: streaming", "rtp", *remoteRTP, "channels", *channels, "sampleRate", *sampleRate)

	for {
		select {
		case <-stop:
			logger.Info("samugen: exiting")
			return
		case <-ticker.C:
			for ch := range planes {
				for n := range planes[ch] {
					planes[ch][n] = rand.Float32()*2 - 1
				}
			}
			if err := sender.SendAudio(planes, *samplesPerPacket); err != nil {
				logger.Warn("samugen: send failed", "error", err)
			}
		}
	}
}
