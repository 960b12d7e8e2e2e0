// Command saminput streams a raw PCM audio file to a SAM RTP endpoint. It
// is a minimal Go analogue of the original saminput client, which read a
// sound file via libsndfile; this one reads interleaved little-endian
// 16-bit PCM, the most common raw format, and loops the file once it's
// exhausted.
package main

import (
	"encoding/binary"
	"flag"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samstream/sam-rtp/pkg/rtp"
)

func main() {
	path := flag.String("file", "", "raw interleaved 16-bit PCM file to stream (required)")
	remoteRTP := flag.String("rtp-addr", "127.0.0.1:7887", "remote RTP host:port to stream to")
	remoteRTCP := flag.String("rtcp-addr", "127.0.0.1:7888", "remote RTCP host:port")
	localRTP := flag.String("local-rtp", "0.0.0.0:0", "local RTP bind address")
	localRTCP := flag.String("local-rtcp", "0.0.0.0:0", "local RTCP bind address")
	channels := flag.Int("channels", 2, "number of channels in the input file")
	sampleRate := flag.Uint("sample-rate", 48000, "sample rate in Hz")
	samplesPerPacket := flag.Int("samples", 256, "samples per packet, per channel")
	loop := flag.Bool("loop", true, "loop the file when it reaches EOF")
	flag.Parse()

	if *path == "" {
		log.Fatal("saminput: -file is required")
	}

	logger := slog.Default()

	f, err := os.Open(*path)
	if err != nil {
		log.Fatalf("saminput: open input: %v", err)
	}
	defer f.Close()

	endpoint, err := rtp.NewEndpoint(rtp.EndpointConfig{
		LocalAddr:  *localRTCP,
		RemoteAddr: *remoteRTCP,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("saminput: rtcp endpoint: %v", err)
	}
	if err := endpoint.Start(); err != nil {
		log.Fatalf("saminput: start rtcp endpoint: %v", err)
	}
	defer endpoint.Close()

	sender, err := rtp.NewSender(rtp.SenderConfig{
		LocalRTPAddr:  *localRTP,
		RemoteRTPAddr: *remoteRTP,
		PayloadType:   rtp.PayloadPCM16,
		SampleRate:    uint32(*sampleRate),
		Endpoint:      endpoint,
		Logger:        logger,
		FlowName:      "saminput",
	})
	if err != nil {
		log.Fatalf("saminput: sender: %v", err)
	}
	defer sender.Close()

	planes := make([][]float32, *channels)
	for ch := range planes {
		planes[ch] = make([]float32, *samplesPerPacket)
	}
	frame := make([]byte, *channels*2)

	packetDuration := time.Duration(*samplesPerPacket) * time.Second / time.Duration(*sampleRate)
	ticker := time.NewTicker(packetDuration)
	defer ticker.Stop()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	logger.Info("saminput: streaming", "file", *path, "rtp", *remoteRTP, "channels", *channels)

	for {
		select {
		case <-stop:
			logger.Info("saminput: exiting")
			return
		case <-ticker.C:
			if err := fillPlanes(f, frame, planes, *samplesPerPacket, *loop); err != nil {
				logger.Info("saminput: end of input", "error", err)
				return
			}
			if err := sender.SendAudio(planes, *samplesPerPacket); err != nil {
				logger.Warn("saminput: send failed", "error", err)
			}
		}
	}
}

// fillPlanes reads numSamples interleaved frames from f into planes,
// de-interleaving int16 little-endian samples into [-1, 1] float32. On
// EOF it either rewinds (loop) or returns io.EOF.
func fillPlanes(f *os.File, frame []byte, planes [][]float32, numSamples int, loop bool) error {
	for n := 0; n < numSamples; n++ {
		if _, err := io.ReadFull(f, frame); err != nil {
			if !loop {
				return err
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return err
			}
			if _, err := io.ReadFull(f, frame); err != nil {
				return err
			}
		}
		for ch := range planes {
			v := int16(binary.LittleEndian.Uint16(frame[ch*2:]))
			planes[ch][n] = float32(v) / 32768
		}
	}
	return nil
}
