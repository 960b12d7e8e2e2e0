package rtp

import (
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"
)

// SenderConfig configures a Sender. Zero SSRC/InitialSequenceNumber/
// InitialTimestamp are drawn from crypto/rand at construction (§4.4, §9).
type SenderConfig struct {
	LocalRTPAddr  string
	RemoteRTPAddr string

	SSRC        uint32
	PayloadType PayloadType
	SampleRate  uint32 // required

	InitialSequenceNumber uint32 // 0 => random
	InitialTimestamp      uint32 // 0 => random

	// ReportIntervalMs is the RTCP SR spacing; 0 defaults to 5000ms.
	ReportIntervalMs uint32

	Endpoint *Endpoint // required; caller owns its lifecycle
	Metrics  *Metrics  // optional
	FlowName string    // metrics label; defaults to "default"
	Logger   *slog.Logger
}

// Sender owns one RTP flow's outbound socket and counters (§4.4). A
// Sender is driven by repeated SendAudio calls from the host's audio
// producer; it is not safe for concurrent SendAudio calls from multiple
// goroutines (§5: the sender's counters are owned by one producer).
type Sender struct {
	ssrc        uint32
	payloadType PayloadType
	sampleRate  uint32

	sequenceNumber uint32 // low 16 bits significant; atomic for debug-hook/stat reads
	timestamp      uint32 // atomic

	packetsSent uint64 // atomic
	octetsSent  uint64 // atomic

	reportIntervalTs uint32
	nextReportTick   uint32

	sendBuf []byte // reused scratch buffer for the wire encoding of each packet

	conn       *net.UDPConn
	remoteAddr *net.UDPAddr
	endpoint   *Endpoint

	metrics  *Metrics
	flowName string
	logger   *slog.Logger
}

// NewSender binds the RTP socket and prepares a Sender. It does not start
// the associated Endpoint; callers must call Endpoint.Start themselves.
func NewSender(cfg SenderConfig) (*Sender, error) {
	if cfg.SampleRate == 0 {
		return nil, fmt.Errorf("rtp sender: SampleRate is required")
	}
	if cfg.Endpoint == nil {
		return nil, fmt.Errorf("rtp sender: Endpoint is required")
	}
	if !cfg.PayloadType.Valid() {
		return nil, fmt.Errorf("rtp sender: %w", ErrInvalidPayloadType)
	}

	ssrc := cfg.SSRC
	if ssrc == 0 {
		var err error
		ssrc, err = randomUint32()
		if err != nil {
			return nil, fmt.Errorf("rtp sender: %w", err)
		}
	}

	seq := cfg.InitialSequenceNumber
	if seq == 0 {
		v, err := randomUint16()
		if err != nil {
			return nil, fmt.Errorf("rtp sender: %w", err)
		}
		seq = uint32(v)
	}

	ts := cfg.InitialTimestamp
	if ts == 0 {
		v, err := randomUint32()
		if err != nil {
			return nil, fmt.Errorf("rtp sender: %w", err)
		}
		ts = v
	}

	localAddr, err := net.ResolveUDPAddr("udp", cfg.LocalRTPAddr)
	if err != nil {
		return nil, fmt.Errorf("rtp sender: resolve local addr: %w", err)
	}
	remoteAddr, err := net.ResolveUDPAddr("udp", cfg.RemoteRTPAddr)
	if err != nil {
		return nil, fmt.Errorf("rtp sender: resolve remote addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("rtp sender: %w: %w", ErrBindFailed, err)
	}

	intervalMs := cfg.ReportIntervalMs
	if intervalMs == 0 {
		intervalMs = 5000
	}
	reportIntervalTs := uint32(uint64(cfg.SampleRate) * uint64(intervalMs) / 1000)

	flowName := cfg.FlowName
	if flowName == "" {
		flowName = "default"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sender{
		ssrc:             ssrc,
		payloadType:      cfg.PayloadType,
		sampleRate:       cfg.SampleRate,
		sequenceNumber:   seq,
		timestamp:        ts,
		reportIntervalTs: reportIntervalTs,
		nextReportTick:   ts + reportIntervalTs,
		conn:             conn,
		remoteAddr:       remoteAddr,
		endpoint:         cfg.Endpoint,
		metrics:          cfg.Metrics,
		flowName:         flowName,
		logger:           logger,
	}, nil
}

// SendAudio encodes one packet from planes (channels x numSamples,
// non-interleaved) at the sender's current (timestamp, seqNum), writes it,
// then advances the counters and checks whether an SR is due (§4.4).
// Encoding reuses the Sender's own scratch buffer across calls, so steady-
// state operation (once that buffer has grown to the flow's packet size)
// does not allocate on this path.
func (s *Sender) SendAudio(planes [][]float32, numSamples int) error {
	seq := uint16(atomic.LoadUint32(&s.sequenceNumber))
	ts := atomic.LoadUint32(&s.timestamp)

	packet, err := encodeInto(&s.sendBuf, ts, seq, s.payloadType, s.ssrc, planes, numSamples)
	if err != nil {
		return err
	}

	if _, err := s.conn.WriteToUDP(packet, s.remoteAddr); err != nil {
		if s.metrics != nil {
			s.metrics.SendErrors.WithLabelValues(s.flowName).Inc()
		}
		return fmt.Errorf("rtp sender: %w: %w", ErrSendFailed, err)
	}

	payloadLen := len(packet) - headerSize
	atomic.AddUint32(&s.sequenceNumber, 1)
	newTimestamp := atomic.AddUint32(&s.timestamp, uint32(numSamples))
	atomic.AddUint64(&s.packetsSent, 1)
	atomic.AddUint64(&s.octetsSent, uint64(payloadLen))

	if s.metrics != nil {
		s.metrics.PacketsSent.WithLabelValues(s.flowName).Inc()
	}

	s.maybeSendReport(newTimestamp)
	return nil
}

// maybeSendReport checks the unsigned-wraparound-robust "timestamp has
// reached nextReportTick" condition from §4.4 and, if due, emits an SR
// through the endpoint and advances nextReportTick.
func (s *Sender) maybeSendReport(timestamp uint32) {
	if (timestamp-s.nextReportTick)&0x80000000 != 0 {
		return // not due yet
	}

	now := time.Now()
	ntpSecs, ntpFrac := ntpFromTime(now)
	sr := SenderReport{
		SSRC:         s.ssrc,
		NTPSeconds:   ntpSecs,
		NTPFraction:  ntpFrac,
		RTPTimestamp: timestamp,
		PacketsSent:  uint32(atomic.LoadUint64(&s.packetsSent)),
		OctetsSent:   uint32(atomic.LoadUint64(&s.octetsSent)),
	}

	if err := s.endpoint.SendSenderReport(sr); err != nil {
		s.logger.Warn("rtp sender: failed to send SR", "error", err)
	} else if s.metrics != nil {
		s.metrics.ReportsSent.WithLabelValues(s.flowName, "sr").Inc()
	}

	s.nextReportTick += s.reportIntervalTs
}

// ForceTimestamp overwrites the sender's current timestamp counter.
// Contract-required debug hook for bit-exact packet output tests (§4.4).
func (s *Sender) ForceTimestamp(t uint32) {
	atomic.StoreUint32(&s.timestamp, t)
}

// ForceSequenceNum overwrites the sender's current sequence-number
// counter. Contract-required debug hook (§4.4).
func (s *Sender) ForceSequenceNum(n uint16) {
	atomic.StoreUint32(&s.sequenceNumber, uint32(n))
}

// LocalAddr returns the sender's bound RTP UDP address.
func (s *Sender) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// SSRC returns the sender's synchronization source identifier.
func (s *Sender) SSRC() uint32 { return s.ssrc }

// PacketsSent returns the cumulative count of packets sent.
func (s *Sender) PacketsSent() uint64 { return atomic.LoadUint64(&s.packetsSent) }

// OctetsSent returns the cumulative count of payload octets sent.
func (s *Sender) OctetsSent() uint64 { return atomic.LoadUint64(&s.octetsSent) }

// Close releases the sender's RTP socket. It does not close the
// associated Endpoint, which the caller constructed and owns.
func (s *Sender) Close() error {
	return s.conn.Close()
}
