package rtp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ReceiverConfig configures a Receiver.
type ReceiverConfig struct {
	LocalRTPAddr string

	SampleRate uint32 // required, for jitter's RTP-clock conversion and RR scheduling
	Channels   int    // required, fixed channel count for this flow

	// ReporterSSRC identifies this receiver in outbound RR packets;
	// 0 => drawn from crypto/rand.
	ReporterSSRC uint32

	// RemoteRTCPPort is the sender's configured RTCP port (§6: "receiver
	// learns the sender's RTCP port from configuration"). The endpoint's
	// remote *host*, by contrast, is learned dynamically from the first
	// RTP packet's source address (§4.3) — useful when the sender is
	// behind a NAT whose public IP isn't known in advance. 0 disables
	// this rebinding and leaves the endpoint's configured remote address
	// untouched.
	RemoteRTCPPort int

	// JitterQueueSize bounds the reorder queue; 0 defaults to 64.
	JitterQueueSize int
	// RRIntervalMs is the RR emission period; 0 defaults to 5000ms.
	RRIntervalMs uint32

	Endpoint *Endpoint // required; caller owns its lifecycle
	Metrics  *Metrics  // optional
	FlowName string    // metrics label; defaults to "default"
	Logger   *slog.Logger
}

// sourceState is the per-source-SSRC bookkeeping from §3's "Receiver
// state".
type sourceState struct {
	ssrc     uint32
	hasFirst bool
	ext      uint64 // advances only on in-order/advancing packets
	baseExt  uint64

	hasLast        bool
	lastTimestamp  uint32
	lastArrivalRTP uint32
	jitter         float64

	packetCount uint64

	hasIntervalFirst bool
	intervalFirstExt uint64
	intervalMaxExt   uint64
	intervalCount    uint64

	hasSR          bool
	lastSRMiddle32 uint32
	lastSRArrival  time.Time
}

// Receiver owns one RTP flow's inbound socket, jitter buffer, and
// RFC 3550 loss/jitter statistics (§4.5). Its receive loop runs on its own
// goroutine; Pull is safe to call from a separate consumer goroutine.
type Receiver struct {
	conn           *net.UDPConn
	sampleRate     uint32
	channels       int
	reporterSSRC   uint32
	remoteRTCPPort int
	learnedHost    bool
	buffer         *JitterBuffer
	endpoint       *Endpoint

	metrics  *Metrics
	flowName string
	logger   *slog.Logger

	mu    sync.Mutex
	state sourceState

	rrInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	active int32
}

// NewReceiver binds the RTP socket, wires itself as the associated
// Endpoint's SR observer, and prepares the jitter buffer. It does not
// start the Endpoint or the receive loop; call Start for that.
func NewReceiver(cfg ReceiverConfig) (*Receiver, error) {
	if cfg.SampleRate == 0 {
		return nil, fmt.Errorf("rtp receiver: SampleRate is required")
	}
	if cfg.Channels <= 0 {
		return nil, fmt.Errorf("rtp receiver: Channels must be positive")
	}
	if cfg.Endpoint == nil {
		return nil, fmt.Errorf("rtp receiver: Endpoint is required")
	}

	localAddr, err := net.ResolveUDPAddr("udp", cfg.LocalRTPAddr)
	if err != nil {
		return nil, fmt.Errorf("rtp receiver: resolve local addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("rtp receiver: %w: %w", ErrBindFailed, err)
	}

	reporterSSRC := cfg.ReporterSSRC
	if reporterSSRC == 0 {
		reporterSSRC, err = randomUint32()
		if err != nil {
			return nil, fmt.Errorf("rtp receiver: %w", err)
		}
	}

	queueSize := cfg.JitterQueueSize
	if queueSize == 0 {
		queueSize = 64
	}
	rrIntervalMs := cfg.RRIntervalMs
	if rrIntervalMs == 0 {
		rrIntervalMs = 5000
	}
	flowName := cfg.FlowName
	if flowName == "" {
		flowName = "default"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Receiver{
		conn:           conn,
		sampleRate:     cfg.SampleRate,
		channels:       cfg.Channels,
		reporterSSRC:   reporterSSRC,
		remoteRTCPPort: cfg.RemoteRTCPPort,
		buffer:         NewJitterBuffer(queueSize),
		endpoint:       cfg.Endpoint,
		metrics:        cfg.Metrics,
		flowName:       flowName,
		logger:         logger,
		rrInterval:     time.Duration(rrIntervalMs) * time.Millisecond,
	}

	cfg.Endpoint.SetHandlers(r.onSenderReport, nil)
	return r, nil
}

// LocalAddr returns the receiver's bound RTP UDP address.
func (r *Receiver) LocalAddr() *net.UDPAddr {
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// Start launches the receive loop and the periodic RR emitter.
func (r *Receiver) Start() error {
	if !atomic.CompareAndSwapInt32(&r.active, 0, 1) {
		return fmt.Errorf("rtp receiver: %w: already started", ErrBindFailed)
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.wg.Add(2)
	go r.receiveLoop()
	go r.reportLoop()
	return nil
}

// Stop cancels the loops, closes the socket, waits for both goroutines to
// exit, and flushes the jitter buffer.
func (r *Receiver) Stop() error {
	if !atomic.CompareAndSwapInt32(&r.active, 1, 0) {
		return nil
	}
	r.cancel()
	err := r.conn.Close()
	r.wg.Wait()
	for {
		p, ok := r.buffer.Pop()
		if !ok {
			break
		}
		r.buffer.Release(p)
	}
	return err
}

func (r *Receiver) receiveLoop() {
	defer r.wg.Done()
	buf := make([]byte, 2048)
	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			if r.metrics != nil {
				r.metrics.ReceiveErrors.WithLabelValues(r.flowName).Inc()
			}
			r.logger.Warn("rtp receiver: receive failed", "error", err)
			continue
		}

		r.handleDatagram(buf[:n], addr)
	}
}

func (r *Receiver) handleDatagram(data []byte, from *net.UDPAddr) {
	arrivalMillis := uint32(time.Now().UnixMilli())
	packet := r.buffer.Get()
	if err := decodeInto(packet, data, arrivalMillis); err != nil {
		r.logger.Debug("rtp receiver: malformed packet", "error", err)
		r.buffer.Release(packet)
		return
	}

	r.learnRemoteRTCPHost(from)

	r.mu.Lock()
	r.assignExtendedSeq(packet)
	r.updateJitter(packet, arrivalMillis)
	r.updateLossAccounting(packet)
	jitter := r.state.jitter
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.PacketsReceived.WithLabelValues(r.flowName).Inc()
		r.metrics.Jitter.WithLabelValues(r.flowName).Set(jitter)
	}

	kept, reason := r.buffer.Push(packet)
	if !kept {
		r.buffer.Release(packet)
		if r.metrics != nil {
			if reason == dropLate {
				r.metrics.PacketsLate.WithLabelValues(r.flowName).Inc()
			}
			r.metrics.PacketsDropped.WithLabelValues(r.flowName, string(reason)).Inc()
		}
		return
	}
	if r.metrics != nil {
		r.metrics.BufferDepth.WithLabelValues(r.flowName).Set(float64(r.buffer.Len()))
	}
}

// learnRemoteRTCPHost rebinds the RTCP endpoint's remote address to the
// RTP sender's observed source IP, keeping the configured RemoteRTCPPort,
// the first time a datagram arrives. See RemoteRTCPPort's doc comment.
func (r *Receiver) learnRemoteRTCPHost(from *net.UDPAddr) {
	if r.remoteRTCPPort == 0 || r.learnedHost || from == nil {
		return
	}
	r.learnedHost = true
	addr := &net.UDPAddr{IP: from.IP, Port: r.remoteRTCPPort}
	if err := r.endpoint.SetRemoteAddr(addr.String()); err != nil {
		r.logger.Warn("rtp receiver: failed to learn remote RTCP host", "error", err)
	}
}

// assignExtendedSeq implements §4.5's extended-sequence-number algorithm,
// resetting all per-source state on an SSRC change (§9 Open Question 2).
func (r *Receiver) assignExtendedSeq(p *Packet) {
	s := &r.state

	if !s.hasFirst || p.SSRC != s.ssrc {
		if s.hasFirst && p.SSRC != s.ssrc {
			r.logger.Info("rtp receiver: SSRC changed, resetting source state",
				"old_ssrc", s.ssrc, "new_ssrc", p.SSRC)
		}
		*s = sourceState{
			ssrc:     p.SSRC,
			hasFirst: true,
			ext:      uint64(p.SequenceNumber),
		}
		s.baseExt = s.ext
		s.intervalFirstExt = s.ext
		s.intervalMaxExt = s.ext
		s.hasIntervalFirst = true
		p.ExtendedSeq = s.ext
		return
	}

	low := uint16(s.ext)
	delta := int16(p.SequenceNumber - low)
	if delta >= 0 {
		s.ext += uint64(delta)
		p.ExtendedSeq = s.ext
	} else {
		p.ExtendedSeq = (s.ext &^ 0xFFFF) | uint64(p.SequenceNumber)
	}
}

// updateJitter applies RFC 3550 §6.4.1 / Appendix A.8: D is the
// difference between consecutive packets' arrival-time gap and
// timestamp gap, both expressed in RTP-clock units.
func (r *Receiver) updateJitter(p *Packet, arrivalMillis uint32) {
	s := &r.state
	arrivalRTP := uint32(uint64(arrivalMillis) * uint64(r.sampleRate) / 1000)

	if s.hasLast {
		arrivalDiff := int32(arrivalRTP - s.lastArrivalRTP)
		tsDiff := int32(p.Timestamp - s.lastTimestamp)
		d := float64(arrivalDiff - tsDiff)
		s.jitter = calculateJitter(s.jitter, d)
	}
	s.lastArrivalRTP = arrivalRTP
	s.lastTimestamp = p.Timestamp
	s.hasLast = true
}

func (r *Receiver) updateLossAccounting(p *Packet) {
	s := &r.state
	s.packetCount++

	if !s.hasIntervalFirst {
		s.intervalFirstExt = p.ExtendedSeq
		s.intervalMaxExt = p.ExtendedSeq
		s.hasIntervalFirst = true
	} else if p.ExtendedSeq > s.intervalMaxExt {
		s.intervalMaxExt = p.ExtendedSeq
	}
	s.intervalCount++
}

// onSenderReport is wired to the Endpoint as the SR observer; it records
// the LSR material an outbound RR needs.
func (r *Receiver) onSenderReport(lastSRMiddle32 uint32, _ SenderReport) {
	r.mu.Lock()
	r.state.hasSR = true
	r.state.lastSRMiddle32 = lastSRMiddle32
	r.state.lastSRArrival = time.Now()
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ReportsReceived.WithLabelValues(r.flowName, "sr").Inc()
	}
}

func (r *Receiver) reportLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.rrInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.sendReport()
		}
	}
}

func (r *Receiver) sendReport() {
	r.mu.Lock()
	s := r.state
	if s.hasIntervalFirst {
		r.state.hasIntervalFirst = false
		r.state.intervalCount = 0
	}
	r.mu.Unlock()

	if !s.hasFirst {
		return
	}

	expected := s.intervalMaxExt - s.intervalFirstExt + 1
	var lost uint32
	if expected > s.intervalCount {
		lost = uint32(expected - s.intervalCount)
	}
	fraction := calculateFractionLost(lost, uint32(expected))
	if lost > 0 && r.metrics != nil {
		r.metrics.PacketsLost.WithLabelValues(r.flowName).Add(float64(lost))
	}

	cumulativeExpected := s.ext - s.baseExt + 1
	var cumulativeLost int64
	if cumulativeExpected > s.packetCount {
		cumulativeLost = int64(cumulativeExpected - s.packetCount)
	}

	var lsr, dlsr uint32
	if s.hasSR {
		lsr = s.lastSRMiddle32
		dlsr = dlsrFromDuration(time.Since(s.lastSRArrival))
	}

	rr := ReceiverReport{
		ReporterSSRC:       r.reporterSSRC,
		ReporteeSSRC:       s.ssrc,
		FractionLost:       fraction,
		CumulativeLost:     int32(cumulativeLost),
		ExtendedHighestSeq: uint32(s.ext),
		Jitter:             uint32(s.jitter),
		LSR:                lsr,
		DLSR:               dlsr,
	}

	if err := r.endpoint.SendReceiverReport(rr); err != nil {
		r.logger.Warn("rtp receiver: failed to send RR", "error", err)
		return
	}
	if r.metrics != nil {
		r.metrics.ReportsSent.WithLabelValues(r.flowName, "rr").Inc()
	}
}

// Pull dequeues the next in-order packet (if any) and decodes its payload
// into planes (one slice per channel, each of length numSamples). It
// returns ok=false, with planes untouched, on underrun. The packet is
// returned to the jitter buffer's free list before Pull returns.
func (r *Receiver) Pull(planes [][]float32, numSamples int) (ok bool, err error) {
	if len(planes) != r.channels {
		return false, fmt.Errorf("rtp receiver: pull: %d planes, want %d: %w", len(planes), r.channels, ErrPayloadSizeMismatch)
	}

	packet, found := r.buffer.Pop()
	if !found {
		return false, nil
	}
	defer r.buffer.Release(packet)

	if err := packet.DecodeInto(planes, numSamples); err != nil {
		return false, err
	}
	return true, nil
}

// Stats returns a snapshot of the current source's loss/jitter counters.
func (r *Receiver) Stats() (packetCount uint64, jitter float64, ssrc uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.packetCount, r.state.jitter, r.state.ssrc
}
