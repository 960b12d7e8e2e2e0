package rtp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/looplab/fsm"
)

// Endpoint states, per §4.3's state machine.
const (
	endpointUnbound = "unbound"
	endpointBound   = "bound"
	endpointClosed  = "closed"
)

// EndpointConfig configures an Endpoint.
type EndpointConfig struct {
	LocalAddr  string // host:port to bind the RTCP UDP socket to
	RemoteAddr string // initial remote host:port; mutable after construction

	// OnSenderReport is invoked on the receive-loop goroutine for each
	// well-formed SR datagram, with the SR's middle-32 NTP bits (the LSR
	// an outbound RR would carry).
	OnSenderReport func(lastSRMiddle32 uint32, sr SenderReport)

	// OnReceiverReport is invoked on the receive-loop goroutine for each
	// well-formed RR datagram.
	OnReceiverReport func(rr ReceiverReport)

	Logger *slog.Logger
}

// Endpoint owns the one UDP socket a flow uses for RTCP: it sends SR/RR
// datagrams to a (mutable) remote host and dispatches inbound ones to the
// onSenderReport/onReceiverReport observers. See §4.3.
type Endpoint struct {
	conn   *net.UDPConn
	remote atomic.Pointer[net.UDPAddr]

	onSenderReport   func(uint32, SenderReport)
	onReceiverReport func(ReceiverReport)
	logger           *slog.Logger

	fsm    *fsm.FSM
	fsmMu  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEndpoint binds the RTCP UDP socket (failing with ErrBindFailed if it
// cannot) and returns an Endpoint in the Unbound state; call Start to
// begin receiving and sending.
func NewEndpoint(cfg EndpointConfig) (*Endpoint, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Endpoint{
		onSenderReport:   cfg.OnSenderReport,
		onReceiverReport: cfg.OnReceiverReport,
		logger:           logger,
	}

	e.fsm = fsm.NewFSM(
		endpointUnbound,
		fsm.Events{
			{Name: "bind", Src: []string{endpointUnbound}, Dst: endpointBound},
			{Name: "close", Src: []string{endpointUnbound, endpointBound}, Dst: endpointClosed},
		},
		fsm.Callbacks{},
	)

	if cfg.RemoteAddr != "" {
		addr, err := net.ResolveUDPAddr("udp", cfg.RemoteAddr)
		if err != nil {
			return nil, fmt.Errorf("rtcp endpoint: resolve remote addr: %w", err)
		}
		e.remote.Store(addr)
	}

	localAddr, err := net.ResolveUDPAddr("udp", cfg.LocalAddr)
	if err != nil {
		return nil, fmt.Errorf("rtcp endpoint: resolve local addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("rtcp endpoint: %w: %w", ErrBindFailed, err)
	}
	e.conn = conn

	return e, nil
}

// LocalAddr returns the endpoint's bound UDP address.
func (e *Endpoint) LocalAddr() *net.UDPAddr {
	return e.conn.LocalAddr().(*net.UDPAddr)
}

// SetHandlers attaches the observers invoked by the receive loop. Callers
// normally set these once, before Start, since the loop reads the fields
// without synchronization once running.
func (e *Endpoint) SetHandlers(onSenderReport func(uint32, SenderReport), onReceiverReport func(ReceiverReport)) {
	e.onSenderReport = onSenderReport
	e.onReceiverReport = onReceiverReport
}

// SetRemoteAddr updates the destination for outbound SR/RR datagrams.
// Used by a receiver that learns its peer's RTCP port dynamically.
func (e *Endpoint) SetRemoteAddr(addr string) error {
	resolved, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("rtcp endpoint: resolve remote addr: %w", err)
	}
	e.remote.Store(resolved)
	return nil
}

// Start transitions Unbound->Bound and launches the receive loop. Calling
// Start twice, or after Close, fails with ErrBindFailed.
func (e *Endpoint) Start() error {
	e.fsmMu.Lock()
	err := e.fsm.Event(context.Background(), "bind")
	e.fsmMu.Unlock()
	if err != nil {
		return fmt.Errorf("rtcp endpoint: %w: %w", ErrBindFailed, err)
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.wg.Add(1)
	go e.receiveLoop()
	return nil
}

// Close transitions to Closed, stops the receive loop, and releases the
// socket. Idempotent.
func (e *Endpoint) Close() error {
	e.fsmMu.Lock()
	_ = e.fsm.Event(context.Background(), "close")
	e.fsmMu.Unlock()

	if e.cancel != nil {
		e.cancel()
	}
	err := e.conn.Close()
	e.wg.Wait()
	return err
}

func (e *Endpoint) isBound() bool {
	e.fsmMu.Lock()
	defer e.fsmMu.Unlock()
	return e.fsm.Current() == endpointBound
}

// SendSenderReport serializes and writes one SR datagram to the current
// remote address.
func (e *Endpoint) SendSenderReport(sr SenderReport) error {
	if !e.isBound() {
		return fmt.Errorf("rtcp endpoint: send SR: %w", ErrClosed)
	}
	remote := e.remote.Load()
	if remote == nil {
		return fmt.Errorf("rtcp endpoint: send SR: no remote address configured")
	}
	if _, err := e.conn.WriteToUDP(MarshalSenderReport(sr), remote); err != nil {
		return fmt.Errorf("rtcp endpoint: %w: %w", ErrSendFailed, err)
	}
	return nil
}

// SendReceiverReport serializes and writes one RR datagram to the current
// remote address.
func (e *Endpoint) SendReceiverReport(rr ReceiverReport) error {
	if !e.isBound() {
		return fmt.Errorf("rtcp endpoint: send RR: %w", ErrClosed)
	}
	remote := e.remote.Load()
	if remote == nil {
		return fmt.Errorf("rtcp endpoint: send RR: no remote address configured")
	}
	if _, err := e.conn.WriteToUDP(MarshalReceiverReport(rr), remote); err != nil {
		return fmt.Errorf("rtcp endpoint: %w: %w", ErrSendFailed, err)
	}
	return nil
}

// receiveLoop drains inbound RTCP datagrams until the context is
// canceled, dispatching each to the onSenderReport/onReceiverReport
// observer. Malformed datagrams are logged and skipped, never fatal.
func (e *Endpoint) receiveLoop() {
	defer e.wg.Done()

	buf := make([]byte, 2048)
	for {
		select {
		case <-e.ctx.Done():
			return
		default:
		}

		n, _, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			if e.ctx.Err() != nil {
				return
			}
			e.logger.Warn("rtcp endpoint: receive failed", "error", err)
			continue
		}

		e.dispatch(buf[:n])
	}
}

func (e *Endpoint) dispatch(data []byte) {
	pt, err := PacketType(data)
	if err != nil {
		e.logger.Debug("rtcp endpoint: malformed datagram", "error", err)
		return
	}

	switch pt {
	case rtcpPT_SR:
		sr, err := UnmarshalSenderReport(data)
		if err != nil {
			e.logger.Debug("rtcp endpoint: malformed SR", "error", err)
			return
		}
		if e.onSenderReport != nil {
			e.onSenderReport(ntpMiddle32(sr.NTPSeconds, sr.NTPFraction), sr)
		}
	case rtcpPT_RR:
		rr, err := UnmarshalReceiverReport(data)
		if err != nil {
			e.logger.Debug("rtcp endpoint: malformed RR", "error", err)
			return
		}
		if e.onReceiverReport != nil {
			e.onReceiverReport(rr)
		}
	default:
		e.logger.Debug("rtcp endpoint: unknown packet type", "type", pt)
	}
}
