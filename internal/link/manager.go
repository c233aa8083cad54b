package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/linkctl/internal/display"
	"github.com/danmuck/linkctl/internal/observability"
	"github.com/danmuck/linkctl/internal/protocol/frame"
	"github.com/danmuck/linkctl/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrManagerClosed = errors.New("link: manager closed")

// Sink receives one record per frame sent or received.
type Sink interface {
	Append(display.Record) display.Record
}

// PeerInfo describes one attached peer connection.
type PeerInfo struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	AttachedAt time.Time `json:"attached_at"`
}

// SendResult reports per-peer delivery of one Send call.
type SendResult struct {
	Delivered int      `json:"delivered"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

type peer struct {
	id         string
	conn       net.Conn
	remote     string
	attachedAt time.Time
	order      uint64
	gen        uint64
}

func (p *peer) info() PeerInfo {
	return PeerInfo{ID: p.id, RemoteAddr: p.remote, AttachedAt: p.attachedAt}
}

type snapshot struct {
	status      session.Status
	conn        session.ConnectionConfig
	autoRespond bool
	listenAddr  string
	peers       []PeerInfo
}

// Manager runs at most one link session.
type Manager struct {
	cfg    session.Config
	sink   Sink
	limits frame.Limits

	// dialContext opens the connector socket; wrapConn, when set, wraps every
	// attached connection. Both are replaced only before Start.
	dialContext func(ctx context.Context, network, addr string) (net.Conn, error)
	wrapConn    func(net.Conn) net.Conn

	inbox     chan any
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// loop-owned
	conn         session.ConnectionConfig
	status       session.Status
	gen          uint64
	listener     net.Listener
	peers        map[string]*peer
	peerSeq      uint64
	autoRespond  bool
	dialCancel   context.CancelFunc
	pendingStart chan reply

	snapMu sync.RWMutex
	snap   snapshot
}

// NewManager starts the session event loop in the Down state with the
// default connection config. Close stops it.
func NewManager(cfg session.Config, sink Sink) *Manager {
	if sink == nil {
		sink = display.NewMemoryLog()
	}
	m := &Manager{
		cfg:         cfg.WithDefaults(),
		sink:        sink,
		limits:      frame.DefaultLimits(),
		dialContext: (&net.Dialer{}).DialContext,
		inbox:       make(chan any, 64),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		conn:        session.DefaultConnectionConfig(),
		status:      session.Status{State: session.StateDown},
		peers:       make(map[string]*peer),
		autoRespond: cfg.AutoRespond,
	}
	m.publish()
	go m.run()
	return m
}

// Configure replaces the connection config. Fails with ErrSessionBusy unless Down.
func (m *Manager) Configure(ctx context.Context, conn session.ConnectionConfig) error {
	r := m.call(ctx, request{op: opConfigure, conn: conn})
	return r.err
}

// Start opens the configured endpoint. It returns once the listener is bound
// or the outbound connection is established or has failed.
func (m *Manager) Start(ctx context.Context) error {
	r := m.call(ctx, request{op: opStart})
	return r.err
}

// Stop closes every socket and returns to Down. Stopping a Down session is a no-op.
func (m *Manager) Stop(ctx context.Context) error {
	r := m.call(ctx, request{op: opStop})
	if errors.Is(r.err, ErrManagerClosed) {
		return nil
	}
	return r.err
}

// Send writes payload to the connector peer or broadcasts it to every
// listener peer. A failing peer does not abort delivery to the others.
func (m *Manager) Send(ctx context.Context, payload []byte) (SendResult, error) {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	r := m.call(ctx, request{op: opSend, payload: buf})
	return r.send, r.err
}

// SendHex decodes paired hex digits and sends the bytes.
func (m *Manager) SendHex(ctx context.Context, h string) (SendResult, error) {
	payload, err := frame.Decode(h)
	if err != nil {
		return SendResult{}, err
	}
	return m.Send(ctx, payload)
}

// SendText encodes text with backslash escapes and sends the bytes.
func (m *Manager) SendText(ctx context.Context, text string) (SendResult, error) {
	return m.SendFrame(ctx, frame.ModeASCII, text)
}

// SendFrame composes user input in the given mode and sends it.
func (m *Manager) SendFrame(ctx context.Context, mode frame.Mode, input string) (SendResult, error) {
	payload, err := frame.Compose(mode, input, m.limits)
	if err != nil {
		return SendResult{}, err
	}
	return m.Send(ctx, payload)
}

// SetAutoRespond toggles echoing mutated inbound frames back to their sender.
func (m *Manager) SetAutoRespond(ctx context.Context, enabled bool) error {
	r := m.call(ctx, request{op: opAutoRespond, enabled: enabled})
	return r.err
}

func (m *Manager) Status() session.Status {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snap.status
}

func (m *Manager) Config() session.ConnectionConfig {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snap.conn
}

func (m *Manager) AutoRespond() bool {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snap.autoRespond
}

// ListenAddr is the bound listener address, or "" when no listener is open.
func (m *Manager) ListenAddr() string {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snap.listenAddr
}

// Peers returns attached peers in attach order.
func (m *Manager) Peers() []PeerInfo {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	out := make([]PeerInfo, len(m.snap.peers))
	copy(out, m.snap.peers)
	return out
}

// Close stops the session and the event loop. Further operations return ErrManagerClosed.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() { close(m.quit) })
	<-m.done
	return nil
}

func (m *Manager) call(ctx context.Context, req request) reply {
	if ctx == nil {
		ctx = context.Background()
	}
	req.reply = make(chan reply, 1)
	select {
	case m.inbox <- req:
	case <-m.done:
		return reply{err: ErrManagerClosed}
	case <-ctx.Done():
		return reply{err: ctx.Err()}
	}
	select {
	case r := <-req.reply:
		return r
	case <-m.done:
		return reply{err: ErrManagerClosed}
	case <-ctx.Done():
		return reply{err: ctx.Err()}
	}
}

// post delivers a transport event to the loop. It reports false once the loop has exited.
func (m *Manager) post(ev event) bool {
	select {
	case m.inbox <- ev:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) run() {
	defer close(m.done)
	for {
		select {
		case msg := <-m.inbox:
			switch v := msg.(type) {
			case request:
				m.handleRequest(v)
			case event:
				m.handleEvent(v)
			}
		case <-m.quit:
			m.teardown(session.Status{State: session.StateDown})
			log.Debug().Msg("link.Manager.run loop exited")
			return
		}
	}
}

func (m *Manager) handleRequest(req request) {
	switch req.op {
	case opConfigure:
		req.reply <- reply{err: m.configure(req.conn)}
	case opStart:
		m.start(req.reply)
	case opStop:
		m.teardown(session.Status{State: session.StateDown})
		req.reply <- reply{}
	case opSend:
		res, err := m.send(req.payload)
		req.reply <- reply{send: res, err: err}
	case opAutoRespond:
		m.autoRespond = req.enabled
		log.Info().Bool("enabled", req.enabled).Msg("link.Manager auto-responder toggled")
		m.publish()
		req.reply <- reply{}
	default:
		req.reply <- reply{err: fmt.Errorf("link: unknown operation %d", req.op)}
	}
}

func (m *Manager) handleEvent(ev event) {
	switch ev.kind {
	case eventAccepted:
		m.onAccepted(ev)
	case eventData:
		m.onData(ev)
	case eventClosed, eventError:
		m.onPeerGone(ev)
	case eventDialed:
		m.onDialed(ev)
	case eventListenerFailed:
		m.onListenerFailed(ev)
	default:
		log.Warn().Str("kind", ev.kind.String()).Msg("link.Manager.handleEvent unknown event")
	}
}

func (m *Manager) configure(conn session.ConnectionConfig) error {
	if m.status.State != session.StateDown {
		return fmt.Errorf("%w: status=%s", session.ErrSessionBusy, m.status)
	}
	if err := conn.Validate(); err != nil {
		return err
	}
	m.conn = conn
	m.publish()
	log.Info().
		Str("role", string(conn.Role)).
		Str("local", conn.LocalAddr()).
		Str("remote", conn.RemoteAddr()).
		Msg("link.Manager.configure stored connection config")
	return nil
}

func (m *Manager) start(out chan reply) {
	if m.status.State != session.StateDown {
		out <- reply{err: fmt.Errorf("%w: status=%s", session.ErrSessionBusy, m.status)}
		return
	}
	if err := m.conn.Validate(); err != nil {
		out <- reply{err: err}
		return
	}
	m.gen++
	m.setStatus(session.Status{State: session.StateStarting})

	switch m.conn.Role {
	case session.RoleListener:
		addr := m.conn.LocalAddr()
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			m.setStatus(session.Status{State: session.StateError, Message: err.Error()})
			log.Error().Str("addr", addr).Err(err).Msg("link.Manager.start bind failed")
			out <- reply{err: fmt.Errorf("%w: %w", session.ErrBindFailure, err)}
			return
		}
		m.listener = ln
		m.setStatus(session.Status{State: session.StateListening})
		log.Info().Str("addr", ln.Addr().String()).Msg("link.Manager.start listening")
		go m.acceptLoop(ln, m.gen)
		out <- reply{}
	case session.RoleConnector:
		m.setStatus(session.Status{State: session.StateConnecting})
		var (
			ctx    context.Context
			cancel context.CancelFunc
		)
		if m.cfg.ConnectTimeout > 0 {
			ctx, cancel = context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
		} else {
			ctx, cancel = context.WithCancel(context.Background())
		}
		m.dialCancel = cancel
		m.pendingStart = out
		addr := m.conn.RemoteAddr()
		log.Info().Str("addr", addr).Dur("timeout", m.cfg.ConnectTimeout).Msg("link.Manager.start connecting")
		go m.dial(ctx, addr, m.gen)
	}
}

func (m *Manager) dial(ctx context.Context, addr string, gen uint64) {
	conn, err := m.dialContext(ctx, "tcp", addr)
	if !m.post(event{kind: eventDialed, gen: gen, conn: conn, err: err}) && conn != nil {
		_ = conn.Close()
	}
}

func (m *Manager) onDialed(ev event) {
	if ev.gen != m.gen || m.status.State != session.StateConnecting {
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
		return
	}
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	out := m.pendingStart
	m.pendingStart = nil

	if ev.err != nil {
		m.setStatus(session.Status{State: session.StateDown})
		log.Warn().Str("addr", m.conn.RemoteAddr()).Err(ev.err).Msg("link.Manager.onDialed connect failed")
		if out != nil {
			out <- reply{err: fmt.Errorf("%w: %w", session.ErrConnectFailure, ev.err)}
		}
		return
	}
	p := m.attach(ev.conn)
	m.setStatus(session.Status{State: session.StateConnected})
	log.Info().Str("peer", p.id).Str("remote", p.remote).Msg("link.Manager.onDialed connected")
	if out != nil {
		out <- reply{}
	}
}

func (m *Manager) acceptLoop(ln net.Listener, gen uint64) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			m.post(event{kind: eventListenerFailed, gen: gen, err: err})
			return
		}
		if !m.post(event{kind: eventAccepted, gen: gen, conn: conn}) {
			_ = conn.Close()
			return
		}
	}
}

func (m *Manager) onAccepted(ev event) {
	if ev.gen != m.gen || m.listener == nil {
		_ = ev.conn.Close()
		return
	}
	p := m.attach(ev.conn)
	log.Info().Str("peer", p.id).Str("remote", p.remote).Int("peers", len(m.peers)).Msg("link.Manager.onAccepted client connected")
	if m.status.State != session.StateConnected {
		m.setStatus(session.Status{State: session.StateConnected})
	}
}

func (m *Manager) onListenerFailed(ev event) {
	if ev.gen != m.gen || m.listener == nil {
		return
	}
	log.Error().Err(ev.err).Msg("link.Manager.onListenerFailed accept loop stopped")
	m.teardown(session.Status{State: session.StateError, Message: ev.err.Error()})
}

func (m *Manager) attach(conn net.Conn) *peer {
	if m.wrapConn != nil {
		conn = m.wrapConn(conn)
	}
	m.peerSeq++
	p := &peer{
		id:         uuid.NewString(),
		conn:       conn,
		remote:     conn.RemoteAddr().String(),
		attachedAt: time.Now(),
		order:      m.peerSeq,
		gen:        m.gen,
	}
	m.peers[p.id] = p
	observability.SetPeers(len(m.peers))
	m.publish()
	go m.readLoop(p)
	return p
}

func (m *Manager) readLoop(p *peer) {
	buf := make([]byte, m.cfg.ReadBufferBytes)
	for {
		n, err := p.conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !m.post(event{kind: eventData, gen: p.gen, peer: p, data: data}) {
				return
			}
		}
		if err != nil {
			kind := eventError
			if errors.Is(err, io.EOF) {
				kind = eventClosed
			}
			m.post(event{kind: kind, gen: p.gen, peer: p, err: err})
			return
		}
	}
}

func (m *Manager) current(p *peer) bool {
	return p != nil && m.peers[p.id] == p
}

func (m *Manager) onData(ev event) {
	p := ev.peer
	if !m.current(p) {
		return
	}
	m.record(display.DirectionReceived, ev.data, p)
	if !m.autoRespond {
		return
	}
	resp, ok := AutoResponse(ev.data)
	if !ok {
		log.Warn().
			Str("peer", p.id).
			Int("len", len(ev.data)).
			Int("min_len", AutoResponseMinLength).
			Msg("link.Manager.onData inbound frame too short for auto-response")
		return
	}
	if err := m.write(p, resp); err != nil {
		log.Warn().Str("peer", p.id).Err(err).Msg("link.Manager.onData auto-response write failed")
		return
	}
	m.record(display.DirectionSent, resp, p)
}

func (m *Manager) onPeerGone(ev event) {
	p := ev.peer
	if !m.current(p) {
		return
	}
	m.detach(p)
	evt := log.Info()
	if ev.kind == eventError {
		evt = log.Warn().Err(ev.err)
	}
	evt.Str("peer", p.id).Str("remote", p.remote).Int("peers", len(m.peers)).Msg("link.Manager.onPeerGone peer disconnected")

	switch m.conn.Role {
	case session.RoleListener:
		if len(m.peers) == 0 && m.listener != nil {
			m.setStatus(session.Status{State: session.StateListening})
		}
	case session.RoleConnector:
		m.gen++
		m.setStatus(session.Status{State: session.StateDown})
	}
}

func (m *Manager) detach(p *peer) {
	delete(m.peers, p.id)
	_ = p.conn.Close()
	observability.SetPeers(len(m.peers))
	m.publish()
}

func (m *Manager) send(payload []byte) (SendResult, error) {
	if m.status.State != session.StateConnected || len(m.peers) == 0 {
		return SendResult{}, fmt.Errorf("%w: status=%s", session.ErrNoActiveSession, m.status)
	}
	var (
		res  SendResult
		errs []error
	)
	for _, p := range m.orderedPeers() {
		if err := m.write(p, payload); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", p.remote, err))
			errs = append(errs, fmt.Errorf("peer %s: %w", p.remote, err))
			log.Warn().Str("peer", p.id).Str("remote", p.remote).Err(err).Msg("link.Manager.send peer write failed")
			continue
		}
		m.record(display.DirectionSent, payload, p)
		res.Delivered++
	}
	if res.Delivered == 0 && len(errs) > 0 {
		return res, errors.Join(errs...)
	}
	return res, nil
}

func (m *Manager) write(p *peer, payload []byte) error {
	_ = p.conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	if _, err := p.conn.Write(payload); err != nil {
		observability.RecordWriteFailure()
		return err
	}
	return nil
}

func (m *Manager) record(dir display.Direction, payload []byte, p *peer) {
	text, h := frame.DisplayPair(payload)
	m.sink.Append(display.Record{
		Direction: dir,
		Text:      text,
		Hex:       h,
		Peer:      p.remote,
	})
	observability.RecordFrame(string(dir), len(payload))
	log.Debug().Str("direction", string(dir)).Str("peer", p.id).Str("hex", h).Msg("link.Manager.record")
}

func (m *Manager) orderedPeers() []*peer {
	out := make([]*peer, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

// teardown releases every socket and settles on next.
func (m *Manager) teardown(next session.Status) {
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	if m.pendingStart != nil {
		m.pendingStart <- reply{err: session.ErrStopped}
		m.pendingStart = nil
	}
	if m.listener != nil {
		_ = m.listener.Close()
		m.listener = nil
	}
	for _, p := range m.peers {
		_ = p.conn.Close()
		delete(m.peers, p.id)
	}
	observability.SetPeers(0)
	m.gen++
	m.setStatus(next)
}

func (m *Manager) setStatus(next session.Status) {
	if next == m.status {
		m.publish()
		return
	}
	prev := m.status
	m.status = next
	observability.RecordStateTransition(string(next.State))
	log.Info().Str("from", prev.String()).Str("to", next.String()).Msg("link.Manager status")
	m.publish()
}

func (m *Manager) publish() {
	peers := m.orderedPeers()
	infos := make([]PeerInfo, len(peers))
	for i, p := range peers {
		infos[i] = p.info()
	}
	var listenAddr string
	if m.listener != nil {
		listenAddr = m.listener.Addr().String()
	}
	m.snapMu.Lock()
	m.snap = snapshot{
		status:      m.status,
		conn:        m.conn,
		autoRespond: m.autoRespond,
		listenAddr:  listenAddr,
		peers:       infos,
	}
	m.snapMu.Unlock()
}
