package remotedesk

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/fixdesk/remotedesk/shared"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

type Role int

const (
	// RoleInitiator shares its screen, generates the offer and executes
	// inbound commands.
	RoleInitiator Role = iota
	// RoleResponder accepts the offer, receives the screen and sends commands.
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

type SessionState int

const (
	SessionStateIdle SessionState = iota
	SessionStateGenerating
	SessionStateAwaitingRemote
	SessionStateSignaling
	SessionStateConnected
	SessionStateClosed
	SessionStateErrored
)

func (s SessionState) String() string {
	switch s {
	case SessionStateIdle:
		return "idle"
	case SessionStateGenerating:
		return "generating"
	case SessionStateAwaitingRemote:
		return "awaiting-remote"
	case SessionStateSignaling:
		return "signaling"
	case SessionStateConnected:
		return "connected"
	case SessionStateClosed:
		return "closed"
	case SessionStateErrored:
		return "errored"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// Terminal reports whether no further transition can leave s.
func (s SessionState) Terminal() bool {
	return s == SessionStateClosed || s == SessionStateErrored
}

// LocalTrack is an outbound media track owned by a Session. Tracks from
// mediadevices satisfy it.
type LocalTrack interface {
	webrtc.TrackLocal
	OnEnded(func(error))
	Close() error
}

// MediaAcquirer obtains the initiator's outbound tracks.
type MediaAcquirer func(ctx context.Context) ([]LocalTrack, error)

type CommandHandler func(cmd Command)
type TrackRemoteHandler func(track *webrtc.TrackRemote)
type StateHandler func(prev, next SessionState, err error)

const (
	DefaultChannelLabel  = "remote-control"
	DefaultGatherTimeout = 15 * time.Second
)

var errSessionClosed = errors.New("session closed")

type SessionConfig struct {
	Role       Role
	ICEServers []webrtc.ICEServer
	// IncludeLoopback adds loopback host candidates; needed when both peers
	// run on the same host without another interface.
	IncludeLoopback bool
	ChannelLabel    string
	GatherTimeout   time.Duration
	// Media is only consulted by the initiator. Nil means a data-only session.
	Media MediaAcquirer
	// Codecs registers codecs on the media engine; RegisterDefaultCodecs
	// when nil.
	Codecs func(m *webrtc.MediaEngine) error
}

// Session is one peer-to-peer connection attempt and its lifetime. All
// transitions are serialized by mu; handlers run outside of it.
type Session struct {
	id     string
	logger shared.LoggerAdapter
	cfg    SessionConfig
	api    *webrtc.API

	mu     sync.Mutex
	state  SessionState
	err    error
	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel
	tracks []LocalTrack
	local  string

	cmh CommandHandler
	trh TrackRemoteHandler
	sh  []StateHandler

	sendMu sync.Mutex

	connected     chan struct{}
	connectedOnce sync.Once
	done          chan struct{}
	doneOnce      sync.Once

	ctx    context.Context
	cancel context.CancelCauseFunc
}

func NewSession(ctx context.Context, logger shared.LoggerAdapter, cfg SessionConfig) (*Session, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if cfg.Role != RoleInitiator && cfg.Role != RoleResponder {
		return nil, fmt.Errorf("unknown role %d", int(cfg.Role))
	}
	if cfg.ChannelLabel == "" {
		cfg.ChannelLabel = DefaultChannelLabel
	}
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = DefaultGatherTimeout
	}

	m := &webrtc.MediaEngine{}
	if cfg.Codecs != nil {
		if err := cfg.Codecs(m); err != nil {
			return nil, fmt.Errorf("registering codecs: %w", err)
		}
	} else if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("registering default codecs: %w", err)
	}
	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(cfg.IncludeLoopback)

	id := uuid.NewString()
	ctx, cancel := context.WithCancelCause(ctx)
	s := &Session{
		id:        id,
		logger:    logger.With(zap.String("session", id), zap.String("role", cfg.Role.String())),
		cfg:       cfg,
		api:       webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se)),
		state:     SessionStateIdle,
		connected: make(chan struct{}),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Role() Role { return s.cfg.Role }

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err is the cause of an Errored session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// LocalSignal is the blob generated for the counterpart, empty until ready.
func (s *Session) LocalSignal() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

// Connected is closed when the command channel opens.
func (s *Session) Connected() <-chan struct{} {
	return s.connected
}

// Done is closed once the session reaches Closed or Errored.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) RegisterCommandHandler(handler CommandHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionStateIdle {
		return shared.ErrSessionAlreadyRunning
	}
	if s.cmh != nil {
		return shared.ErrCMHandlerAlreadySet
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	s.cmh = handler
	return nil
}

func (s *Session) RegisterTrackRemoteHandler(handler TrackRemoteHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionStateIdle {
		return shared.ErrSessionAlreadyRunning
	}
	if s.trh != nil {
		return shared.ErrTRHandlerAlreadySet
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	s.trh = handler
	return nil
}

// OnStateChange adds a handler called after every transition. Handlers
// registered on a terminal session are never called.
func (s *Session) OnStateChange(handler StateHandler) {
	if handler == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sh = append(s.sh, handler)
}

// CreateOffer acquires local media and produces the offer blob. Initiator
// only; a second call is rejected without touching the session.
func (s *Session) CreateOffer(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.cfg.Role != RoleInitiator {
		s.mu.Unlock()
		return "", shared.ErrWrongRole
	}
	if s.state != SessionStateIdle {
		s.mu.Unlock()
		return "", shared.ErrSignalRejected
	}
	notify := s.transitionLocked(SessionStateGenerating, nil)
	s.mu.Unlock()
	notify()

	tracks, err := s.acquire(ctx)
	if err != nil {
		s.logger.Error("acquiring local media", err)
		s.reset()
		return "", err
	}
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		stopTracks(s.logger, tracks)
		return "", errSessionClosed
	}
	s.tracks = tracks
	s.mu.Unlock()
	for _, track := range tracks {
		track.OnEnded(func(err error) {
			s.logger.Info("local track ended", zap.String("track", track.ID()), zap.Error(err))
			_ = s.Close()
		})
	}

	pc, err := s.newPeerConnection()
	if err != nil {
		return "", s.failWith("creating peer connection", err)
	}
	for _, track := range tracks {
		if _, err := pc.AddTrack(track); err != nil {
			return "", s.failWith("adding local track", err)
		}
	}
	ordered := true
	dc, err := pc.CreateDataChannel(s.cfg.ChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return "", s.failWith("creating data channel", err)
	}
	s.adoptDataChannel(dc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return "", s.failWith("creating offer", err)
	}
	blob, err := s.setLocalAndGather(ctx, pc, offer)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return "", errSessionClosed
	}
	s.local = blob
	notify = s.transitionLocked(SessionStateAwaitingRemote, nil)
	s.mu.Unlock()
	notify()
	return blob, nil
}

// AcceptAnswer applies the responder's answer. Only valid while the offer
// is out; a malformed blob leaves the session untouched.
func (s *Session) AcceptAnswer(blob string) error {
	s.mu.Lock()
	if s.cfg.Role != RoleInitiator {
		s.mu.Unlock()
		return shared.ErrWrongRole
	}
	if s.state != SessionStateAwaitingRemote {
		s.mu.Unlock()
		return shared.ErrSignalRejected
	}
	desc, err := DecodeSignal(blob, webrtc.SDPTypeAnswer)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	pc := s.pc
	notify := s.transitionLocked(SessionStateSignaling, nil)
	s.mu.Unlock()
	notify()

	if err := pc.SetRemoteDescription(desc); err != nil {
		return s.failWith("setting remote description", err)
	}
	return nil
}

// AcceptOffer applies the initiator's offer and produces the answer blob.
// Responder only; a malformed blob leaves the session Idle.
func (s *Session) AcceptOffer(ctx context.Context, blob string) (string, error) {
	s.mu.Lock()
	if s.cfg.Role != RoleResponder {
		s.mu.Unlock()
		return "", shared.ErrWrongRole
	}
	if s.state != SessionStateIdle {
		s.mu.Unlock()
		return "", shared.ErrSignalRejected
	}
	desc, err := DecodeSignal(blob, webrtc.SDPTypeOffer)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	notify := s.transitionLocked(SessionStateGenerating, nil)
	s.mu.Unlock()
	notify()

	pc, err := s.newPeerConnection()
	if err != nil {
		return "", s.failWith("creating peer connection", err)
	}
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != s.cfg.ChannelLabel {
			s.logger.Warn("ignoring unexpected data channel", zap.String("label", dc.Label()))
			return
		}
		s.adoptDataChannel(dc)
	})
	if err := pc.SetRemoteDescription(desc); err != nil {
		return "", s.failWith("setting remote description", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", s.failWith("creating answer", err)
	}
	local, err := s.setLocalAndGather(ctx, pc, answer)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return "", errSessionClosed
	}
	s.local = local
	notify = s.transitionLocked(SessionStateSignaling, nil)
	s.mu.Unlock()
	notify()
	return local, nil
}

// Send transmits one command on the ordered data channel.
func (s *Session) Send(cmd Command) error {
	s.mu.Lock()
	if s.state != SessionStateConnected || s.dc == nil {
		s.mu.Unlock()
		return shared.ErrNotConnected
	}
	dc := s.dc
	s.mu.Unlock()

	data, err := EncodeCommand(cmd)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := dc.SendText(string(data)); err != nil {
		return fmt.Errorf("sending command: %w", err)
	}
	return nil
}

// Close tears the session down. Local tracks are stopped before it returns.
func (s *Session) Close() error {
	s.shutdown(SessionStateClosed, nil, true)
	return nil
}

func (s *Session) acquire(ctx context.Context) ([]LocalTrack, error) {
	if s.cfg.Media == nil {
		return nil, nil
	}
	tracks, err := s.cfg.Media(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrMediaAcquisition) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrMediaAcquisition, err)
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: no screen to share was found", shared.ErrMediaAcquisition)
	}
	return tracks, nil
}

func (s *Session) newPeerConnection() (*webrtc.PeerConnection, error) {
	pc, err := s.api.NewPeerConnection(webrtc.Configuration{ICEServers: s.cfg.ICEServers})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		_ = pc.Close()
		return nil, errSessionClosed
	}
	s.pc = pc
	s.mu.Unlock()

	pc.OnConnectionStateChange(s.handlePeerState)
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.mu.Lock()
		trh := s.trh
		s.mu.Unlock()
		s.logger.Info(
			"received remote track",
			zap.String("kind", track.Kind().String()),
			zap.String("codec", track.Codec().MimeType),
		)
		if trh != nil {
			go trh(track)
		}
	})
	return pc, nil
}

// handlePeerState maps transport states onto the session. Disconnected is
// transient in ICE and may recover, so it does not end the session.
func (s *Session) handlePeerState(state webrtc.PeerConnectionState) {
	s.logger.Trace("peer connection state changed", zap.String("state", state.String()))
	switch state {
	case webrtc.PeerConnectionStateFailed:
		s.shutdown(SessionStateErrored, fmt.Errorf("%w: peer connection failed", shared.ErrPeerTransport), false)
	case webrtc.PeerConnectionStateClosed:
		s.shutdown(SessionStateClosed, nil, false)
	case webrtc.PeerConnectionStateDisconnected:
		s.logger.Warn("peer connection disconnected, waiting for ICE to recover")
	}
}

func (s *Session) adoptDataChannel(dc *webrtc.DataChannel) {
	s.mu.Lock()
	if s.dc != nil || s.state.Terminal() {
		s.mu.Unlock()
		s.logger.Warn("data channel already adopted", zap.String("label", dc.Label()))
		return
	}
	s.dc = dc
	s.mu.Unlock()

	dc.OnOpen(func() {
		s.mu.Lock()
		if s.state.Terminal() {
			s.mu.Unlock()
			return
		}
		notify := s.transitionLocked(SessionStateConnected, nil)
		s.mu.Unlock()
		s.connectedOnce.Do(func() { close(s.connected) })
		s.logger.Info("data channel opened")
		notify()
	})
	dc.OnClose(func() {
		s.logger.Info("data channel closed")
		s.shutdown(SessionStateClosed, nil, false)
	})
	dc.OnError(func(err error) {
		s.logger.Error("data channel error", err)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		s.mu.Lock()
		cmh := s.cmh
		s.mu.Unlock()
		if cmh == nil {
			return
		}
		cmd, err := DecodeCommand(msg.Data)
		if err != nil {
			s.logger.Warn("dropping undecodable command", zap.Error(err), zap.ByteString("data", msg.Data))
			return
		}
		cmh(cmd)
	})
}

func (s *Session) setLocalAndGather(ctx context.Context, pc *webrtc.PeerConnection, desc webrtc.SessionDescription) (string, error) {
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(desc); err != nil {
		return "", s.failWith("setting local description", err)
	}
	timer := time.NewTimer(s.cfg.GatherTimeout)
	defer timer.Stop()
	select {
	case <-gathered:
	case <-timer.C:
		return "", s.failWith("gathering candidates", errors.New("timed out"))
	case <-ctx.Done():
		return "", s.failWith("gathering candidates", ctx.Err())
	case <-s.done:
		return "", errSessionClosed
	}
	local := pc.LocalDescription()
	if local == nil {
		return "", s.failWith("reading local description", errors.New("no local description"))
	}
	blob, err := EncodeSignal(*local)
	if err != nil {
		return "", s.failWith("encoding local description", err)
	}
	return blob, nil
}

// failWith moves the session to Errored and returns the classified error.
func (s *Session) failWith(step string, err error) error {
	if errors.Is(err, errSessionClosed) {
		return err
	}
	e := fmt.Errorf("%w: %s: %v", shared.ErrPeerTransport, step, err)
	s.logger.Error(step, err)
	s.shutdown(SessionStateErrored, e, true)
	return e
}

// reset returns a Generating session to Idle after media acquisition failed.
func (s *Session) reset() {
	s.mu.Lock()
	if s.state != SessionStateGenerating {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = SessionStateIdle
	handlers := slices.Clone(s.sh)
	s.mu.Unlock()
	for _, h := range handlers {
		h(prev, SessionStateIdle, nil)
	}
}

func (s *Session) shutdown(final SessionState, cause error, syncClose bool) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	tracks := s.tracks
	pc := s.pc
	s.tracks = nil
	s.dc = nil
	notify := s.transitionLocked(final, cause)
	s.mu.Unlock()

	stopTracks(s.logger, tracks)
	if pc != nil {
		closePC := func() {
			if err := pc.Close(); err != nil {
				s.logger.Error("closing peer connection failed", err)
			}
		}
		if syncClose {
			closePC()
		} else {
			// Called from a pion callback; closing inline can deadlock.
			go closePC()
		}
	}
	if cause == nil {
		cause = errSessionClosed
	}
	s.cancel(cause)
	s.doneOnce.Do(func() { close(s.done) })
	notify()
}

func (s *Session) transitionLocked(next SessionState, cause error) func() {
	prev := s.state
	if prev == next || prev.Terminal() {
		return func() {}
	}
	s.state = next
	if cause != nil && s.err == nil {
		s.err = cause
	}
	s.logger.Trace(
		"session state changed",
		zap.String("prev", prev.String()),
		zap.String("new", next.String()),
	)
	handlers := slices.Clone(s.sh)
	return func() {
		for _, h := range handlers {
			h(prev, next, cause)
		}
	}
}

func stopTracks(logger shared.LoggerAdapter, tracks []LocalTrack) {
	for _, track := range tracks {
		if err := track.Close(); err != nil {
			logger.Error("stopping local track", err, zap.String("track", track.ID()))
		}
	}
}
