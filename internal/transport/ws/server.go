package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"blockcraft.dev/internal/metrics"
	"blockcraft.dev/internal/protocol"
	"blockcraft.dev/internal/scene"
	"blockcraft.dev/internal/sim/build"
	"blockcraft.dev/internal/sim/engine"
	"blockcraft.dev/internal/sim/interact"
	"blockcraft.dev/internal/sim/material"
	"blockcraft.dev/internal/sim/world"
)

type Config struct {
	DefaultMaterial material.Type
	BuildOrigin     world.Vec3i
	BuildDelay      time.Duration
	// MaxQueue caps the per-session outbound queue a client may ask for.
	MaxQueue      int
	ActionsPerSec float64
	Burst         int
}

// BuildRecorder receives every finished build, e.g. the sqlite index.
type BuildRecorder interface {
	RecordBuild(res build.Result, mode string, err error)
}

type Server struct {
	engine   *engine.Engine
	builder  *build.Builder
	textures *material.Resolver
	builds   BuildRecorder
	log      *zap.Logger
	metrics  *metrics.Metrics
	cfg      Config

	upgrader websocket.Upgrader

	// Animated builds outlive the session that started them and stop with
	// the server.
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

func NewServer(e *engine.Engine, b *build.Builder, textures *material.Resolver, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.DefaultMaterial.Valid() {
		cfg.DefaultMaterial = material.Brick
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = 32
	}
	if cfg.ActionsPerSec <= 0 {
		cfg.ActionsPerSec = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 40
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		engine:   e,
		builder:  b,
		textures: textures,
		log:      logger,
		metrics:  m,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		baseCtx: ctx,
		stop:    cancel,
	}
}

// SetBuildRecorder must be called before Handler serves traffic.
func (s *Server) SetBuildRecorder(r BuildRecorder) { s.builds = r }

// Close cancels running builds and waits for their results to be delivered.
func (s *Server) Close() {
	s.stop()
	s.wg.Wait()
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		s.metrics.SessionOpened()
		defer s.metrics.SessionClosed()
		log := sess.log
		log.Info("session opened", zap.String("client", sess.client), zap.Bool("delta", sess.delta))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		initial, unsubscribe, err := s.engine.Subscribe(sess.offer)
		if err != nil {
			log.Warn("subscribe failed", zap.Error(err))
			return
		}
		defer unsubscribe()
		sess.offer(initial)

		// Writer goroutine.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			sess.writeLoop(ctx, conn, cancel)
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.handleFrame(sess, msg)
		}
		<-writerDone
		log.Info("session closed")
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return nil
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		closeWith(conn, "bad HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return nil
	}
	if hello.ClientName == "" {
		hello.ClientName = "client"
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > s.cfg.MaxQueue {
		maxQ = s.cfg.MaxQueue
	}

	id := uuid.NewString()
	sess := &session{
		id:       id,
		client:   hello.ClientName,
		delta:    hello.Capabilities.Delta,
		out:      make(chan []byte, maxQ),
		notify:   make(chan struct{}, 1),
		selected: interact.NewSelection(s.cfg.DefaultMaterial),
		limiter:  rate.NewLimiter(rate.Limit(s.cfg.ActionsPerSec), s.cfg.Burst),
		actor:    s.engine.As("user:" + id),
		log:      s.log.With(zap.String("session_id", id)),
	}
	sess.resolver = interact.NewResolver(sess.actor, sess.selected.Get)

	welcome := protocol.WelcomeMsg{
		Type:             protocol.TypeWelcome,
		ProtocolVersion:  protocol.Version,
		SessionID:        id,
		Ground:           Ground(s.engine.Ground()),
		Structures:       Structures(s.builder.Catalog()),
		Materials:        Materials(s.textures),
		SelectedMaterial: string(s.cfg.DefaultMaterial),
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	return sess
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

// session is one websocket client. Snapshots offered by the engine are
// coalesced: the writer only ever sends the newest one.
type session struct {
	id     string
	client string
	delta  bool

	out    chan []byte
	notify chan struct{}

	mu      sync.Mutex
	pending *world.Snapshot

	// Owned by the writer goroutine.
	recon *scene.Reconciler

	selected *interact.Selection
	resolver *interact.Resolver
	limiter  *rate.Limiter
	actor    *engine.Actor
	log      *zap.Logger
}

// offer runs on the engine goroutine and must not block.
func (ss *session) offer(snap world.Snapshot) {
	ss.mu.Lock()
	if ss.pending == nil || snap.Version >= ss.pending.Version {
		ss.pending = &snap
	}
	ss.mu.Unlock()
	select {
	case ss.notify <- struct{}{}:
	default:
	}
}

func (ss *session) takePending() (world.Snapshot, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.pending == nil {
		return world.Snapshot{}, false
	}
	snap := *ss.pending
	ss.pending = nil
	return snap, true
}

func (ss *session) send(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		ss.log.Error("marshal", zap.Error(err))
		return
	}
	sendLatest(ss.out, b)
}

func (ss *session) writeLoop(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	write := func(v any) bool {
		if err := writeJSON(conn, v); err != nil {
			cancel()
			return false
		}
		return true
	}
	var lastVersion uint64
	sent := false
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-ss.out:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				cancel()
				return
			}
		case <-ss.notify:
			snap, ok := ss.takePending()
			if !ok || (sent && snap.Version <= lastVersion) {
				continue
			}
			if !ss.delta || ss.recon == nil {
				if ss.delta {
					ss.recon = scene.NewReconciler(scene.Discard{})
					ss.recon.Apply(snap)
				}
				if !write(SnapshotMsg(snap)) {
					return
				}
			} else {
				d := ss.recon.Apply(snap)
				if !d.Empty() && !write(deltaMsg(d)) {
					return
				}
			}
			sent = true
			lastVersion = snap.Version
		}
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func (s *Server) handleFrame(sess *session, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeAct {
		s.reject(sess, "", protocol.ErrProtoBadRequest, "expected ACT")
		return
	}
	var act protocol.ActMsg
	_ = json.Unmarshal(msg, &act)
	if err := protocol.Validate(protocol.TypeAct, msg); err != nil {
		s.reject(sess, act.Ref, protocol.ErrProtoBadRequest, protocol.Summary(err))
		return
	}
	if act.ProtocolVersion != protocol.Version {
		s.reject(sess, act.Ref, protocol.ErrProtoUnsupported, "bad protocol_version")
		return
	}
	if !sess.limiter.Allow() {
		s.reject(sess, act.Ref, protocol.ErrRateLimit, "too many actions")
		return
	}
	s.dispatch(sess, act)
}

func (s *Server) reject(sess *session, ref, code, message string) {
	s.metrics.Rejected(code)
	sess.send(protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		Ref:             ref,
		OK:              false,
		Code:            code,
		Message:         message,
	})
}

func (s *Server) ok(sess *session, ref string, fill func(*protocol.ResultMsg)) {
	res := protocol.ResultMsg{Type: protocol.TypeResult, ProtocolVersion: protocol.Version, Ref: ref, OK: true}
	if fill != nil {
		fill(&res)
	}
	sess.send(res)
}

// codeFor maps domain errors to protocol codes.
func codeFor(err error) string {
	switch {
	case errors.Is(err, interact.ErrNoTarget):
		return protocol.ErrInvalidTarget
	case errors.Is(err, world.ErrAlreadyOccupied):
		return protocol.ErrConflict
	case errors.Is(err, world.ErrUnknownMaterial), errors.Is(err, world.ErrBadID):
		return protocol.ErrBadRequest
	case errors.Is(err, build.ErrUnknownStructure):
		return protocol.ErrNotFound
	case errors.Is(err, engine.ErrStopped), errors.Is(err, context.Canceled):
		return protocol.ErrUnavailable
	default:
		return protocol.ErrInternal
	}
}

func (s *Server) dispatch(sess *session, act protocol.ActMsg) {
	fail := func(err error) { s.reject(sess, act.Ref, codeFor(err), err.Error()) }

	switch act.Action {
	case protocol.ActionPlace:
		id, err := sess.resolver.Primary(hitOf(act.Hit))
		if err != nil {
			fail(err)
			return
		}
		s.ok(sess, act.Ref, func(r *protocol.ResultMsg) { r.BlockID = string(id) })

	case protocol.ActionRemove:
		h := hitOf(act.Hit)
		removed, err := sess.resolver.Secondary(h)
		if err != nil {
			fail(err)
			return
		}
		s.ok(sess, act.Ref, func(r *protocol.ResultMsg) {
			if removed {
				r.BlockID = string(h.BlockID)
			}
		})

	case protocol.ActionSelect:
		m, err := material.Parse(act.Material)
		if err != nil {
			fail(world.ErrUnknownMaterial)
			return
		}
		_ = sess.selected.Set(m)
		s.ok(sess, act.Ref, nil)

	case protocol.ActionClear:
		if err := sess.actor.Clear(); err != nil {
			fail(err)
			return
		}
		s.ok(sess, act.Ref, nil)

	case protocol.ActionBuild:
		s.startBuild(sess, act)

	case protocol.ActionCancelBuild:
		if !s.builder.Cancel(act.BuildID) {
			s.reject(sess, act.Ref, protocol.ErrNotFound, "no running build "+act.BuildID)
			return
		}
		s.ok(sess, act.Ref, func(r *protocol.ResultMsg) { r.BuildID = act.BuildID })

	default:
		s.reject(sess, act.Ref, protocol.ErrBadRequest, "unknown action")
	}
}

func (s *Server) startBuild(sess *session, act protocol.ActMsg) {
	origin := s.cfg.BuildOrigin
	if act.Origin != nil {
		origin = world.FromArray(*act.Origin)
	}
	animated := act.Animated == nil || *act.Animated
	delay := s.cfg.BuildDelay
	if act.DelayMS != nil {
		delay = time.Duration(*act.DelayMS) * time.Millisecond
	}
	opts := build.Options{Rotation: act.Rotation}

	if !animated {
		res, err := s.builder.BuildImmediate(act.Structure, origin, opts)
		if errors.Is(err, build.ErrUnknownStructure) {
			s.reject(sess, act.Ref, protocol.ErrNotFound, err.Error())
			return
		}
		s.recordBuild(res, "immediate", err)
		if err != nil {
			s.reject(sess, act.Ref, codeFor(err), err.Error())
			return
		}
		s.ok(sess, act.Ref, func(r *protocol.ResultMsg) { r.BuildID = res.ID })
		sess.send(buildDone(res))
		return
	}

	job, err := s.builder.Start(s.baseCtx, act.Structure, origin, delay, opts)
	if err != nil {
		s.reject(sess, act.Ref, codeFor(err), err.Error())
		return
	}
	s.ok(sess, act.Ref, func(r *protocol.ResultMsg) { r.BuildID = job.ID })

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := job.Wait()
		if err != nil && !res.Cancelled {
			sess.log.Warn("build failed", zap.String("build_id", job.ID), zap.Error(err))
		}
		s.recordBuild(res, "animated", err)
		// The session may be gone; its queue is then simply never drained.
		sess.send(buildDone(res))
	}()
}

func (s *Server) recordBuild(res build.Result, mode string, err error) {
	if s.builds != nil {
		s.builds.RecordBuild(res, mode, err)
	}
}

func hitOf(h *protocol.HitRef) *interact.Hit {
	if h == nil {
		return nil
	}
	return &interact.Hit{BlockID: world.BlockID(h.BlockID), Normal: h.Normal}
}

func buildDone(res build.Result) protocol.BuildDoneMsg {
	return protocol.BuildDoneMsg{
		Type:            protocol.TypeBuildDone,
		ProtocolVersion: protocol.Version,
		BuildID:         res.ID,
		Structure:       res.Structure,
		Placed:          res.Placed,
		Skipped:         res.Skipped,
		Cancelled:       res.Cancelled,
		Complete:        res.Complete,
		Min:             res.Min.ToArray(),
		Max:             res.Max.ToArray(),
	}
}
