package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"blockcraft.dev/internal/metrics"
	"blockcraft.dev/internal/sim/material"
	"blockcraft.dev/internal/sim/world"
)

var ErrStopped = errors.New("engine stopped")

type Config struct {
	Ground    world.GroundConfig
	QueueSize int
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// AuditEntry records one world mutation attempt.
type AuditEntry struct {
	Seq      uint64  `json:"seq"`
	Time     string  `json:"time"`
	Source   string  `json:"source,omitempty"`
	Op       string  `json:"op"`
	Pos      *[3]int `json:"pos,omitempty"`
	Material string  `json:"material,omitempty"`
	BlockID  string  `json:"block_id,omitempty"`
	OK       bool    `json:"ok"`
	Code     string  `json:"code,omitempty"`
	Version  uint64  `json:"version"`
	Blocks   int     `json:"blocks"`
}

const (
	OpPlace  = "PLACE"
	OpRemove = "REMOVE"
	OpClear  = "CLEAR"
)

// Audit codes.
const (
	CodeOccupied        = "OCCUPIED"
	CodeNotFound        = "NOT_FOUND"
	CodeUnknownMaterial = "UNKNOWN_MATERIAL"
)

type reqKind int

const (
	reqPlace reqKind = iota + 1
	reqRemove
	reqClear
	reqSnapshot
	reqSubscribe
	reqUnsubscribe
	reqDigest
)

type request struct {
	kind   reqKind
	source string

	pos world.Vec3i
	mat material.Type
	id  world.BlockID
	fn  func(world.Snapshot)
	sub uint64

	resp chan response
}

type response struct {
	id      world.BlockID
	err     error
	removed bool
	snap    world.Snapshot
	sub     uint64
	digest  string
}

// Engine owns a World on a single goroutine (Run). Every other goroutine
// reaches the world through request messages.
type Engine struct {
	w       *world.World
	log     *zap.Logger
	metrics *metrics.Metrics
	audit   []AuditLogger

	reqs chan request
	done chan struct{}

	seq     uint64
	subs    map[uint64]func()
	nextSub uint64
}

func New(cfg Config, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := cfg.QueueSize
	if q <= 0 {
		q = 1024
	}
	e := &Engine{
		w:       world.New(cfg.Ground),
		log:     logger,
		metrics: m,
		reqs:    make(chan request, q),
		done:    make(chan struct{}),
		subs:    map[uint64]func(){},
	}
	m.WorldBlocks(e.w.Len())
	return e
}

// AddAuditLogger must be called before Run.
func (e *Engine) AddAuditLogger(l AuditLogger) {
	if l != nil {
		e.audit = append(e.audit, l)
	}
}

func (e *Engine) Ground() world.GroundConfig { return e.w.Ground() }

func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)
	e.log.Info("engine started", zap.Int("blocks", e.w.Len()))
	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine stopped", zap.Uint64("version", e.w.Version()))
			return ctx.Err()
		case r := <-e.reqs:
			r.resp <- e.handle(r)
		}
	}
}

// Done is closed once Run has returned.
func (e *Engine) Done() <-chan struct{} { return e.done }

func (e *Engine) call(r request) (response, error) {
	r.resp = make(chan response, 1)
	select {
	case e.reqs <- r:
	case <-e.done:
		return response{}, ErrStopped
	}
	select {
	case resp := <-r.resp:
		return resp, nil
	case <-e.done:
		return response{}, ErrStopped
	}
}

func (e *Engine) handle(r request) response {
	switch r.kind {
	case reqPlace:
		id, err := e.w.Place(r.pos, r.mat)
		e.recordPlace(r, id, err)
		return response{id: id, err: err}
	case reqRemove:
		removed := e.w.Remove(r.id)
		e.recordRemove(r, removed)
		return response{removed: removed}
	case reqClear:
		e.w.Clear()
		e.record(r.source, OpClear, nil, "", "", true, "")
		e.metrics.Mutation("clear", "ok")
		return response{}
	case reqSnapshot:
		return response{snap: e.w.Snapshot()}
	case reqSubscribe:
		e.nextSub++
		id := e.nextSub
		e.subs[id] = e.w.Subscribe(r.fn)
		return response{snap: e.w.Snapshot(), sub: id}
	case reqUnsubscribe:
		if cancel, ok := e.subs[r.sub]; ok {
			cancel()
			delete(e.subs, r.sub)
		}
		return response{}
	case reqDigest:
		return response{digest: e.w.Digest()}
	default:
		return response{err: errors.New("unknown request")}
	}
}

func (e *Engine) recordPlace(r request, id world.BlockID, err error) {
	pos := r.pos.ToArray()
	switch {
	case err == nil:
		e.record(r.source, OpPlace, &pos, string(r.mat), string(id), true, "")
		e.metrics.Mutation("place", "ok")
	case errors.Is(err, world.ErrAlreadyOccupied):
		e.record(r.source, OpPlace, &pos, string(r.mat), string(id), false, CodeOccupied)
		e.metrics.Mutation("place", "occupied")
	default:
		e.record(r.source, OpPlace, &pos, string(r.mat), "", false, CodeUnknownMaterial)
		e.metrics.Mutation("place", "invalid")
	}
}

func (e *Engine) recordRemove(r request, removed bool) {
	var pos *[3]int
	if p, err := world.ParseID(r.id); err == nil {
		a := p.ToArray()
		pos = &a
	}
	if removed {
		e.record(r.source, OpRemove, pos, "", string(r.id), true, "")
		e.metrics.Mutation("remove", "ok")
		return
	}
	e.record(r.source, OpRemove, pos, "", string(r.id), true, CodeNotFound)
	e.metrics.Mutation("remove", "noop")
}

func (e *Engine) record(source, op string, pos *[3]int, mat, id string, ok bool, code string) {
	e.metrics.WorldBlocks(e.w.Len())
	if len(e.audit) == 0 {
		return
	}
	e.seq++
	entry := AuditEntry{
		Seq:      e.seq,
		Time:     time.Now().UTC().Format(time.RFC3339Nano),
		Source:   source,
		Op:       op,
		Pos:      pos,
		Material: mat,
		BlockID:  id,
		OK:       ok,
		Code:     code,
		Version:  e.w.Version(),
		Blocks:   e.w.Len(),
	}
	for _, l := range e.audit {
		if err := l.WriteAudit(entry); err != nil {
			e.log.Warn("audit write failed", zap.Error(err), zap.Uint64("seq", entry.Seq))
		}
	}
}
