package engine

import (
	"blockcraft.dev/internal/sim/material"
	"blockcraft.dev/internal/sim/world"
)

// Actor is a view of the engine whose mutations are audited under source.
type Actor struct {
	e      *Engine
	source string
}

func (e *Engine) As(source string) *Actor { return &Actor{e: e, source: source} }

func (a *Actor) Source() string { return a.source }

func (a *Actor) Place(p world.Vec3i, m material.Type) (world.BlockID, error) {
	resp, err := a.e.call(request{kind: reqPlace, source: a.source, pos: p, mat: m})
	if err != nil {
		return "", err
	}
	return resp.id, resp.err
}

// Remove reports whether a block was removed; missing ids are not an error.
func (a *Actor) Remove(id world.BlockID) (bool, error) {
	resp, err := a.e.call(request{kind: reqRemove, source: a.source, id: id})
	if err != nil {
		return false, err
	}
	return resp.removed, nil
}

func (a *Actor) Clear() error {
	_, err := a.e.call(request{kind: reqClear, source: a.source})
	return err
}

func (a *Actor) List() []world.Block { return a.e.List() }

func (e *Engine) Place(p world.Vec3i, m material.Type) (world.BlockID, error) {
	return e.As("").Place(p, m)
}

func (e *Engine) Remove(id world.BlockID) (bool, error) { return e.As("").Remove(id) }

func (e *Engine) Clear() error { return e.As("").Clear() }

// Snapshot returns the current state; zero after the engine stopped.
func (e *Engine) Snapshot() world.Snapshot {
	resp, err := e.call(request{kind: reqSnapshot})
	if err != nil {
		return world.Snapshot{}
	}
	return resp.snap
}

func (e *Engine) List() []world.Block { return e.Snapshot().Blocks }

func (e *Engine) Digest() string {
	resp, err := e.call(request{kind: reqDigest})
	if err != nil {
		return ""
	}
	return resp.digest
}

// Subscribe registers fn and returns the state it starts from. fn runs on the
// engine goroutine and must not block. cancel is safe to call more than once
// and after the engine stopped.
func (e *Engine) Subscribe(fn func(world.Snapshot)) (initial world.Snapshot, cancel func(), err error) {
	resp, err := e.call(request{kind: reqSubscribe, fn: fn})
	if err != nil {
		return world.Snapshot{}, func() {}, err
	}
	id := resp.sub
	return resp.snap, func() {
		_, _ = e.call(request{kind: reqUnsubscribe, sub: id})
	}, nil
}
