package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	_ "modernc.org/sqlite"

	"blockcraft.dev/internal/sim/build"
	"blockcraft.dev/internal/sim/catalogs"
	"blockcraft.dev/internal/sim/engine"
	"blockcraft.dev/internal/sim/tuning"
	"blockcraft.dev/internal/sim/world"
)

func openTemp(t *testing.T) (*SQLiteIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx, path
}

func syncIndex(t *testing.T, idx *SQLiteIndex) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqAudit, audit: engine.AuditEntry{Seq: 1}}

	_ = s.WriteAudit(engine.AuditEntry{Seq: 2})
	s.RecordBuild(build.Result{ID: "b1"}, "immediate", nil)

	st := s.Stats()
	if st.DropAuditTotal != 1 {
		t.Fatalf("DropAuditTotal=%d want=1", st.DropAuditTotal)
	}
	if st.DropBuildTotal != 1 {
		t.Fatalf("DropBuildTotal=%d want=1", st.DropBuildTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_AuditHistory(t *testing.T) {
	idx, _ := openTemp(t)

	pos := [3]int{2, 1, -3}
	other := [3]int{0, 1, 0}
	entries := []engine.AuditEntry{
		{Seq: 1, Time: "t1", Source: "user:a", Op: engine.OpPlace, Pos: &pos, Material: "wood", BlockID: "2_1_-3", OK: true, Version: 1, Blocks: 101},
		{Seq: 2, Time: "t2", Source: "user:a", Op: engine.OpPlace, Pos: &other, Material: "stone", BlockID: "0_1_0", OK: true, Version: 2, Blocks: 102},
		{Seq: 3, Time: "t3", Source: "user:b", Op: engine.OpRemove, Pos: &pos, BlockID: "2_1_-3", OK: true, Version: 3, Blocks: 101},
		{Seq: 4, Time: "t4", Source: "user:b", Op: engine.OpClear, OK: true, Version: 4, Blocks: 100},
	}
	for _, e := range entries {
		if err := idx.WriteAudit(e); err != nil {
			t.Fatalf("WriteAudit: %v", err)
		}
	}
	syncIndex(t, idx)

	got, err := idx.History(context.Background(), world.FromArray(pos), 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("history len=%d want=2: %+v", len(got), got)
	}
	if got[0].Seq != 3 || got[0].Op != engine.OpRemove || got[1].Seq != 1 || got[1].Material != "wood" {
		t.Fatalf("unexpected history: %+v", got)
	}
	if got[1].Pos == nil || *got[1].Pos != pos || !got[1].OK {
		t.Fatalf("pos/ok not restored: %+v", got[1])
	}
}

func TestSQLiteIndex_Builds(t *testing.T) {
	idx, path := openTemp(t)

	idx.RecordBuild(build.Result{
		ID: "b1", Structure: "house", Origin: world.Vec3i{Y: 1}, Placed: 81, Complete: true,
		Min: world.Vec3i{X: -2, Y: 1, Z: -2}, Max: world.Vec3i{X: 2, Y: 4, Z: 2},
	}, "immediate", nil)
	idx.RecordBuild(build.Result{ID: "b2", Structure: "castle", Placed: 5, Cancelled: true}, "animated", context.Canceled)
	syncIndex(t, idx)

	got, err := idx.RecentBuilds(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentBuilds: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("builds=%d want=2", len(got))
	}
	byID := map[string]BuildRecord{}
	for _, r := range got {
		byID[r.ID] = r
	}
	if r := byID["b1"]; r.Placed != 81 || !r.Complete || r.Mode != "immediate" || r.Origin.Y != 1 || r.Error != "" {
		t.Fatalf("b1 mismatch: %+v", r)
	}
	if r := byID["b1"]; r.Min != (world.Vec3i{X: -2, Y: 1, Z: -2}) || r.Max != (world.Vec3i{X: 2, Y: 4, Z: 2}) {
		t.Fatalf("b1 bounds: min=%+v max=%+v", r.Min, r.Max)
	}
	if r := byID["b2"]; !r.Cancelled || r.Error != context.Canceled.Error() {
		t.Fatalf("b2 mismatch: %+v", r)
	}

	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM builds`).Scan(&n); err != nil || n != 2 {
		t.Fatalf("count=%d err=%v", n, err)
	}
}

func TestSQLiteIndex_UpsertCatalogs(t *testing.T) {
	idx, path := openTemp(t)
	cat := catalogs.Builtin()
	if err := idx.UpsertCatalogs(cat, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalogs: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var digest string
	if err := db.QueryRow(`SELECT digest FROM catalogs WHERE name='template:house'`).Scan(&digest); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if digest != cat.TemplateDigest(catalogs.KeyHouse) {
		t.Fatalf("digest mismatch: %s", digest)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM catalogs`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != cat.Len()+1 {
		t.Fatalf("catalog rows=%d want=%d", n, cat.Len()+1)
	}
}

func TestSQLiteIndex_ClosedIsNoop(t *testing.T) {
	idx, _ := openTemp(t)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := idx.WriteAudit(engine.AuditEntry{Seq: 1}); err != nil {
		t.Fatalf("WriteAudit after close: %v", err)
	}
	if err := idx.Sync(context.Background()); err != nil {
		t.Fatalf("Sync after close: %v", err)
	}
	if err := idx.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("second Close: %v", err)
	}
}
