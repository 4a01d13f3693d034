package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"blockcraft.dev/internal/sim/build"
	"blockcraft.dev/internal/sim/catalogs"
	"blockcraft.dev/internal/sim/engine"
	"blockcraft.dev/internal/sim/tuning"
	"blockcraft.dev/internal/sim/world"
)

// SQLiteIndex is a queryable secondary index of the audit journal and build
// results. Writes are queued to one writer goroutine and dropped when the
// queue is full; the journal stays the source of truth.
type SQLiteIndex struct {
	db  *sql.DB
	ro  *sql.DB
	log *zap.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropAudit atomic.Uint64
	dropBuild atomic.Uint64
}

type reqKind int

const (
	reqAudit reqKind = iota + 1
	reqBuild
	reqSync
)

type req struct {
	kind reqKind

	audit engine.AuditEntry
	build buildRow
	ack   chan struct{}
}

type buildRow struct {
	Result     build.Result
	Mode       string
	Err        string
	FinishedAt string
}

type Stats struct {
	QueueDepth     int
	QueueCapacity  int
	DropAuditTotal uint64
	DropBuildTotal uint64
}

func OpenSQLite(path string, logger *zap.Logger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Readers get their own pool so queries never wait behind the writer's
	// open transaction.
	ro, err := sql.Open("sqlite", path)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	ro.SetMaxOpenConns(4)
	if _, err := ro.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = ro.Close()
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:  db,
		ro:  ro,
		log: logger,
		ch:  make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS audits (
			seq INTEGER PRIMARY KEY,
			time TEXT NOT NULL,
			source TEXT NOT NULL,
			op TEXT NOT NULL,
			x INTEGER,
			y INTEGER,
			z INTEGER,
			material TEXT,
			block_id TEXT,
			ok INTEGER NOT NULL,
			code TEXT,
			version INTEGER NOT NULL,
			blocks INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_source ON audits(source, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_pos ON audits(x, z, y, seq);`,
		`CREATE TABLE IF NOT EXISTS builds (
			build_id TEXT PRIMARY KEY,
			structure TEXT NOT NULL,
			mode TEXT NOT NULL,
			origin_x INTEGER NOT NULL,
			origin_y INTEGER NOT NULL,
			origin_z INTEGER NOT NULL,
			min_x INTEGER NOT NULL DEFAULT 0,
			min_y INTEGER NOT NULL DEFAULT 0,
			min_z INTEGER NOT NULL DEFAULT 0,
			max_x INTEGER NOT NULL DEFAULT 0,
			max_y INTEGER NOT NULL DEFAULT 0,
			max_z INTEGER NOT NULL DEFAULT 0,
			placed INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			cancelled INTEGER NOT NULL,
			complete INTEGER NOT NULL,
			error TEXT,
			finished_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_builds_finished ON builds(finished_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		_ = s.ro.Close()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropAuditTotal: s.dropAudit.Load(),
		DropBuildTotal: s.dropBuild.Load(),
	}
}

// WriteAudit implements engine.AuditLogger.
func (s *SQLiteIndex) WriteAudit(entry engine.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		s.dropAudit.Add(1)
	}
	return nil
}

// RecordBuild stores the outcome of a finished build.
func (s *SQLiteIndex) RecordBuild(res build.Result, mode string, buildErr error) {
	if s == nil || s.closed.Load() {
		return
	}
	r := buildRow{Result: res, Mode: mode, FinishedAt: time.Now().UTC().Format(time.RFC3339Nano)}
	if buildErr != nil {
		r.Err = buildErr.Error()
	}
	select {
	case s.ch <- req{kind: reqBuild, build: r}:
	default:
		s.dropBuild.Add(1)
	}
}

// Sync waits until everything queued before it is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	ack := make(chan struct{})
	select {
	case s.ch <- req{kind: reqSync, ack: ack}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpsertCatalogs stores the templates and tuning the server runs with.
func (s *SQLiteIndex) UpsertCatalogs(cat *catalogs.Catalog, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	for _, key := range cat.Keys() {
		tpl, _ := cat.Get(key)
		b, err := json.Marshal(tpl)
		if err != nil {
			return err
		}
		rows = append(rows, kv{name: "template:" + key, digest: cat.TemplateDigest(key), json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertAudit, err := s.db.Prepare(`INSERT OR REPLACE INTO audits(seq,time,source,op,x,y,z,material,block_id,ok,code,version,blocks) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		s.log.Error("prepare audit insert", zap.Error(err))
	}
	insertBuild, err := s.db.Prepare(`INSERT OR REPLACE INTO builds(build_id,structure,mode,origin_x,origin_y,origin_z,min_x,min_y,min_z,max_x,max_y,max_z,placed,skipped,cancelled,complete,error,finished_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		s.log.Error("prepare build insert", zap.Error(err))
	}
	defer func() {
		if insertAudit != nil {
			_ = insertAudit.Close()
		}
		if insertBuild != nil {
			_ = insertBuild.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.log.Warn("index begin failed", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.log.Warn("index commit failed", zap.Error(err))
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func(err error) {
		s.log.Warn("index write failed", zap.Error(err))
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var r req
		select {
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		case <-ticker.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
			continue
		}

		if r.kind == reqSync {
			commit()
			close(r.ack)
			continue
		}

		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqAudit:
			a := r.audit
			var x, y, z any
			if a.Pos != nil {
				x, y, z = a.Pos[0], a.Pos[1], a.Pos[2]
			}
			if insertAudit != nil {
				if _, err := tx.Stmt(insertAudit).Exec(
					int64(a.Seq), a.Time, a.Source, a.Op,
					x, y, z,
					a.Material, a.BlockID, a.OK, a.Code,
					int64(a.Version), a.Blocks,
				); err != nil {
					rollback(err)
					continue
				}
				opCount++
			}

		case reqBuild:
			b := r.build
			if insertBuild != nil {
				if _, err := tx.Stmt(insertBuild).Exec(
					b.Result.ID, b.Result.Structure, b.Mode,
					b.Result.Origin.X, b.Result.Origin.Y, b.Result.Origin.Z,
					b.Result.Min.X, b.Result.Min.Y, b.Result.Min.Z,
					b.Result.Max.X, b.Result.Max.Y, b.Result.Max.Z,
					b.Result.Placed, b.Result.Skipped, b.Result.Cancelled, b.Result.Complete,
					b.Err, b.FinishedAt,
				); err != nil {
					rollback(err)
					continue
				}
				opCount++
			}
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
}

// History returns the most recent audit entries touching pos, newest first.
func (s *SQLiteIndex) History(ctx context.Context, pos world.Vec3i, limit int) ([]engine.AuditEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.ro.QueryContext(ctx, `SELECT seq,time,source,op,x,y,z,material,block_id,ok,code,version,blocks
		FROM audits WHERE x=? AND y=? AND z=? ORDER BY seq DESC LIMIT ?`, pos.X, pos.Y, pos.Z, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.AuditEntry
	for rows.Next() {
		var (
			e             engine.AuditEntry
			seq, version  int64
			x, y, z       sql.NullInt64
			mat, id, code sql.NullString
		)
		if err := rows.Scan(&seq, &e.Time, &e.Source, &e.Op, &x, &y, &z, &mat, &id, &e.OK, &code, &version, &e.Blocks); err != nil {
			return nil, err
		}
		e.Seq = uint64(seq)
		e.Version = uint64(version)
		if x.Valid && y.Valid && z.Valid {
			e.Pos = &[3]int{int(x.Int64), int(y.Int64), int(z.Int64)}
		}
		e.Material, e.BlockID, e.Code = mat.String, id.String, code.String
		out = append(out, e)
	}
	return out, rows.Err()
}

type BuildRecord struct {
	build.Result
	Mode       string `json:"mode"`
	Error      string `json:"error,omitempty"`
	FinishedAt string `json:"finished_at"`
}

// RecentBuilds lists finished builds, newest first.
func (s *SQLiteIndex) RecentBuilds(ctx context.Context, limit int) ([]BuildRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	rows, err := s.ro.QueryContext(ctx, `SELECT build_id,structure,mode,origin_x,origin_y,origin_z,min_x,min_y,min_z,max_x,max_y,max_z,placed,skipped,cancelled,complete,error,finished_at
		FROM builds ORDER BY finished_at DESC, build_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BuildRecord
	for rows.Next() {
		var (
			r      BuildRecord
			errStr sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Structure, &r.Mode, &r.Origin.X, &r.Origin.Y, &r.Origin.Z,
			&r.Min.X, &r.Min.Y, &r.Min.Z, &r.Max.X, &r.Max.Y, &r.Max.Z,
			&r.Placed, &r.Skipped, &r.Cancelled, &r.Complete, &errStr, &r.FinishedAt); err != nil {
			return nil, err
		}
		r.Error = errStr.String
		out = append(out, r)
	}
	return out, rows.Err()
}
