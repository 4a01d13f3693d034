package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"blockcraft.dev/internal/metrics"
	"blockcraft.dev/internal/persistence/indexdb"
	persistlog "blockcraft.dev/internal/persistence/log"
	"blockcraft.dev/internal/sim/build"
	"blockcraft.dev/internal/sim/catalogs"
	"blockcraft.dev/internal/sim/engine"
	"blockcraft.dev/internal/sim/material"
	"blockcraft.dev/internal/sim/tuning"
	"blockcraft.dev/internal/sim/world"
	"blockcraft.dev/internal/transport/httpapi"
	"blockcraft.dev/internal/transport/ws"
)

func main() {
	var (
		addr         = flag.String("addr", ":8080", "http listen address")
		dataDir      = flag.String("data", "./data", "runtime data directory (audit journal, index)")
		tuningPath   = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml (defaults when absent)")
		templatesDir = flag.String("templates", "./configs/templates", "directory of extra structure templates (*.json)")
		disableDB    = flag.Bool("disable_db", false, "disable the sqlite index")
		disableAudit = flag.Bool("disable_audit", false, "disable the audit journal")
		dev          = flag.Bool("dev", false, "human-readable debug logging")
	)
	flag.Parse()

	logger, err := newLogger(*dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger, options{
		Addr:         *addr,
		DataDir:      *dataDir,
		TuningPath:   strings.TrimSpace(*tuningPath),
		TemplatesDir: strings.TrimSpace(*templatesDir),
		DisableDB:    *disableDB,
		DisableAudit: *disableAudit,
	}); err != nil {
		logger.Error("server exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

type options struct {
	Addr         string
	DataDir      string
	TuningPath   string
	TemplatesDir string
	DisableDB    bool
	DisableAudit bool
}

func run(logger *zap.Logger, opts options) error {
	tune, err := tuning.Load(opts.TuningPath)
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}
	cat, err := catalogs.LoadDir(opts.TemplatesDir)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	logger.Info("catalog loaded", zap.Strings("structures", cat.Keys()), zap.String("digest", cat.Digest()))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New("blockcraft", reg)

	e := engine.New(engine.Config{
		Ground: world.GroundConfig{Size: tune.GroundSize, Material: material.Type(tune.GroundMaterial)},
	}, logger.Named("engine"), m)

	if !opts.DisableAudit {
		audit := persistlog.NewAuditLogger(opts.DataDir)
		defer func() {
			if err := audit.Close(); err != nil {
				logger.Warn("audit journal close", zap.Error(err))
			}
			logger.Info("audit journal closed", zap.Uint64("entries", audit.Appended()))
		}()
		e.AddAuditLogger(audit)
	}

	var idx *indexdb.SQLiteIndex
	if !opts.DisableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(opts.DataDir, "index", "blocks.sqlite"), logger.Named("indexdb"))
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(cat, tune); err != nil {
			logger.Warn("index: upsert catalogs", zap.Error(err))
		}
		e.AddAuditLogger(idx)
	}

	ctx, cancel := signalContext()
	defer cancel()

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := e.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("engine stopped", zap.Error(err))
		}
	}()

	builder := build.New(cat, func(source string) build.Placer { return e.As(source) },
		build.Config{Serialize: tune.SerializeBuilds}, logger.Named("build"), m)
	textures := material.NewResolver(tune.TextureOverrides())

	wsSrv := ws.NewServer(e, builder, textures, ws.Config{
		DefaultMaterial: material.Type(tune.DefaultMaterial),
		BuildOrigin:     world.FromArray(tune.BuildOrigin),
		BuildDelay:      time.Duration(tune.BuildDelayMs) * time.Millisecond,
		MaxQueue:        tune.MaxQueue,
		ActionsPerSec:   tune.RateLimits.ActionsPerSec,
		Burst:           tune.RateLimits.Burst,
	}, logger.Named("ws"), m)
	if idx != nil {
		wsSrv.SetBuildRecorder(idx)
	}

	api := httpapi.New(e, builder, textures, material.Type(tune.DefaultMaterial), reg, logger.Named("http"))
	api.SetIndex(idx)

	mux := http.NewServeMux()
	api.Register(mux)
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          zap.NewStdLog(logger.Named("http")),
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info("listening", zap.String("addr", opts.Addr))
	err = srv.ListenAndServe()
	cancel()
	wsSrv.Close()
	<-engineDone
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
