package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"blockcraft.dev/internal/persistence/indexdb"
	"blockcraft.dev/internal/protocol"
	"blockcraft.dev/internal/sim/build"
	"blockcraft.dev/internal/sim/engine"
	"blockcraft.dev/internal/sim/material"
	"blockcraft.dev/internal/sim/world"
	"blockcraft.dev/internal/transport/ws"
)

// Index is the read side of the sqlite index.
type Index interface {
	History(ctx context.Context, pos world.Vec3i, limit int) ([]engine.AuditEntry, error)
	RecentBuilds(ctx context.Context, limit int) ([]indexdb.BuildRecord, error)
}

type BootstrapResponse struct {
	ProtocolVersion  string                   `json:"protocol_version"`
	Ground           protocol.GroundInfo      `json:"ground"`
	Structures       []protocol.StructureInfo `json:"structures"`
	Materials        []protocol.MaterialInfo  `json:"materials"`
	SelectedMaterial string                   `json:"selected_material"`
	CatalogDigest    string                   `json:"catalog_digest"`
}

type StateResponse struct {
	Version uint64         `json:"version"`
	Blocks  int            `json:"blocks"`
	Digest  string         `json:"digest"`
	Builds  []ActiveBuild  `json:"active_builds"`
	Index   *indexdb.Stats `json:"index,omitempty"`
}

type ActiveBuild struct {
	ID        string      `json:"build_id"`
	Structure string      `json:"structure"`
	Origin    world.Vec3i `json:"origin"`
	Started   time.Time   `json:"started"`
}

type API struct {
	engine          *engine.Engine
	builder         *build.Builder
	textures        *material.Resolver
	defaultMaterial material.Type
	index           Index
	indexStats      func() indexdb.Stats
	gatherer        prometheus.Gatherer
	log             *zap.Logger
}

func New(e *engine.Engine, b *build.Builder, textures *material.Resolver, defaultMaterial material.Type, gatherer prometheus.Gatherer, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		engine:          e,
		builder:         b,
		textures:        textures,
		defaultMaterial: defaultMaterial,
		gatherer:        gatherer,
		log:             logger,
	}
}

// SetIndex enables the history endpoints.
func (a *API) SetIndex(idx *indexdb.SQLiteIndex) {
	if idx == nil {
		return
	}
	a.index = idx
	a.indexStats = idx.Stats
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	if a.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/v1/bootstrap", get(a.bootstrap))
	mux.HandleFunc("/v1/blocks", get(a.blocks))
	mux.HandleFunc("/v1/history", get(a.history))
	mux.HandleFunc("/v1/builds", get(a.builds))
	mux.HandleFunc("/admin/v1/state", get(loopbackOnly(a.state)))
}

func get(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(rw, r)
	}
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func (a *API) bootstrap(rw http.ResponseWriter, r *http.Request) {
	cat := a.builder.Catalog()
	writeJSON(rw, http.StatusOK, BootstrapResponse{
		ProtocolVersion:  protocol.Version,
		Ground:           ws.Ground(a.engine.Ground()),
		Structures:       ws.Structures(cat),
		Materials:        ws.Materials(a.textures),
		SelectedMaterial: string(a.defaultMaterial),
		CatalogDigest:    cat.Digest(),
	})
}

func (a *API) blocks(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, ws.SnapshotMsg(a.engine.Snapshot()))
}

func (a *API) history(rw http.ResponseWriter, r *http.Request) {
	if a.index == nil {
		http.Error(rw, "index disabled", http.StatusNotFound)
		return
	}
	pos, err := parsePos(r.URL.Query().Get("pos"))
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := a.index.History(r.Context(), pos, limit)
	if err != nil {
		a.log.Warn("history query", zap.Error(err))
		http.Error(rw, "query failed", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []engine.AuditEntry{}
	}
	writeJSON(rw, http.StatusOK, entries)
}

func (a *API) builds(rw http.ResponseWriter, r *http.Request) {
	resp := struct {
		Active []ActiveBuild          `json:"active"`
		Recent []indexdb.BuildRecord `json:"recent,omitempty"`
	}{Active: a.activeBuilds()}
	if a.index != nil {
		recent, err := a.index.RecentBuilds(r.Context(), 50)
		if err != nil {
			a.log.Warn("builds query", zap.Error(err))
		}
		resp.Recent = recent
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (a *API) state(rw http.ResponseWriter, r *http.Request) {
	snap := a.engine.Snapshot()
	resp := StateResponse{
		Version: snap.Version,
		Blocks:  len(snap.Blocks),
		Digest:  world.DigestBlocks(snap.Blocks),
		Builds:  a.activeBuilds(),
	}
	if a.indexStats != nil {
		st := a.indexStats()
		resp.Index = &st
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (a *API) activeBuilds() []ActiveBuild {
	jobs := a.builder.Active()
	out := make([]ActiveBuild, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, ActiveBuild{ID: j.ID, Structure: j.Structure, Origin: j.Origin, Started: j.Started})
	}
	return out
}

// parsePos accepts "x,y,z" or a block id "x_y_z".
func parsePos(s string) (world.Vec3i, error) {
	return world.ParseID(world.BlockID(strings.ReplaceAll(strings.TrimSpace(s), ",", "_")))
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
