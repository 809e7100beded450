// Weave 1.0 storage protocol:
//
//	GET    /{owner}                       # collection list, ?info=timestamps|counts
//	GET    /{owner}/{collection}          # filtered listing, ?full=1 for records
//	GET    /{owner}/{collection}/{id}     # single record
//	PUT    /{owner}/{collection}/{id}     # store or partial update
//	POST   /{owner}/{collection}          # batch write
//	DELETE /{owner}/{collection}[/{id}]   # single or filtered delete
//
// Operator endpoints (no Basic auth, meant for an internal network):
//
//	GET /ops/heartbeat
//	GET /ops/storage/{owner}
package api

import (
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slog"

	authMW "weavesync/internal/app/server/api/http/middleware/auth"
	loggerMW "weavesync/internal/app/server/api/http/middleware/logger"
	opsAPI "weavesync/internal/app/server/api/http/ops"
	syncAPI "weavesync/internal/app/server/api/http/sync"
	"weavesync/internal/app/server/config"
	"weavesync/internal/auth"
	"weavesync/internal/storage"
)

// New assembles the full router: operator API through huma, sync
// protocol on plain chi handlers because its wire format predates any
// schema tooling.
func New(engine storage.Engine, provider auth.Provider, cfg *config.Config, log *slog.Logger) *chi.Mux {
	mux := chi.NewMux()
	mux.Use(loggerMW.New(log).Middleware())

	// Paths with no owner segment are a protocol violation, not a 404.
	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "%q", "3")
	})

	humaConfig := huma.DefaultConfig("Weave Sync Operator API", "1.0.0")
	API := humachi.New(mux, humaConfig)
	opsHandler := opsAPI.NewHandler(engine, cfg.Limits.QuotaKB, log, nil)
	opsHandler.SetupRoutes(API)

	syncHandler := syncAPI.NewHandler(engine, cfg.Limits.MaxPayload, log)
	mux.Route("/{owner}", func(r chi.Router) {
		r.Use(authMW.New(provider, log).Middleware())
		syncHandler.SetupRoutes(r)
	})

	return mux
}
