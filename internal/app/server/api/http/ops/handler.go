// Package ops is the operator-facing monitoring API.
package ops

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"weavesync/internal/storage"
)

type Handler struct {
	engine     storage.Engine
	quotaKB    int
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(engine storage.Engine, quotaKB int, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		engine:     engine,
		quotaKB:    quotaKB,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.heartbeatOp(), h.heartbeat)
	huma.Register(api, h.storageOp(), h.storageUsage)
}

func (h *Handler) heartbeat(ctx context.Context, _ *HeartbeatInput) (*HeartbeatOutput, error) {
	h.log.Debug("heartbeat request received")

	if err := h.engine.Heartbeat(ctx); err != nil {
		return nil, huma.Error503ServiceUnavailable("storage backend unreachable")
	}
	return &HeartbeatOutput{
		Body: HeartbeatResponse{
			Status: "ok",
		},
	}, nil
}

func (h *Handler) storageUsage(ctx context.Context, in *StorageInput) (*StorageOutput, error) {
	sess, err := h.engine.Session(ctx, in.Owner)
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("storage backend unreachable")
	}
	defer sess.Close()

	kb, err := sess.StorageTotal(ctx)
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("storage backend unreachable")
	}
	return &StorageOutput{
		Body: StorageResponse{
			Owner:   in.Owner,
			KB:      kb,
			QuotaKB: h.quotaKB,
		},
	}, nil
}
