package ops

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) heartbeatOp() huma.Operation {
	return huma.Operation{
		OperationID: "ops-heartbeat",
		Method:      http.MethodGet,
		Path:        "/ops/heartbeat",
		Summary:     "Storage backend heartbeat",
		Description: "Returns ok when the storage backend answers a liveness probe",
		Tags:        []string{"ops"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) storageOp() huma.Operation {
	return huma.Operation{
		OperationID: "ops-storage",
		Method:      http.MethodGet,
		Path:        "/ops/storage/{owner}",
		Summary:     "Per-account storage usage",
		Description: "Reports how many kilobytes of payload an account holds",
		Tags:        []string{"ops"},
		Middlewares: h.middleware,
	}
}
