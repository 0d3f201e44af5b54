package handler

import (
	"net/http"

	"github.com/kudiwallet/kudi/internal/errHandler"
	"github.com/kudiwallet/kudi/internal/response"
	"github.com/kudiwallet/kudi/internal/version"
)

type healthCheckHandler struct {
	err *errHandler.ErrorRepository
}

func NewHealthCheckHandler(err *errHandler.ErrorRepository) *healthCheckHandler {
	return &healthCheckHandler{
		err: err,
	}
}

func (h *healthCheckHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"Version": version.Get(),
	}

	err := response.JSONOkResponse(w, data, "Up and grateful", nil)
	if err != nil {
		h.err.ServerError(w, r, err)
	}
}
