package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cmlabs-hris/hris-presence-go/internal/domain/origin"
	"github.com/cmlabs-hris/hris-presence-go/internal/handler/http/response"
)

type OriginHandler interface {
	Get(w http.ResponseWriter, r *http.Request)
	Set(w http.ResponseWriter, r *http.Request)
}

type originHandlerImpl struct {
	originService origin.OriginService
}

func NewOriginHandler(originService origin.OriginService) OriginHandler {
	return &originHandlerImpl{
		originService: originService,
	}
}

// Get implements OriginHandler.
func (h *originHandlerImpl) Get(w http.ResponseWriter, r *http.Request) {
	resp, err := h.originService.Get(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, resp)
}

// Set implements OriginHandler.
func (h *originHandlerImpl) Set(w http.ResponseWriter, r *http.Request) {
	var req origin.SetOriginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode origin request", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	req.UpdatedBy = getUserIDFromContext(r)

	resp, err := h.originService.Set(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Origin updated", resp)
}
