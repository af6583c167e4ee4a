package handler

import (
	"net/http"

	"go-bank-gate/common"
	"go-bank-gate/service"
)

type RateLimitHandler struct {
	Service *service.RateLimitService
}

func NewRateLimitHandler(rateLimitService *service.RateLimitService) *RateLimitHandler {
	return &RateLimitHandler{Service: rateLimitService}
}

// Status godoc
// @Summary      Rate limit status
// @Description  Reports the caller's general budget without consuming it.
// @Tags         rate-limit
// @Produce      json
// @Success      200  {object}  model.RateLimitDecision
// @Failure      500  {object}  common.AppError
// @Router       /api/rate-limit/status [get]
func (h *RateLimitHandler) Status(w http.ResponseWriter, r *http.Request) *common.AppError {
	identifier := ClientIP(r)
	if userID, ok := UserIDFromContext(r.Context()); ok {
		identifier = userID
	}

	decision, err := h.Service.GetStatus(r.Context(), identifier, h.Service.GeneralPolicy())
	if err != nil {
		return common.NewAppError(http.StatusInternalServerError, "Internal server error", err)
	}

	common.WriteJSON(w, http.StatusOK, decision)
	return nil
}
