package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundly/backend/internal/services"
)

type ExchangeHandler struct {
	exchangeService *services.ExchangeService
}

func NewExchangeHandler(exchangeService *services.ExchangeService) *ExchangeHandler {
	return &ExchangeHandler{exchangeService: exchangeService}
}

// GetReciprocal returns an exchange row together with its other half
func (h *ExchangeHandler) GetReciprocal(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	ex, recip, err := h.exchangeService.Reciprocal(c.Request.Context(), userID, id)
	switch {
	case errors.Is(err, services.ErrExchangeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Exchange not found"})
		return
	case errors.Is(err, services.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant of this exchange"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch exchange"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"exchange":   ex,
		"reciprocal": recip,
	})
}
