// README: Pricing handlers: up-front quote for dispatchers.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eden-magar/towing-saas-sub002/internal/http/middleware"
	"github.com/eden-magar/towing-saas-sub002/internal/modules/pricing"
	"github.com/eden-magar/towing-saas-sub002/internal/types"
)

type PricingHandler struct {
	pricing *pricing.Service
}

func NewPricingHandler(svc *pricing.Service) *PricingHandler {
	return &PricingHandler{pricing: svc}
}

type quoteReq struct {
	CustomerID string   `json:"customer_id"`
	Classes    []string `json:"classes"`
	DistanceKm float64  `json:"distance_km"`
	// At is RFC 3339; empty quotes for right now.
	At string `json:"at"`
}

func (h *PricingHandler) Quote(c *gin.Context) {
	var req quoteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}

	at := time.Now()
	if req.At != "" {
		parsed, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid at timestamp")
			return
		}
		at = parsed
	}

	classes := make([]pricing.VehicleClass, 0, len(req.Classes))
	for _, cls := range req.Classes {
		classes = append(classes, pricing.VehicleClass(cls))
	}

	quote, err := h.pricing.Quote(c.Request.Context(),
		types.ID(middleware.CompanyID(c)), types.ID(req.CustomerID),
		pricing.QuoteRequest{Classes: classes, DistanceKm: req.DistanceKm, At: at})
	if err != nil {
		writePricingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, quote)
}
