// README: Dispatcher handlers: tow creation, assignment, cancellation,
// overrides, and dashboard reads.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eden-magar/towing-saas-sub002/internal/http/middleware"
	"github.com/eden-magar/towing-saas-sub002/internal/modules/pricing"
	"github.com/eden-magar/towing-saas-sub002/internal/modules/tow"
	"github.com/eden-magar/towing-saas-sub002/internal/types"
)

type TowHandler struct {
	tows *tow.Service
}

func NewTowHandler(svc *tow.Service) *TowHandler {
	return &TowHandler{tows: svc}
}

type pointReq struct {
	Type           string   `json:"type"`
	Address        string   `json:"address"`
	Lat            *float64 `json:"lat"`
	Lng            *float64 `json:"lng"`
	ContactName    string   `json:"contact_name"`
	ContactPhone   string   `json:"contact_phone"`
	RecipientName  string   `json:"recipient_name"`
	RecipientPhone string   `json:"recipient_phone"`
	Notes          string   `json:"notes"`
}

type vehicleReq struct {
	Class        string `json:"class"`
	Plate        string `json:"plate"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Color        string `json:"color"`
}

type createTowReq struct {
	CustomerID      string       `json:"customer_id"`
	StartFromBase   bool         `json:"start_from_base"`
	BaseAddress     string       `json:"base_address"`
	BaseLat         *float64     `json:"base_lat"`
	BaseLng         *float64     `json:"base_lng"`
	Notes           string       `json:"notes"`
	Points          []pointReq   `json:"points"`
	Vehicles        []vehicleReq `json:"vehicles"`
	QuoteDistanceKm float64      `json:"quote_distance_km"`
}

func (h *TowHandler) Create(c *gin.Context) {
	var req createTowReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}

	cmd := tow.CreateCommand{
		CompanyID:       types.ID(middleware.CompanyID(c)),
		CustomerID:      types.ID(req.CustomerID),
		StartFromBase:   req.StartFromBase,
		BaseAddress:     req.BaseAddress,
		BasePos:         posFrom(req.BaseLat, req.BaseLng),
		Notes:           req.Notes,
		QuoteDistanceKm: req.QuoteDistanceKm,
	}
	for _, p := range req.Points {
		cmd.Points = append(cmd.Points, tow.PointInput{
			Type:           tow.PointType(p.Type),
			Address:        p.Address,
			Pos:            posFrom(p.Lat, p.Lng),
			ContactName:    p.ContactName,
			ContactPhone:   p.ContactPhone,
			RecipientName:  p.RecipientName,
			RecipientPhone: p.RecipientPhone,
			Notes:          p.Notes,
		})
	}
	for _, v := range req.Vehicles {
		cmd.Vehicles = append(cmd.Vehicles, tow.VehicleInput{
			Class:        pricing.VehicleClass(v.Class),
			Plate:        v.Plate,
			Manufacturer: v.Manufacturer,
			Model:        v.Model,
			Color:        v.Color,
		})
	}

	snap, err := h.tows.Create(c.Request.Context(), cmd)
	if err != nil {
		writeTowError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, snapshotView(snap))
}

func (h *TowHandler) Get(c *gin.Context) {
	snap, err := h.tows.GetCached(c.Request.Context(),
		types.ID(middleware.CompanyID(c)), types.ID(c.Param("id")))
	if err != nil {
		writeTowError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snapshotView(snap))
}

func (h *TowHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	summaries, err := h.tows.List(c.Request.Context(),
		types.ID(middleware.CompanyID(c)), tow.Status(c.Query("status")), limit)
	if err != nil {
		writeTowError(c, err)
		return
	}
	rows := make([]gin.H, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, gin.H{
			"tow":              towView(s.Tow),
			"completed_points": s.CompletedPoints,
			"total_points":     s.TotalPoints,
		})
	}
	writeJSON(c, http.StatusOK, gin.H{"tows": rows})
}

type assignReq struct {
	DriverID string `json:"driver_id"`
}

func (h *TowHandler) Assign(c *gin.Context) {
	var req assignReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	snap, err := h.tows.Assign(c.Request.Context(), tow.AssignCommand{
		CompanyID: types.ID(middleware.CompanyID(c)),
		TowID:     types.ID(c.Param("id")),
		DriverID:  types.ID(req.DriverID),
	})
	if err != nil {
		writeTowError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snapshotView(snap))
}

func (h *TowHandler) Cancel(c *gin.Context) {
	snap, err := h.tows.Cancel(c.Request.Context(),
		types.ID(middleware.CompanyID(c)), types.ID(c.Param("id")))
	if err != nil {
		writeTowError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snapshotView(snap))
}

func (h *TowHandler) SkipPoint(c *gin.Context) {
	snap, err := h.tows.SkipPoint(c.Request.Context(),
		types.ID(middleware.CompanyID(c)), types.ID(c.Param("id")), types.ID(c.Param("pointID")))
	if err != nil {
		writeTowError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snapshotView(snap))
}

func posFrom(lat, lng *float64) *types.Point {
	if lat == nil || lng == nil {
		return nil
	}
	return &types.Point{Lat: *lat, Lng: *lng}
}

func towView(t *tow.Tow) gin.H {
	v := gin.H{
		"id":              t.ID,
		"customer_id":     t.CustomerID,
		"status":          t.Status,
		"status_version":  t.StatusVersion,
		"start_from_base": t.StartFromBase,
		"base_address":    t.BaseAddress,
		"notes":           t.Notes,
		"created_at":      t.CreatedAt,
	}
	if t.DriverID != nil {
		v["driver_id"] = *t.DriverID
	}
	if t.FinalPrice != nil {
		v["final_price"] = t.FinalPrice.Amount
		v["currency"] = t.FinalPrice.Currency
	}
	if t.Breakdown != nil {
		v["price_breakdown"] = t.Breakdown
	}
	if t.StartedAt != nil {
		v["started_at"] = *t.StartedAt
	}
	if t.CompletedAt != nil {
		v["completed_at"] = *t.CompletedAt
	}
	if t.CancelledAt != nil {
		v["cancelled_at"] = *t.CancelledAt
	}
	return v
}

func pointView(p *tow.Point) gin.H {
	v := gin.H{
		"id":             p.ID,
		"type":           p.Type,
		"seq":            p.Seq,
		"status":         p.Status,
		"status_version": p.StatusVersion,
		"address":        p.Address,
		"contact_name":   p.ContactName,
		"contact_phone":  p.ContactPhone,
		"notes":          p.Notes,
	}
	if p.Pos != nil {
		v["lat"] = p.Pos.Lat
		v["lng"] = p.Pos.Lng
	}
	if p.RecipientName != "" {
		v["recipient_name"] = p.RecipientName
		v["recipient_phone"] = p.RecipientPhone
	}
	if p.LegKm != nil {
		v["leg_km"] = *p.LegKm
	}
	if p.ArrivedAt != nil {
		v["arrived_at"] = *p.ArrivedAt
	}
	if p.CompletedAt != nil {
		v["completed_at"] = *p.CompletedAt
	}
	return v
}

func snapshotView(s *tow.Snapshot) gin.H {
	points := make([]gin.H, 0, len(s.Points))
	for _, p := range s.Points {
		points = append(points, pointView(p))
	}
	vehicles := make([]gin.H, 0, len(s.Vehicles))
	for _, v := range s.Vehicles {
		vehicles = append(vehicles, gin.H{
			"id":           v.ID,
			"class":        v.Class,
			"plate":        v.Plate,
			"manufacturer": v.Manufacturer,
			"model":        v.Model,
			"color":        v.Color,
		})
	}
	return gin.H{
		"tow":      towView(s.Tow),
		"points":   points,
		"vehicles": vehicles,
		"progress": s.Progress,
	}
}
