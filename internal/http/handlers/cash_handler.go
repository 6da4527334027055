// README: Cash ledger handlers: driver balance, statement, transfers.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eden-magar/towing-saas-sub002/internal/http/middleware"
	"github.com/eden-magar/towing-saas-sub002/internal/modules/cash"
	"github.com/eden-magar/towing-saas-sub002/internal/types"
)

type CashHandler struct {
	cash *cash.Service
}

func NewCashHandler(svc *cash.Service) *CashHandler {
	return &CashHandler{cash: svc}
}

func (h *CashHandler) Balance(c *gin.Context) {
	bal, err := h.cash.Balance(c.Request.Context(),
		types.ID(middleware.CompanyID(c)), types.ID(c.Param("driverID")))
	if err != nil {
		writeCashError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"driver_id": c.Param("driverID"),
		"balance":   bal,
		"currency":  "ILS",
	})
}

func (h *CashHandler) Statement(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.cash.Statement(c.Request.Context(),
		types.ID(middleware.CompanyID(c)), types.ID(c.Param("driverID")), limit)
	if err != nil {
		writeCashError(c, err)
		return
	}
	rows := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, transactionView(e))
	}
	writeJSON(c, http.StatusOK, gin.H{"entries": rows})
}

type transferReq struct {
	DriverID string `json:"driver_id"`
	Notes    string `json:"notes"`
}

// ReportTransfer hands the driver's entire float to the back office.
func (h *CashHandler) ReportTransfer(c *gin.Context) {
	var req transferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	driverID := req.DriverID
	if driverID == "" {
		driverID = middleware.ActorID(c)
	}
	if driverID == "" {
		writeError(c, http.StatusBadRequest, "missing driver_id")
		return
	}
	t, err := h.cash.ReportTransfer(c.Request.Context(),
		types.ID(middleware.CompanyID(c)), types.ID(driverID), req.Notes)
	if err != nil {
		writeCashError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, transactionView(t))
}

type resolveReq struct {
	Notes string `json:"notes"`
}

func (h *CashHandler) Approve(c *gin.Context) {
	var req resolveReq
	_ = c.ShouldBindJSON(&req)
	t, err := h.cash.Approve(c.Request.Context(),
		types.ID(middleware.CompanyID(c)), types.ID(c.Param("id")), req.Notes)
	if err != nil {
		writeCashError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, transactionView(t))
}

func (h *CashHandler) Reject(c *gin.Context) {
	var req resolveReq
	_ = c.ShouldBindJSON(&req)
	t, err := h.cash.Reject(c.Request.Context(),
		types.ID(middleware.CompanyID(c)), types.ID(c.Param("id")), req.Notes)
	if err != nil {
		writeCashError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, transactionView(t))
}

func transactionView(t *cash.Transaction) gin.H {
	v := gin.H{
		"id":         t.ID,
		"driver_id":  t.DriverID,
		"type":       t.Type,
		"amount":     t.Amount,
		"currency":   t.Currency,
		"notes":      t.Notes,
		"created_at": t.CreatedAt,
	}
	if t.TowID != nil {
		v["tow_id"] = *t.TowID
	}
	if t.PointID != nil {
		v["point_id"] = *t.PointID
	}
	if t.RefTransferID != nil {
		v["ref_transfer_id"] = *t.RefTransferID
	}
	return v
}
