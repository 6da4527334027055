// README: Driver handlers for the point execution flow: depart, arrive,
// complete, and photo evidence upload.
package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/eden-magar/towing-saas-sub002/internal/http/middleware"
	"github.com/eden-magar/towing-saas-sub002/internal/modules/tow"
	"github.com/eden-magar/towing-saas-sub002/internal/storage"
	"github.com/eden-magar/towing-saas-sub002/internal/types"
)

type DriverHandler struct {
	tows   *tow.Service
	ctrl   *tow.Controller
	photos storage.PhotoStore
}

func NewDriverHandler(svc *tow.Service, ctrl *tow.Controller, photos storage.PhotoStore) *DriverHandler {
	return &DriverHandler{tows: svc, ctrl: ctrl, photos: photos}
}

type transitionReq struct {
	// ExpectedStatus is the point status the device last saw. The server
	// refuses to apply a transition from any other state.
	ExpectedStatus string `json:"expected_status"`
}

func (h *DriverHandler) Depart(c *gin.Context) {
	cmd, ok := h.transitionCommand(c)
	if !ok {
		return
	}
	snap, err := h.ctrl.Depart(c.Request.Context(), cmd)
	if err != nil {
		writeTowError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snapshotView(snap))
}

func (h *DriverHandler) Arrive(c *gin.Context) {
	cmd, ok := h.transitionCommand(c)
	if !ok {
		return
	}
	snap, err := h.ctrl.Arrive(c.Request.Context(), cmd)
	if err != nil {
		writeTowError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snapshotView(snap))
}

type completeReq struct {
	ExpectedStatus string `json:"expected_status"`
	RecipientName  string `json:"recipient_name"`
	RecipientPhone string `json:"recipient_phone"`
	// CashAmount in agorot; present only when the driver collected cash at
	// this dropoff.
	CashAmount *int64 `json:"cash_amount"`
	CashNotes  string `json:"cash_notes"`
}

func (h *DriverHandler) Complete(c *gin.Context) {
	var req completeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ExpectedStatus == "" {
		writeError(c, http.StatusBadRequest, "missing expected_status")
		return
	}
	snap, err := h.ctrl.Complete(c.Request.Context(), tow.CompleteCommand{
		TransitionCommand: tow.TransitionCommand{
			CompanyID: types.ID(middleware.CompanyID(c)),
			TowID:     types.ID(c.Param("id")),
			PointID:   types.ID(c.Param("pointID")),
			DriverID:  types.ID(middleware.ActorID(c)),
			Expected:  tow.PointStatus(req.ExpectedStatus),
		},
		RecipientName:  req.RecipientName,
		RecipientPhone: req.RecipientPhone,
		CashAmount:     req.CashAmount,
		CashNotes:      req.CashNotes,
	})
	if err != nil {
		writeTowError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snapshotView(snap))
}

// UploadPhoto stores the evidence bytes and records the reference against the
// point's vehicle in one request.
func (h *DriverHandler) UploadPhoto(c *gin.Context) {
	vehicleID := c.PostForm("vehicle_id")
	if vehicleID == "" {
		writeError(c, http.StatusBadRequest, "missing vehicle_id")
		return
	}
	file, err := c.FormFile("photo")
	if err != nil {
		writeError(c, http.StatusBadRequest, "missing photo file")
		return
	}

	src, err := file.Open()
	if err != nil {
		writeError(c, http.StatusBadRequest, "unreadable photo file")
		return
	}
	defer src.Close()

	towID, pointID := c.Param("id"), c.Param("pointID")
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext == "" {
		ext = ".jpg"
	}
	key := fmt.Sprintf("%s/%s/%s%s", towID, pointID, randomKey(), ext)
	url, err := h.photos.Put(c.Request.Context(), key, src)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "photo store failed")
		return
	}

	photo, err := h.tows.AttachPhoto(c.Request.Context(), tow.AttachPhotoCommand{
		CompanyID: types.ID(middleware.CompanyID(c)),
		TowID:     types.ID(towID),
		PointID:   types.ID(pointID),
		VehicleID: types.ID(vehicleID),
		URL:       url,
	})
	if err != nil {
		writeTowError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{
		"photo_id": photo.ID,
		"type":     photo.Type,
		"url":      photo.URL,
	})
}

func (h *DriverHandler) transitionCommand(c *gin.Context) (tow.TransitionCommand, bool) {
	var req transitionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return tow.TransitionCommand{}, false
	}
	if req.ExpectedStatus == "" {
		writeError(c, http.StatusBadRequest, "missing expected_status")
		return tow.TransitionCommand{}, false
	}
	return tow.TransitionCommand{
		CompanyID: types.ID(middleware.CompanyID(c)),
		TowID:     types.ID(c.Param("id")),
		PointID:   types.ID(c.Param("pointID")),
		DriverID:  types.ID(middleware.ActorID(c)),
		Expected:  tow.PointStatus(req.ExpectedStatus),
	}, true
}

func randomKey() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
