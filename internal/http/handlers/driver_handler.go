// README: Driver-facing handlers: broadcast pool, claim/reject, trip lifecycle,
// ride publishing and live location updates.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"unipool/internal/modules/matching"
	"unipool/internal/modules/request"
	"unipool/internal/modules/ride"
	"unipool/internal/types"
)

type DriverHandler struct {
	requests *request.Service
	matching *matching.Service
	rides    *ride.Store
}

func NewDriverHandler(requests *request.Service, matchingSvc *matching.Service, rides *ride.Store) *DriverHandler {
	return &DriverHandler{requests: requests, matching: matchingSvc, rides: rides}
}

func (h *DriverHandler) BroadcastPool(c *gin.Context) {
	driverID := c.Query("driver_id")
	if !isValidID(driverID) {
		writeError(c, http.StatusBadRequest, "invalid driver id")
		return
	}
	pool, err := h.requests.BroadcastPool(c.Request.Context(), types.ID(driverID))
	if err != nil {
		writeRequestError(c, err)
		return
	}
	views := make([]gin.H, 0, len(pool))
	for _, r := range pool {
		views = append(views, requestView(r))
	}
	writeJSON(c, http.StatusOK, gin.H{"requests": views})
}

type acceptBody struct {
	DriverID string `json:"driver_id" binding:"required"`
	RideID   string `json:"ride_id"`
}

func (h *DriverHandler) Accept(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid request id")
		return
	}
	var body acceptBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	r, err := h.requests.Accept(c.Request.Context(), request.AcceptCommand{
		RequestID: types.ID(id),
		DriverID:  types.ID(body.DriverID),
		RideID:    types.ID(body.RideID),
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, requestView(r))
}

type rejectBody struct {
	DriverID string `json:"driver_id" binding:"required"`
	Reason   string `json:"reason"`
}

func (h *DriverHandler) Reject(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid request id")
		return
	}
	var body rejectBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	err := h.requests.Reject(c.Request.Context(), request.RejectCommand{
		RequestID: types.ID(id),
		DriverID:  types.ID(body.DriverID),
		Reason:    body.Reason,
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": request.StatusRejected})
}

type actorBody struct {
	DriverID string `json:"driver_id" binding:"required"`
}

func (h *DriverHandler) Start(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid request id")
		return
	}
	var body actorBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	err := h.requests.Start(c.Request.Context(), request.StartCommand{
		RequestID: types.ID(id),
		DriverID:  types.ID(body.DriverID),
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": request.StatusOngoing})
}

func (h *DriverHandler) Complete(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid request id")
		return
	}
	var body actorBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	err := h.requests.Complete(c.Request.Context(), request.CompleteCommand{
		RequestID: types.ID(id),
		DriverID:  types.ID(body.DriverID),
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": request.StatusCompleted})
}

type publishRideBody struct {
	DriverID     string    `json:"driver_id" binding:"required"`
	DriverRating float64   `json:"driver_rating"`
	Vehicle      string    `json:"vehicle"`
	OriginLat    float64   `json:"origin_lat" binding:"required"`
	OriginLng    float64   `json:"origin_lng" binding:"required"`
	DestLat      float64   `json:"dest_lat" binding:"required"`
	DestLng      float64   `json:"dest_lng" binding:"required"`
	ScheduledAt  time.Time `json:"scheduled_at" binding:"required"`
	SeatsTotal   int       `json:"seats_total" binding:"required"`
	MaxDetourMin int       `json:"max_detour_min"`
}

func (h *DriverHandler) PublishRide(c *gin.Context) {
	var body publishRideBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if body.SeatsTotal < 1 || body.SeatsTotal > 8 {
		writeError(c, http.StatusBadRequest, "seats_total must be between 1 and 8")
		return
	}
	r := &ride.Ride{
		ID:           ride.NewID(),
		DriverID:     types.ID(body.DriverID),
		DriverRating: body.DriverRating,
		Vehicle:      body.Vehicle,
		Origin:       types.Point{Lat: body.OriginLat, Lng: body.OriginLng},
		Destination:  types.Point{Lat: body.DestLat, Lng: body.DestLng},
		ScheduledAt:  body.ScheduledAt,
		SeatsTotal:   body.SeatsTotal,
		SeatsFree:    body.SeatsTotal,
		MaxDetourMin: body.MaxDetourMin,
		Status:       ride.StatusOpen,
		CreatedAt:    time.Now(),
	}
	if err := h.rides.Create(c.Request.Context(), r); err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"ride_id": r.ID, "status": r.Status})
}

func (h *DriverHandler) GetRide(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}
	r, err := h.rides.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"id":             r.ID,
		"driver_id":      r.DriverID,
		"vehicle":        r.Vehicle,
		"origin_lat":     r.Origin.Lat,
		"origin_lng":     r.Origin.Lng,
		"dest_lat":       r.Destination.Lat,
		"dest_lng":       r.Destination.Lng,
		"scheduled_at":   r.ScheduledAt,
		"seats_total":    r.SeatsTotal,
		"seats_free":     r.SeatsFree,
		"max_detour_min": r.MaxDetourMin,
		"status":         r.Status,
	})
}

type locationBody struct {
	Lat float64 `json:"lat" binding:"required"`
	Lng float64 `json:"lng" binding:"required"`
}

func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	driverID := c.Param("id")
	if !isValidID(driverID) {
		writeError(c, http.StatusBadRequest, "invalid driver id")
		return
	}
	var body locationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	err := h.matching.UpdateDriverLocation(c.Request.Context(), types.ID(driverID), types.Point{Lat: body.Lat, Lng: body.Lng})
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to update location")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ok": true})
}

func (h *DriverHandler) RemoveLocation(c *gin.Context) {
	driverID := c.Param("id")
	if !isValidID(driverID) {
		writeError(c, http.StatusBadRequest, "invalid driver id")
		return
	}
	if err := h.matching.RemoveDriver(c.Request.Context(), types.ID(driverID)); err != nil {
		writeError(c, http.StatusInternalServerError, "failed to remove location")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ok": true})
}
