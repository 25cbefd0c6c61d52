// README: Rider-facing handlers: quotes, booking/join creation, status, cancel.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"unipool/internal/modules/pricing"
	"unipool/internal/modules/request"
	"unipool/internal/types"
)

type RiderHandler struct {
	requests *request.Service
	quotes   *pricing.Service
}

func NewRiderHandler(requests *request.Service, quotes *pricing.Service) *RiderHandler {
	return &RiderHandler{requests: requests, quotes: quotes}
}

type quoteBody struct {
	RiderID    string    `json:"rider_id" binding:"required"`
	PickupLat  float64   `json:"pickup_lat" binding:"required"`
	PickupLng  float64   `json:"pickup_lng" binding:"required"`
	DropoffLat float64   `json:"dropoff_lat" binding:"required"`
	DropoffLng float64   `json:"dropoff_lng" binding:"required"`
	PickupAt   time.Time `json:"pickup_at" binding:"required"`
}

func (h *RiderHandler) IssueQuote(c *gin.Context) {
	var body quoteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	q, err := h.quotes.Issue(c.Request.Context(), types.ID(body.RiderID),
		types.Point{Lat: body.PickupLat, Lng: body.PickupLng},
		types.Point{Lat: body.DropoffLat, Lng: body.DropoffLng},
		body.PickupAt,
	)
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{
		"quote_id":   q.ID,
		"amount":     q.Fare.Amount,
		"currency":   q.Fare.Currency,
		"expires_at": q.ExpiresAt,
	})
}

type bookingBody struct {
	RiderID    string    `json:"rider_id" binding:"required"`
	PickupLat  float64   `json:"pickup_lat" binding:"required"`
	PickupLng  float64   `json:"pickup_lng" binding:"required"`
	DropoffLat float64   `json:"dropoff_lat" binding:"required"`
	DropoffLng float64   `json:"dropoff_lng" binding:"required"`
	PickupAt   time.Time `json:"pickup_at" binding:"required"`
	QuoteID    string    `json:"quote_id" binding:"required"`
}

func (h *RiderHandler) CreateBooking(c *gin.Context) {
	var body bookingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	r, err := h.requests.CreateBooking(c.Request.Context(), request.CreateBookingCommand{
		RiderID:  types.ID(body.RiderID),
		Pickup:   types.Point{Lat: body.PickupLat, Lng: body.PickupLng},
		Dropoff:  types.Point{Lat: body.DropoffLat, Lng: body.DropoffLng},
		PickupAt: body.PickupAt,
		QuoteID:  types.ID(body.QuoteID),
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, requestView(r))
}

func (h *RiderHandler) CreateJoin(c *gin.Context) {
	rideID := c.Param("id")
	if !isValidID(rideID) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}
	var body bookingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	r, err := h.requests.CreateJoin(c.Request.Context(), request.CreateJoinCommand{
		RiderID:  types.ID(body.RiderID),
		RideID:   types.ID(rideID),
		Pickup:   types.Point{Lat: body.PickupLat, Lng: body.PickupLng},
		Dropoff:  types.Point{Lat: body.DropoffLat, Lng: body.DropoffLng},
		PickupAt: body.PickupAt,
		QuoteID:  types.ID(body.QuoteID),
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, requestView(r))
}

func (h *RiderHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid request id")
		return
	}
	r, err := h.requests.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, requestView(r))
}

type cancelBody struct {
	ActorType string `json:"actor_type" binding:"required"`
	ActorID   string `json:"actor_id" binding:"required"`
	Reason    string `json:"reason"`
}

func (h *RiderHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid request id")
		return
	}
	var body cancelBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	err := h.requests.Cancel(c.Request.Context(), request.CancelCommand{
		RequestID: types.ID(id),
		ActorType: body.ActorType,
		ActorID:   types.ID(body.ActorID),
		Reason:    body.Reason,
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": request.StatusCancelled})
}

func requestView(r *request.Request) gin.H {
	v := gin.H{
		"id":           r.ID,
		"rider_id":     r.RiderID,
		"mode":         r.Mode,
		"status":       r.Status,
		"pickup_lat":   r.Pickup.Lat,
		"pickup_lng":   r.Pickup.Lng,
		"dropoff_lat":  r.Dropoff.Lat,
		"dropoff_lng":  r.Dropoff.Lng,
		"pickup_at":    r.PickupAt,
		"fare_amount":  r.Fare.Amount,
		"currency":     r.Fare.Currency,
		"created_at":   r.CreatedAt,
	}
	if r.Mode == request.ModeAIBooking {
		v["broadcast_until"] = r.BroadcastUntil
	}
	if r.RideID != nil {
		v["ride_id"] = *r.RideID
	}
	if r.DriverID != nil {
		v["driver_id"] = *r.DriverID
	}
	return v
}
