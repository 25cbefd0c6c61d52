// README: HTTP router registration; delegates to module services.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"unipool/internal/http/handlers"
	"unipool/internal/http/middleware"
	"unipool/internal/modules/matching"
	"unipool/internal/modules/pricing"
	"unipool/internal/modules/request"
	"unipool/internal/modules/ride"
)

type RouterDeps struct {
	Requests *request.Service
	Matching *matching.Service
	Pricing  *pricing.Service
	Rides    *ride.Store
	Log      *slog.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.RequestID(), middleware.Logging(deps.Log), middleware.Metrics())

	rider := handlers.NewRiderHandler(deps.Requests, deps.Pricing)
	r.POST("/api/quotes", rider.IssueQuote)
	r.POST("/api/requests", rider.CreateBooking)
	r.POST("/api/rides/:id/join", rider.CreateJoin)
	r.GET("/api/requests/:id", rider.Get)
	r.POST("/api/requests/:id/cancel", rider.Cancel)

	driver := handlers.NewDriverHandler(deps.Requests, deps.Matching, deps.Rides)
	r.GET("/api/drivers/requests", driver.BroadcastPool)
	r.POST("/api/drivers/requests/:id/accept", driver.Accept)
	r.POST("/api/drivers/requests/:id/reject", driver.Reject)
	r.POST("/api/drivers/requests/:id/start", driver.Start)
	r.POST("/api/drivers/requests/:id/complete", driver.Complete)
	r.POST("/api/rides", driver.PublishRide)
	r.GET("/api/rides/:id", driver.GetRide)
	r.PUT("/api/drivers/:id/location", driver.UpdateLocation)
	r.DELETE("/api/drivers/:id/location", driver.RemoveLocation)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
