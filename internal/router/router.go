package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gm0202/TicketSys/internal/config"
	"github.com/gm0202/TicketSys/internal/handler"
	"github.com/gm0202/TicketSys/internal/middleware"
)

// Deps carries what the routes need.  Redis may be nil, in which case the
// create route is not rate limited.
type Deps struct {
	Bookings  handler.BookingService
	DB        handler.Pinger
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	JWTSecret string
	Log       zerolog.Logger
}

// New returns an Echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(d.Log))
	RegisterRoutes(e, d)
	return e
}

// RegisterRoutes registers the operational and booking routes on e.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.DB))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	h := handler.NewBookingHandler(d.Bookings, d.Log)
	admin := []echo.MiddlewareFunc{
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(middleware.RoleAdmin),
	}

	v1 := e.Group("/v1")
	v1.POST("/bookings", h.Create, middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log))
	v1.GET("/bookings", h.ListByCustomer)
	v1.GET("/bookings/pending", h.ListPending, admin...)
	v1.GET("/bookings/:id", h.Get)
	v1.PUT("/bookings/:id/confirm", h.Confirm, admin...)
	v1.PUT("/bookings/:id/cancel", h.Cancel)

	v1.GET("/shows/:id/bookings", h.ListByShow)
	v1.GET("/shows/:id/seats", h.SeatMap)
}
