// Package handler maps HTTP requests onto the booking service and the
// booking error taxonomy onto status codes.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/gm0202/TicketSys/internal/model"
	"github.com/gm0202/TicketSys/internal/service"
)

// BookingService is what the handlers need from the booking core.
type BookingService interface {
	CreateBooking(ctx context.Context, in service.CreateBookingInput) (*model.Booking, error)
	ConfirmBooking(ctx context.Context, id uint64) (*model.Booking, error)
	CancelBooking(ctx context.Context, id uint64) (*model.Booking, error)
	GetBookingByID(ctx context.Context, id uint64) (*model.Booking, error)
	ListConfirmedByShow(ctx context.Context, showID uint64) ([]*model.Booking, error)
	ListPending(ctx context.Context) ([]*model.Booking, error)
	ListByCustomer(ctx context.Context, email string) ([]*model.Booking, error)
	SeatMap(ctx context.Context, showID uint64) (*service.SeatMap, error)
}

// BookingHandler serves the /v1/bookings and /v1/shows/:id routes.
type BookingHandler struct {
	Bookings BookingService
	log      zerolog.Logger
}

// NewBookingHandler returns a handler backed by svc.
func NewBookingHandler(svc BookingService, log zerolog.Logger) *BookingHandler {
	if svc == nil {
		panic("nil booking service passed to NewBookingHandler")
	}
	return &BookingHandler{Bookings: svc, log: log.With().Str("component", "http").Logger()}
}

func parseID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id != 0
}

func invalidID(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
}

// Create handles POST /v1/bookings and returns 201 with the pending booking.
func (h *BookingHandler) Create(c echo.Context) error {
	var in service.CreateBookingInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	b, err := h.Bookings.CreateBooking(c.Request().Context(), in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}
	b, err := h.Bookings.GetBookingByID(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Confirm handles PUT /v1/bookings/:id/confirm (admin only).
func (h *BookingHandler) Confirm(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}
	b, err := h.Bookings.ConfirmBooking(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Cancel handles PUT /v1/bookings/:id/cancel.
func (h *BookingHandler) Cancel(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}
	b, err := h.Bookings.CancelBooking(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// ListPending handles GET /v1/bookings/pending (admin only).
func (h *BookingHandler) ListPending(c echo.Context) error {
	list, err := h.Bookings.ListPending(c.Request().Context())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": nonNil(list)})
}

// ListByCustomer handles GET /v1/bookings?email=.
func (h *BookingHandler) ListByCustomer(c echo.Context) error {
	list, err := h.Bookings.ListByCustomer(c.Request().Context(), c.QueryParam("email"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": nonNil(list)})
}

// ListByShow handles GET /v1/shows/:id/bookings: confirmed bookings only.
func (h *BookingHandler) ListByShow(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}
	list, err := h.Bookings.ListConfirmedByShow(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": nonNil(list)})
}

// SeatMap handles GET /v1/shows/:id/seats.
func (h *BookingHandler) SeatMap(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}
	m, err := h.Bookings.SeatMap(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func nonNil(list []*model.Booking) []*model.Booking {
	if list == nil {
		return []*model.Booking{}
	}
	return list
}

// writeError renders err with the status its kind maps to.  Anything
// outside the taxonomy is a 500 and its text is not exposed.
func (h *BookingHandler) writeError(c echo.Context, err error) error {
	body := echo.Map{"error": err.Error()}

	var (
		short *model.NotEnoughSeatsError
		taken *model.SeatsAlreadyBookedError
		verr  *model.ValidationError
	)
	switch {
	case errors.As(err, &verr):
		body["field"] = verr.Field
		return c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, model.ErrShowNotFoundOrStarted), errors.Is(err, model.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, body)
	case errors.Is(err, model.ErrInvalidStateTransition):
		return c.JSON(http.StatusBadRequest, body)
	case errors.As(err, &short):
		body["available"] = short.Available
		return c.JSON(http.StatusConflict, body)
	case errors.As(err, &taken):
		body["seats"] = taken.Seats
		return c.JSON(http.StatusConflict, body)
	case errors.Is(err, model.ErrNotEnoughSeats), errors.Is(err, model.ErrSeatsAlreadyBooked),
		errors.Is(err, model.ErrDuplicatePendingBooking):
		return c.JSON(http.StatusConflict, body)
	case errors.Is(err, model.ErrOperationFailed):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "booking system busy, try again"})
	}
	h.log.Error().Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Msg("unhandled booking error")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
