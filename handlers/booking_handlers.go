package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pianosale/api/booking"
	"pianosale/api/logger"
	"pianosale/api/models"
)

type BookingSubmitter interface {
	SubmitBooking(ctx context.Context, form models.BookingForm) (*booking.Result, error)
}

type BookingHandlers struct {
	Pipeline BookingSubmitter
	log      *logger.Logger
}

func NewBookingHandlers(pipeline BookingSubmitter, log *logger.Logger) *BookingHandlers {
	if log == nil {
		log = logger.Nop()
	}
	return &BookingHandlers{Pipeline: pipeline, log: log.With("handler", "bookings")}
}

func (h *BookingHandlers) SubmitBooking(c *gin.Context) {
	var form models.BookingForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 45*time.Second)
	defer cancel()

	result, err := h.Pipeline.SubmitBooking(ctx, form)
	if err != nil {
		var verr *booking.ValidationError
		var serr *booking.SchedulingError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "missingFields": verr.Missing, "invalidFields": verr.Invalid})
		case errors.As(err, &serr):
			c.JSON(http.StatusBadGateway, gin.H{"error": "Booking could not be scheduled, please try again", "details": serr.Message})
		default:
			h.log.Error("booking submission failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit booking"})
		}
		return
	}

	body := gin.H{
		"booking":      result.Booking,
		"mirrored":     result.Mirrored(),
		"mirrorStatus": result.MirrorStatus,
	}
	if result.MirrorErr != nil {
		body["warning"] = "Booking confirmed, but it could not be copied to the CRM: " + result.MirrorErr.Error()
	}
	c.JSON(http.StatusCreated, body)
}
