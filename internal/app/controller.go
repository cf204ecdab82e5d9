package app

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/itarang/telematics-exporter/internal/exporter"
)

// LiveStatusSource reports the outcome of the latest live polling cycle.
type LiveStatusSource interface {
	LastLiveSummary() *exporter.LiveSummary
}

// Controller serves exporter status.
type Controller struct {
	live LiveStatusSource
}

// NewController creates a Controller reading live status from live.
func NewController(live LiveStatusSource) (*Controller, error) {
	if live == nil {
		return nil, errors.New("live status source is nil")
	}
	return &Controller{live: live}, nil
}

// GetLiveStatus returns the summary of the most recent live cycle.
func (c *Controller) GetLiveStatus(ctx *fiber.Ctx) error {
	summary := c.live.LastLiveSummary()
	if summary == nil {
		return fiber.NewError(fiber.StatusNotFound, "No live cycle has finished yet.")
	}
	return ctx.JSON(summary)
}
