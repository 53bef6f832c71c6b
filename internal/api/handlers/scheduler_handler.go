package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/postpilothq/postpilot/internal/scheduler"
	"github.com/postpilothq/postpilot/internal/transfer"
)

type SchedulerHandler struct {
	s *scheduler.Scheduler
}

func NewSchedulerHandler(s *scheduler.Scheduler) *SchedulerHandler {
	return &SchedulerHandler{s: s}
}

func (h *SchedulerHandler) Start(c *fiber.Ctx) error {
	if err := h.s.Start(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to start scheduler",
		})
	}

	return h.Status(c)
}

func (h *SchedulerHandler) Stop(c *fiber.Ctx) error {
	h.s.Stop()

	return h.Status(c)
}

func (h *SchedulerHandler) Status(c *fiber.Ctx) error {
	running, next := h.s.Status()

	status := transfer.SchedulerStatus{Running: running}
	if running && !next.IsZero() {
		status.NextRun = next.Format(time.RFC3339)
	}

	return c.Status(fiber.StatusOK).JSON(status)
}
