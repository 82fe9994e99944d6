package api

import (
	"errors"

	"github.com/getpup/pupsourcing-gather"
	"github.com/gofiber/fiber/v2"
)

// SubmitRequest is the body of POST /requests.
type SubmitRequest struct {
	Topic string `json:"topic"`
}

// SubmitResponse is returned when a request has been dispatched.
type SubmitResponse struct {
	RequestID gather.RequestID `json:"request_id"`
}

// StatusResponse is returned while a request has no summary yet.
type StatusResponse struct {
	RequestID gather.RequestID `json:"request_id"`
	Status    string           `json:"status"`
}

// PartialRequest is the body of POST /requests/:id/partials.
type PartialRequest struct {
	CollectorIndex *int  `json:"collector_index"`
	Items          []int `json:"items"`
}

// PartialResponse reports what happened to a partial.
type PartialResponse struct {
	Outcome gather.Outcome `json:"outcome"`
}

func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) submit(c *fiber.Ctx) error {
	var body SubmitRequest
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	id, err := s.gatherer.Submit(c.UserContext(), body.Topic)
	if err != nil && id != "" {
		// The request was registered before dispatch failed.
		return s.writeError(c, statusFor(err), err, id)
	}
	if err != nil {
		return statusFor(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(SubmitResponse{RequestID: id})
}

func (s *Server) result(c *fiber.Ctx) error {
	id := gather.RequestID(c.Params("id"))

	summary, err := s.gatherer.Result(c.UserContext(), id)
	if errors.Is(err, gather.ErrNotReady) {
		return c.Status(fiber.StatusAccepted).JSON(StatusResponse{RequestID: id, Status: string(gather.RequestStateWaiting)})
	}
	if err != nil {
		return statusFor(err)
	}

	return c.JSON(summary)
}

func (s *Server) reportPartial(c *fiber.Ctx) error {
	var body PartialRequest
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if body.CollectorIndex == nil {
		return fiber.NewError(fiber.StatusBadRequest, "collector_index is required")
	}

	outcome, err := s.gatherer.ReportPartial(c.UserContext(), gather.RequestID(c.Params("id")), *body.CollectorIndex, body.Items)
	if err != nil {
		return statusFor(err)
	}

	return c.JSON(PartialResponse{Outcome: outcome})
}
