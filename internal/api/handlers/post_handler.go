package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/postpilothq/postpilot/internal/queue"
	"github.com/postpilothq/postpilot/internal/service"
	"github.com/postpilothq/postpilot/internal/transfer"
)

type PostHandler struct {
	s           service.PostService
	q           *queue.Queue
	AsynqClient *asynq.Client
}

func NewPostHandler(service service.PostService, q *queue.Queue, asynqClient *asynq.Client) *PostHandler {
	return &PostHandler{s: service, q: q, AsynqClient: asynqClient}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	form, err := c.MultipartForm()
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse form",
		})
	}

	var pc transfer.PostCreation
	pc.Body = c.FormValue("body")
	pc.Title = c.FormValue("title")
	pc.ScheduledTime = c.FormValue("scheduled_time")
	pc.Draft = c.FormValue("draft") == "true"
	pc.Platforms = form.Value["platforms"]
	pc.Hashtags = form.Value["hashtags"]
	pc.Mentions = form.Value["mentions"]

	files := form.File["files"]

	postID, err := h.s.CreatePost(c.Context(), userID, &pc, files)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Post scheduled successfully",
		"post_id": postID,
	})
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	userId := GetUserID(c)

	posts, err := h.s.List(c.Context(), userId)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list posts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) PostInfo(c *fiber.Ctx) error {
	userId := GetUserID(c)
	postId, err := c.ParamsInt("id", 0)
	if err != nil || postId == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid post id",
		})
	}

	post, err := h.s.PostInfo(c.Context(), int64(postId), userId)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to find post",
		})
	}

	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) PostResults(c *fiber.Ctx) error {
	userId := GetUserID(c)
	postId, err := c.ParamsInt("id", 0)
	if err != nil || postId == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid post id",
		})
	}

	results, err := h.s.Results(c.Context(), int64(postId), userId)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list platform results",
		})
	}

	return c.Status(fiber.StatusOK).JSON(results)
}

func (h *PostHandler) PublishNow(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postId, err := c.ParamsInt("id", 0)
	if err != nil || postId == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid post id",
		})
	}

	err = h.s.PublishNow(c.Context(), userID, int64(postId))
	if err != nil {
		return c.Status(fiber.StatusConflict).JSON(transfer.PublishNowResponse{
			Success: false,
			Error:   err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(transfer.PublishNowResponse{
		Success: true,
		Message: "Publish attempt finished",
	})
}

func (h *PostHandler) GenerateCaption(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postId, err := c.ParamsInt("id", 0)
	if err != nil || postId == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid post id",
		})
	}

	var req transfer.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse json",
		})
	}

	payload := queue.GenerateCaptionPayload{
		PostID: int64(postId),
		UserID: userID,
		Topic:  req.Topic,
		Tone:   req.Tone,
	}

	if req.Async {
		if err := queue.EnqueueGenerateCaption(h.AsynqClient, payload); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Error queueing caption generation",
			})
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"message": "Caption generation queued",
		})
	}

	if err := h.q.GenerateCaption(c.Context(), payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Caption generated",
	})
}

func (h *PostHandler) History(c *fiber.Ctx) error {
	userID := GetUserID(c)

	attempts, err := h.s.History(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list posting history",
		})
	}

	return c.Status(fiber.StatusOK).JSON(attempts)
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postId := c.QueryInt("id", 0)

	err := h.s.Remove(c.Context(), userID, int64(postId))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
