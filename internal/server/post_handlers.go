package server

import (
	"strconv"

	"ripple/internal/jobs"
	"ripple/internal/models"

	"github.com/gofiber/fiber/v2"
)

// CreatePost handles POST /api/posts. The write runs through the task
// queue so moderation happens off the handler goroutine; the handler
// waits for the outcome within the configured bound.
func (s *Server) CreatePost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	res, err := s.runJob(c, jobs.CreatePostJob{OwnerID: userID, Text: req.Text})
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	if res.Status == jobs.StatusFail {
		// Moderation rejection is an outcome, not an error
		return c.Status(fiber.StatusUnprocessableEntity).JSON(res)
	}

	return c.Status(fiber.StatusCreated).JSON(res)
}

// GetPosts handles GET /api/posts
func (s *Server) GetPosts(c *fiber.Ctx) error {
	filter, err := parseListFilter(c)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	posts, err := s.postSvc.List(c.Context(), filter)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	if total, err := s.postRepo.Count(c.Context()); err == nil {
		c.Set("X-Total-Count", strconv.FormatInt(total, 10))
	}

	return c.JSON(posts)
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid post ID"))
	}

	post, err := s.postSvc.Get(c.Context(), uint(id))
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	return c.JSON(post)
}

// UpdatePost handles PUT /api/posts/:id
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	postID, err := c.ParamsInt("id")
	if err != nil || postID < 1 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid post ID"))
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	post, err := s.postSvc.Update(c.Context(), userID, uint(postID), req.Text)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id. Deleting a post takes its
// comments with it.
func (s *Server) DeletePost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	postID, err := c.ParamsInt("id")
	if err != nil || postID < 1 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid post ID"))
	}

	if err := s.postSvc.Delete(c.Context(), userID, uint(postID)); err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
