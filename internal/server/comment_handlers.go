package server

import (
	"strconv"

	"ripple/internal/jobs"
	"ripple/internal/models"

	"github.com/gofiber/fiber/v2"
)

// CreateComment handles POST /api/posts/:id/comments. Runs through the
// task queue like post creation; a missing post reads as 404.
func (s *Server) CreateComment(c *fiber.Ctx) error {
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

	res, err := s.runJob(c, jobs.CreateCommentJob{OwnerID: userID, PostID: uint(postID), Text: req.Text})
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	if res.Status == jobs.StatusFail {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(res)
	}

	return c.Status(fiber.StatusCreated).JSON(res)
}

// GetComments handles GET /api/posts/:id/comments
func (s *Server) GetComments(c *fiber.Ctx) error {
	postID, err := c.ParamsInt("id")
	if err != nil || postID < 1 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid post ID"))
	}

	filter, err := parseListFilter(c)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	comments, err := s.commentSvc.ListByPost(c.Context(), uint(postID), filter)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	if total, err := s.commentRepo.CountByPost(c.Context(), uint(postID)); err == nil {
		c.Set("X-Total-Count", strconv.FormatInt(total, 10))
	}

	return c.JSON(comments)
}

// GetComment handles GET /api/posts/:id/comments/:commentId
func (s *Server) GetComment(c *fiber.Ctx) error {
	commentID, err := c.ParamsInt("commentId")
	if err != nil || commentID < 1 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid comment ID"))
	}

	comment, err := s.commentSvc.Get(c.Context(), uint(commentID))
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	return c.JSON(comment)
}

// UpdateComment handles PUT /api/posts/:id/comments/:commentId
func (s *Server) UpdateComment(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	commentID, err := c.ParamsInt("commentId")
	if err != nil || commentID < 1 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid comment ID"))
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	comment, err := s.commentSvc.Update(c.Context(), userID, uint(commentID), req.Text)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	return c.JSON(comment)
}

// DeleteComment handles DELETE /api/posts/:id/comments/:commentId
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	commentID, err := c.ParamsInt("commentId")
	if err != nil || commentID < 1 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid comment ID"))
	}

	if err := s.commentSvc.Delete(c.Context(), userID, uint(commentID)); err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
