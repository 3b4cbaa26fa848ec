package server

import (
	"errors"
	"time"

	"ripple/internal/jobs"
	"ripple/internal/models"
	"ripple/internal/repository"

	"github.com/gofiber/fiber/v2"
)

const maxPageSize = 100

// parseListFilter builds a ListFilter from the common query parameters
// shared by the post and comment listing endpoints.
func parseListFilter(c *fiber.Ctx) (repository.ListFilter, error) {
	filter := repository.ListFilter{
		TextContains: c.Query("q"),
		Page:         c.QueryInt("page", 1),
		PageSize:     c.QueryInt("page_size", repository.DefaultPageSize),
	}

	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}

	if owner := c.QueryInt("owner_id", 0); owner > 0 {
		ownerID := uint(owner)
		filter.OwnerID = &ownerID
	}

	if after := c.Query("created_after"); after != "" {
		t, err := time.Parse(time.RFC3339, after)
		if err != nil {
			return filter, models.NewValidationError("created_after must be RFC 3339")
		}
		filter.CreatedAfter = &t
	}

	if before := c.Query("created_before"); before != "" {
		t, err := time.Parse(time.RFC3339, before)
		if err != nil {
			return filter, models.NewValidationError("created_before must be RFC 3339")
		}
		filter.CreatedBefore = &t
	}

	return filter, nil
}

// runJob submits the job and waits for its outcome within the configured
// bound. The timeout surfaces as a gateway timeout while the job itself
// keeps running.
func (s *Server) runJob(c *fiber.Ctx, job jobs.Job) (jobs.Result, error) {
	handle, err := s.queue.Submit(c.Context(), job)
	if err != nil {
		return jobs.Result{}, models.NewInternalError(err)
	}

	res, err := handle.Await(s.config.JobTimeout())
	if errors.Is(err, jobs.ErrTimedOut) {
		return jobs.Result{}, models.NewTimedOutError("The request is still being processed. Please check back shortly.")
	}
	return res, err
}
