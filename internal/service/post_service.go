// Package service implements business logic over the repositories,
// including ownership enforcement for mutating operations.
package service

import (
	"context"
	"strings"

	"ripple/internal/cache"
	"ripple/internal/models"
	"ripple/internal/repository"
)

const maxTextLength = 10000

// PostService defines the business operations on posts.
type PostService interface {
	Get(ctx context.Context, id uint) (*models.Post, error)
	List(ctx context.Context, filter repository.ListFilter) ([]*models.Post, error)
	Update(ctx context.Context, actorID, id uint, text string) (*models.Post, error)
	Delete(ctx context.Context, actorID, id uint) error
}

type postService struct {
	posts repository.PostRepository
}

// NewPostService creates a new post service.
func NewPostService(posts repository.PostRepository) PostService {
	return &postService{posts: posts}
}

// Get serves reads through the cache; a miss falls back to the database.
func (s *postService) Get(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := cache.Aside(ctx, cache.PostKey(id), &post, cache.PostTTL, func() error {
		fresh, err := s.posts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		post = *fresh
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *postService) List(ctx context.Context, filter repository.ListFilter) ([]*models.Post, error) {
	return s.posts.List(ctx, filter)
}

func (s *postService) Update(ctx context.Context, actorID, id uint, text string) (*models.Post, error) {
	text = strings.TrimSpace(text)
	if err := validateText(text); err != nil {
		return nil, err
	}

	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwnership(actorID, post.OwnerID); err != nil {
		return nil, err
	}

	post.Text = text
	if err := s.posts.Update(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *postService) Delete(ctx context.Context, actorID, id uint) error {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := checkOwnership(actorID, post.OwnerID); err != nil {
		return err
	}
	return s.posts.Delete(ctx, id)
}

func validateText(text string) error {
	if text == "" {
		return models.NewValidationError("text must not be empty")
	}
	if len(text) > maxTextLength {
		return models.NewValidationError("text exceeds maximum length")
	}
	return nil
}

// checkOwnership distinguishes "not signed in" from "signed in as someone
// else". An ownerless entity (owner account deleted) cannot be mutated by
// anyone but is still readable.
func checkOwnership(actorID uint, ownerID *uint) error {
	if actorID == 0 {
		return models.NewUnauthorizedError("authentication required")
	}
	if ownerID == nil || *ownerID != actorID {
		return models.NewForbiddenError("you do not own this resource")
	}
	return nil
}
