package service

import (
	"context"
	"strings"

	"ripple/internal/models"
	"ripple/internal/repository"
)

// CommentService defines the business operations on comments.
type CommentService interface {
	Get(ctx context.Context, id uint) (*models.Comment, error)
	List(ctx context.Context, filter repository.ListFilter) ([]*models.Comment, error)
	ListByPost(ctx context.Context, postID uint, filter repository.ListFilter) ([]*models.Comment, error)
	Update(ctx context.Context, actorID, id uint, text string) (*models.Comment, error)
	Delete(ctx context.Context, actorID, id uint) error
}

type commentService struct {
	comments repository.CommentRepository
	posts    repository.PostRepository
}

// NewCommentService creates a new comment service.
func NewCommentService(comments repository.CommentRepository, posts repository.PostRepository) CommentService {
	return &commentService{comments: comments, posts: posts}
}

func (s *commentService) Get(ctx context.Context, id uint) (*models.Comment, error) {
	return s.comments.GetByID(ctx, id)
}

func (s *commentService) List(ctx context.Context, filter repository.ListFilter) ([]*models.Comment, error) {
	return s.comments.List(ctx, filter)
}

// ListByPost verifies the post exists so a bad post ID reads as 404
// rather than an empty page.
func (s *commentService) ListByPost(ctx context.Context, postID uint, filter repository.ListFilter) ([]*models.Comment, error) {
	if _, err := s.posts.GetByID(ctx, postID); err != nil {
		return nil, err
	}
	filter.PostID = &postID
	return s.comments.List(ctx, filter)
}

func (s *commentService) Update(ctx context.Context, actorID, id uint, text string) (*models.Comment, error) {
	text = strings.TrimSpace(text)
	if err := validateText(text); err != nil {
		return nil, err
	}

	comment, err := s.comments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwnership(actorID, comment.OwnerID); err != nil {
		return nil, err
	}

	comment.Text = text
	if err := s.comments.Update(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *commentService) Delete(ctx context.Context, actorID, id uint) error {
	comment, err := s.comments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := checkOwnership(actorID, comment.OwnerID); err != nil {
		return err
	}
	return s.comments.Delete(ctx, id)
}
