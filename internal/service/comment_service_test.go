package service

import (
	"context"
	"errors"
	"testing"

	"ripple/internal/models"
	"ripple/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCommentRepo struct {
	comments map[uint]*models.Comment
	deleted  []uint
}

func (s *stubCommentRepo) Create(_ context.Context, c *models.Comment) error {
	s.comments[c.ID] = c
	return nil
}
func (s *stubCommentRepo) GetByID(_ context.Context, id uint) (*models.Comment, error) {
	c, ok := s.comments[id]
	if !ok {
		return nil, models.NewNotFoundError("Comment", id)
	}
	return c, nil
}
func (s *stubCommentRepo) List(_ context.Context, filter repository.ListFilter) ([]*models.Comment, error) {
	var out []*models.Comment
	for _, c := range s.comments {
		if filter.PostID == nil || c.PostID == *filter.PostID {
			out = append(out, c)
		}
	}
	return out, nil
}
func (s *stubCommentRepo) PageByPost(_ context.Context, _ uint, _ int) ([]*models.Comment, error) {
	return nil, nil
}
func (s *stubCommentRepo) Update(_ context.Context, c *models.Comment) error {
	s.comments[c.ID] = c
	return nil
}
func (s *stubCommentRepo) Delete(_ context.Context, id uint) error {
	delete(s.comments, id)
	s.deleted = append(s.deleted, id)
	return nil
}
func (s *stubCommentRepo) CountByPost(_ context.Context, _ uint) (int64, error) { return 0, nil }

func ownedComment(id, ownerID, postID uint, text string) *models.Comment {
	return &models.Comment{ID: id, Text: text, OwnerID: &ownerID, PostID: postID}
}

func TestCommentService_ListByPost_MissingPostIsNotFound(t *testing.T) {
	posts := &stubPostRepo{posts: map[uint]*models.Post{}}
	comments := &stubCommentRepo{comments: map[uint]*models.Comment{}}
	svc := NewCommentService(comments, posts)

	_, err := svc.ListByPost(context.Background(), 404, repository.ListFilter{})
	assert.True(t, models.IsNotFound(err))
}

func TestCommentService_ListByPost_ScopesToPost(t *testing.T) {
	posts := &stubPostRepo{posts: map[uint]*models.Post{3: ownedPost(3, 1, "parent")}}
	comments := &stubCommentRepo{comments: map[uint]*models.Comment{
		1: ownedComment(1, 1, 3, "on post 3"),
		2: ownedComment(2, 1, 8, "on post 8"),
	}}
	svc := NewCommentService(comments, posts)

	got, err := svc.ListByPost(context.Background(), 3, repository.ListFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "on post 3", got[0].Text)
}

func TestCommentService_Update_NonOwnerIsForbidden(t *testing.T) {
	comments := &stubCommentRepo{comments: map[uint]*models.Comment{1: ownedComment(1, 5, 3, "text")}}
	svc := NewCommentService(comments, &stubPostRepo{posts: map[uint]*models.Post{}})

	_, err := svc.Update(context.Background(), 6, 1, "changed")

	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "FORBIDDEN", appErr.Code)
}

func TestCommentService_Update_AnonymousIsUnauthorized(t *testing.T) {
	comments := &stubCommentRepo{comments: map[uint]*models.Comment{1: ownedComment(1, 5, 3, "text")}}
	svc := NewCommentService(comments, &stubPostRepo{posts: map[uint]*models.Post{}})

	_, err := svc.Update(context.Background(), 0, 1, "changed")

	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "UNAUTHORIZED", appErr.Code)
}

func TestCommentService_Delete_OwnerSucceeds(t *testing.T) {
	comments := &stubCommentRepo{comments: map[uint]*models.Comment{1: ownedComment(1, 5, 3, "text")}}
	svc := NewCommentService(comments, &stubPostRepo{posts: map[uint]*models.Post{}})

	require.NoError(t, svc.Delete(context.Background(), 5, 1))
	assert.Equal(t, []uint{1}, comments.deleted)
}
