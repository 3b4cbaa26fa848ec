package repository

import (
	"context"
	"errors"

	"ripple/internal/cache"
	"ripple/internal/models"

	"gorm.io/gorm"
)

// CommentRepository defines the interface for comment data operations
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	List(ctx context.Context, filter ListFilter) ([]*models.Comment, error)
	PageByPost(ctx context.Context, postID uint, pageNum int) ([]*models.Comment, error)
	Update(ctx context.Context, comment *models.Comment) error
	Delete(ctx context.Context, id uint) error
	CountByPost(ctx context.Context, postID uint) (int64, error)
}

// commentRepository implements CommentRepository
type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a new comment repository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if err := r.db.WithContext(ctx).Create(comment).Error; err != nil {
		return err
	}
	cache.InvalidateCommentPages(ctx, comment.PostID)
	return nil
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	err := r.db.WithContext(ctx).
		Preload("Owner").
		First(&comment, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Comment", id)
		}
		return nil, err
	}
	return &comment, nil
}

func (r *commentRepository) List(ctx context.Context, filter ListFilter) ([]*models.Comment, error) {
	filter.normalize()

	var comments []*models.Comment
	base := filter.apply(r.db.WithContext(ctx).Model(&models.Comment{})).
		Preload("Owner")
	if err := filter.paginate(base).Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}

// PageByPost returns the fixed-size comment page for a post, newest first.
func (r *commentRepository) PageByPost(ctx context.Context, postID uint, pageNum int) ([]*models.Comment, error) {
	return r.List(ctx, ListFilter{PostID: &postID, Page: pageNum, PageSize: DefaultPageSize})
}

func (r *commentRepository) Update(ctx context.Context, comment *models.Comment) error {
	if err := r.db.WithContext(ctx).Save(comment).Error; err != nil {
		return err
	}
	cache.InvalidateCommentPages(ctx, comment.PostID)
	return nil
}

func (r *commentRepository) Delete(ctx context.Context, id uint) error {
	comment, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Delete(&models.Comment{}, id).Error; err != nil {
		return err
	}
	cache.InvalidateCommentPages(ctx, comment.PostID)
	return nil
}

func (r *commentRepository) CountByPost(ctx context.Context, postID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("post_id = ?", postID).
		Count(&count).Error
	return count, err
}
