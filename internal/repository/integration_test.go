package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ripple/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requirePostgres(t *testing.T) {
	t.Helper()
	if testDB == nil {
		t.Skip("test database unavailable")
	}
}

func seedUser(t *testing.T) *models.User {
	t.Helper()
	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	user := &models.User{
		Username: "it_user_" + suffix,
		Email:    "it_" + suffix + "@example.com",
		Password: "hashed",
	}
	require.NoError(t, NewUserRepository(testDB).Create(context.Background(), user))
	return user
}

func TestPostDeleteCascadesComments(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()
	posts := NewPostRepository(testDB)
	comments := NewCommentRepository(testDB)

	owner := seedUser(t)
	post := &models.Post{Text: "cascade target", OwnerID: &owner.ID}
	require.NoError(t, posts.Create(ctx, post))

	first := &models.Comment{Text: "first", OwnerID: &owner.ID, PostID: post.ID}
	second := &models.Comment{Text: "second", OwnerID: &owner.ID, PostID: post.ID}
	require.NoError(t, comments.Create(ctx, first))
	require.NoError(t, comments.Create(ctx, second))

	require.NoError(t, posts.Delete(ctx, post.ID))

	// The database removes the comments with the post.
	count, err := comments.CountByPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	_, err = comments.GetByID(ctx, first.ID)
	assert.True(t, models.IsNotFound(err))
}

func TestUserDeleteClearsOwnership(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()
	users := NewUserRepository(testDB)
	posts := NewPostRepository(testDB)
	comments := NewCommentRepository(testDB)

	owner := seedUser(t)
	post := &models.Post{Text: "orphan me", OwnerID: &owner.ID}
	require.NoError(t, posts.Create(ctx, post))
	comment := &models.Comment{Text: "orphan me too", OwnerID: &owner.ID, PostID: post.ID}
	require.NoError(t, comments.Create(ctx, comment))

	require.NoError(t, users.Delete(ctx, owner.ID))

	// Post and comment survive with the owner reference nulled.
	gotPost, err := posts.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Nil(t, gotPost.OwnerID)
	assert.Equal(t, "", gotPost.OwnerName())

	gotComment, err := comments.GetByID(ctx, comment.ID)
	require.NoError(t, err)
	assert.Nil(t, gotComment.OwnerID)
	assert.Equal(t, "", gotComment.OwnerName())
}
