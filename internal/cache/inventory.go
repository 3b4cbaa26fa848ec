package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	PostKeyPrefix        = "post:%d"
	CommentPageKeyPrefix = "comments:post:%d:page:%d"
	commentPagePattern   = "comments:post:%d:page:*"
)

const (
	PostTTL        = 30 * time.Minute
	CommentPageTTL = 2 * time.Minute
)

func PostKey(postID uint) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

func CommentPageKey(postID uint, page int) string {
	return fmt.Sprintf(CommentPageKeyPrefix, postID, page)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidatePost(ctx context.Context, postID uint) {
	Invalidate(ctx, PostKey(postID))
}

// InvalidateCommentPages drops every cached comment page for the post.
// Keys are discovered with SCAN so no page-count ceiling is assumed.
func InvalidateCommentPages(ctx context.Context, postID uint) {
	if client == nil {
		return
	}
	pattern := fmt.Sprintf(commentPagePattern, postID)
	iter := client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		client.Del(ctx, iter.Val())
	}
}
