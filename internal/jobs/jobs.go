package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ripple/internal/cache"
	"ripple/internal/middleware"
	"ripple/internal/models"
	"ripple/internal/moderation"
	"ripple/internal/repository"
)

// Moderation rejection details shown to the submitting user.
const (
	postRejectedDetail    = "Your post is obscene. The post will not be created."
	commentRejectedDetail = "Your comment is obscene. The comment will not be created."
)

// Publisher delivers a payload to every current member of a topic.
// Satisfied by notifications.Broadcaster.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Feed topic names mirror the websocket gateway's join targets.
const (
	feedTopic       = "posts"
	postTopicPrefix = "post_"
)

func postTopic(postID uint) string {
	return fmt.Sprintf("%s%d", postTopicPrefix, postID)
}

// Deps bundles the collaborators jobs execute against.
type Deps struct {
	Users      repository.UserRepository
	Posts      repository.PostRepository
	Comments   repository.CommentRepository
	Classifier moderation.Classifier
	Publisher  Publisher
}

// Job is a unit of work executed by the queue's workers.
type Job interface {
	Kind() string
	Execute(ctx context.Context, d Deps) (Result, error)
}

// CreatePostJob moderates and persists a new post, then broadcasts it to
// the feed topic. A moderation rejection produces a fail Result with no
// write and no broadcast.
type CreatePostJob struct {
	OwnerID uint
	Text    string
}

func (j CreatePostJob) Kind() string { return "create_post" }

func (j CreatePostJob) Execute(ctx context.Context, d Deps) (Result, error) {
	text := strings.TrimSpace(j.Text)
	if text == "" {
		return Result{}, models.NewValidationError("post text must not be empty")
	}

	owner, err := d.Users.GetByID(ctx, j.OwnerID)
	if err != nil {
		return Result{}, err
	}

	verdict, err := d.Classifier.Classify(ctx, text)
	if err != nil {
		return Result{}, fmt.Errorf("classify post: %w", err)
	}
	if verdict == moderation.Reject {
		return Result{Status: StatusFail, Detail: postRejectedDetail}, nil
	}

	post := &models.Post{Text: text, OwnerID: &owner.ID}
	if err := d.Posts.Create(ctx, post); err != nil {
		return Result{}, err
	}
	// Attach for serialization only; the row was written with the ID alone
	post.Owner = owner

	publish(ctx, d, feedTopic, Event{
		EventType: EventDisplayPost,
		Post:      ItemView{Username: post.OwnerName(), Text: post.Text},
	})

	return Result{Status: StatusSuccess, Detail: "Post created successfully!", Post: post}, nil
}

// CreateCommentJob moderates and persists a comment on an existing post,
// then broadcasts it to that post's topic. A missing post surfaces as a
// not-found error before the classifier is consulted.
type CreateCommentJob struct {
	OwnerID uint
	PostID  uint
	Text    string
}

func (j CreateCommentJob) Kind() string { return "create_comment" }

func (j CreateCommentJob) Execute(ctx context.Context, d Deps) (Result, error) {
	text := strings.TrimSpace(j.Text)
	if text == "" {
		return Result{}, models.NewValidationError("comment text must not be empty")
	}

	owner, err := d.Users.GetByID(ctx, j.OwnerID)
	if err != nil {
		return Result{}, err
	}

	post, err := d.Posts.GetByID(ctx, j.PostID)
	if err != nil {
		return Result{}, err
	}

	verdict, err := d.Classifier.Classify(ctx, text)
	if err != nil {
		return Result{}, fmt.Errorf("classify comment: %w", err)
	}
	if verdict == moderation.Reject {
		return Result{Status: StatusFail, Detail: commentRejectedDetail}, nil
	}

	comment := &models.Comment{Text: text, OwnerID: &owner.ID, PostID: post.ID}
	if err := d.Comments.Create(ctx, comment); err != nil {
		return Result{}, err
	}
	comment.Owner = owner

	publish(ctx, d, postTopic(post.ID), Event{
		EventType: EventDisplayComment,
		Comment:   ItemView{Username: comment.OwnerName(), Text: comment.Text},
	})

	return Result{Status: StatusSuccess, Detail: "Comment created successfully!", Comment: comment}, nil
}

// Page targets for ListPageJob.
const (
	PagePosts    = "posts"
	PageComments = "comments"
)

// ListPageJob fetches one fixed-size page of posts or of a post's
// comments, newest first. Out-of-range pages yield an empty slice, not
// an error. Comment pages are served through the cache when possible.
type ListPageJob struct {
	Target  string
	PostID  uint
	PageNum int
}

func (j ListPageJob) Kind() string { return "list_page" }

func (j ListPageJob) Execute(ctx context.Context, d Deps) (Result, error) {
	switch j.Target {
	case PagePosts:
		posts, err := d.Posts.Page(ctx, j.PageNum)
		if err != nil {
			return Result{}, err
		}
		page := make([]ItemSummary, 0, len(posts))
		for _, p := range posts {
			page = append(page, ItemSummary{ID: p.ID, Username: p.OwnerName(), Text: p.Text})
		}
		return Result{Status: StatusSuccess, Page: page}, nil

	case PageComments:
		var page []ItemSummary
		key := cache.CommentPageKey(j.PostID, j.PageNum)
		err := cache.Aside(ctx, key, &page, cache.CommentPageTTL, func() error {
			comments, err := d.Comments.PageByPost(ctx, j.PostID, j.PageNum)
			if err != nil {
				return err
			}
			page = make([]ItemSummary, 0, len(comments))
			for _, c := range comments {
				page = append(page, ItemSummary{ID: c.ID, Username: c.OwnerName(), Text: c.Text})
			}
			return nil
		})
		if err != nil {
			return Result{}, err
		}
		return Result{Status: StatusSuccess, Page: page}, nil

	default:
		return Result{}, models.NewValidationError("unknown page target: " + j.Target)
	}
}

// publish fans the event out to the topic. Broadcast failures are logged
// and swallowed: the write already committed, and membership is volatile
// anyway.
func publish(ctx context.Context, d Deps, topic string, ev Event) {
	if d.Publisher == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "marshal broadcast event", "topic", topic, "error", err)
		return
	}
	if err := d.Publisher.Publish(ctx, topic, payload); err != nil {
		middleware.Logger.ErrorContext(ctx, "publish broadcast event", "topic", topic, "error", err)
	}
}
