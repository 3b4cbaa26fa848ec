package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"ripple/internal/models"
	"ripple/internal/moderation"
	"ripple/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeUserRepo struct {
	users map[uint]*models.User
}

func (f *fakeUserRepo) Create(_ context.Context, u *models.User) error { f.users[u.ID] = u; return nil }
func (f *fakeUserRepo) GetByID(_ context.Context, id uint) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, models.NewNotFoundError("User", id)
	}
	return u, nil
}
func (f *fakeUserRepo) GetByEmail(_ context.Context, _ string) (*models.User, error) {
	return nil, nil
}
func (f *fakeUserRepo) GetByUsername(_ context.Context, _ string) (*models.User, error) {
	return nil, nil
}
func (f *fakeUserRepo) Delete(_ context.Context, id uint) error { delete(f.users, id); return nil }

type fakePostRepo struct {
	mu     sync.Mutex
	posts  map[uint]*models.Post
	nextID uint
}

func (f *fakePostRepo) Create(_ context.Context, p *models.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p.ID = f.nextID
	p.CreatedAt = time.Now()
	f.posts[p.ID] = p
	return nil
}
func (f *fakePostRepo) GetByID(_ context.Context, id uint) (*models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, models.NewNotFoundError("Post", id)
	}
	return p, nil
}
func (f *fakePostRepo) List(_ context.Context, filter repository.ListFilter) ([]*models.Post, error) {
	return f.page(filter.Page, filter.PageSize), nil
}
func (f *fakePostRepo) Page(_ context.Context, pageNum int) ([]*models.Post, error) {
	return f.page(pageNum, repository.DefaultPageSize), nil
}
func (f *fakePostRepo) page(pageNum, size int) []*models.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]*models.Post, 0, len(f.posts))
	for id := f.nextID; id >= 1; id-- {
		if p, ok := f.posts[id]; ok {
			all = append(all, p)
		}
	}
	start := (pageNum - 1) * size
	if start >= len(all) {
		return nil
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}
func (f *fakePostRepo) Update(_ context.Context, _ *models.Post) error { return nil }
func (f *fakePostRepo) Delete(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.posts, id)
	return nil
}
func (f *fakePostRepo) Count(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.posts)), nil
}

type fakeCommentRepo struct {
	mu       sync.Mutex
	comments map[uint]*models.Comment
	nextID   uint
}

func (f *fakeCommentRepo) Create(_ context.Context, c *models.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c.ID = f.nextID
	f.comments[c.ID] = c
	return nil
}
func (f *fakeCommentRepo) GetByID(_ context.Context, id uint) (*models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comments[id]
	if !ok {
		return nil, models.NewNotFoundError("Comment", id)
	}
	return c, nil
}
func (f *fakeCommentRepo) List(_ context.Context, filter repository.ListFilter) ([]*models.Comment, error) {
	if filter.PostID == nil {
		return nil, nil
	}
	return f.byPost(*filter.PostID, filter.Page, filter.PageSize), nil
}
func (f *fakeCommentRepo) PageByPost(_ context.Context, postID uint, pageNum int) ([]*models.Comment, error) {
	return f.byPost(postID, pageNum, repository.DefaultPageSize), nil
}
func (f *fakeCommentRepo) byPost(postID uint, pageNum, size int) []*models.Comment {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := make([]*models.Comment, 0)
	for id := f.nextID; id >= 1; id-- {
		if c, ok := f.comments[id]; ok && c.PostID == postID {
			matched = append(matched, c)
		}
	}
	start := (pageNum - 1) * size
	if start >= len(matched) {
		return nil
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end]
}
func (f *fakeCommentRepo) Update(_ context.Context, _ *models.Comment) error { return nil }
func (f *fakeCommentRepo) Delete(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.comments, id)
	return nil
}
func (f *fakeCommentRepo) CountByPost(_ context.Context, _ uint) (int64, error) { return 0, nil }

type recordedPublish struct {
	Topic   string
	Payload []byte
}

type fakePublisher struct {
	mu        sync.Mutex
	published []recordedPublish
}

func (f *fakePublisher) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, recordedPublish{Topic: topic, Payload: payload})
	return nil
}

func (f *fakePublisher) all() []recordedPublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedPublish, len(f.published))
	copy(out, f.published)
	return out
}

// countingClassifier wraps a verdict and counts invocations.
type countingClassifier struct {
	mu      sync.Mutex
	verdict moderation.Verdict
	delay   time.Duration
	calls   int
}

func (c *countingClassifier) Classify(_ context.Context, _ string) (moderation.Verdict, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return c.verdict, nil
}

func (c *countingClassifier) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newTestDeps(verdict moderation.Verdict) (Deps, *fakePostRepo, *fakeCommentRepo, *fakePublisher, *countingClassifier) {
	users := &fakeUserRepo{users: map[uint]*models.User{
		1: {ID: 1, Username: "alice"},
	}}
	posts := &fakePostRepo{posts: map[uint]*models.Post{}}
	comments := &fakeCommentRepo{comments: map[uint]*models.Comment{}}
	pub := &fakePublisher{}
	classifier := &countingClassifier{verdict: verdict}

	return Deps{
		Users:      users,
		Posts:      posts,
		Comments:   comments,
		Classifier: classifier,
		Publisher:  pub,
	}, posts, comments, pub, classifier
}

// --- job semantics ---

func TestCreatePostJob_AcceptedWritesOnceThenBroadcastsOnce(t *testing.T) {
	deps, posts, _, pub, _ := newTestDeps(moderation.Accept)

	res, err := CreatePostJob{OwnerID: 1, Text: "hello world"}.Execute(context.Background(), deps)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	require.NotNil(t, res.Post)
	assert.Equal(t, "hello world", res.Post.Text)

	count, _ := posts.Count(context.Background())
	assert.Equal(t, int64(1), count)

	published := pub.all()
	require.Len(t, published, 1)
	assert.Equal(t, "posts", published[0].Topic)

	var ev struct {
		EventType string   `json:"event_type"`
		Post      ItemView `json:"post"`
	}
	require.NoError(t, json.Unmarshal(published[0].Payload, &ev))
	assert.Equal(t, EventDisplayPost, ev.EventType)
	assert.Equal(t, "alice", ev.Post.Username)
	assert.Equal(t, "hello world", ev.Post.Text)
}

func TestCreatePostJob_RejectedIsFailWithNoWriteNoBroadcast(t *testing.T) {
	deps, posts, _, pub, _ := newTestDeps(moderation.Reject)

	res, err := CreatePostJob{OwnerID: 1, Text: "something nasty"}.Execute(context.Background(), deps)
	require.NoError(t, err)

	assert.Equal(t, StatusFail, res.Status)
	assert.NotEmpty(t, res.Detail)
	assert.Nil(t, res.Post)

	count, _ := posts.Count(context.Background())
	assert.Zero(t, count)
	assert.Empty(t, pub.all())
}

func TestCreatePostJob_EmptyTextIsValidationError(t *testing.T) {
	deps, _, _, _, classifier := newTestDeps(moderation.Accept)

	_, err := CreatePostJob{OwnerID: 1, Text: "   "}.Execute(context.Background(), deps)
	require.Error(t, err)

	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Zero(t, classifier.callCount())
}

func TestCreateCommentJob_MissingPostIsNotFoundBeforeModeration(t *testing.T) {
	deps, _, comments, pub, classifier := newTestDeps(moderation.Accept)

	_, err := CreateCommentJob{OwnerID: 1, PostID: 99, Text: "hi"}.Execute(context.Background(), deps)
	assert.True(t, models.IsNotFound(err))
	assert.Zero(t, classifier.callCount())
	assert.Empty(t, comments.comments)
	assert.Empty(t, pub.all())
}

func TestCreateCommentJob_AcceptedBroadcastsToPostTopic(t *testing.T) {
	deps, posts, comments, pub, _ := newTestDeps(moderation.Accept)

	ownerID := uint(1)
	require.NoError(t, posts.Create(context.Background(), &models.Post{Text: "parent", OwnerID: &ownerID}))

	res, err := CreateCommentJob{OwnerID: 1, PostID: 1, Text: "a reply"}.Execute(context.Background(), deps)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	require.NotNil(t, res.Comment)
	assert.Len(t, comments.comments, 1)

	published := pub.all()
	require.Len(t, published, 1)
	assert.Equal(t, "post_1", published[0].Topic)

	var ev struct {
		EventType string   `json:"event_type"`
		Comment   ItemView `json:"comment"`
	}
	require.NoError(t, json.Unmarshal(published[0].Payload, &ev))
	assert.Equal(t, EventDisplayComment, ev.EventType)
	assert.Equal(t, "a reply", ev.Comment.Text)
}

func TestCreateCommentJob_RejectedLeavesPostThreadUntouched(t *testing.T) {
	deps, posts, comments, pub, _ := newTestDeps(moderation.Reject)

	ownerID := uint(1)
	require.NoError(t, posts.Create(context.Background(), &models.Post{Text: "parent", OwnerID: &ownerID}))

	res, err := CreateCommentJob{OwnerID: 1, PostID: 1, Text: "rude"}.Execute(context.Background(), deps)
	require.NoError(t, err)

	assert.Equal(t, StatusFail, res.Status)
	assert.Empty(t, comments.comments)
	assert.Empty(t, pub.all())
}

func TestListPageJob_PostsPageNewestFirst(t *testing.T) {
	deps, posts, _, _, _ := newTestDeps(moderation.Accept)

	ownerID := uint(1)
	owner := &models.User{ID: 1, Username: "alice"}
	for _, text := range []string{"first", "second", "third"} {
		require.NoError(t, posts.Create(context.Background(),
			&models.Post{Text: text, OwnerID: &ownerID, Owner: owner}))
	}

	res, err := ListPageJob{Target: PagePosts, PageNum: 1}.Execute(context.Background(), deps)
	require.NoError(t, err)

	require.Len(t, res.Page, 3)
	assert.Equal(t, "third", res.Page[0].Text)
	assert.Equal(t, "alice", res.Page[0].Username)
	assert.Equal(t, "first", res.Page[2].Text)
}

func TestListPageJob_OutOfRangePageIsEmpty(t *testing.T) {
	deps, posts, _, _, _ := newTestDeps(moderation.Accept)

	ownerID := uint(1)
	require.NoError(t, posts.Create(context.Background(), &models.Post{Text: "only", OwnerID: &ownerID}))

	res, err := ListPageJob{Target: PagePosts, PageNum: 40}.Execute(context.Background(), deps)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Empty(t, res.Page)
}

func TestListPageJob_UnknownTargetIsValidationError(t *testing.T) {
	deps, _, _, _, _ := newTestDeps(moderation.Accept)

	_, err := ListPageJob{Target: "likes", PageNum: 1}.Execute(context.Background(), deps)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

// --- queue semantics ---

func TestQueue_SubmitAndAwait(t *testing.T) {
	deps, _, _, _, _ := newTestDeps(moderation.Accept)
	q := NewQueue(deps, 2, 8)
	defer func() { _ = q.Shutdown(context.Background()) }()

	handle, err := q.Submit(context.Background(), CreatePostJob{OwnerID: 1, Text: "queued"})
	require.NoError(t, err)

	res, err := handle.Await(time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	require.NotNil(t, res.Post)
	assert.Equal(t, "queued", res.Post.Text)
}

func TestQueue_AwaitTimeoutDoesNotCancelJob(t *testing.T) {
	deps, posts, _, _, classifier := newTestDeps(moderation.Accept)
	classifier.delay = 50 * time.Millisecond

	q := NewQueue(deps, 1, 8)
	defer func() { _ = q.Shutdown(context.Background()) }()

	handle, err := q.Submit(context.Background(), CreatePostJob{OwnerID: 1, Text: "slow"})
	require.NoError(t, err)

	_, err = handle.Await(5 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimedOut)

	// The job keeps running and its write still lands.
	assert.Eventually(t, func() bool {
		count, _ := posts.Count(context.Background())
		return count == 1
	}, time.Second, 10*time.Millisecond)
}

func TestQueue_SubmitAfterShutdownFails(t *testing.T) {
	deps, _, _, _, _ := newTestDeps(moderation.Accept)
	q := NewQueue(deps, 1, 1)
	require.NoError(t, q.Shutdown(context.Background()))

	_, err := q.Submit(context.Background(), CreatePostJob{OwnerID: 1, Text: "late"})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueue_ShutdownDrainsQueuedJobs(t *testing.T) {
	deps, posts, _, _, _ := newTestDeps(moderation.Accept)
	q := NewQueue(deps, 1, 8)

	handles := make([]*Handle, 0, 3)
	for i := 0; i < 3; i++ {
		h, err := q.Submit(context.Background(), CreatePostJob{OwnerID: 1, Text: "drain me"})
		require.NoError(t, err)
		handles = append(handles, h)
	}

	require.NoError(t, q.Shutdown(context.Background()))

	for _, h := range handles {
		res, err := h.Await(time.Second)
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, res.Status)
	}

	count, _ := posts.Count(context.Background())
	assert.Equal(t, int64(3), count)
}

func TestQueue_ShutdownWithBlockedSubmitterDoesNotPanic(t *testing.T) {
	deps, _, _, _, classifier := newTestDeps(moderation.Accept)
	classifier.delay = 30 * time.Millisecond

	// One worker, one buffer slot. The first job occupies the worker,
	// the second fills the buffer, so the third Submit blocks on send.
	q := NewQueue(deps, 1, 1)

	h1, err := q.Submit(context.Background(), CreatePostJob{OwnerID: 1, Text: "busy"})
	require.NoError(t, err)
	h2, err := q.Submit(context.Background(), CreatePostJob{OwnerID: 1, Text: "queued"})
	require.NoError(t, err)

	type submitOutcome struct {
		handle *Handle
		err    error
	}
	got := make(chan submitOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("Submit panicked during Shutdown: %v", r)
				got <- submitOutcome{}
			}
		}()
		h, err := q.Submit(context.Background(), CreatePostJob{OwnerID: 1, Text: "blocked"})
		got <- submitOutcome{handle: h, err: err}
	}()

	// Give the third Submit a moment to block before shutting down.
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, q.Shutdown(context.Background()))

	outcome := <-got
	if outcome.err != nil {
		// Losing the race to Shutdown is a clean refusal, never a panic.
		assert.ErrorIs(t, outcome.err, ErrQueueClosed)
	} else {
		res, err := outcome.handle.Await(time.Second)
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, res.Status)
	}

	for _, h := range []*Handle{h1, h2} {
		res, err := h.Await(time.Second)
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, res.Status)
	}
}
