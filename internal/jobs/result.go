// Package jobs implements the asynchronous task queue that executes
// moderation-gated writes and page fetches off the request path.
package jobs

import (
	"errors"
	"time"

	"ripple/internal/models"
)

// ErrTimedOut is returned by Handle.Await when the job did not complete
// within the caller's bound. The job itself keeps running to completion.
var ErrTimedOut = errors.New("job did not complete within the await bound")

// Result statuses reported to callers.
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

// ItemSummary is the compact listing shape returned by page-fetch jobs.
type ItemSummary struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

// ItemView is the shape broadcast to topic subscribers for a new entity.
type ItemView struct {
	Username string `json:"username"`
	Text     string `json:"text"`
}

// Event is the outbound websocket envelope shared by broadcasts and page
// responses.
type Event struct {
	EventType string `json:"event_type"`
	Post      any    `json:"post,omitempty"`
	Comment   any    `json:"comment,omitempty"`
}

// Event type discriminators.
const (
	EventDisplayPost    = "display_post"
	EventDisplayComment = "display_comment"
)

// Result is the outcome of a completed job. Status "fail" carries a
// user-facing Detail (moderation rejection); entity and page fields are
// populated per job kind.
type Result struct {
	Status  string          `json:"status"`
	Detail  string          `json:"detail,omitempty"`
	Post    *models.Post    `json:"post,omitempty"`
	Comment *models.Comment `json:"comment,omitempty"`
	Page    []ItemSummary   `json:"-"`
}

type outcome struct {
	result Result
	err    error
}

// Handle lets the submitter synchronously await a job's outcome.
type Handle struct {
	done chan outcome
}

func newHandle() *Handle {
	return &Handle{done: make(chan outcome, 1)}
}

// Await blocks until the job completes or the timeout elapses. Timeout is
// surfaced as ErrTimedOut, distinct from any job error; the job is not
// cancelled and its side effects (write, broadcast) still happen.
func (h *Handle) Await(timeout time.Duration) (Result, error) {
	select {
	case out := <-h.done:
		return out.result, out.err
	case <-time.After(timeout):
		return Result{}, ErrTimedOut
	}
}

func (h *Handle) complete(res Result, err error) {
	h.done <- outcome{result: res, err: err}
}
