package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"

	"ripple/internal/jobs"
	"ripple/internal/middleware"
	"ripple/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// incomingAction is the message shape clients send over a socket.
type incomingAction struct {
	Action  string `json:"action"`
	PageNum int    `json:"page_num"`
}

// FeedSocketHandler upgrades the connection and joins it to the feed
// topic. Members receive every newly created post and may request pages
// of existing posts.
func (s *Server) FeedSocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		s.serveTopic(conn, notifications.FeedTopic, jobs.PagePosts, 0)
	})
}

// PostSocketHandler upgrades the connection and joins it to one post's
// comment topic. Members receive every new comment on that post and may
// request pages of existing comments.
func (s *Server) PostSocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		id, err := strconv.ParseUint(conn.Params("id"), 10, 32)
		if err != nil || id == 0 {
			writeSocketError(conn, "invalid post id")
			_ = conn.Close()
			return
		}
		postID := uint(id)

		// Joining a thread for a post that does not exist is refused up front.
		if _, err := s.postRepo.GetByID(context.Background(), postID); err != nil {
			writeSocketError(conn, "post not found")
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "post not found"))
			_ = conn.Close()
			return
		}

		s.serveTopic(conn, notifications.PostTopic(postID), jobs.PageComments, postID)
	})
}

// serveTopic is the shared connection lifecycle: register, join the topic,
// pump messages, and leave exactly once on the way out.
func (s *Server) serveTopic(conn *websocket.Conn, topic, pageTarget string, postID uint) {
	// Identity was resolved before the upgrade; absent means anonymous.
	userID := uint(0)
	if id, ok := conn.Locals("userID").(uint); ok {
		userID = id
	}

	client, err := s.hub.Register(userID, conn)
	if err != nil {
		writeSocketError(conn, "server is at capacity")
		_ = conn.Close()
		return
	}
	middleware.ActiveWebSockets.Inc()
	defer middleware.ActiveWebSockets.Dec()

	s.hub.Join(topic, client)

	client.IncomingHandler = s.incomingHandler(conn, topic, pageTarget, postID)

	// Start write pump in a goroutine
	go client.WritePump()

	// Read pump runs in the main handler goroutine (blocking). Unregister
	// happens inside the pump when the connection drops.
	client.ReadPump()
}

// incomingHandler dispatches one client message. Each socket accepts
// only the page action matching its topic: get_posts on the feed,
// get_comments on a post's thread.
func (s *Server) incomingHandler(conn *websocket.Conn, topic, pageTarget string, postID uint) func(*notifications.Client, []byte) {
	pageAction := "get_posts"
	if pageTarget == jobs.PageComments {
		pageAction = "get_comments"
	}

	return func(c *notifications.Client, message []byte) {
		var action incomingAction
		if err := json.Unmarshal(message, &action); err != nil {
			c.TrySend([]byte(`{"event_type":"error","detail":"invalid message"}`))
			return
		}

		switch action.Action {
		case pageAction:
			s.handlePageRequest(c, pageTarget, postID, action.PageNum)

		case "logout":
			// Explicit goodbye: leave the topic and close normally. The read
			// pump unwinds when the connection closes.
			s.hub.Leave(topic, c)
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logged out"))
			_ = conn.Close()

		default:
			c.TrySend([]byte(`{"event_type":"error","detail":"unknown action"}`))
		}
	}
}

// handlePageRequest fetches one page through the task queue and sends it
// back on this client's socket only.
func (s *Server) handlePageRequest(c *notifications.Client, target string, postID uint, pageNum int) {
	if pageNum < 1 {
		pageNum = 1
	}

	handle, err := s.queue.Submit(context.Background(), jobs.ListPageJob{
		Target:  target,
		PostID:  postID,
		PageNum: pageNum,
	})
	if err != nil {
		c.TrySend([]byte(`{"event_type":"error","detail":"server busy"}`))
		return
	}

	res, err := handle.Await(s.config.JobTimeout())
	if err != nil {
		if errors.Is(err, jobs.ErrTimedOut) {
			c.TrySend([]byte(`{"event_type":"error","detail":"timed out"}`))
		} else {
			c.TrySend([]byte(`{"event_type":"error","detail":"page fetch failed"}`))
		}
		return
	}

	// Empty pages still answer with an empty list
	page := res.Page
	if page == nil {
		page = []jobs.ItemSummary{}
	}

	var ev jobs.Event
	if target == jobs.PagePosts {
		ev = jobs.Event{EventType: jobs.EventDisplayPost, Post: page}
	} else {
		ev = jobs.Event{EventType: jobs.EventDisplayComment, Comment: page}
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("marshal page event error: %v", err)
		return
	}
	c.TrySend(payload)
}

func writeSocketError(conn *websocket.Conn, detail string) {
	msg, _ := json.Marshal(fiber.Map{"event_type": "error", "detail": detail})
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		log.Printf("websocket write error: %v", err)
	}
}
