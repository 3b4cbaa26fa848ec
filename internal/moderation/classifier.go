// Package moderation wraps the external toxicity classification service.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Verdict is the classifier's decision for a piece of text.
type Verdict int

const (
	// Accept means the text may be persisted and broadcast.
	Accept Verdict = iota
	// Reject means the text is considered obscene and must not be persisted.
	Reject
)

// Classifier classifies user-submitted text. Every write path consults a
// Classifier before persisting; there is no bypass.
type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

// HTTPClassifier calls a remote classification endpoint that accepts
// {"text": ...} and answers {"label": "toxic"|"non-toxic"}.
type HTTPClassifier struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPClassifier creates a classifier client for the given base URL.
func NewHTTPClassifier(baseURL string) *HTTPClassifier {
	return &HTTPClassifier{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Label string `json:"label"`
}

// Classify sends the text to the remote model. Transport or protocol
// failures are returned as errors, never mapped to an accept.
func (c *HTTPClassifier) Classify(ctx context.Context, text string) (Verdict, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return Reject, fmt.Errorf("marshal classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return Reject, fmt.Errorf("create classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Reject, fmt.Errorf("send classify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return Reject, fmt.Errorf("classifier error: status=%d, body=%s", resp.StatusCode, string(respBody))
	}

	var result classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Reject, fmt.Errorf("decode classify response: %w", err)
	}

	if strings.EqualFold(result.Label, "toxic") {
		return Reject, nil
	}
	return Accept, nil
}

// StaticClassifier rejects text containing any of the configured words.
// Used in development and tests when no classification service is reachable.
type StaticClassifier struct {
	blocked []string
}

// NewStaticClassifier creates a word-list classifier.
func NewStaticClassifier(blockedWords ...string) *StaticClassifier {
	words := make([]string, 0, len(blockedWords))
	for _, w := range blockedWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			words = append(words, w)
		}
	}
	return &StaticClassifier{blocked: words}
}

// Classify rejects when the text contains a blocked word.
func (c *StaticClassifier) Classify(_ context.Context, text string) (Verdict, error) {
	lowered := strings.ToLower(text)
	for _, w := range c.blocked {
		if strings.Contains(lowered, w) {
			return Reject, nil
		}
	}
	return Accept, nil
}
