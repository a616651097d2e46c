// Package remote is the client for the authoritative REST backend.
// The engine treats it as best-effort: the scheduler swallows its
// errors, the mutation engine surfaces them to the caller. Timeouts
// are owned by the transport; callers impose no extra deadline.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"scenefeed/pkg/models"
)

// PostsPage is the remote feed page shape.
type PostsPage struct {
	Items      []models.Post `json:"items"`
	NextCursor *string       `json:"nextCursor"`
}

// MessagesPage is the remote conversation history shape.
type MessagesPage struct {
	Items []models.Message `json:"items"`
}

// LikeToggleResponse carries the authoritative like state; Post, when
// present, replaces the optimistic local counter guess.
type LikeToggleResponse struct {
	Liked bool         `json:"liked"`
	Like  *models.Like `json:"like,omitempty"`
	Post  *models.Post `json:"post,omitempty"`
}

// PinResponse is the authoritative pinned-post state for a profile.
type PinResponse struct {
	Pinned bool               `json:"pinned"`
	Pin    *models.ProfilePin `json:"pin,omitempty"`
}

// Client is the backend surface the engine consumes. A nil Client
// means no remote is configured and every sync or authoritative write
// becomes a local no-op.
type Client interface {
	FetchPosts(ctx context.Context, scenarioID string, limit int, cursor string) (PostsPage, error)
	FetchLikes(ctx context.Context, scenarioID string) ([]models.Like, error)
	FetchReposts(ctx context.Context, scenarioID string) ([]models.Repost, error)
	FetchMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	ToggleLike(ctx context.Context, postID, scenarioID, profileID string, like bool) (LikeToggleResponse, error)
	SetPinnedPost(ctx context.Context, profileID string, postID *string, scenarioID string) (PinResponse, error)
	PutCharacterSheet(ctx context.Context, profileID string, sheet models.CharacterSheet) (models.CharacterSheet, error)
	CreatePost(ctx context.Context, scenarioID string, post models.Post) (models.Post, error)
	SendMessage(ctx context.Context, conversationID string, msg models.Message) (models.Message, error)
}

// HTTPClient talks JSON over fasthttp to the configured base URL.
type HTTPClient struct {
	baseURL string
	token   string
	timeout time.Duration
	cli     *fasthttp.Client
}

// NewHTTPClient builds a client for baseURL. token, when non-empty, is
// sent as a bearer token. maxBodyBytes caps response bodies; a
// wholesale likes/reposts fetch that outgrows it fails rather than
// merging a truncated set.
func NewHTTPClient(baseURL, token string, timeout time.Duration, maxBodyBytes int64) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cli := &fasthttp.Client{
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	if maxBodyBytes > 0 {
		cli.MaxResponseBodySize = int(maxBodyBytes)
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
		cli:     cli,
	}
}

// do issues one JSON request and unmarshals a 2xx response into out
// (when out is non-nil).
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(data)
	}

	if err := c.cli.DoTimeout(req, resp, c.timeout); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	code := resp.StatusCode()
	if code < 200 || code > 299 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, code)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func (c *HTTPClient) FetchPosts(ctx context.Context, scenarioID string, limit int, cursor string) (PostsPage, error) {
	path := fmt.Sprintf("/scenarios/%s/posts?limit=%d", scenarioID, limit)
	if cursor != "" {
		path += "&cursor=" + cursor
	}
	var page PostsPage
	err := c.do(ctx, fasthttp.MethodGet, path, nil, &page)
	return page, err
}

func (c *HTTPClient) FetchLikes(ctx context.Context, scenarioID string) ([]models.Like, error) {
	var rows []models.Like
	err := c.do(ctx, fasthttp.MethodGet, "/scenarios/"+scenarioID+"/likes", nil, &rows)
	return rows, err
}

func (c *HTTPClient) FetchReposts(ctx context.Context, scenarioID string) ([]models.Repost, error) {
	var rows []models.Repost
	err := c.do(ctx, fasthttp.MethodGet, "/scenarios/"+scenarioID+"/reposts", nil, &rows)
	return rows, err
}

func (c *HTTPClient) FetchMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	var page MessagesPage
	path := fmt.Sprintf("/conversations/%s/messages?limit=%d", conversationID, limit)
	err := c.do(ctx, fasthttp.MethodGet, path, nil, &page)
	return page.Items, err
}

func (c *HTTPClient) ToggleLike(ctx context.Context, postID, scenarioID, profileID string, like bool) (LikeToggleResponse, error) {
	method := fasthttp.MethodPost
	if !like {
		method = fasthttp.MethodDelete
	}
	body := map[string]string{"scenarioId": scenarioID, "profileId": profileID}
	var out LikeToggleResponse
	err := c.do(ctx, method, "/likes/posts/"+postID, body, &out)
	return out, err
}

func (c *HTTPClient) SetPinnedPost(ctx context.Context, profileID string, postID *string, scenarioID string) (PinResponse, error) {
	body := map[string]any{"postId": postID, "scenarioId": scenarioID}
	var out PinResponse
	err := c.do(ctx, fasthttp.MethodPut, "/profiles/"+profileID+"/pinned-post", body, &out)
	return out, err
}

func (c *HTTPClient) PutCharacterSheet(ctx context.Context, profileID string, sheet models.CharacterSheet) (models.CharacterSheet, error) {
	var out models.CharacterSheet
	err := c.do(ctx, fasthttp.MethodPut, "/profiles/"+profileID+"/character-sheet", sheet, &out)
	return out, err
}

func (c *HTTPClient) CreatePost(ctx context.Context, scenarioID string, post models.Post) (models.Post, error) {
	var out models.Post
	err := c.do(ctx, fasthttp.MethodPost, "/scenarios/"+scenarioID+"/posts", post, &out)
	return out, err
}

func (c *HTTPClient) SendMessage(ctx context.Context, conversationID string, msg models.Message) (models.Message, error) {
	var out models.Message
	err := c.do(ctx, fasthttp.MethodPost, "/conversations/"+conversationID+"/messages", msg, &out)
	return out, err
}
