// Package api is the REST boundary used by the chat core: the conversation
// list and paginated message history.
package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/primeshop/chat/pkg/types"
)

const (
	// defaultHTTPTimeout is the per-request timeout.
	defaultHTTPTimeout = 15 * time.Second
	// maxErrorBody bounds the response excerpt kept in StatusError.
	maxErrorBody = 256
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client calls the chat REST endpoints with the caller's bearer credential.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for baseURL. token is consulted before every
// request; the client never refreshes credentials itself.
func NewClient(baseURL string, token func() (string, error)) *Client {
	hc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(defaultHTTPTimeout).
		SetHeader("Accept", "application/json")

	if token != nil {
		hc.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			t, err := token()
			if err != nil {
				return fmt.Errorf("load credential: %w", err)
			}
			r.SetAuthToken(t)
			return nil
		})
	}
	return &Client{http: hc}
}

// ListConversations fetches every conversation summary of the local user.
func (c *Client) ListConversations(ctx context.Context) ([]types.Conversation, error) {
	var out []types.Conversation
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/chat/conversations")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

// ListMessages fetches one history page. Page 0 is the most recent page and
// its content is ordered newest-first.
func (c *Client) ListMessages(ctx context.Context, conversationID int64, page, size int) ([]types.Message, error) {
	var out types.MessagePage
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"conversationId": strconv.FormatInt(conversationID, 10),
			"page":           strconv.Itoa(page),
			"size":           strconv.Itoa(size),
		}).
		SetResult(&out).
		Get("/chat/messages")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return out.Content, nil
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		body := strings.TrimSpace(resp.String())
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return &StatusError{
			Method: resp.Request.Method,
			Path:   resp.Request.URL,
			Code:   resp.StatusCode(),
			Body:   body,
		}
	}
	return nil
}
