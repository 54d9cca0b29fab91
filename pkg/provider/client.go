package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// Client talks to the streaming service provider API.
type Client struct {
	Base  string
	Token string
	HTTP  *http.Client
}

func NewClient(base, token string) *Client {
	return &Client{
		Base:  base,
		Token: token,
		HTTP:  &http.Client{Timeout: 15 * time.Second},
	}
}

// UserPage is a page (own timeline, group, fan page) the user may post to.
type UserPage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Link string `json:"link"`
}

type LoginResponse struct {
	UserName  string     `json:"userName"`
	UserPages []UserPage `json:"userPages"`
}

type PostParams struct {
	UserPage    string `json:"userPage"`
	Privacy     string `json:"privacy"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// LiveVideo is where the encoder should push the stream.
type LiveVideo struct {
	ServiceProvider string `json:"serviceProvider"`
	StreamURL       string `json:"streamUrl"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

func (c *Client) do(ctx context.Context, method, p string, body any) ([]byte, error) {
	u, err := url.Parse(c.Base)
	if err != nil {
		return nil, err
	}
	u.Path = path.Join(u.Path, p)
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(b)}
	}
	return b, nil
}

// LogIn signs in, optionally as designatedUser, and lists the user's pages.
func (c *Client) LogIn(ctx context.Context, designatedUser string) (*LoginResponse, error) {
	b, err := c.do(ctx, http.MethodPost, "/api/login", map[string]string{"designatedUser": designatedUser})
	if err != nil {
		return nil, fmt.Errorf("log in: %w", err)
	}
	var out LoginResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("log in: %w", err)
	}
	if out.UserName == "" {
		return nil, errors.New("log in: empty user name")
	}
	return &out, nil
}

// PostLiveVideo announces a live video and returns its ingest endpoint.
func (c *Client) PostLiveVideo(ctx context.Context, p PostParams) (*LiveVideo, error) {
	b, err := c.do(ctx, http.MethodPost, "/api/live_videos", p)
	if err != nil {
		return nil, fmt.Errorf("post live video: %w", err)
	}
	var out LiveVideo
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("post live video: %w", err)
	}
	if out.StreamURL == "" {
		return nil, errors.New("post live video: empty stream url")
	}
	return &out, nil
}
