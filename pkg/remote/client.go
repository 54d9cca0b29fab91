// Package remote is a controller-side client for the remote control
// WebSocket protocol.
//
// Requests carry no client-chosen identifier, so responses are matched to
// calls by type in the order the calls were made. The server answers
// requests of one type from one connection in completion order; callers
// that issue several requests of the same type concurrently may see their
// results swapped when the operations finish out of order.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ncstreamer/internal/model"
	"ncstreamer/internal/transport/ws"
)

var ErrClosed = errors.New("remote: connection closed")

// ResponseError is an application error reported by the server.
type ResponseError struct {
	Type    model.MessageType
	Key     model.RequestKey
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s (key %d): %s", e.Type, e.Key, e.Message)
}

type result struct {
	resp model.Response
	err  error
}

type Client struct {
	conn *websocket.Conn
	log  *zap.Logger

	wmu sync.Mutex

	mu      sync.Mutex
	waiters map[model.MessageType][]chan result
	err     error
	done    chan struct{}
}

// Option configures Dial.
type Option func(*dialOptions)

type dialOptions struct {
	token string
	log   *zap.Logger
}

// WithToken sends token in the Authorization header.
func WithToken(token string) Option {
	return func(o *dialOptions) { o.token = token }
}

func WithLogger(log *zap.Logger) Option {
	return func(o *dialOptions) { o.log = log }
}

// Dial connects to the remote control endpoint at url.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	o := dialOptions{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	header := http.Header{}
	if o.token != "" {
		header.Set("Authorization", "Bearer "+o.token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (http %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		conn:    conn,
		log:     o.log,
		waiters: make(map[model.MessageType][]chan result),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Status asks for the current streaming status.
func (c *Client) Status(ctx context.Context) (model.StreamingStatus, error) {
	resp, err := c.call(ctx, model.Request{Type: model.MessageStatusRequest})
	if err != nil {
		return model.StreamingStatus{}, err
	}
	return *resp.StreamingStatus, nil
}

// StartStreaming starts a broadcast and waits for the outcome.
func (c *Client) StartStreaming(ctx context.Context, p model.StartParams) error {
	if p.Source == "" || p.UserPage == "" || p.Privacy == "" {
		return errors.New("remote: source, userPage and privacy are required")
	}
	_, err := c.call(ctx, model.Request{Type: model.MessageStartRequest, Start: p})
	return err
}

// StopStreaming stops the broadcast and waits for the outcome.
func (c *Client) StopStreaming(ctx context.Context) error {
	_, err := c.call(ctx, model.Request{Type: model.MessageStopRequest})
	return err
}

// UpdateVideoQuality changes the encoder quality.
func (c *Client) UpdateVideoQuality(ctx context.Context, q model.VideoQuality) error {
	if !q.Valid() {
		return errors.New("remote: width, height, fps and bitrate must be positive")
	}
	_, err := c.call(ctx, model.Request{Type: model.MessageQualityUpdateRequest, Quality: q})
	return err
}

// Exit asks the server process to quit. No response is sent.
func (c *Client) Exit() error {
	return c.send(model.Request{Type: model.MessageExitRequest})
}

// Close closes the connection and fails outstanding calls.
func (c *Client) Close() error {
	c.wmu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wmu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// call registers a waiter for the response type and sends req. A waiter
// abandoned by ctx stays queued so later responses still line up.
func (c *Client) call(ctx context.Context, req model.Request) (model.Response, error) {
	ch := make(chan result, 1)
	rt := req.Type.ResponseType()

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return model.Response{}, err
	}
	c.waiters[rt] = append(c.waiters[rt], ch)
	c.mu.Unlock()

	if err := c.send(req); err != nil {
		c.removeWaiter(rt, ch)
		return model.Response{}, err
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return model.Response{}, r.err
		}
		if r.resp.Error != "" {
			return r.resp, &ResponseError{Type: r.resp.Type, Key: r.resp.RequestKey, Message: r.resp.Error}
		}
		return r.resp, nil
	case <-ctx.Done():
		return model.Response{}, ctx.Err()
	}
}

// removeWaiter drops ch from the queue for t when its request never left.
func (c *Client) removeWaiter(t model.MessageType, ch chan result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	queue := c.waiters[t]
	for i, w := range queue {
		if w == ch {
			c.waiters[t] = append(queue[:i:i], queue[i+1:]...)
			return
		}
	}
}

func (c *Client) send(req model.Request) error {
	data, err := ws.EncodeRequest(req)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", req.Type, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		resp, err := ws.DecodeResponse(data)
		if err != nil {
			c.log.Warn("dropping response", zap.Error(err), zap.ByteString("frame", data))
			continue
		}

		c.mu.Lock()
		queue := c.waiters[resp.Type]
		var ch chan result
		if len(queue) > 0 {
			ch, c.waiters[resp.Type] = queue[0], queue[1:]
		}
		c.mu.Unlock()

		if ch == nil {
			c.log.Warn("unsolicited response", zap.Stringer("type", resp.Type), zap.Int32("key", int32(resp.RequestKey)))
			continue
		}
		ch <- result{resp: resp}
	}
}

func (c *Client) fail(err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		err = ErrClosed
	} else {
		err = fmt.Errorf("%w: %v", ErrClosed, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
	for t, queue := range c.waiters {
		for _, ch := range queue {
			ch <- result{err: err}
		}
		delete(c.waiters, t)
	}
}
