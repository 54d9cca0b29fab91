package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"ncstreamer/internal/logging"
	"ncstreamer/internal/model"
	"ncstreamer/internal/obs"
)

// Bridge is the application surface the server drives.
// Long-running operations return a channel that yields exactly one value
// when the work completes; nil means success.
type Bridge interface {
	Status() model.StreamingStatus
	StartStreaming(ctx context.Context, p model.StartParams) <-chan error
	StopStreaming(ctx context.Context) <-chan error
	UpdateVideoQuality(ctx context.Context, q model.VideoQuality) <-chan error
	Exit()
}

// Responder completes remote requests. It is safe for concurrent use from
// any goroutine.
type Responder interface {
	RespondStreamingStatus(key model.RequestKey, errMsg string, st model.StreamingStatus)
	RespondStreamingStart(key model.RequestKey, errMsg string)
	RespondStreamingStop(key model.RequestKey, errMsg string)
	RespondSettingsQualityUpdate(key model.RequestKey, errMsg string)
}

var _ Responder = (*Server)(nil)

// State is the server lifecycle state.
type State int32

const (
	StateUnconfigured State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Options tunes the server. Zero values select defaults.
type Options struct {
	// Workers is the number of goroutines servicing the event queue.
	Workers      int
	QueueSize    int
	ReadLimit    int64
	WriteTimeout time.Duration

	// FrameRate limits inbound frames per connection; zero, the default,
	// disables it.
	FrameRate  rate.Limit
	FrameBurst int

	// LogPath, when set, names the log file opened by Setup and closed by ShutDown.
	LogPath  string
	LogDebug bool
	Logger   *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.FrameRate > 0 && o.FrameBurst <= 0 {
		o.FrameBurst = 1
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

type event struct {
	conn *Conn
	data []byte
}

// Server is the remote control endpoint. Create it with NewServer, start it
// with Setup and stop it with ShutDown; each may be called once.
type Server struct {
	bridge Bridge
	opts   Options
	log    *zap.Logger
	up     websocket.Upgrader
	cache  *RequestCache
	events chan event

	lifecycle sync.Mutex
	state     atomic.Int32
	ctx       context.Context
	cancel    context.CancelFunc
	ln        net.Listener
	http      *http.Server
	serveDone chan struct{}
	workers   errgroup.Group
	pending   sync.WaitGroup
	sink      *logging.Sink

	connMu      sync.Mutex
	conns       map[*Conn]struct{}
	connsClosed bool
	connWG      sync.WaitGroup
}

// NewServer returns an unconfigured server bound to bridge.
func NewServer(bridge Bridge, opts Options) *Server {
	if bridge == nil {
		panic("ws: nil bridge")
	}
	opts = opts.withDefaults()
	return &Server{
		bridge: bridge,
		opts:   opts,
		log:    opts.Logger,
		up: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		cache:  NewRequestCache(),
		events: make(chan event, opts.QueueSize),
		conns:  make(map[*Conn]struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Addr returns the bound listener address, or nil before Setup.
func (s *Server) Addr() net.Addr {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Setup binds addr, starts the worker pool and begins serving handler.
// A nil handler serves the WebSocket endpoint on every path.
// Calling Setup on a server that is not unconfigured panics.
func (s *Server) Setup(addr string, handler http.Handler) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if st := s.State(); st != StateUnconfigured {
		panic(fmt.Sprintf("ws: Setup called in state %s", st))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("listen failed", zap.String("addr", addr), zap.Error(err))
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	if s.opts.LogPath != "" {
		sink, err := logging.OpenSink(s.opts.LogPath, s.opts.LogDebug)
		if err != nil {
			s.log.Warn("log sink unavailable", zap.Error(err))
		} else {
			s.sink = sink
			s.log = sink.Attach(s.log)
		}
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	for i := 0; i < s.opts.Workers; i++ {
		s.workers.Go(func() error {
			return s.runWorker()
		})
	}

	if handler == nil {
		handler = s
	}
	s.ln = ln
	s.http = &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	s.serveDone = make(chan struct{})
	s.state.Store(int32(StateRunning))

	go func() {
		defer close(s.serveDone)
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("serve failed", zap.Error(err))
		}
	}()

	s.log.Info("remote server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Int("workers", s.opts.Workers))
	return nil
}

// ShutDown stops accepting connections, closes the open ones, drains the
// event queue, waits for the workers and closes the log sink.
// Calling ShutDown on a server that is not running panics.
func (s *Server) ShutDown(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateShuttingDown)) {
		panic(fmt.Sprintf("ws: ShutDown called in state %s", s.State()))
	}
	s.log.Info("remote server shutting down")

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	<-s.serveDone

	s.closeConns()
	s.cancel()
	if err := s.workers.Wait(); err != nil {
		s.log.Error("worker failed", zap.Error(err))
		errs = append(errs, err)
	}
	s.connWG.Wait()
	s.pending.Wait()

	s.log.Info("remote server stopped", zap.Int("abandoned_requests", s.cache.Len()))
	_ = s.log.Sync()
	if s.sink != nil {
		if err := s.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log sink: %w", err))
		}
	}
	s.state.Store(int32(StateStopped))
	return errors.Join(errs...)
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.State() != StateRunning {
		http.Error(w, "remote server not running", http.StatusServiceUnavailable)
		return
	}
	wc, err := s.up.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	var limiter *rate.Limiter
	if s.opts.FrameRate > 0 {
		limiter = rate.NewLimiter(s.opts.FrameRate, s.opts.FrameBurst)
	}
	c := newConn(wc, r.RemoteAddr, s.opts.WriteTimeout, limiter)
	if !s.track(c) {
		_ = c.Close()
		return
	}
	defer s.untrack(c)

	s.log.Info("connection opened", zap.String("conn", c.ID), zap.String("remote", c.Remote))
	obs.ActiveConnections.Inc()
	s.readLoop(c)
}

func (s *Server) track(c *Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.connsClosed {
		return false
	}
	s.conns[c] = struct{}{}
	s.connWG.Add(1)
	return true
}

func (s *Server) untrack(c *Conn) {
	s.connMu.Lock()
	delete(s.conns, c)
	s.connMu.Unlock()

	_ = c.Close()
	obs.ActiveConnections.Dec()
	s.log.Info("connection closed", zap.String("conn", c.ID))
	s.connWG.Done()
}

func (s *Server) closeConns() {
	s.connMu.Lock()
	s.connsClosed = true
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.connMu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

func (s *Server) readLoop(c *Conn) {
	for {
		mt, r, err := c.ws.NextReader()
		if err != nil {
			if !c.Closed() && websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("connection failed", zap.String("conn", c.ID), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			s.log.Warn("dropping non-text frame", zap.String("conn", c.ID))
			obs.ProtocolErrors.WithLabelValues("binary").Inc()
			continue
		}

		data, err := io.ReadAll(io.LimitReader(r, s.opts.ReadLimit+1))
		if err != nil {
			s.log.Warn("connection failed", zap.String("conn", c.ID), zap.Error(err))
			return
		}
		if int64(len(data)) > s.opts.ReadLimit {
			n, err := io.Copy(io.Discard, r)
			if err != nil {
				s.log.Warn("connection failed", zap.String("conn", c.ID), zap.Error(err))
				return
			}
			s.log.Warn("dropping oversized frame",
				zap.String("conn", c.ID),
				zap.Int64("size", int64(len(data))+n),
				zap.Int64("limit", s.opts.ReadLimit))
			obs.ProtocolErrors.WithLabelValues("oversized").Inc()
			continue
		}

		if !c.allow() {
			s.log.Warn("dropping frame over rate limit", zap.String("conn", c.ID))
			obs.ProtocolErrors.WithLabelValues("rate_limited").Inc()
			continue
		}
		select {
		case s.events <- event{conn: c, data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}

// runWorker services the event queue until the server context ends, then
// drains what is left. It reports the first handler panic it recovered.
func (s *Server) runWorker() error {
	var failed error
	handle := func(ev event) {
		if err := s.dispatch(ev); err != nil && failed == nil {
			failed = err
		}
	}
	for {
		select {
		case ev := <-s.events:
			handle(ev)
		case <-s.ctx.Done():
			for {
				select {
				case ev := <-s.events:
					handle(ev)
				default:
					return failed
				}
			}
		}
	}
}
