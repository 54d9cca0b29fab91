package ws

import (
	"fmt"

	"go.uber.org/zap"

	"ncstreamer/internal/model"
	"ncstreamer/internal/obs"
)

// dispatch handles one inbound frame. A handler panic is recovered, logged
// and returned so the worker can report it at shutdown.
func (s *Server) dispatch(ev event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("handler panic", zap.String("conn", ev.conn.ID), zap.Any("panic", r))
			err = fmt.Errorf("handler panic on conn %s: %v", ev.conn.ID, r)
		}
	}()

	req, err := Decode(ev.data)
	if err != nil {
		s.log.Warn("dropping request",
			zap.String("conn", ev.conn.ID),
			zap.Error(err),
			zap.ByteString("frame", ev.data))
		obs.ProtocolErrors.WithLabelValues(errorReason(err)).Inc()
		return nil
	}

	s.log.Info("request received", zap.String("conn", ev.conn.ID), zap.Stringer("type", req.Type))
	obs.RequestsTotal.WithLabelValues(req.Type.String()).Inc()

	switch req.Type {
	case model.MessageStatusRequest:
		s.onStatusRequest(ev.conn)
	case model.MessageStartRequest:
		s.onStartRequest(ev.conn, req.Start)
	case model.MessageStopRequest:
		s.onStopRequest(ev.conn)
	case model.MessageQualityUpdateRequest:
		s.onQualityUpdateRequest(ev.conn, req.Quality)
	case model.MessageExitRequest:
		s.onExitRequest(ev.conn)
	}
	return nil
}

func (s *Server) onStatusRequest(c *Conn) {
	key := s.checkIn(c)
	s.RespondStreamingStatus(key, "", s.bridge.Status())
}

func (s *Server) onStartRequest(c *Conn, p model.StartParams) {
	if p.Source == "" || p.UserPage == "" || p.Privacy == "" {
		s.invalid(c, model.MessageStartRequest, "source, userPage and privacy must not be empty")
		return
	}
	key := s.checkIn(c)
	s.await(key, s.bridge.StartStreaming(s.ctx, p), s.RespondStreamingStart)
}

func (s *Server) onStopRequest(c *Conn) {
	key := s.checkIn(c)
	s.await(key, s.bridge.StopStreaming(s.ctx), s.RespondStreamingStop)
}

func (s *Server) onQualityUpdateRequest(c *Conn, q model.VideoQuality) {
	if !q.Valid() {
		s.invalid(c, model.MessageQualityUpdateRequest, "width, height, fps and bitrate must be positive")
		return
	}
	key := s.checkIn(c)
	s.await(key, s.bridge.UpdateVideoQuality(s.ctx, q), s.RespondSettingsQualityUpdate)
}

func (s *Server) onExitRequest(c *Conn) {
	s.log.Info("exit requested", zap.String("conn", c.ID))
	s.bridge.Exit()
}

func (s *Server) checkIn(c *Conn) model.RequestKey {
	key := s.cache.CheckIn(c)
	obs.PendingRequests.Set(float64(s.cache.Len()))
	return key
}

func (s *Server) invalid(c *Conn, t model.MessageType, reason string) {
	s.log.Warn("dropping invalid request",
		zap.String("conn", c.ID),
		zap.Stringer("type", t),
		zap.String("reason", reason))
	obs.ProtocolErrors.WithLabelValues("invalid_field").Inc()
}

// await hands the completion of done to respond. It gives up when the
// server shuts down; the cache entry then stays behind.
func (s *Server) await(key model.RequestKey, done <-chan error, respond func(model.RequestKey, string)) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		select {
		case err := <-done:
			respond(key, errorString(err))
		case <-s.ctx.Done():
		}
	}()
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
