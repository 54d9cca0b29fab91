package ws

import (
	"go.uber.org/zap"

	"ncstreamer/internal/model"
	"ncstreamer/internal/obs"
)

// RespondStreamingStatus completes a status request.
func (s *Server) RespondStreamingStatus(key model.RequestKey, errMsg string, st model.StreamingStatus) {
	s.respond(model.Response{
		Type:            model.MessageStatusResponse,
		RequestKey:      key,
		Error:           errMsg,
		StreamingStatus: &st,
	})
}

// RespondStreamingStart completes a start request.
func (s *Server) RespondStreamingStart(key model.RequestKey, errMsg string) {
	s.respond(model.Response{Type: model.MessageStartResponse, RequestKey: key, Error: errMsg})
}

// RespondStreamingStop completes a stop request.
func (s *Server) RespondStreamingStop(key model.RequestKey, errMsg string) {
	s.respond(model.Response{Type: model.MessageStopResponse, RequestKey: key, Error: errMsg})
}

// RespondSettingsQualityUpdate completes a quality update request.
func (s *Server) RespondSettingsQualityUpdate(key model.RequestKey, errMsg string) {
	s.respond(model.Response{Type: model.MessageQualityUpdateResponse, RequestKey: key, Error: errMsg})
}

// respond delivers resp to the connection that checked in its key. A key
// with no live connection is dropped without a write.
func (s *Server) respond(resp model.Response) {
	c, ok := s.cache.CheckOut(resp.RequestKey)
	obs.PendingRequests.Set(float64(s.cache.Len()))
	if !ok {
		s.log.Debug("no connection for response",
			zap.Stringer("type", resp.Type),
			zap.Int32("key", int32(resp.RequestKey)))
		obs.ResponsesDropped.Inc()
		return
	}

	data, err := Encode(resp)
	if err != nil {
		s.log.Error("encode response", zap.Stringer("type", resp.Type), zap.Error(err))
		return
	}
	if err := c.Send(data); err != nil {
		s.log.Warn("send response failed",
			zap.String("conn", c.ID),
			zap.Stringer("type", resp.Type),
			zap.Int32("key", int32(resp.RequestKey)),
			zap.Error(err))
		obs.SendFailures.Inc()
		return
	}

	s.log.Info("response sent",
		zap.String("conn", c.ID),
		zap.Stringer("type", resp.Type),
		zap.Int32("key", int32(resp.RequestKey)),
		zap.String("error", resp.Error))
	obs.ResponsesTotal.WithLabelValues(resp.Type.String()).Inc()
}
