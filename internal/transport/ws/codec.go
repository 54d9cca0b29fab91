package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"ncstreamer/internal/model"
)

var (
	ErrMalformed    = errors.New("malformed message")
	ErrUnknownType  = errors.New("unknown message type")
	ErrMissingField = errors.New("missing field")
	ErrInvalidField = errors.New("invalid field")
)

// Decode parses an inbound text frame into a typed request.
// A request lacking any field its type requires is rejected as a whole.
func Decode(data []byte) (model.Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return model.Request{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		return model.Request{}, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	t, err := decodeType(fields)
	if err != nil {
		return model.Request{}, err
	}
	if !t.IsRequest() {
		return model.Request{}, fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}

	req := model.Request{Type: t}
	switch t {
	case model.MessageStartRequest:
		p := &req.Start
		for _, f := range []struct {
			name string
			dst  *string
		}{
			{"source", &p.Source},
			{"userPage", &p.UserPage},
			{"privacy", &p.Privacy},
			{"title", &p.Title},
			{"description", &p.Description},
		} {
			if *f.dst, err = requiredString(fields, f.name); err != nil {
				return model.Request{}, err
			}
		}
	case model.MessageQualityUpdateRequest:
		q := &req.Quality
		for _, f := range []struct {
			name string
			dst  *uint32
		}{
			{"width", &q.Width},
			{"height", &q.Height},
			{"fps", &q.FPS},
			{"bitrate", &q.Bitrate},
		} {
			if *f.dst, err = requiredUint(fields, f.name); err != nil {
				return model.Request{}, err
			}
		}
	}
	return req, nil
}

// Encode serializes a response envelope into a text frame.
func Encode(resp model.Response) ([]byte, error) {
	return json.Marshal(resp)
}

// EncodeRequest serializes a controller request into a text frame.
func EncodeRequest(req model.Request) ([]byte, error) {
	out := map[string]any{"type": req.Type}
	switch req.Type {
	case model.MessageStartRequest:
		out["source"] = req.Start.Source
		out["userPage"] = req.Start.UserPage
		out["privacy"] = req.Start.Privacy
		out["title"] = req.Start.Title
		out["description"] = req.Start.Description
	case model.MessageQualityUpdateRequest:
		out["width"] = req.Quality.Width
		out["height"] = req.Quality.Height
		out["fps"] = req.Quality.FPS
		out["bitrate"] = req.Quality.Bitrate
	}
	return json.Marshal(out)
}

// DecodeResponse parses a response frame as sent by the server.
func DecodeResponse(data []byte) (model.Response, error) {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return model.Response{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	t, err := decodeType(fields)
	if err != nil {
		return model.Response{}, err
	}
	if !t.IsResponse() {
		return model.Response{}, fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}
	if _, ok := fields["requestKey"]; !ok {
		return model.Response{}, fmt.Errorf("%w: requestKey", ErrMissingField)
	}

	var resp model.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return model.Response{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if t == model.MessageStatusResponse && resp.StreamingStatus == nil {
		resp.StreamingStatus = &model.StreamingStatus{}
	}
	return resp, nil
}

func decodeType(fields map[string]json.RawMessage) (model.MessageType, error) {
	raw, ok := fields["type"]
	if !ok || isNull(raw) {
		return model.MessageUndefined, fmt.Errorf("%w: type", ErrMissingField)
	}
	var t int
	if err := json.Unmarshal(raw, &t); err != nil {
		return model.MessageUndefined, fmt.Errorf("%w: type: %v", ErrInvalidField, err)
	}
	return model.MessageType(t), nil
}

func requiredString(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return "", fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidField, name, err)
	}
	return s, nil
}

// requiredUint accepts a JSON integer or a string holding one.
func requiredUint(fields map[string]json.RawMessage, name string) (uint32, error) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	text := string(raw)
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidField, name, err)
		}
	}
	n, err := strconv.ParseUint(text, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidField, name, err)
	}
	return uint32(n), nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// errorReason maps a decode error to a short metrics label.
func errorReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrUnknownType):
		return "unknown_type"
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrInvalidField):
		return "invalid_field"
	default:
		return "other"
	}
}
