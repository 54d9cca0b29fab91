package model

import "fmt"

// MessageType identifies a remote control message on the wire.
// The integer values are part of the protocol and must not be reordered.
type MessageType int

const (
	MessageUndefined MessageType = iota
	MessageStatusRequest
	MessageStatusResponse
	MessageStartRequest
	MessageStartResponse
	MessageStopRequest
	MessageStopResponse
	MessageQualityUpdateRequest
	MessageQualityUpdateResponse
	MessageExitRequest
	MessageExitResponse // reserved, never sent
)

func (t MessageType) String() string {
	switch t {
	case MessageUndefined:
		return "Undefined"
	case MessageStatusRequest:
		return "StatusRequest"
	case MessageStatusResponse:
		return "StatusResponse"
	case MessageStartRequest:
		return "StartRequest"
	case MessageStartResponse:
		return "StartResponse"
	case MessageStopRequest:
		return "StopRequest"
	case MessageStopResponse:
		return "StopResponse"
	case MessageQualityUpdateRequest:
		return "QualityUpdateRequest"
	case MessageQualityUpdateResponse:
		return "QualityUpdateResponse"
	case MessageExitRequest:
		return "ExitRequest"
	case MessageExitResponse:
		return "ExitResponse"
	default:
		return fmt.Sprintf("MessageType(%d)", int(t))
	}
}

// IsRequest reports whether t is a type a controller may send.
func (t MessageType) IsRequest() bool {
	switch t {
	case MessageStatusRequest, MessageStartRequest, MessageStopRequest,
		MessageQualityUpdateRequest, MessageExitRequest:
		return true
	}
	return false
}

// IsResponse reports whether t is a type the server may send.
func (t MessageType) IsResponse() bool {
	switch t {
	case MessageStatusResponse, MessageStartResponse, MessageStopResponse,
		MessageQualityUpdateResponse:
		return true
	}
	return false
}

// ResponseType returns the response type paired with a request type.
func (t MessageType) ResponseType() MessageType {
	switch t {
	case MessageStatusRequest:
		return MessageStatusResponse
	case MessageStartRequest:
		return MessageStartResponse
	case MessageStopRequest:
		return MessageStopResponse
	case MessageQualityUpdateRequest:
		return MessageQualityUpdateResponse
	case MessageExitRequest:
		return MessageExitResponse
	}
	return MessageUndefined
}

// RequestKey correlates an inbound request with its eventual response.
// Keys come from a plain incrementing counter; wraparound is not handled.
type RequestKey int32

// StreamState is the coarse streaming state reported in status responses.
type StreamState string

const (
	StreamStandby  StreamState = "standby"
	StreamStarting StreamState = "starting"
	StreamOnAir    StreamState = "onAir"
	StreamStopping StreamState = "stopping"
)

// StartParams is the payload of a start request.
type StartParams struct {
	Source      string `json:"source"`
	UserPage    string `json:"userPage"`
	Privacy     string `json:"privacy"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Request is a decoded controller request.
// Only the payload matching Type is populated.
type Request struct {
	Type    MessageType
	Start   StartParams
	Quality VideoQuality
}

// StreamingStatus is the result payload of a status response.
type StreamingStatus struct {
	Status      string `json:"status"`
	SourceTitle string `json:"sourceTitle"`
	UserName    string `json:"userName"`
	Quality     string `json:"quality"`
}

// Response is the envelope sent back to the controller.
// Error is empty on success.
type Response struct {
	Type       MessageType `json:"type"`
	RequestKey RequestKey  `json:"requestKey"`
	Error      string      `json:"error"`

	*StreamingStatus
}
