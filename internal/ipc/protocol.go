// Package ipc carries requests between the overseer CLI and the daemon over
// a unix domain socket. Each exchange is one length-prefixed JSON frame in
// either direction.
package ipc

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion changes whenever the frame shapes change incompatibly.
// The daemon rejects requests carrying any other version.
const ProtocolVersion = 1

type Request struct {
	ProtocolVersion int             `json:"protocol_version"`
	Command         string          `json:"command"`
	Params          json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorDetail    `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried in failed responses. The CLI shows the message; the
// code tells it what kind of failure it is looking at.
const (
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeUnknownCommand = "unknown_command"
	ErrCodeValidation     = "validation_failed"
	ErrCodeNotFound       = "not_found"
	ErrCodeNotPermitted   = "not_permitted"
	ErrCodeIO             = "io_error"
	ErrCodeInternal       = "internal"
)

func NewRequest(command string, params any) (*Request, error) {
	req := &Request{ProtocolVersion: ProtocolVersion, Command: command}
	if params == nil {
		return req, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	req.Params = data
	return req, nil
}

func SuccessResponse(data any) *Response {
	if data == nil {
		return &Response{Success: true}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		// Data always comes from our own structs, so this is a bug, not
		// an input problem. Surface it rather than framing garbage.
		return ErrorResponse(ErrCodeInternal, fmt.Sprintf("marshal response data: %v", err))
	}
	return &Response{Success: true, Data: raw}
}

func ErrorResponse(code, message string) *Response {
	return &Response{
		Success: false,
		Error:   &ErrorDetail{Code: code, Message: message},
	}
}
