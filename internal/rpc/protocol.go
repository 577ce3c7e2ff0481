// Package rpc exposes the session's parameters and metering to control
// clients over a persistent WebSocket connection carrying JSON messages.
//
// Clients send requests ({"id":1,"method":"setParameter","params":{...}})
// and receive responses keyed by the same id. The server additionally
// pushes notifications (no id) for metering frames, build status, and
// parameter-list changes after a reload.
package rpc

import (
	"encoding/json"
	"errors"
)

// Error codes carried in error responses. The negative codes follow the
// JSON-RPC convention for transport-level failures; positive codes are
// domain errors.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603

	CodeParamNotFound = 1001
	CodeNoData        = 1002
)

// Methods a client may invoke.
const (
	MethodListParameters = "listParameters"
	MethodGetParameter   = "getParameter"
	MethodSetParameter   = "setParameter"
	MethodGetMeterFrame  = "getMeterFrame"
	MethodPing           = "ping"
)

// Notification methods pushed by the server.
const (
	NotifyParametersChanged = "parametersChanged"
	NotifyMeterFrame        = "meterFrame"
	NotifySpectrumFrame     = "spectrumFrame"
	NotifyBuildStarted      = "buildStarted"
	NotifyBuildSucceeded    = "buildSucceeded"
	NotifyBuildFailed       = "buildFailed"
	NotifyShuttingDown      = "shuttingDown"
)

// ErrParameterNotFound is returned by a Host when a request names an id
// absent from the current flattened parameter list.
var ErrParameterNotFound = errors.New("parameter not found")

// Request is a client-to-server message. ID is echoed verbatim in the
// response so clients may use numbers or strings.
type Request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers exactly one Request.
type Response struct {
	ID     json.RawMessage `json:"id"`
	Result interface{}     `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Notification is a server-push message with no id; clients must not
// reply to it.
type Notification struct {
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// Error is the structured error payload of a failed Response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

func errParse(detail string) *Error {
	return &Error{Code: CodeParseError, Message: "parse error", Data: detail}
}

func errMethodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: "method not found", Data: method}
}

func errInvalidParams(detail string) *Error {
	return &Error{Code: CodeInvalidParams, Message: "invalid params", Data: detail}
}

func errInternal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", Data: err.Error()}
}

func errParamNotFound(id string) *Error {
	return &Error{Code: CodeParamNotFound, Message: "parameter not found", Data: id}
}

// MeterFrame is the payload of a meterFrame notification. Values are
// linear amplitude in [0, 1] for a full-scale signal.
type MeterFrame struct {
	PeakL float64 `json:"peakL"`
	RmsL  float64 `json:"rmsL"`
	PeakR float64 `json:"peakR"`
	RmsR  float64 `json:"rmsR"`
}

// SpectrumFrame is the payload of a spectrumFrame notification: magnitude
// bins from DC upward, BinHz apart.
type SpectrumFrame struct {
	Bins  []float64 `json:"bins"`
	BinHz float64   `json:"binHz"`
}

// setParameterParams and friends are the typed views of Request.Params.
type setParameterParams struct {
	ID    string   `json:"id"`
	Value *float64 `json:"value"`
}

type getParameterParams struct {
	ID string `json:"id"`
}
